package markov

import (
	"strings"
	"unicode"
)

// Tokenizer turns raw corpus text into the inputs of the chain builder. This
// keeps the builder independent of the specific text-cleaning strategy.
type Tokenizer interface {
	// Normalize cleans raw text. Terminator counts are taken from its output.
	Normalize(text string) string
	// Sentences splits normalized text into non-empty word lists.
	Sentences(normalized string) [][]string
	// Terminators lists the characters that end a sentence. Only they are
	// counted into the terminator distribution.
	Terminators() string
}

// DefaultTokenizer is the default implementation of the Tokenizer interface.
// It strips markup, unifies ellipses and splits on whitespace and sentence
// terminators. Its behavior can be customized with functional options.
type DefaultTokenizer struct {
	stripChars  string
	stripper    *strings.Replacer
	terminators string
	splitter    *strings.Replacer
}

// Option is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithStripChars adds characters that are removed during normalization, on
// top of the default control, bracket and quote characters.
func WithStripChars(chars string) Option {
	return func(t *DefaultTokenizer) {
		t.stripChars += chars
	}
}

// WithTerminators sets the characters that end a sentence. Only characters
// from DefaultTerminators are kept, since no other key is valid in a
// TerminatorDistribution; an empty result keeps the defaults.
func WithTerminators(chars string) Option {
	return func(t *DefaultTokenizer) {
		var kept []rune
		for _, r := range chars {
			if strings.ContainsRune(DefaultTerminators, r) && !containsRune(kept, r) {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			t.terminators = string(kept)
		}
	}
}

func containsRune(rs []rune, r rune) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{terminators: DefaultTerminators}

	for _, opt := range opts {
		opt(t)
	}

	if t.stripChars == "" {
		t.stripper = defaultStripper
	} else {
		t.stripper = newStripper(escapeChars + bracketChars + quoteChars + t.stripChars)
	}

	if t.terminators == DefaultTerminators {
		t.splitter = defaultSplitter
	} else {
		t.splitter = newSplitter(t.terminators)
	}

	return t
}

// Normalize applies the normalization rules with the configured strip set.
func (t *DefaultTokenizer) Normalize(text string) string {
	return normalize(text, t.stripper)
}

// Sentences splits normalized text into sentences at the configured
// terminator characters.
func (t *DefaultTokenizer) Sentences(normalized string) [][]string {
	return splitSentences(normalized, t.splitter)
}

// Terminators returns the configured sentence-ending characters.
func (t *DefaultTokenizer) Terminators() string {
	return t.terminators
}

var defaultSplitter = newSplitter(DefaultTerminators)

// newSplitter builds a replacer turning every terminator into a newline.
func newSplitter(terminators string) *strings.Replacer {
	var pairs []string
	for _, r := range terminators {
		pairs = append(pairs, string(r), "\n")
	}
	return strings.NewReplacer(pairs...)
}

// isSeparator reports whether r separates words: Unicode white space plus
// the ASCII file, group, record and unit separators.
func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\x1c' && r <= '\x1f')
}

// SplitSentences partitions normalized text into sentences at the default
// terminators and splits each one into words. The first word of every
// sentence is lowercased; segments with no words are dropped, so every
// returned sentence has at least one word. Source order is preserved.
func SplitSentences(normalized string) [][]string {
	return splitSentences(normalized, defaultSplitter)
}

func splitSentences(normalized string, splitter *strings.Replacer) [][]string {
	segments := strings.Split(splitter.Replace(normalized), "\n")

	result := make([][]string, 0, len(segments))
	for _, segment := range segments {
		words := strings.FieldsFunc(segment, isSeparator)
		if len(words) == 0 {
			continue
		}
		words[0] = strings.ToLower(words[0])
		result = append(result, words)
	}
	return result
}
