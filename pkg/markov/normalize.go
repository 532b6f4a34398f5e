package markov

import (
	"regexp"
	"strings"
)

const (
	// DefaultTerminators lists the characters that end a sentence.
	DefaultTerminators = ".!?…"
	// Ellipsis is the single character every "..." is folded into.
	Ellipsis = "…"

	escapeChars  = "\a\b\f\n\r\t\v"
	bracketChars = "()[]{}"
	quoteChars   = "'\"”“’‘‛„«»"
)

// tagRegex matches markup tags non-greedily, e.g. <p> or </a>.
var tagRegex = regexp.MustCompile(`<[^<]+?>`)

// defaultStripper removes control characters, brackets and quotes.
var defaultStripper = newStripper(escapeChars + bracketChars + quoteChars)

// Normalize prepares raw text for sentence splitting using the default rules:
// markup is stripped, "..." becomes a single ellipsis, newlines become spaces,
// and control characters, brackets and quote glyphs are removed. The steps run
// in that order. It never fails; empty input yields an empty string.
func Normalize(text string) string {
	return normalize(text, defaultStripper)
}

func normalize(text string, stripper *strings.Replacer) string {
	text = tagRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "...", Ellipsis)
	text = strings.ReplaceAll(text, "\n", " ")
	return stripper.Replace(text)
}

// newStripper builds a replacer deleting every rune in chars.
func newStripper(chars string) *strings.Replacer {
	var pairs []string
	seen := make(map[rune]struct{})
	for _, r := range chars {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		pairs = append(pairs, string(r), "")
	}
	return strings.NewReplacer(pairs...)
}
