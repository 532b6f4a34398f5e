package markov

import (
	"cmp"
	"strings"
	"unicode"
)

// TokenKind distinguishes literal words from the two boundary sentinels.
type TokenKind uint8

const (
	// KindWord marks a literal word taken from the corpus.
	KindWord TokenKind = iota
	// KindStart marks the Start-Of-Sentence sentinel.
	KindStart
	// KindEnd marks the End-Of-Sentence sentinel.
	KindEnd
)

// Token is a single state of the chain. It is either a literal word or one of
// the boundary sentinels Start and End. Sentinels carry no text and are told
// apart from words by their Kind, so no corpus word can ever collide with them.
// Token is comparable and can be used directly as a map key.
type Token struct {
	Kind TokenKind
	Text string
}

var (
	// Start is the boundary sentinel every sentence begins from.
	Start = Token{Kind: KindStart}
	// End is the terminal boundary sentinel. It has no outgoing transitions.
	End = Token{Kind: KindEnd}
)

// Word returns the literal word token for s.
func Word(s string) Token {
	return Token{Kind: KindWord, Text: s}
}

// IsBoundary reports whether t is one of the sentinels.
func (t Token) IsBoundary() bool {
	return t.Kind == KindStart || t.Kind == KindEnd
}

// String renders sentinels as <START> and <END> for logs and error messages.
func (t Token) String() string {
	switch t.Kind {
	case KindStart:
		return "<START>"
	case KindEnd:
		return "<END>"
	default:
		return t.Text
	}
}

// valid reports whether t is a well-formed key: a sentinel, or a non-empty
// word without whitespace.
func (t Token) valid() bool {
	switch t.Kind {
	case KindStart, KindEnd:
		return t.Text == ""
	case KindWord:
		return t.Text != "" && !strings.ContainsFunc(t.Text, unicode.IsSpace)
	default:
		return false
	}
}

// compareTokens gives tokens a fixed total order: sentinels first, then words
// lexically. Sampling tables and exports rely on it to be reproducible.
func compareTokens(a, b Token) int {
	if a.Kind != b.Kind {
		// Words sort after both sentinels.
		return cmp.Compare(kindRank(a.Kind), kindRank(b.Kind))
	}
	return strings.Compare(a.Text, b.Text)
}

func kindRank(k TokenKind) int {
	switch k {
	case KindStart:
		return 0
	case KindEnd:
		return 1
	default:
		return 2
	}
}
