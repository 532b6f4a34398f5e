package markov

import (
	"reflect"
	"testing"
)

func TestTokenIdentity(t *testing.T) {
	if Start == End {
		t.Fatal("Start and End must be distinct")
	}
	for _, text := range []string{"", "<START>", "<END>", "start", "end", "sentence start"} {
		w := Word(text)
		if w == Start || w == End {
			t.Errorf("word %q collides with a sentinel", text)
		}
	}

	m := map[Token]int{Start: 1, End: 2, Word("<START>"): 3}
	if len(m) != 3 {
		t.Errorf("expected 3 distinct map keys, got %d", len(m))
	}
	if !Start.IsBoundary() || !End.IsBoundary() || Word("x").IsBoundary() {
		t.Error("IsBoundary reported the wrong kind")
	}
}

func TestTokenValid(t *testing.T) {
	testCases := []struct {
		token Token
		valid bool
	}{
		{Start, true},
		{End, true},
		{Word("cat"), true},
		{Word(""), false},
		{Word("two words"), false},
		{Token{Kind: KindStart, Text: "x"}, false},
		{Token{Kind: TokenKind(9), Text: "x"}, false},
	}
	for _, tc := range testCases {
		if got := tc.token.valid(); got != tc.valid {
			t.Errorf("valid(%#v) = %v, want %v", tc.token, got, tc.valid)
		}
	}
}

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"Empty", "", ""},
		{"Tags", "<p>Hello <b>there</b></p>", "Hello there"},
		{"Ellipsis", "Wait... what", "Wait… what"},
		{"Newlines", "one\ntwo\r\nthree", "one two three"},
		{"Control characters", "a\tb\vc\fd\ae\bf", "abcdef"},
		{"Brackets", "(a) [b] {c}", "a b c"},
		{"Quotes", `"hi" 'there' «yes» „no“ ‘x’ ‛y”`, "hi there yes no x y"},
		{"Quoted ellipsis", `"..."`, "…"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.input); got != tc.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected [][]string
	}{
		{
			name:     "Two sentences",
			input:    "The cat sat. The cat ran!",
			expected: [][]string{{"the", "cat", "sat"}, {"the", "cat", "ran"}},
		},
		{
			name:     "No terminator",
			input:    "hello world",
			expected: [][]string{{"hello", "world"}},
		},
		{
			name:     "Consecutive terminators",
			input:    "Really?! Yes… OK.",
			expected: [][]string{{"really"}, {"yes"}, {"ok"}},
		},
		{
			name:     "Only first word lowercased",
			input:    "Hello World. NASA Rocks",
			expected: [][]string{{"hello", "World"}, {"nasa", "Rocks"}},
		},
		{
			name:     "Empty",
			input:    "",
			expected: [][]string{},
		},
		{
			name:     "Only terminators",
			input:    " . ! ? ",
			expected: [][]string{},
		},
		{
			name:     "ASCII separator characters",
			input:    "a\x1cb. c\x1fd e\x1d\x1ef",
			expected: [][]string{{"a", "b"}, {"c", "d", "e", "f"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitSentences(tc.input)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("SplitSentences(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestDefaultTokenizerStripChars(t *testing.T) {
	tok := NewDefaultTokenizer(WithStripChars("*#"))
	if got := tok.Normalize("*bold* #tag (x)"); got != "bold tag x" {
		t.Errorf("Normalize with extra strip chars got %q", got)
	}
	if got := NewDefaultTokenizer().Normalize("*bold*"); got != "*bold*" {
		t.Errorf("default tokenizer should keep '*', got %q", got)
	}
	got := tok.Sentences(tok.Normalize("A b. C d"))
	if !reflect.DeepEqual(got, [][]string{{"a", "b"}, {"c", "d"}}) {
		t.Errorf("Sentences() got %v", got)
	}
}

func TestDefaultTokenizerTerminators(t *testing.T) {
	if got := NewDefaultTokenizer().Terminators(); got != DefaultTerminators {
		t.Errorf("default Terminators() = %q, want %q", got, DefaultTerminators)
	}

	testCases := []struct {
		chars string
		want  string
	}{
		{chars: "!", want: "!"},
		{chars: ".!.!", want: ".!"},
		{chars: "!;x?", want: "!?"},
		{chars: ";", want: DefaultTerminators},
		{chars: "", want: DefaultTerminators},
	}
	for _, tc := range testCases {
		if got := NewDefaultTokenizer(WithTerminators(tc.chars)).Terminators(); got != tc.want {
			t.Errorf("WithTerminators(%q): Terminators() = %q, want %q", tc.chars, got, tc.want)
		}
	}

	tok := NewDefaultTokenizer(WithTerminators(".!"))
	got := tok.Sentences("Is it? It is. Yes!")
	want := [][]string{{"is", "it?", "It", "is"}, {"yes"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sentences() = %q, want %q", got, want)
	}
}
