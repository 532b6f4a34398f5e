package templating

import (
	"strings"
	"testing"
)

// TestTemplateFunctions validates the behavior of each category of template functions.
func TestTemplateFunctions(t *testing.T) {
	tm := setupTestManager(t)

	t.Run("ContentFuncs", func(t *testing.T) {
		sent, err := tm.sentence("cat")
		if err != nil {
			t.Fatalf("sentence failed: %v", err)
		}
		if sent != "The cat sat." {
			t.Errorf("sentence returned %q", sent)
		}

		sents, err := tm.sentences("cat", 3, 1)
		if err != nil {
			t.Fatalf("sentences failed: %v", err)
		}
		if len(sents) != 3 || sents[0] != "The." {
			t.Errorf("sentences returned %q", sents)
		}

		paras, err := tm.paragraphs("cat", 2, 1, 3)
		if err != nil {
			t.Fatalf("paragraphs failed: %v", err)
		}
		parts := strings.Split(paras, "\n\n")
		if len(parts) != 2 {
			t.Fatalf("expected 2 paragraphs, got %q", paras)
		}
		for _, p := range parts {
			if n := strings.Count(p, "."); n < 1 || n > 3 {
				t.Errorf("paragraph %q has %d sentences, want 1 to 3", p, n)
			}
		}

		// An inverted range collapses to the minimum.
		paras, err = tm.paragraphs("cat", 1, 2, 1)
		if err != nil {
			t.Fatalf("paragraphs failed: %v", err)
		}
		if paras != "The cat sat. The cat sat." {
			t.Errorf("paragraphs returned %q", paras)
		}
	})

	t.Run("SafetyLimits", func(t *testing.T) {
		cfg := tm.GetConfig()
		cfg.MaxSentences = 4
		cfg.MaxWords = 2
		cfg.MaxRepeat = 5
		cfg.MaxParagraphs = 1
		tm.SetConfig(&cfg)
		defer func() {
			d := DefaultConfig()
			tm.SetConfig(&d)
		}()

		sents, err := tm.sentences("cat", 999, 999)
		if err != nil {
			t.Fatalf("sentences failed: %v", err)
		}
		if len(sents) != 4 {
			t.Errorf("sentences did not respect MaxSentences, got %d", len(sents))
		}
		if sents[0] != "The cat." {
			t.Errorf("sentences did not respect MaxWords, got %q", sents[0])
		}
		if n := len(tm.repeat(1_000_000)); n != 5 {
			t.Errorf("repeat did not respect MaxRepeat, got %d", n)
		}
		paras, err := tm.paragraphs("cat", 10, 1, 1)
		if err != nil {
			t.Fatalf("paragraphs failed: %v", err)
		}
		if strings.Contains(paras, "\n\n") {
			t.Errorf("paragraphs did not respect MaxParagraphs: %q", paras)
		}
	})

	t.Run("LogicFuncs", func(t *testing.T) {
		if len(tm.repeat(5)) != 5 {
			t.Error("repeat(5) should produce a slice of length 5")
		}
		if len(tm.repeat(-1)) != 0 {
			t.Error("repeat(-1) should produce an empty slice")
		}
		l := list("a", 1, true)
		if len(l) != 3 || l[0] != "a" {
			t.Error("list function failed")
		}
		choice := randomChoice([]string{"a", "b"})
		if choice != "a" && choice != "b" {
			t.Error("randomChoice returned an invalid choice")
		}
		if randomChoice([]string{}) != nil || randomChoice("nope") != nil || randomChoice(nil) != nil {
			t.Error("randomChoice should return nil for empty or non-slice input")
		}
		for i := 0; i < 100; i++ {
			if n := randomInt(3, 6); n < 3 || n >= 6 {
				t.Fatalf("randomInt(3, 6) returned %d", n)
			}
		}
		if randomInt(5, 5) != 5 {
			t.Error("randomInt with an empty range should return the lower bound")
		}
	})

	t.Run("SimpleFuncs", func(t *testing.T) {
		if add(5, 3) != 8 || sub(5, 3) != 2 || mult(5, 3) != 15 || div(6, 3) != 2 || mod(5, 3) != 2 {
			t.Error("basic math functions failed")
		}
		if div(5, 0) != 0 || mod(5, 0) != 0 {
			t.Error("division by zero should return 0")
		}
		if maxInt(5, 3) != 5 || minInt(5, 3) != 3 || inc(5) != 6 || dec(5) != 4 {
			t.Error("max/min/inc/dec failed")
		}
		if !isSet(1) || isSet(0) || isSet("") || isSet(nil) {
			t.Error("isSet failed")
		}
	})

	t.Run("InTemplate", func(t *testing.T) {
		got := render(t, tm, `{{range $i := repeat 3}}{{inc $i}}{{end}} {{join (sentences "cat" 2 1) "|"}} {{max 2 7}}`, nil)
		if got != "123 The.|The. 7" {
			t.Errorf("unexpected output: %q", got)
		}
	})
}

func TestClamp(t *testing.T) {
	testCases := []struct{ n, limit, want int }{
		{5, 10, 5},
		{50, 10, 10},
		{-3, 10, 0},
		{50, 0, 50},
	}
	for _, tc := range testCases {
		if got := clamp(tc.n, tc.limit); got != tc.want {
			t.Errorf("clamp(%d, %d) = %d, want %d", tc.n, tc.limit, got, tc.want)
		}
	}
}
