package templating

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/CTAG07/mimic/pkg/markov"
)

// wordLimit resolves the optional word-limit argument of the model functions.
// The caller must hold tm.mu.
func (tm *TemplateManager) wordLimit(maxWords []int) int {
	n := markov.DefaultMaxWords
	if len(maxWords) > 0 {
		n = maxWords[0]
	}
	return clamp(n, tm.config.MaxWords)
}

// sentence generates one sentence from a named model.
func (tm *TemplateManager) sentence(model string, maxWords ...int) (string, error) {
	g, err := tm.generator(context.Background(), model, tm.wordLimit(maxWords))
	if err != nil {
		return "", fmt.Errorf("sentence %q: %w", model, err)
	}
	return g.Generate(context.Background())
}

// sentences generates n sentences from a named model. Empty sentences are
// kept so the result always has n entries.
func (tm *TemplateManager) sentences(model string, n int, maxWords ...int) ([]string, error) {
	n = clamp(n, tm.config.MaxSentences)
	g, err := tm.generator(context.Background(), model, tm.wordLimit(maxWords))
	if err != nil {
		return nil, fmt.Errorf("sentences %q: %w", model, err)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := g.Generate(context.Background())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// paragraph generates n sentences joined by single spaces.
func (tm *TemplateManager) paragraph(model string, n int) (string, error) {
	g, err := tm.generator(context.Background(), model, tm.wordLimit(nil))
	if err != nil {
		return "", fmt.Errorf("paragraph %q: %w", model, err)
	}
	return g.Paragraph(context.Background(), clamp(n, tm.config.MaxSentences))
}

// paragraphs generates count paragraphs separated by blank lines, each with a
// random number of sentences in [minSentences, maxSentences].
func (tm *TemplateManager) paragraphs(model string, count, minSentences, maxSentences int) (string, error) {
	count = clamp(count, tm.config.MaxParagraphs)
	minSentences = clamp(minSentences, tm.config.MaxSentences)
	maxSentences = clamp(maxSentences, tm.config.MaxSentences)
	if maxSentences < minSentences {
		maxSentences = minSentences
	}

	g, err := tm.generator(context.Background(), model, tm.wordLimit(nil))
	if err != nil {
		return "", fmt.Errorf("paragraphs %q: %w", model, err)
	}

	parts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		n := minSentences + rand.IntN(maxSentences-minSentences+1)
		p, err := g.Paragraph(context.Background(), n)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "\n\n"), nil
}
