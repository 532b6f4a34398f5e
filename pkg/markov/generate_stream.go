package markov

import (
	"context"
	"log/slog"
	"strings"
)

// GenerateStream generates count sentences in a background goroutine and
// delivers them on the returned channel. Empty sentences are skipped but
// still count towards count. The channel is closed once generation is
// complete, when an error occurs (the error is logged), or when ctx is
// cancelled.
func (g *Generator) GenerateStream(ctx context.Context, count int) <-chan string {
	sentenceChan := make(chan string)

	go func() {
		defer close(sentenceChan)

		for i := 0; i < count; i++ {
			sentence, err := g.Generate(ctx)
			if err != nil {
				if ctx.Err() != nil {
					g.logger.DebugContext(ctx, "Generation stream cancelled by context")
				} else {
					g.logger.ErrorContext(ctx, "failed to generate sentence for stream",
						slog.Int("sentence_index", i),
						slog.Any("error", err),
					)
				}
				return
			}
			if sentence == "" {
				continue
			}
			select {
			case <-ctx.Done():
				g.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return
			case sentenceChan <- sentence:
			}
		}
	}()

	return sentenceChan
}

// Paragraph joins n non-empty generated sentences with single spaces. Empty
// sentences are retried, up to ten attempts per requested sentence, so a
// model that rarely yields words may return fewer than n sentences.
func (g *Generator) Paragraph(ctx context.Context, n int) (string, error) {
	sentences := make([]string, 0, max(n, 0))
	for attempts := 0; len(sentences) < n && attempts < 10*n; attempts++ {
		sentence, err := g.Generate(ctx)
		if err != nil {
			return "", err
		}
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
	}
	return strings.Join(sentences, " "), nil
}
