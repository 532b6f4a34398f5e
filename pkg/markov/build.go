package markov

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Builder constructs Models from corpus text. It holds the tokenizer used to
// normalize and split the corpus, and a logger.
type Builder struct {
	tokenizer Tokenizer
	logger    *slog.Logger
}

// NewBuilder creates a Builder using the given Tokenizer. A nil tokenizer
// selects NewDefaultTokenizer().
func NewBuilder(tokenizer Tokenizer) *Builder {
	if tokenizer == nil {
		tokenizer = NewDefaultTokenizer()
	}
	return &Builder{
		tokenizer: tokenizer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Builder. By default, all logs are discarded.
func (b *Builder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Build is the package-level entry point: it builds a Model from corpus text
// with the default tokenizer. It returns ErrDegenerateCorpus when the text
// holds no sentences.
func Build(text string) (*Model, error) {
	return NewBuilder(nil).BuildString(context.Background(), text)
}

// BuildString builds a Model from an in-memory corpus.
func (b *Builder) BuildString(ctx context.Context, text string) (*Model, error) {
	return b.Build(ctx, strings.NewReader(text))
}

// Build reads the whole corpus from data and derives a Model from it. The
// reader is buffered entirely because terminator frequencies are counted
// over the complete normalized text before it is split into sentences.
func (b *Builder) Build(ctx context.Context, data io.Reader) (*Model, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("could not read corpus: %w", err)
	}

	text := b.tokenizer.Normalize(string(raw))
	terminators := countTerminators(text, b.tokenizer.Terminators())

	counts := make(map[Token]map[Token]int)
	var sentenceCount, linkCount int
	for _, sentence := range b.tokenizer.Sentences(text) {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if len(sentence) == 0 {
			continue
		}
		linkCount += countSentence(enclose(sentence), counts)
		sentenceCount++
	}

	if len(counts) == 0 {
		return nil, ErrDegenerateCorpus
	}

	model := &Model{
		Transitions: normalizeCounts(counts),
		Terminators: terminators,
	}

	b.logger.InfoContext(ctx, "Model built",
		slog.Int("corpus_bytes", len(raw)),
		slog.Int("sentences_processed", sentenceCount),
		slog.Int("links_counted", linkCount),
		slog.Int("sources", len(model.Transitions)),
	)

	return model, nil
}

// countTerminators derives the terminator distribution from normalized text,
// counting only the given terminators. Every default terminator is present in
// the result, at zero when not counted. A corpus without any period still
// gets "." with a count of one, so there is always something to end a
// generated sentence with.
func countTerminators(text, terminators string) TerminatorDistribution {
	counts := make(map[string]int, len(DefaultTerminators))
	total := 0
	for _, r := range DefaultTerminators {
		t := string(r)
		counts[t] = 0
		if strings.ContainsRune(terminators, r) {
			counts[t] = strings.Count(text, t)
		}
		total += counts[t]
	}
	if counts["."] == 0 {
		counts["."] = 1
		total++
	}

	dist := make(TerminatorDistribution, len(counts))
	for t, c := range counts {
		dist[t] = float64(c) / float64(total)
	}
	return dist
}

// enclose wraps a sentence in the Start and End sentinels.
func enclose(sentence []string) []Token {
	enclosed := make([]Token, 0, len(sentence)+2)
	enclosed = append(enclosed, Start)
	for _, w := range sentence {
		enclosed = append(enclosed, Word(w))
	}
	return append(enclosed, End)
}

// countSentence adds every adjacent pair of an enclosed sentence to counts
// and returns the number of pairs seen.
func countSentence(enclosed []Token, counts map[Token]map[Token]int) int {
	for i := 0; i < len(enclosed)-1; i++ {
		from, to := enclosed[i], enclosed[i+1]
		next, ok := counts[from]
		if !ok {
			next = make(map[Token]int)
			counts[from] = next
		}
		next[to]++
	}
	return len(enclosed) - 1
}

// normalizeCounts turns per-source counts into per-source probabilities.
func normalizeCounts(counts map[Token]map[Token]int) Transitions {
	transitions := make(Transitions, len(counts))
	for from, next := range counts {
		total := 0
		for _, c := range next {
			total += c
		}
		dist := make(map[Token]float64, len(next))
		for to, c := range next {
			dist[to] = float64(c) / float64(total)
		}
		transitions[from] = dist
	}
	return transitions
}
