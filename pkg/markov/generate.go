package markov

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrTokenNotInModel is returned when the walk reaches a token that has no
	// entry in the transition table.
	ErrTokenNotInModel = errors.New("token not in model")
	// ErrEmptyDistribution is returned when every weight of a distribution is zero.
	ErrEmptyDistribution = errors.New("distribution has no positive weight")
)

// DefaultMaxWords is the word limit used when WithMaxWords is not given.
const DefaultMaxWords = 20

// generateOptions Is used by NewGenerator to configure default options.
type generateOptions struct {
	maxWords    int
	temperature float64
	topK        int
	rng         *rand.Rand
}

// GenerateOption is a function that configures generation parameters. It's
// used as a variadic argument to NewGenerator and Generate.
type GenerateOption func(*generateOptions)

// WithMaxWords sets the maximum number of words in a sentence, not counting
// the terminator. A value of 0 or less always produces an empty sentence.
func WithMaxWords(n int) GenerateOption {
	return func(o *generateOptions) { o.maxWords = n }
}

// WithTemperature adjusts the randomness of the token selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less probable tokens more likely).
// Values < 1.0 decrease randomness (making probable tokens even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most probable token).
// NaN is treated as 1.0.
func WithTemperature(t float64) GenerateOption {
	if math.IsNaN(t) {
		t = 1.0
	}
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the selection pool to the `k` most probable tokens
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// WithRand makes the Generator draw from r instead of the global source.
// r is not safe for concurrent use, and neither is the resulting Generator.
func WithRand(r *rand.Rand) GenerateOption {
	return func(o *generateOptions) { o.rng = r }
}

// WithSeed gives the Generator its own PCG source seeded with seed, making its
// output reproducible. Like WithRand, the Generator is then single-goroutine.
func WithSeed(seed uint64) GenerateOption {
	return WithRand(rand.New(rand.NewPCG(seed, 0)))
}

// weighted is a sampling table: keys in a fixed order with the prefix sums
// of their weights.
type weighted[K any] struct {
	keys       []K
	weights    []float64
	cumulative []float64
}

func newWeighted[K any](keys []K, weights []float64) *weighted[K] {
	w := &weighted[K]{
		keys:       keys,
		weights:    weights,
		cumulative: make([]float64, len(weights)),
	}
	var sum float64
	for i, v := range weights {
		sum += v
		w.cumulative[i] = sum
	}
	return w
}

func (w *weighted[K]) total() float64 {
	if len(w.cumulative) == 0 {
		return 0
	}
	return w.cumulative[len(w.cumulative)-1]
}

// pick maps u in [0,1) to a key by binary search over the prefix sums.
// Keys with zero weight are never returned.
func (w *weighted[K]) pick(u float64) (K, error) {
	var zero K
	total := w.total()
	if total <= 0 {
		return zero, ErrEmptyDistribution
	}
	target := u * total
	i := sort.Search(len(w.cumulative), func(i int) bool { return w.cumulative[i] > target })
	if i == len(w.keys) {
		// Rounding pushed target onto the total; use the last positive entry.
		for i = len(w.keys) - 1; i > 0 && w.weights[i] <= 0; i-- {
		}
	}
	return w.keys[i], nil
}

// Generator performs weighted random walks over a Model. Without WithRand or
// WithSeed it uses the global math/rand/v2 source and is safe for concurrent use.
type Generator struct {
	model       *Model
	table       map[Token]*weighted[Token]
	terminators *weighted[string]
	options     generateOptions
	logger      *slog.Logger
}

// NewGenerator validates model and compiles it into sampling tables. The
// Model is only read, never modified.
func NewGenerator(model *Model, opts ...GenerateOption) (*Generator, error) {
	if model == nil {
		return nil, errors.New("markov: nil model")
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("model rejected: %w", err)
	}

	options := generateOptions{
		maxWords:    DefaultMaxWords,
		temperature: 1.0,
		topK:        0,
	}
	for _, opt := range opts {
		opt(&options)
	}

	table := make(map[Token]*weighted[Token], len(model.Transitions))
	for from, next := range model.Transitions {
		keys := make([]Token, 0, len(next))
		for to := range next {
			keys = append(keys, to)
		}
		slices.SortFunc(keys, compareTokens)
		weights := make([]float64, len(keys))
		for i, to := range keys {
			weights[i] = next[to]
		}
		table[from] = newWeighted(keys, weights)
	}

	termKeys := make([]string, 0, len(model.Terminators))
	for t := range model.Terminators {
		termKeys = append(termKeys, t)
	}
	slices.Sort(termKeys)
	termWeights := make([]float64, len(termKeys))
	for i, t := range termKeys {
		termWeights[i] = model.Terminators[t]
	}

	return &Generator{
		model:       model,
		table:       table,
		terminators: newWeighted(termKeys, termWeights),
		options:     options,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Model returns the model the Generator walks.
func (g *Generator) Model() *Model {
	return g.model
}

// Generate is the package-level convenience: one sentence of at most maxWords
// words from model.
func Generate(model *Model, maxWords int, opts ...GenerateOption) (string, error) {
	g, err := NewGenerator(model, append(opts, WithMaxWords(maxWords))...)
	if err != nil {
		return "", err
	}
	return g.Generate(context.Background())
}

// Generate walks the chain from Start until End is drawn or the word limit is
// reached, then capitalizes the first word and appends a sampled terminator.
// If End is drawn immediately the result is an empty string and no error.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	words := make([]string, 0, min(max(g.options.maxWords, 0), 64))
	current := Start

	terminatedEarly := false
	for len(words) < g.options.maxWords {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		next, err := g.Step(current)
		if err != nil {
			return "", err
		}
		if next == End {
			terminatedEarly = true
			g.logger.DebugContext(ctx, "Generation terminated by end token",
				slog.Int("generated_length", len(words)),
			)
			break
		}
		words = append(words, next.Text)
		current = next
	}

	if !terminatedEarly {
		g.logger.DebugContext(ctx, "Generation terminated by reaching maxWords",
			slog.Int("max_words", g.options.maxWords),
			slog.Int("generated_length", len(words)),
		)
	}

	if len(words) == 0 {
		return "", nil
	}

	terminator, err := g.terminators.pick(g.draw())
	if err != nil {
		return "", fmt.Errorf("could not draw terminator: %w", err)
	}

	words[0] = capitalize(words[0])
	return strings.Join(words, " ") + terminator, nil
}

// Step draws the token that follows current. A source with a single
// destination always yields that destination.
func (g *Generator) Step(current Token) (Token, error) {
	dist, ok := g.table[current]
	if !ok {
		return Token{}, fmt.Errorf("%w: %q", ErrTokenNotInModel, current)
	}
	next, err := g.chooseNextToken(dist)
	if err != nil {
		return Token{}, fmt.Errorf("could not draw successor of %q: %w", current, err)
	}
	return next, nil
}

// chooseNextToken abstracts the token selection logic from the generation loop.
func (g *Generator) chooseNextToken(dist *weighted[Token]) (Token, error) {
	if g.options.temperature == 1.0 && g.options.topK <= 0 {
		return dist.pick(g.draw())
	}

	type candidate struct {
		token  Token
		weight float64
	}
	candidates := make([]candidate, 0, len(dist.keys))
	for i, key := range dist.keys {
		if dist.weights[i] > 0 {
			candidates = append(candidates, candidate{token: key, weight: dist.weights[i]})
		}
	}
	if len(candidates) == 0 {
		return Token{}, ErrEmptyDistribution
	}

	// topK filtering; the stable sort keeps token order among equal weights.
	if g.options.topK > 0 && g.options.topK < len(candidates) {
		slices.SortStableFunc(candidates, func(a, b candidate) int {
			return cmp.Compare(b.weight, a.weight)
		})
		candidates = candidates[:g.options.topK]
	}

	// temperature selection
	if g.options.temperature <= 0 { // Deterministic
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.weight > best.weight || (c.weight == best.weight && compareTokens(c.token, best.token) < 0) {
				best = c
			}
		}
		return best.token, nil
	}

	keys := make([]Token, len(candidates))
	weights := make([]float64, len(candidates))
	if g.options.temperature == 1.0 {
		for i, c := range candidates {
			keys[i], weights[i] = c.token, c.weight
		}
		return newWeighted(keys, weights).pick(g.draw())
	}

	logWeights := make([]float64, len(candidates))
	maxLog := math.Inf(-1)
	for i, c := range candidates {
		lw := math.Log(c.weight) / g.options.temperature
		logWeights[i] = lw
		if lw > maxLog {
			maxLog = lw
		}
	}
	for i, c := range candidates {
		keys[i] = c.token
		weights[i] = math.Exp(logWeights[i] - maxLog)
	}
	return newWeighted(keys, weights).pick(g.draw())
}

// draw returns a uniform value in [0,1) from the configured source.
func (g *Generator) draw() float64 {
	if g.options.rng != nil {
		return g.options.rng.Float64()
	}
	return rand.Float64()
}

// capitalize upper-cases the first letter of s and leaves the rest untouched.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
