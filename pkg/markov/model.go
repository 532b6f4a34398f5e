package markov

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDegenerateCorpus is returned when a corpus yields no transitions.
	ErrDegenerateCorpus = errors.New("cannot build model: corpus yields no transitions")
	// ErrInvalidKey is returned by validation for a malformed transition key.
	ErrInvalidKey = errors.New("invalid transition key")
	// ErrInvalidProbability is returned by validation for a probability outside [0,1].
	ErrInvalidProbability = errors.New("invalid probability")
	// ErrInvalidTerminator is returned by validation for an unrecognized terminator.
	ErrInvalidTerminator = errors.New("invalid terminator")
)

// Transitions maps a source token to the probability of each destination.
type Transitions map[Token]map[Token]float64

// TerminatorDistribution maps each terminator character to its probability.
type TerminatorDistribution map[string]float64

// Model is a trained first-order chain: the transition table plus the
// distribution of sentence terminators. A Model must not be modified once
// built; Generators and Stores only read it.
type Model struct {
	Transitions Transitions
	Terminators TerminatorDistribution
}

// Next returns the destination distribution for from, and whether from is a
// source in the table.
func (m *Model) Next(from Token) (map[Token]float64, bool) {
	next, ok := m.Transitions[from]
	return next, ok
}

// Validate checks m with the same rules as the package-level Validate.
func (m *Model) Validate() error {
	return Validate(m.Transitions, m.Terminators)
}

// Validate verifies a candidate transition table and terminator distribution,
// typically one restored from storage. Every key must be a literal word or a
// sentinel (Start never as a destination, End never as a source), every
// probability must lie in [0,1], and every terminator must be one of
// DefaultTerminators. The returned error wraps ErrInvalidKey,
// ErrInvalidProbability or ErrInvalidTerminator. Nothing is repaired.
func Validate(transitions Transitions, terminators TerminatorDistribution) error {
	for from, next := range transitions {
		if !from.valid() {
			return fmt.Errorf("%w: source %q is neither a word nor a boundary", ErrInvalidKey, from.Text)
		}
		if from == End {
			return fmt.Errorf("%w: %s cannot be a source", ErrInvalidKey, End)
		}
		for to, p := range next {
			if !to.valid() {
				return fmt.Errorf("%w: destination %q of %q is neither a word nor a boundary", ErrInvalidKey, to.Text, from)
			}
			if to == Start {
				return fmt.Errorf("%w: %s cannot be a destination (from %q)", ErrInvalidKey, Start, from)
			}
			if !validProbability(p) {
				return fmt.Errorf("%w: %q -> %q has probability %v, want a value in [0,1]", ErrInvalidProbability, from, to, p)
			}
		}
	}

	for t, p := range terminators {
		if !isTerminator(t) {
			return fmt.Errorf("%w: %q is not one of %q", ErrInvalidTerminator, t, DefaultTerminators)
		}
		if !validProbability(p) {
			return fmt.Errorf("%w: terminator %q has probability %v, want a value in [0,1]", ErrInvalidProbability, t, p)
		}
	}
	return nil
}

// validProbability rejects NaN as well as values outside [0,1].
func validProbability(p float64) bool {
	return p >= 0 && p <= 1
}

func isTerminator(s string) bool {
	return len([]rune(s)) == 1 && strings.Contains(DefaultTerminators, s)
}
