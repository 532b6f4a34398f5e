package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"go.yaml.in/yaml/v3"
)

// Format names an encoding for exported models.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const (
	boundaryStart = "start"
	boundaryEnd   = "end"
)

// ExportedModel is the serializable representation of a trained model, used
// for JSON and YAML import and export.
type ExportedModel struct {
	Name        string               `json:"name" yaml:"name"`
	Transitions []ExportedTransition `json:"transitions" yaml:"transitions"`
	Terminators map[string]float64   `json:"terminators" yaml:"terminators"`
}

// ExportedTransition is a single edge of the transition table.
type ExportedTransition struct {
	From        ExportedToken `json:"from" yaml:"from"`
	To          ExportedToken `json:"to" yaml:"to"`
	Probability float64       `json:"probability" yaml:"probability"`
}

// ExportedToken holds either a literal word or a boundary name ("start" or
// "end"), never both.
type ExportedToken struct {
	Word     string `json:"word,omitempty" yaml:"word,omitempty"`
	Boundary string `json:"boundary,omitempty" yaml:"boundary,omitempty"`
}

func exportToken(t Token) ExportedToken {
	switch t.Kind {
	case KindStart:
		return ExportedToken{Boundary: boundaryStart}
	case KindEnd:
		return ExportedToken{Boundary: boundaryEnd}
	default:
		return ExportedToken{Word: t.Text}
	}
}

func (e ExportedToken) token() (Token, error) {
	switch {
	case e.Boundary != "" && e.Word != "":
		return Token{}, fmt.Errorf("%w: token has both word %q and boundary %q", ErrInvalidKey, e.Word, e.Boundary)
	case e.Boundary == boundaryStart:
		return Start, nil
	case e.Boundary == boundaryEnd:
		return End, nil
	case e.Boundary != "":
		return Token{}, fmt.Errorf("%w: unknown boundary %q", ErrInvalidKey, e.Boundary)
	case e.Word == "":
		return Token{}, fmt.Errorf("%w: token has neither word nor boundary", ErrInvalidKey)
	default:
		return Word(e.Word), nil
	}
}

// Export converts m into its serializable form. Transitions are sorted by
// source then destination, so equal models export identically.
func (m *Model) Export(name string) ExportedModel {
	exported := ExportedModel{
		Name:        name,
		Transitions: make([]ExportedTransition, 0, len(m.Transitions)),
		Terminators: make(map[string]float64, len(m.Terminators)),
	}

	sources := make([]Token, 0, len(m.Transitions))
	for from := range m.Transitions {
		sources = append(sources, from)
	}
	slices.SortFunc(sources, compareTokens)

	for _, from := range sources {
		next := m.Transitions[from]
		dests := make([]Token, 0, len(next))
		for to := range next {
			dests = append(dests, to)
		}
		slices.SortFunc(dests, compareTokens)
		for _, to := range dests {
			exported.Transitions = append(exported.Transitions, ExportedTransition{
				From:        exportToken(from),
				To:          exportToken(to),
				Probability: next[to],
			})
		}
	}

	for t, p := range m.Terminators {
		exported.Terminators[t] = p
	}
	return exported
}

// Import rebuilds a Model from its serialized form and validates it. A model
// that fails validation is never returned.
func Import(exported ExportedModel) (*Model, error) {
	transitions := make(Transitions)
	for _, tr := range exported.Transitions {
		from, err := tr.From.token()
		if err != nil {
			return nil, err
		}
		to, err := tr.To.token()
		if err != nil {
			return nil, err
		}
		next, ok := transitions[from]
		if !ok {
			next = make(map[Token]float64)
			transitions[from] = next
		}
		if _, dup := next[to]; dup {
			return nil, fmt.Errorf("%w: duplicate transition %q -> %q", ErrInvalidKey, from, to)
		}
		next[to] = tr.Probability
	}

	terminators := make(TerminatorDistribution, len(exported.Terminators))
	for t, p := range exported.Terminators {
		terminators[t] = p
	}

	if err := Validate(transitions, terminators); err != nil {
		return nil, fmt.Errorf("imported model %q is invalid: %w", exported.Name, err)
	}
	return &Model{Transitions: transitions, Terminators: terminators}, nil
}

// WriteJSON writes the exported model to w as indented JSON.
func WriteJSON(w io.Writer, exported ExportedModel) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// ReadJSON reads a JSON exported model from r. It does not validate; pass
// the result to Import for that.
func ReadJSON(r io.Reader) (ExportedModel, error) {
	var exported ExportedModel
	if err := json.NewDecoder(r).Decode(&exported); err != nil {
		return ExportedModel{}, fmt.Errorf("failed to decode json model: %w", err)
	}
	return exported, nil
}

// WriteYAML writes the exported model to w as YAML.
func WriteYAML(w io.Writer, exported ExportedModel) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(exported); err != nil {
		return err
	}
	return encoder.Close()
}

// ReadYAML reads a YAML exported model from r. Like ReadJSON, it does not
// validate.
func ReadYAML(r io.Reader) (ExportedModel, error) {
	var exported ExportedModel
	if err := yaml.NewDecoder(r).Decode(&exported); err != nil {
		return ExportedModel{}, fmt.Errorf("failed to decode yaml model: %w", err)
	}
	return exported, nil
}

// Encode writes the exported model to w in the given format.
func (e ExportedModel) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, e)
	case FormatYAML:
		return WriteYAML(w, e)
	default:
		return fmt.Errorf("unsupported format %q: use json or yaml", format)
	}
}

// DecodeExported reads an exported model from r in the given format.
func DecodeExported(r io.Reader, format Format) (ExportedModel, error) {
	switch format {
	case FormatJSON, "":
		return ReadJSON(r)
	case FormatYAML:
		return ReadYAML(r)
	default:
		return ExportedModel{}, fmt.Errorf("unsupported format %q: use json or yaml", format)
	}
}
