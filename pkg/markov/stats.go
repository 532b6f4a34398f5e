package markov

import (
	"context"
)

// DBStats holds aggregated statistics for the entire store, including a
// list of all models and their individual stats.
type DBStats struct {
	Models    []ModelInfo        `json:"models"`     // A list of models in the store
	Stats     map[int]ModelStats `json:"stats"`      // A mapping of model ids to their stats
	VocabSize int                `json:"vocab_size"` // The number of unique words across all models
}

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	Sources       int                    `json:"sources"`        // The number of tokens with outgoing transitions, Start included.
	Transitions   int                    `json:"transitions"`    // The number of unique from->to links.
	Vocabulary    int                    `json:"vocabulary"`     // The number of distinct words reachable as destinations.
	StartingWords int                    `json:"starting_words"` // The number of distinct words that can start a sentence.
	Terminators   TerminatorDistribution `json:"terminators"`    // The terminator distribution.
}

// Stats computes statistics for an in-memory model.
func (m *Model) Stats() ModelStats {
	stats := ModelStats{
		Sources:     len(m.Transitions),
		Terminators: make(TerminatorDistribution, len(m.Terminators)),
	}
	words := make(map[Token]struct{})
	for from, next := range m.Transitions {
		stats.Transitions += len(next)
		for to := range next {
			if to.Kind == KindWord {
				words[to] = struct{}{}
			}
		}
		if from == Start {
			stats.StartingWords = len(next)
			if _, ok := next[End]; ok {
				stats.StartingWords--
			}
		}
	}
	stats.Vocabulary = len(words)
	for t, p := range m.Terminators {
		stats.Terminators[t] = p
	}
	return stats
}

// GetStats returns a snapshot of statistics for the entire store,
// including global counts and per-model stats.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen int
	err = s.stmtGetVocabLen.QueryRowContext(ctx, StartTokenID, EndTokenID).Scan(&vocabLen)
	if err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats)
	for _, v := range modelInfos {
		models = append(models, v)
		stats, err := s.GetModelStats(ctx, v)
		if err != nil {
			return nil, err
		}
		modelStats[v.Id] = stats
	}

	return &DBStats{
		Models:    models,
		Stats:     modelStats,
		VocabSize: vocabLen,
	}, nil
}

// GetModelStats computes the statistics of a stored model without loading it.
func (s *Store) GetModelStats(ctx context.Context, model ModelInfo) (ModelStats, error) {
	var stats ModelStats
	if err := s.stmtModelLinks.QueryRowContext(ctx, model.Id).Scan(&stats.Transitions); err != nil {
		return ModelStats{}, err
	}
	if err := s.stmtModelSources.QueryRowContext(ctx, model.Id).Scan(&stats.Sources); err != nil {
		return ModelStats{}, err
	}
	if err := s.stmtModelVocab.QueryRowContext(ctx, model.Id, StartTokenID, EndTokenID).Scan(&stats.Vocabulary); err != nil {
		return ModelStats{}, err
	}
	var starters int
	if err := s.stmtModelStarters.QueryRowContext(ctx, model.Id, StartTokenID, EndTokenID).Scan(&starters); err != nil {
		return ModelStats{}, err
	}
	stats.StartingWords = starters

	terminators, err := s.getTerminators(ctx, model.Id)
	if err != nil {
		return ModelStats{}, err
	}
	stats.Terminators = terminators
	return stats, nil
}
