package markov

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// PruneVocabulary performs a database-wide cleanup, removing words from the
// shared vocabulary that no stored model references anymore. Words are left
// behind when models are removed or replaced. The sentinel entries are never
// pruned. It returns the number of words removed.
func (s *Store) PruneVocabulary(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction for pruning: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	rows, err := tx.QueryContext(ctx, `
SELECT token_id FROM markov_vocabulary
WHERE token_id NOT IN (?, ?)
  AND token_id NOT IN (SELECT from_token_id FROM markov_transitions)
  AND token_id NOT IN (SELECT to_token_id FROM markov_transitions)`,
		StartTokenID, EndTokenID)
	if err != nil {
		return 0, fmt.Errorf("failed to query for unused tokens: %w", err)
	}

	var unused []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan unused token id: %w", err)
		}
		unused = append(unused, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error after iterating unused token rows: %w", err)
	}

	if len(unused) == 0 {
		s.logger.InfoContext(ctx, "No vocabulary to prune")
		return 0, tx.Commit()
	}

	if err := batchDelete(ctx, tx, "markov_vocabulary", "token_id", intSliceToInterface(unused)); err != nil {
		return 0, fmt.Errorf("failed to prune unused tokens from vocabulary: %w", err)
	}

	s.logger.InfoContext(ctx, "Vocabulary pruned successfully",
		slog.Int("tokens_removed", len(unused)),
	)

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(unused), nil
}

// batchDelete is a private helper to robustly delete from a table. It handles empty lists and splits large lists into smaller batches to avoid SQL limits.
func batchDelete(ctx context.Context, tx *sql.Tx, table, column string, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}

	// SQLite's default variable limit is 999, so around half that is good
	const batchSize = 500

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (?%s)", table, column, strings.Repeat(",?", len(batch)-1))

		if _, err := tx.ExecContext(ctx, query, batch...); err != nil {
			return err
		}
	}
	return nil
}

// intSliceToInterface is a helper to convert []int to []interface{} for SQL args.
func intSliceToInterface(s []int) []interface{} {
	if s == nil {
		return nil
	}
	i := make([]interface{}, len(s))
	for j, v := range s {
		i[j] = v
	}
	return i
}
