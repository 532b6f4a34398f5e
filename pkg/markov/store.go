package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	// StartTokenID is the reserved vocabulary ID for the Start sentinel.
	StartTokenID = 0
	// EndTokenID is the reserved vocabulary ID for the End sentinel.
	EndTokenID = 1
)

// ErrModelNotFound is returned when a named model does not exist in the store.
var ErrModelNotFound = errors.New("model not found")

// ModelInfo holds the metadata of a stored model.
type ModelInfo struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

// SetupSchema initializes the necessary tables and the sentinel vocabulary
// entries in the provided database. This function should be called once on a
// new database before any other operations are performed. It is idempotent and
// safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaVocab = `
CREATE TABLE IF NOT EXISTS markov_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_kind INTEGER NOT NULL,
    token_text TEXT NOT NULL,
    UNIQUE (token_kind, token_text)
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS markov_transitions (
    model_id INTEGER NOT NULL,
    from_token_id INTEGER NOT NULL,
    to_token_id INTEGER NOT NULL,
    probability REAL NOT NULL,
    PRIMARY KEY (model_id, from_token_id, to_token_id)
);
`
		schemaTerminators = `
CREATE TABLE IF NOT EXISTS markov_terminators (
    model_id INTEGER NOT NULL,
    terminator TEXT NOT NULL,
    probability REAL NOT NULL,
    PRIMARY KEY (model_id, terminator)
);
`
	)

	sentinels := fmt.Sprintf("INSERT OR IGNORE INTO markov_vocabulary (token_id, token_kind, token_text) VALUES (%d, %d, ''), (%d, %d, '');",
		StartTokenID, KindStart, EndTokenID, KindEnd)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaVocab, schemaModels, schemaTransitions, schemaTerminators} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if _, err = tx.Exec(sentinels); err != nil {
		return fmt.Errorf("could not insert sentinel tokens: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store persists Models in a SQLite database. It holds the database
// connection and prepared SQL statements. Every model read back from the
// store is validated before it is returned.
type Store struct {
	db                 *sql.DB
	stmtGetModelInfo   *sql.Stmt
	stmtGetModels      *sql.Stmt
	stmtInsertVocab    *sql.Stmt
	stmtGetTransitions *sql.Stmt
	stmtGetTerminators *sql.Stmt
	stmtModelLinks     *sql.Stmt
	stmtModelSources   *sql.Stmt
	stmtModelStarters  *sql.Stmt
	stmtModelVocab     *sql.Stmt
	stmtGetVocabLen    *sql.Stmt
	logger             *slog.Logger
}

// NewStore creates and returns a new Store. It pre-compiles all necessary SQL
// statements, returning an error if any preparation fails. SetupSchema must
// have been run on db.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT model_id FROM markov_models WHERE model_name = ?;`},
		{&s.stmtGetModels, `SELECT model_id, model_name FROM markov_models;`},
		{&s.stmtInsertVocab, `INSERT INTO markov_vocabulary (token_kind, token_text) VALUES (?, ?) ON CONFLICT(token_kind, token_text) DO UPDATE SET token_text=excluded.token_text RETURNING token_id;`},
		{&s.stmtGetTransitions, `
SELECT f.token_kind, f.token_text, t.token_kind, t.token_text, c.probability
FROM markov_transitions c
JOIN markov_vocabulary f ON f.token_id = c.from_token_id
JOIN markov_vocabulary t ON t.token_id = c.to_token_id
WHERE c.model_id = ?;`},
		{&s.stmtGetTerminators, `SELECT terminator, probability FROM markov_terminators WHERE model_id = ?;`},
		{&s.stmtModelLinks, `SELECT COUNT(*) FROM markov_transitions WHERE model_id = ?;`},
		{&s.stmtModelSources, `SELECT COUNT(DISTINCT from_token_id) FROM markov_transitions WHERE model_id = ?;`},
		{&s.stmtModelStarters, `SELECT COUNT(*) FROM markov_transitions WHERE model_id = ? AND from_token_id = ? AND to_token_id != ?;`},
		{&s.stmtModelVocab, `SELECT COUNT(DISTINCT to_token_id) FROM markov_transitions WHERE model_id = ? AND to_token_id NOT IN (?, ?);`},
		{&s.stmtGetVocabLen, `SELECT COUNT(*) FROM markov_vocabulary WHERE token_id NOT IN (?, ?);`},
	}

	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*st.dst = stmt
	}

	return s, nil
}

// Close releases all prepared SQL statements held by the Store. It should be
// called when the Store is no longer needed to free up database resources.
// The database itself is left open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo,
		s.stmtGetModels,
		s.stmtInsertVocab,
		s.stmtGetTransitions,
		s.stmtGetTerminators,
		s.stmtModelLinks,
		s.stmtModelSources,
		s.stmtModelStarters,
		s.stmtModelVocab,
		s.stmtGetVocabLen,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// GetModelInfos retrieves metadata for all stored models, keyed by name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata for a single model specified by name.
// It returns an error wrapping ErrModelNotFound if there is no such model.
func (s *Store) GetModelInfo(ctx context.Context, name string) (ModelInfo, error) {
	var id int
	err := s.stmtGetModelInfo.QueryRowContext(ctx, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{Id: id, Name: name}, nil
}

// SaveModel validates model and stores it under name, replacing any model
// already stored with that name. The operation is a single transaction.
func (s *Store) SaveModel(ctx context.Context, name string, model *Model) (ModelInfo, error) {
	if model == nil {
		return ModelInfo{}, errors.New("markov: nil model")
	}
	if err := model.Validate(); err != nil {
		return ModelInfo{}, fmt.Errorf("refusing to save model %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int
	err = tx.QueryRowContext(ctx, "SELECT model_id FROM markov_models WHERE model_name = ?", name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := tx.ExecContext(ctx, "INSERT INTO markov_models (model_name) VALUES (?)", name)
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert new model '%s': %w", name, err)
		}
		newID, _ := res.LastInsertId()
		modelID = int(newID)
	} else if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to query for model '%s': %w", name, err)
	} else if err = clearModel(ctx, tx, modelID); err != nil {
		return ModelInfo{}, err
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	vocabCache := map[Token]int{Start: StartTokenID, End: EndTokenID}
	tokenID := func(t Token) (int, error) {
		if id, ok := vocabCache[t]; ok {
			return id, nil
		}
		var id int
		if err := stmtInsertVocab.QueryRowContext(ctx, t.Kind, t.Text).Scan(&id); err != nil {
			return 0, fmt.Errorf("sql insert vocabulary error for token '%s': %w", t.Text, err)
		}
		vocabCache[t] = id
		return id, nil
	}

	stmtInsertLink, err := tx.PrepareContext(ctx, `INSERT INTO markov_transitions (model_id, from_token_id, to_token_id, probability) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare transition insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertLink)

	links := 0
	for from, next := range model.Transitions {
		fromID, err := tokenID(from)
		if err != nil {
			return ModelInfo{}, err
		}
		for to, p := range next {
			toID, err := tokenID(to)
			if err != nil {
				return ModelInfo{}, err
			}
			if _, err = stmtInsertLink.ExecContext(ctx, modelID, fromID, toID, p); err != nil {
				return ModelInfo{}, fmt.Errorf("failed to insert transition (%d -> %d): %w", fromID, toID, err)
			}
			links++
		}
	}

	for t, p := range model.Terminators {
		if _, err = tx.ExecContext(ctx, "INSERT INTO markov_terminators (model_id, terminator, probability) VALUES (?, ?, ?)", modelID, t, p); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert terminator %q: %w", t, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, fmt.Errorf("could not commit model '%s': %w", name, err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
		slog.Int("transitions_saved", links),
		slog.Int("vocab_items_used", len(vocabCache)),
	)

	return ModelInfo{Id: modelID, Name: name}, nil
}

// LoadModel reads the model stored under name and validates it. A model that
// fails validation is never returned.
func (s *Store) LoadModel(ctx context.Context, name string) (*Model, error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtGetTransitions.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions for model '%s': %w", name, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	transitions := make(Transitions)
	for rows.Next() {
		var from, to Token
		var p float64
		if err = rows.Scan(&from.Kind, &from.Text, &to.Kind, &to.Text, &p); err != nil {
			return nil, err
		}
		next, ok := transitions[from]
		if !ok {
			next = make(map[Token]float64)
			transitions[from] = next
		}
		next[to] = p
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	terminators, err := s.getTerminators(ctx, info.Id)
	if err != nil {
		return nil, err
	}

	if err = Validate(transitions, terminators); err != nil {
		return nil, fmt.Errorf("stored model '%s' is invalid: %w", name, err)
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("sources", len(transitions)),
	)

	return &Model{Transitions: transitions, Terminators: terminators}, nil
}

func (s *Store) getTerminators(ctx context.Context, modelID int) (TerminatorDistribution, error) {
	rows, err := s.stmtGetTerminators.QueryContext(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("could not query terminators for model %d: %w", modelID, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	terminators := make(TerminatorDistribution)
	for rows.Next() {
		var t string
		var p float64
		if err = rows.Scan(&t, &p); err != nil {
			return nil, err
		}
		terminators[t] = p
	}
	return terminators, rows.Err()
}

// RemoveModel deletes a model and all of its transitions and terminators.
// The operation is performed within a transaction. Vocabulary entries are
// shared between models and are left for PruneVocabulary.
func (s *Store) RemoveModel(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int
	err = tx.QueryRowContext(ctx, "SELECT model_id FROM markov_models WHERE model_name = ?", name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return err
	}

	if err = clearModel(ctx, tx, modelID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_models WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", modelID, err)
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
	)

	return tx.Commit()
}

// clearModel deletes the transitions and terminators of a model, keeping its row.
func clearModel(ctx context.Context, tx *sql.Tx, modelID int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM markov_transitions WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove transitions for model %d: %w", modelID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM markov_terminators WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove terminators for model %d: %w", modelID, err)
	}
	return nil
}
