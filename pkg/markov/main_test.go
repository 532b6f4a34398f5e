package markov

import (
	"context"
	"database/sql"
	"go/build"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// fishCorpus is a small corpus with two sentences sharing the word "fish".
const fishCorpus = "One fish two fish. Red fish blue fish!"

// setupTestDB creates a new SQLite database in a temp dir and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// mustBuild builds a model from text or fails the test.
func mustBuild(t testing.TB, text string) *Model {
	t.Helper()
	m, err := Build(text)
	if err != nil {
		t.Fatalf("Build(%q) failed: %v", text, err)
	}
	return m
}

// setupTestDBWithModel is a convenience helper that also stores a model built
// from fishCorpus.
func setupTestDBWithModel(t *testing.T) (context.Context, *sql.DB, *Store, *Model) {
	db, s := setupTestDB(t)
	ctx := context.Background()
	m := mustBuild(t, fishCorpus)
	if _, err := s.SaveModel(ctx, "test_model", m); err != nil {
		t.Fatalf("setup: SaveModel() failed: %v", err)
	}
	return ctx, db, s, m
}

// assertDistribution checks that got holds exactly the probabilities in want.
func assertDistribution(t *testing.T, label string, got map[Token]float64, want map[Token]float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s: expected %d destinations, got %d (%v)", label, len(want), len(got), got)
	}
	for tok, p := range want {
		if gp, ok := got[tok]; !ok || math.Abs(gp-p) > 1e-9 {
			t.Errorf("%s: expected %q -> %v, got %v (present=%v)", label, tok, p, gp, ok)
		}
	}
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
