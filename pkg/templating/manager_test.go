package templating

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CTAG07/mimic/pkg/markov"
)

// catCorpus trains a model with exactly one path, so rendered output is
// predictable: "The cat sat."
const catCorpus = "The cat sat."

// countingSource wraps a ModelSource and counts loads.
type countingSource struct {
	ModelSource
	mu    sync.Mutex
	loads int
}

func (c *countingSource) LoadModel(ctx context.Context, name string) (*markov.Model, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.ModelSource.LoadModel(ctx, name)
}

// mapSource serves models from memory.
type mapSource map[string]*markov.Model

func (s mapSource) LoadModel(_ context.Context, name string) (*markov.Model, error) {
	m, ok := s[name]
	if !ok {
		return nil, markov.ErrModelNotFound
	}
	return m, nil
}

// setupTestStore opens a SQLite-backed store holding the "cat" model.
func setupTestStore(tb testing.TB) *markov.Store {
	tb.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(tb.TempDir(), "test.db"))
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	if err = markov.SetupSchema(db); err != nil {
		tb.Fatalf("failed to setup markov schema: %v", err)
	}
	store, err := markov.NewStore(db)
	if err != nil {
		tb.Fatalf("failed to create store: %v", err)
	}
	tb.Cleanup(store.Close)

	model, err := markov.Build(catCorpus)
	if err != nil {
		tb.Fatalf("failed to build model: %v", err)
	}
	if _, err = store.SaveModel(context.Background(), "cat", model); err != nil {
		tb.Fatalf("failed to save model: %v", err)
	}
	return store
}

// setupTestManager creates a manager over a temp template directory holding
// one template and one partial.
func setupTestManager(tb testing.TB) *TemplateManager {
	tb.Helper()
	dir := tb.TempDir()
	files := map[string]string{
		"story.tmpl":  `{{template "title.part" .}}{{sentence "cat"}}`,
		"title.part":  `# {{.Title}}` + "\n",
		"notes.txt":   `ignored`,
		"list.tmpl":   `{{range sentences "cat" 2}}- {{.}}` + "\n" + `{{end}}`,
		"broken.html": `{{`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			tb.Fatalf("failed to write %s: %v", name, err)
		}
	}

	config := DefaultConfig()
	tm, err := NewTemplateManager(nil, setupTestStore(tb), &config, dir)
	if err != nil {
		tb.Fatalf("NewTemplateManager failed: %v", err)
	}
	return tm
}

func render(t *testing.T, tm *TemplateManager, content string, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := tm.ExecuteTemplateString(&buf, content, data); err != nil {
		t.Fatalf("ExecuteTemplateString(%q) failed: %v", content, err)
	}
	return buf.String()
}

func TestNewTemplateManager(t *testing.T) {
	tm := setupTestManager(t)

	names := tm.GetTemplateNames()
	if len(names) != 2 || names[0] != "list.tmpl" || names[1] != "story.tmpl" {
		t.Errorf("expected [list.tmpl story.tmpl], got %v", names)
	}

	if _, err := NewTemplateManager(nil, nil, nil, ""); err == nil {
		t.Error("expected an error for a nil model source")
	}

	empty, err := NewTemplateManager(nil, mapSource{}, nil, "")
	if err != nil {
		t.Fatalf("NewTemplateManager without a directory failed: %v", err)
	}
	if len(empty.GetTemplateNames()) != 0 {
		t.Error("a manager without a directory should have no templates")
	}
	if empty.GetConfig() != DefaultConfig() {
		t.Error("a nil config should fall back to the defaults")
	}
}

func TestNewTemplateManagerParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.tmpl"), []byte(`{{if}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewTemplateManager(nil, mapSource{}, nil, dir); err == nil {
		t.Error("expected a parse error for a malformed template")
	}
}

func TestManager_Execute(t *testing.T) {
	tm := setupTestManager(t)

	var buf bytes.Buffer
	if err := tm.Execute(&buf, "story.tmpl", map[string]string{"Title": "Cats"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := buf.String(); got != "# Cats\nThe cat sat." {
		t.Errorf("unexpected output: %q", got)
	}

	buf.Reset()
	if err := tm.Execute(&buf, "list.tmpl", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := buf.String(); got != "- The cat sat.\n- The cat sat.\n" {
		t.Errorf("unexpected output: %q", got)
	}

	for _, name := range []string{"missing.tmpl", "title.part", ""} {
		if err := tm.Execute(&buf, name, nil); !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("Execute(%q): expected ErrTemplateNotFound, got %v", name, err)
		}
	}
}

func TestManager_Refresh(t *testing.T) {
	tm := setupTestManager(t)
	initialCount := len(tm.GetTemplateNames())

	newTmplPath := filepath.Join(tm.GetTemplateDir(), "new.tmpl")
	if err := os.WriteFile(newTmplPath, []byte(`New Content`), 0644); err != nil {
		t.Fatalf("failed to write new template: %v", err)
	}
	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if n := len(tm.GetTemplateNames()); n != initialCount+1 {
		t.Errorf("expected %d templates after refresh, got %d", initialCount+1, n)
	}
}

func TestManager_ExecuteTemplateString(t *testing.T) {
	tm := setupTestManager(t)

	got := render(t, tm, `{{template "title.part" .}}{{paragraph "cat" 2}}`, map[string]string{"Title": "Two"})
	if got != "# Two\nThe cat sat. The cat sat." {
		t.Errorf("unexpected output: %q", got)
	}

	// String execution must not leak into the loaded set.
	if got := render(t, tm, `{{define "leak.tmpl"}}x{{end}}ok`, nil); got != "ok" {
		t.Errorf("unexpected output: %q", got)
	}
	if err := tm.Execute(&bytes.Buffer{}, "leak.tmpl", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("string templates should not be added to the set, got %v", err)
	}

	if err := tm.ExecuteTemplateString(&bytes.Buffer{}, `{{sentence}`, nil); err == nil {
		t.Error("expected a parse error")
	}
}

func TestManager_ExecuteFile(t *testing.T) {
	tm := setupTestManager(t)
	fsys := fstest.MapFS{"page.tmpl": {Data: []byte(`{{sentence "cat" 2}}`)}}

	var buf bytes.Buffer
	if err := tm.ExecuteFile(&buf, fsys, "page.tmpl", nil); err != nil {
		t.Fatalf("ExecuteFile failed: %v", err)
	}
	if buf.String() != "The cat." {
		t.Errorf("expected the word limit to cut the sentence, got %q", buf.String())
	}
	if err := tm.ExecuteFile(&buf, fsys, "missing.tmpl", nil); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestManager_UnknownModel(t *testing.T) {
	tm := setupTestManager(t)
	err := tm.ExecuteTemplateString(&bytes.Buffer{}, `{{sentence "dog"}}`, nil)
	if !errors.Is(err, markov.ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestManager_GeneratorCache(t *testing.T) {
	model, err := markov.Build(catCorpus)
	if err != nil {
		t.Fatal(err)
	}
	source := mapSource{"cat": model}
	counter := &countingSource{ModelSource: source}
	tm, err := NewTemplateManager(nil, counter, nil, "")
	if err != nil {
		t.Fatal(err)
	}

	render(t, tm, `{{sentence "cat"}}{{sentence "cat"}}{{sentence "cat" 2}}`, nil)
	if counter.loads != 3 {
		t.Errorf("expected the source to be asked on every call, got %d loads", counter.loads)
	}
	entry := tm.generators["cat"]
	if entry == nil || len(entry.byWords) != 2 {
		t.Fatalf("expected two cached generators for 'cat', got %+v", entry)
	}
	first := entry.byWords[markov.DefaultMaxWords]

	// A new model behind the same name replaces the cached generators.
	replacement, err := markov.Build("A dog ran.")
	if err != nil {
		t.Fatal(err)
	}
	source["cat"] = replacement
	if got := render(t, tm, `{{sentence "cat"}}`, nil); got != "A dog ran." {
		t.Errorf("expected output from the replacement model, got %q", got)
	}
	if tm.generators["cat"].byWords[markov.DefaultMaxWords] == first {
		t.Error("expected a fresh generator after the model changed")
	}

	if err = tm.Refresh(); err != nil {
		t.Fatal(err)
	}
	if len(tm.generators) != 0 {
		t.Error("Refresh should drop cached generators")
	}
}

func TestManager_ConcurrentRender(t *testing.T) {
	tm := setupTestManager(t)
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			if err := tm.Execute(&buf, "list.tmpl", nil); err != nil {
				errs <- err
				return
			}
			if !strings.HasPrefix(buf.String(), "- The cat sat.") {
				errs <- errors.New("unexpected output: " + buf.String())
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
