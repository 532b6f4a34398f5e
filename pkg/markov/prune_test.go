package markov

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestVocabularyPrune(t *testing.T) {
	ctx, db, s, _ := setupTestDBWithModel(t)
	if _, err := s.SaveModel(ctx, "cats", mustBuild(t, "The cat sat.")); err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}

	countVocab := func() int {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_vocabulary").Scan(&count); err != nil {
			t.Fatal(err)
		}
		return count
	}

	// Nothing is unused while both models are stored.
	if n, err := s.PruneVocabulary(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing to prune, got %d, %v", n, err)
	}

	// 2 sentinels, 5 fish words and 3 cat words.
	if got := countVocab(); got != 10 {
		t.Fatalf("expected 10 vocabulary rows before pruning, got %d", got)
	}

	if err := s.RemoveModel(ctx, "test_model"); err != nil {
		t.Fatalf("RemoveModel() failed: %v", err)
	}
	n, err := s.PruneVocabulary(ctx)
	if err != nil {
		t.Fatalf("PruneVocabulary() failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 words pruned, got %d", n)
	}
	if got := countVocab(); got != 5 {
		t.Errorf("expected 5 vocabulary rows after pruning, got %d", got)
	}

	// The remaining model must be untouched.
	if _, err := s.LoadModel(ctx, "cats"); err != nil {
		t.Errorf("LoadModel() after prune failed: %v", err)
	}

	// Pruning with no models keeps the sentinels.
	_ = s.RemoveModel(ctx, "cats")
	if _, err := s.PruneVocabulary(ctx); err != nil {
		t.Fatalf("PruneVocabulary() failed: %v", err)
	}
	if got := countVocab(); got != 2 {
		t.Errorf("expected only the 2 sentinels to remain, got %d", got)
	}
}

func TestBatchDelete(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()

	var sb strings.Builder
	sb.WriteString("The")
	for i := 0; i < 1200; i++ {
		sb.WriteString(fmt.Sprintf(" w%d", i))
	}
	sb.WriteString(".")

	if _, err := store.SaveModel(ctx, "long", mustBuild(t, sb.String())); err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}
	if err := store.RemoveModel(ctx, "long"); err != nil {
		t.Fatalf("RemoveModel() failed: %v", err)
	}

	// More unused words than a single batch holds.
	n, err := store.PruneVocabulary(ctx)
	if err != nil {
		t.Fatalf("PruneVocabulary() failed: %v", err)
	}
	if n != 1201 {
		t.Errorf("expected 1201 words pruned, got %d", n)
	}
}

func TestIntSliceToInterface(t *testing.T) {
	if intSliceToInterface(nil) != nil {
		t.Error("expected nil for a nil slice")
	}
	got := intSliceToInterface([]int{1, 2})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected conversion: %v", got)
	}
}
