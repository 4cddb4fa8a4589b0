package results

import (
	"fmt"
	"testing"
	"time"

	"glycoscope/internal/model"
)

func resultAt(id, subject string, ts time.Time) *model.AnalysisResult {
	return &model.AnalysisResult{ID: id, SubjectID: subject, GeneratedAt: ts}
}

func TestStoreEvictsOldestBeyondLimit(t *testing.T) {
	store := NewStore(3)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.Add(resultAt(fmt.Sprintf("r%d", i), "subject1", base.Add(time.Duration(i)*time.Minute)))
	}
	got := store.List(0)
	if len(got) != 3 {
		t.Fatalf("len: %d", len(got))
	}
	if got[0].ID != "r2" || got[2].ID != "r4" {
		t.Fatalf("wrong survivors: %s..%s", got[0].ID, got[2].ID)
	}
}

func TestStoreListLimit(t *testing.T) {
	store := NewStore(10)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.Add(resultAt(fmt.Sprintf("r%d", i), "subject1", base.Add(time.Duration(i)*time.Minute)))
	}
	got := store.List(2)
	if len(got) != 2 || got[1].ID != "r4" {
		t.Fatalf("got %d results, last %s", len(got), got[len(got)-1].ID)
	}
}

func TestStoreSince(t *testing.T) {
	store := NewStore(10)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.Add(resultAt(fmt.Sprintf("r%d", i), "subject1", base.Add(time.Duration(i)*time.Minute)))
	}
	got := store.Since(base.Add(3 * time.Minute))
	if len(got) != 2 {
		t.Fatalf("len: %d", len(got))
	}
	if got[0].ID != "r3" {
		t.Fatalf("first: %s", got[0].ID)
	}
}

func TestStoreLatestPerSubject(t *testing.T) {
	store := NewStore(10)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.Add(resultAt("a1", "alpha", base))
	store.Add(resultAt("b1", "beta", base.Add(time.Minute)))
	store.Add(resultAt("a2", "alpha", base.Add(2*time.Minute)))

	latest, ok := store.Latest("alpha")
	if !ok || latest.ID != "a2" {
		t.Fatalf("alpha latest: %+v", latest)
	}
	if _, ok := store.Latest("nobody"); ok {
		t.Fatalf("unexpected result for unknown subject")
	}
}

func TestStoreClear(t *testing.T) {
	store := NewStore(10)
	store.Add(resultAt("r0", "subject1", time.Now()))
	store.Clear()
	if len(store.List(0)) != 0 {
		t.Fatalf("list not empty after clear")
	}
	if _, ok := store.Latest("subject1"); ok {
		t.Fatalf("latest survived clear")
	}
}
