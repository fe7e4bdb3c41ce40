package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/scantrad/scantrad/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scantrad.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoad_EmptyStore(t *testing.T) {
	s := openTestStore(t)

	graph, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(graph) != 0 {
		t.Errorf("Load() returned %d batches, want 0 for empty store", len(graph))
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := now.Add(time.Minute)
	graph := map[string]*schema.Batch{
		"batch_0000000000001": {
			ID:        "batch_0000000000001",
			Status:    schema.BatchDone,
			CreatedAt: now,
			CompletedAt: &completed,
			Pages: []*schema.Page{
				{
					ID:                    "page_1",
					Filename:              "a.png",
					Status:                schema.StatusDone,
					OriginalRef:           "blob:blobs/x",
					TranslatedRef:         "blob:blobs/y",
					DetectedBubbleCount:   4,
					TranslatedTexts:       []string{"one", "two"},
					ProcessingTimeSeconds: 12.5,
				},
				{ID: "page_2", Filename: "b.png", Status: schema.StatusError, OriginalRef: "blob:blobs/z"},
			},
		},
		"batch_0000000000002": {
			ID:        "batch_0000000000002",
			Status:    schema.BatchPending,
			CreatedAt: now,
			Pages:     []*schema.Page{},
		},
	}

	if err := s.Save(graph); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != len(graph) {
		t.Fatalf("Load() returned %d batches, want %d", len(loaded), len(graph))
	}

	got := loaded["batch_0000000000001"]
	want := graph["batch_0000000000001"]
	if got == nil {
		t.Fatal("Load() missing batch_0000000000001")
	}
	if got.Status != want.Status {
		t.Errorf("round-trip Status = %v, want %v", got.Status, want.Status)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("round-trip CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(*want.CompletedAt) {
		t.Errorf("round-trip CompletedAt = %v, want %v", got.CompletedAt, want.CompletedAt)
	}
	if len(got.Pages) != 2 {
		t.Fatalf("round-trip pages = %d, want 2", len(got.Pages))
	}
	p := got.Pages[0]
	if p.ID != "page_1" || p.Status != schema.StatusDone {
		t.Errorf("round-trip page = %+v, want page_1/done", p)
	}
	if len(p.TranslatedTexts) != 2 {
		t.Errorf("round-trip TranslatedTexts = %v, want 2 entries", p.TranslatedTexts)
	}
	if p.ProcessingTimeSeconds != 12.5 {
		t.Errorf("round-trip ProcessingTimeSeconds = %v, want 12.5", p.ProcessingTimeSeconds)
	}
	if got.Pages[1].Status != schema.StatusError {
		t.Errorf("round-trip error page Status = %v, want error", got.Pages[1].Status)
	}

	empty := loaded["batch_0000000000002"]
	if empty == nil || len(empty.Pages) != 0 {
		t.Errorf("round-trip zero-page batch = %+v, want empty pages", empty)
	}
}

func TestLoad_CorruptBlobFallsBackToEmpty(t *testing.T) {
	s := openTestStore(t)

	// Write garbage directly under the graph key.
	if err := s.put("batches", "{not json"); err != nil {
		t.Fatalf("put() error = %v", err)
	}

	graph, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for corrupt blob", err)
	}
	if len(graph) != 0 {
		t.Errorf("Load() returned %d batches, want 0 after corrupt blob", len(graph))
	}
}

func TestSave_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scantrad.db")

	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	graph := map[string]*schema.Batch{
		"batch_1": {ID: "batch_1", Status: schema.BatchPending, CreatedAt: time.Now(), Pages: []*schema.Page{}},
	}
	if err := s.Save(graph); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load() after reopen error = %v", err)
	}
	if _, ok := loaded["batch_1"]; !ok {
		t.Error("Load() after reopen missing batch_1")
	}
}

func TestSession(t *testing.T) {
	s := openTestStore(t)

	pseudo, err := s.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if pseudo != "" {
		t.Errorf("LoadSession() = %q, want empty before login", pseudo)
	}

	if err := s.SaveSession("mikael"); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	pseudo, err = s.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if pseudo != "mikael" {
		t.Errorf("LoadSession() = %q, want mikael", pseudo)
	}

	if err := s.ClearSession(); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	pseudo, _ = s.LoadSession()
	if pseudo != "" {
		t.Errorf("LoadSession() = %q, want empty after clear", pseudo)
	}

	// Clearing again is a no-op.
	if err := s.ClearSession(); err != nil {
		t.Errorf("ClearSession() second call error = %v", err)
	}
}
