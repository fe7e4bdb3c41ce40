package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scantrad/scantrad/internal/blob"
	"github.com/scantrad/scantrad/internal/schema"
	"github.com/scantrad/scantrad/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *blob.Store) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "scantrad.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs := blob.NewStore(dir)
	eng, err := New(st, blobs, &Config{StepDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return eng, blobs
}

func testFiles(names ...string) []FileInput {
	files := make([]FileInput, len(names))
	for i, name := range names {
		files[i] = FileInput{Filename: name, Data: strings.NewReader("img-" + name)}
	}
	return files
}

func TestCreateBatch(t *testing.T) {
	eng, blobs := newTestEngine(t)

	id, err := eng.CreateBatch(testFiles("a.png", "b.png", "c.png"))
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	batch := eng.GetBatch(id)
	if batch == nil {
		t.Fatal("GetBatch() returned nil for fresh batch")
	}
	if batch.Status != schema.BatchPending {
		t.Errorf("new batch status = %v, want pending", batch.Status)
	}
	if len(batch.Pages) != 3 {
		t.Fatalf("new batch has %d pages, want 3", len(batch.Pages))
	}
	for i, want := range []string{"a.png", "b.png", "c.png"} {
		p := batch.Pages[i]
		if p.Filename != want {
			t.Errorf("page %d filename = %q, want %q (input order must be preserved)", i, p.Filename, want)
		}
		if p.Status != schema.StatusPending {
			t.Errorf("page %d status = %v, want pending", i, p.Status)
		}
		if !schema.IsLocalRef(p.OriginalRef) {
			t.Errorf("page %d original ref = %q, want local blob ref", i, p.OriginalRef)
		}
	}
	if blobs.LiveCount() != 3 {
		t.Errorf("LiveCount() = %d, want 3", blobs.LiveCount())
	}
}

func TestCreateBatch_EmptyInput(t *testing.T) {
	eng, _ := newTestEngine(t)

	if _, err := eng.CreateBatch(nil); err != ErrNoFiles {
		t.Errorf("CreateBatch(nil) error = %v, want ErrNoFiles", err)
	}
	if len(eng.AllBatches()) != 0 {
		t.Error("CreateBatch(nil) created a batch")
	}
}

type progressEvent struct {
	pageID   string
	progress int
	status   schema.PageStatus
}

func TestProcessBatch_Scenario(t *testing.T) {
	eng, _ := newTestEngine(t)

	id, err := eng.CreateBatch(testFiles("a.png", "b.png", "c.png"))
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	var events []progressEvent
	err = eng.ProcessBatch(context.Background(), id, func(pageID string, progress int, status schema.PageStatus) {
		events = append(events, progressEvent{pageID, progress, status})
	})
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	batch := eng.GetBatch(id)
	if batch.Status != schema.BatchDone {
		t.Errorf("final batch status = %v, want done", batch.Status)
	}
	if batch.CompletedAt == nil {
		t.Error("CompletedAt not stamped after processing")
	}
	for _, p := range batch.Pages {
		if p.Status != schema.StatusDone {
			t.Errorf("page %s status = %v, want done", p.ID, p.Status)
		}
		if len(p.TranslatedTexts) == 0 {
			t.Errorf("page %s has no translated texts", p.ID)
		}
		if p.ProcessingTimeSeconds <= 0 {
			t.Errorf("page %s processing time = %v, want > 0", p.ID, p.ProcessingTimeSeconds)
		}
		if p.TranslatedRef == "" {
			t.Errorf("page %s has no translated ref", p.ID)
		}
		if p.DetectedBubbleCount < 2 {
			t.Errorf("page %s bubble count = %d, want >= 2", p.ID, p.DetectedBubbleCount)
		}
	}

	// Page a's events must be non-decreasing, end at 100, and all precede
	// any event for page b.
	firstB := -1
	lastA := -1
	prevA := -1
	var lastAEvent progressEvent
	for i, ev := range events {
		switch ev.pageID {
		case "page_1":
			if ev.progress < prevA {
				t.Errorf("page_1 progress decreased: %d after %d", ev.progress, prevA)
			}
			prevA = ev.progress
			lastA = i
			lastAEvent = ev
		case "page_2":
			if firstB == -1 {
				firstB = i
			}
		}
	}
	if lastA == -1 || firstB == -1 {
		t.Fatalf("missing events: lastA=%d firstB=%d", lastA, firstB)
	}
	if lastA > firstB {
		t.Errorf("page_1 events continued after page_2 started (lastA=%d, firstB=%d)", lastA, firstB)
	}
	if lastAEvent.progress != 100 || lastAEvent.status != schema.StatusDone {
		t.Errorf("page_1 final event = %+v, want (100, done)", lastAEvent)
	}
}

func TestProcessBatch_SequentialAcrossAllPages(t *testing.T) {
	eng, _ := newTestEngine(t)

	id, _ := eng.CreateBatch(testFiles("a.png", "b.png"))

	var order []string
	done := map[string]bool{}
	eng.ProcessBatch(context.Background(), id, func(pageID string, progress int, status schema.PageStatus) {
		if !done[pageID] {
			order = append(order, pageID)
		}
		if status == schema.StatusDone {
			done[pageID] = true
		}
	})

	// Events for page_2 may only appear after page_1 is done, so the
	// pre-done event stream must be page_1* page_2*.
	seenSecond := false
	for _, id := range order {
		if id == "page_2" {
			seenSecond = true
		}
		if seenSecond && id == "page_1" {
			t.Fatalf("interleaved progress events: %v", order)
		}
	}
}

func TestProcessBatch_ContextCancelled(t *testing.T) {
	eng, _ := newTestEngine(t)
	id, err := eng.CreateBatch(testFiles("a.png", "b.png"))
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var page2Started bool
	err = eng.ProcessBatch(ctx, id, func(pageID string, progress int, status schema.PageStatus) {
		if pageID == "page_1" && progress == 20 {
			cancel()
		}
		if pageID == "page_2" {
			page2Started = true
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ProcessBatch() error = %v, want context.Canceled", err)
	}
	if page2Started {
		t.Error("page_2 received callbacks after cancellation")
	}

	// The in-flight page stays persisted as processing.
	batch := eng.GetBatch(id)
	if got := batch.Pages[0].Status; got != schema.StatusProcessing {
		t.Errorf("page_1 status after cancel = %v, want processing", got)
	}
	if got := batch.Pages[1].Status; got != schema.StatusPending {
		t.Errorf("page_2 status after cancel = %v, want pending", got)
	}
}

func TestProcessBatch_MissingBatchIsNoOp(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.ProcessBatch(context.Background(), "batch_nope", nil); err != nil {
		t.Errorf("ProcessBatch(missing) error = %v, want nil", err)
	}
}

func TestUpdatePageStatus_DerivedStatusAfterEveryUpdate(t *testing.T) {
	eng, _ := newTestEngine(t)

	id, _ := eng.CreateBatch(testFiles("a.png", "b.png"))
	processing := schema.StatusProcessing
	doneStatus := schema.StatusDone

	eng.UpdatePageStatus(id, "page_1", PageUpdate{Status: &processing})
	if got := eng.GetBatch(id).Status; got != schema.BatchProcessing {
		t.Errorf("status after one page processing = %v, want processing", got)
	}

	eng.UpdatePageStatus(id, "page_1", PageUpdate{Status: &doneStatus})
	if got := eng.GetBatch(id).Status; got != schema.BatchProcessing {
		t.Errorf("status with one done, one pending = %v, want processing", got)
	}

	eng.UpdatePageStatus(id, "page_2", PageUpdate{Status: &doneStatus})
	if got := eng.GetBatch(id).Status; got != schema.BatchDone {
		t.Errorf("status with all done = %v, want done", got)
	}
}

func TestUpdatePageStatus_MonotoneCompletion(t *testing.T) {
	eng, _ := newTestEngine(t)

	id, _ := eng.CreateBatch(testFiles("a.png"))
	doneStatus := schema.StatusDone
	pending := schema.StatusPending

	eng.UpdatePageStatus(id, "page_1", PageUpdate{Status: &doneStatus})
	batch := eng.GetBatch(id)
	if batch.CompletedAt == nil {
		t.Fatal("CompletedAt not stamped")
	}
	stamped := *batch.CompletedAt

	eng.UpdatePageStatus(id, "page_1", PageUpdate{Status: &pending})
	batch = eng.GetBatch(id)
	if batch.CompletedAt == nil || !batch.CompletedAt.Equal(stamped) {
		t.Errorf("CompletedAt changed after page reset: got %v, want %v", batch.CompletedAt, stamped)
	}
	if batch.Status == schema.BatchDone {
		t.Errorf("derived status = done after page reset, want demotion")
	}
}

func TestUpdatePageStatus_ErrorPageNeverCompletes(t *testing.T) {
	eng, _ := newTestEngine(t)

	id, _ := eng.CreateBatch(testFiles("a.png", "b.png"))
	doneStatus := schema.StatusDone
	errStatus := schema.StatusError

	eng.UpdatePageStatus(id, "page_1", PageUpdate{Status: &errStatus})
	eng.UpdatePageStatus(id, "page_2", PageUpdate{Status: &doneStatus})

	batch := eng.GetBatch(id)
	if batch.Status != schema.BatchProcessing {
		t.Errorf("status with error page = %v, want processing", batch.Status)
	}
	if batch.CompletedAt != nil {
		t.Errorf("CompletedAt = %v with error page, want nil", batch.CompletedAt)
	}
}

func TestUpdatePageStatus_MissingEntitiesAreNoOps(t *testing.T) {
	eng, _ := newTestEngine(t)
	id, _ := eng.CreateBatch(testFiles("a.png"))
	doneStatus := schema.StatusDone

	// Neither call may panic or create anything.
	eng.UpdatePageStatus("batch_nope", "page_1", PageUpdate{Status: &doneStatus})
	eng.UpdatePageStatus(id, "page_nope", PageUpdate{Status: &doneStatus})

	if got := eng.GetBatch(id).Status; got != schema.BatchPending {
		t.Errorf("status = %v after no-op updates, want pending", got)
	}
}

func TestDeleteBatch_ReleasesResourcesExactlyOnce(t *testing.T) {
	eng, blobs := newTestEngine(t)

	id, _ := eng.CreateBatch(testFiles("a.png", "b.png"))
	if err := eng.ProcessBatch(context.Background(), id, nil); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	releases := map[string]int{}
	blobs.SetReleaseHook(func(ref string) { releases[ref]++ })

	// 2 originals + 2 translated artifacts.
	if blobs.LiveCount() != 4 {
		t.Fatalf("LiveCount() = %d before delete, want 4", blobs.LiveCount())
	}

	if err := eng.DeleteBatch(id); err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}
	if eng.GetBatch(id) != nil {
		t.Error("GetBatch() returned deleted batch")
	}
	if blobs.LiveCount() != 0 {
		t.Errorf("LiveCount() = %d after delete, want 0", blobs.LiveCount())
	}
	if len(releases) != 4 {
		t.Errorf("released %d refs, want 4", len(releases))
	}
	for ref, n := range releases {
		if n != 1 {
			t.Errorf("ref %s released %d times, want exactly 1", ref, n)
		}
	}

	// Deleting again is a no-op and must not re-release.
	if err := eng.DeleteBatch(id); err != nil {
		t.Errorf("DeleteBatch() second call error = %v", err)
	}
	for ref, n := range releases {
		if n != 1 {
			t.Errorf("ref %s released %d times after double delete, want 1", ref, n)
		}
	}
}

func TestExportResults(t *testing.T) {
	eng, _ := newTestEngine(t)
	id, err := eng.CreateBatch(testFiles("a.png", "b.png"))
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := eng.ProcessBatch(context.Background(), id, nil); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "translated")
	written, err := eng.ExportResults(id, out)
	if err != nil {
		t.Fatalf("ExportResults() error = %v", err)
	}
	if written != 2 {
		t.Errorf("ExportResults() wrote %d files, want 2", written)
	}

	for _, name := range []string{"a_translated.svg", "b_translated.svg"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Errorf("exported file %s: %v", name, err)
			continue
		}
		if !strings.Contains(string(data), "<svg") {
			t.Errorf("exported file %s is not the translated artifact", name)
		}
	}
}

func TestExportResults_MissingBatch(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.ExportResults("batch_nope", t.TempDir()); err == nil {
		t.Error("ExportResults(missing) expected error, got nil")
	}
}

func TestClearAll(t *testing.T) {
	eng, blobs := newTestEngine(t)

	eng.CreateBatch(testFiles("a.png"))
	eng.CreateBatch(testFiles("b.png", "c.png"))

	if err := eng.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if len(eng.AllBatches()) != 0 {
		t.Errorf("AllBatches() = %d after ClearAll, want 0", len(eng.AllBatches()))
	}
	if blobs.LiveCount() != 0 {
		t.Errorf("LiveCount() = %d after ClearAll, want 0", blobs.LiveCount())
	}
}

func TestGraphSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scantrad.db")

	st, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	blobs := blob.NewStore(dir)
	eng, err := New(st, blobs, &Config{StepDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	id, _ := eng.CreateBatch(testFiles("a.png"))
	processing := schema.StatusProcessing
	eng.UpdatePageStatus(id, "page_1", PageUpdate{Status: &processing})
	st.Close()

	st2, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer st2.Close()

	eng2, err := New(st2, blobs, &Config{StepDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("New() after reload error = %v", err)
	}

	batch := eng2.GetBatch(id)
	if batch == nil {
		t.Fatal("batch lost across reload")
	}
	if batch.Status != schema.BatchProcessing {
		t.Errorf("reloaded status = %v, want processing (transition must be visible after reload)", batch.Status)
	}
}

func TestDeleteBatch_AfterReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scantrad.db")

	st, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	eng, err := New(st, blob.NewStore(dir), &Config{StepDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	id, _ := eng.CreateBatch(testFiles("a.png", "b.png"))
	st.Close()

	// A fresh process must still be able to release the batch's blobs.
	st2, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer st2.Close()

	blobs2 := blob.NewStore(dir)
	eng2, err := New(st2, blobs2, &Config{StepDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("New() after reload error = %v", err)
	}
	if got := blobs2.LiveCount(); got != 2 {
		t.Fatalf("LiveCount() after reload = %d, want 2 adopted blobs", got)
	}

	if err := eng2.DeleteBatch(id); err != nil {
		t.Fatalf("DeleteBatch() after reload error = %v", err)
	}
	if got := blobs2.LiveCount(); got != 0 {
		t.Errorf("LiveCount() after delete = %d, want 0", got)
	}
	if eng2.GetBatch(id) != nil {
		t.Error("batch still present after delete")
	}
}

func TestAllBatches_NewestFirst(t *testing.T) {
	eng, _ := newTestEngine(t)

	// Force distinct creation times.
	times := []time.Time{
		time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 12, 0, 1, 0, time.UTC),
		time.Date(2025, 3, 1, 12, 0, 2, 0, time.UTC),
	}
	i := 0
	eng.now = func() time.Time { t := times[i%len(times)]; i++; return t }

	eng.CreateBatch(testFiles("a.png"))
	eng.CreateBatch(testFiles("b.png"))
	eng.CreateBatch(testFiles("c.png"))

	batches := eng.AllBatches()
	if len(batches) != 3 {
		t.Fatalf("AllBatches() = %d, want 3", len(batches))
	}
	for j := 1; j < len(batches); j++ {
		if batches[j].CreatedAt.After(batches[j-1].CreatedAt) {
			t.Errorf("AllBatches() not newest-first at index %d", j)
		}
	}
}
