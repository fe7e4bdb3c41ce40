package schema

import (
	"testing"
	"time"
)

func pagesWithStatuses(statuses ...PageStatus) []*Page {
	pages := make([]*Page, len(statuses))
	for i, s := range statuses {
		pages[i] = &Page{
			ID:       "page_" + string(rune('1'+i)),
			Filename: "p.png",
			Status:   s,
		}
	}
	return pages
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []PageStatus
		want     BatchStatus
	}{
		{"no pages", nil, BatchPending},
		{"all pending", []PageStatus{StatusPending, StatusPending}, BatchPending},
		{"one started", []PageStatus{StatusProcessing, StatusPending}, BatchProcessing},
		{"one uploading", []PageStatus{StatusUploading, StatusPending}, BatchProcessing},
		{"partial done", []PageStatus{StatusDone, StatusPending}, BatchProcessing},
		{"all done", []PageStatus{StatusDone, StatusDone}, BatchDone},
		{"single done", []PageStatus{StatusDone}, BatchDone},
		{"error holds batch in processing", []PageStatus{StatusDone, StatusError}, BatchProcessing},
		{"error alone", []PageStatus{StatusError}, BatchProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(pagesWithStatuses(tt.statuses...)); got != tt.want {
				t.Errorf("DeriveStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBatchRecompute_StampsCompletedAtOnce(t *testing.T) {
	now := time.Now()
	b := &Batch{
		ID:        NewBatchID(now),
		Status:    BatchPending,
		Pages:     pagesWithStatuses(StatusDone, StatusDone),
		CreatedAt: now,
	}

	b.Recompute(now)
	if b.Status != BatchDone {
		t.Fatalf("Recompute() status = %v, want %v", b.Status, BatchDone)
	}
	if b.CompletedAt == nil {
		t.Fatal("Recompute() did not stamp CompletedAt")
	}
	first := *b.CompletedAt

	// A later recompute must not move the stamp.
	b.Recompute(now.Add(time.Hour))
	if !b.CompletedAt.Equal(first) {
		t.Errorf("Recompute() moved CompletedAt: got %v, want %v", b.CompletedAt, first)
	}
}

func TestBatchRecompute_CompletionIsSticky(t *testing.T) {
	now := time.Now()
	b := &Batch{
		ID:        NewBatchID(now),
		Pages:     pagesWithStatuses(StatusDone, StatusDone),
		CreatedAt: now,
	}
	b.Recompute(now)
	if b.CompletedAt == nil {
		t.Fatal("setup: CompletedAt not stamped")
	}
	stamped := *b.CompletedAt

	// Resetting a page to pending demotes the derived status but must not
	// unset the completion stamp.
	b.Pages[0].Status = StatusPending
	b.Recompute(now.Add(time.Minute))

	if b.Status == BatchDone {
		t.Errorf("Recompute() status = %v after page reset, want demotion", b.Status)
	}
	if b.CompletedAt == nil {
		t.Fatal("Recompute() unset CompletedAt after page reset")
	}
	if !b.CompletedAt.Equal(stamped) {
		t.Errorf("Recompute() changed CompletedAt: got %v, want %v", b.CompletedAt, stamped)
	}
}

func TestNewBatchID_LexicalOrderMatchesCreationOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var prev string
	for i := 0; i < 5; i++ {
		id := NewBatchID(base.Add(time.Duration(i) * time.Millisecond))
		if prev != "" && !(prev < id) {
			t.Errorf("batch ids out of order: %q not < %q", prev, id)
		}
		prev = id
	}
}

func TestBatchFindPage(t *testing.T) {
	b := &Batch{ID: "batch_1", Pages: pagesWithStatuses(StatusPending, StatusPending)}
	if got := b.FindPage("page_2"); got == nil || got.ID != "page_2" {
		t.Errorf("FindPage(page_2) = %v, want page_2", got)
	}
	if got := b.FindPage("page_9"); got != nil {
		t.Errorf("FindPage(page_9) = %v, want nil", got)
	}
}

func TestBatchValidate_DuplicatePageID(t *testing.T) {
	b := &Batch{
		ID:        "batch_1",
		CreatedAt: time.Now(),
		Pages: []*Page{
			{ID: "page_1", Status: StatusPending},
			{ID: "page_1", Status: StatusPending},
		},
	}
	if err := b.Validate(); err == nil {
		t.Error("Validate() expected error for duplicate page id, got nil")
	}
}
