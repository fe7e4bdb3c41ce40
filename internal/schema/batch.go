package schema

import (
	"fmt"
	"time"
)

// BatchStatus is the derived batch-level state. It is computed from the
// page set by DeriveStatus and never set directly, except for the initial
// pending at creation.
type BatchStatus string

const (
	// BatchPending indicates no page has left pending yet.
	BatchPending BatchStatus = "pending"
	// BatchProcessing indicates at least one page has left pending.
	BatchProcessing BatchStatus = "processing"
	// BatchDone indicates every page is done.
	BatchDone BatchStatus = "done"
)

// Batch is an ordered collection of pages submitted together.
// Page order is upload order and is stable for the batch's lifetime.
type Batch struct {
	ID        string      `json:"id"`
	Status    BatchStatus `json:"status"`
	Pages     []*Page     `json:"pages"`
	CreatedAt time.Time   `json:"created_at"`

	// CompletedAt is stamped exactly once, the first time the derived
	// status becomes done. It never reverts afterwards.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewBatchID returns a time-derived batch id. Millisecond timestamps are
// zero-padded to 13 digits so lexical order and creation order coincide.
func NewBatchID(t time.Time) string {
	return fmt.Sprintf("batch_%013d", t.UnixMilli())
}

// DeriveStatus computes the batch status from its pages: done iff every
// page is done, processing if at least one page has left pending, pending
// otherwise. An error page has left pending, so it holds the batch in
// processing forever; it never counts toward completion.
func DeriveStatus(pages []*Page) BatchStatus {
	if len(pages) == 0 {
		return BatchPending
	}
	allDone := true
	anyStarted := false
	for _, p := range pages {
		if p.Status != StatusDone {
			allDone = false
		}
		if p.Status != StatusPending {
			anyStarted = true
		}
	}
	switch {
	case allDone:
		return BatchDone
	case anyStarted:
		return BatchProcessing
	default:
		return BatchPending
	}
}

// Recompute re-runs the derived-status rule and stamps CompletedAt the
// first time the batch becomes done. Completion is sticky: once stamped,
// CompletedAt survives any later page mutation.
func (b *Batch) Recompute(now time.Time) {
	b.Status = DeriveStatus(b.Pages)
	if b.Status == BatchDone && b.CompletedAt == nil {
		t := now
		b.CompletedAt = &t
	}
}

// FindPage returns the page with the given id, or nil if absent.
func (b *Batch) FindPage(pageID string) *Page {
	for _, p := range b.Pages {
		if p.ID == pageID {
			return p
		}
	}
	return nil
}

// Validate checks the batch and all of its pages.
func (b *Batch) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if b.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	seen := make(map[string]bool, len(b.Pages))
	for _, p := range b.Pages {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("batch %s: %w", b.ID, err)
		}
		if seen[p.ID] {
			return fmt.Errorf("batch %s: duplicate page id %s", b.ID, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
