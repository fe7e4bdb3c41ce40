// Package view builds display-ready projections of batch state for the
// CLI. It is read-only glue between the entity model and whatever renders
// it, and carries the loading/error/data contract queries resolve to.
package view

import (
	"context"
	"fmt"

	"github.com/scantrad/scantrad/internal/schema"
)

// PageView is one page shaped for display.
type PageView struct {
	ID                    string
	Filename              string
	Status                schema.PageStatus
	OriginalRef           string
	TranslatedRef         string
	DetectedBubbleCount   int
	TranslatedTexts       []string
	ProcessingTimeSeconds float64
}

// BatchSummary is one batch shaped for display.
type BatchSummary struct {
	ID             string
	Status         schema.BatchStatus
	CreatedAt      string
	CompletedAt    string
	TotalPages     int
	CompletedPages int
	Pages          []PageView
}

const displayTime = "2006-01-02 15:04:05"

// FromBatch projects a batch entity into its display shape.
func FromBatch(b *schema.Batch) BatchSummary {
	s := BatchSummary{
		ID:         b.ID,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt.Local().Format(displayTime),
		TotalPages: len(b.Pages),
		Pages:      make([]PageView, 0, len(b.Pages)),
	}
	if b.CompletedAt != nil {
		s.CompletedAt = b.CompletedAt.Local().Format(displayTime)
	}
	for _, p := range b.Pages {
		if p.Status == schema.StatusDone {
			s.CompletedPages++
		}
		s.Pages = append(s.Pages, PageView{
			ID:                    p.ID,
			Filename:              p.Filename,
			Status:                p.Status,
			OriginalRef:           p.OriginalRef,
			TranslatedRef:         p.TranslatedRef,
			DetectedBubbleCount:   p.DetectedBubbleCount,
			TranslatedTexts:       p.TranslatedTexts,
			ProcessingTimeSeconds: p.ProcessingTimeSeconds,
		})
	}
	return s
}

// FromRemoteListing projects a backend batch document. Listing documents
// carry page ids but not full page state, so the page slice is filled
// from whatever page data the document includes.
func FromRemoteListing(rb schema.RemoteBatch) BatchSummary {
	s := BatchSummary{
		ID:         rb.ID,
		Status:     rb.Status,
		CreatedAt:  rb.CreatedAt.Local().Format(displayTime),
		TotalPages: len(rb.PageIDs),
	}
	if s.TotalPages == 0 {
		s.TotalPages = len(rb.Pages)
	}
	for _, pd := range rb.Pages {
		if pd.Status == schema.StatusDone {
			s.CompletedPages++
		}
		s.Pages = append(s.Pages, PageView{
			ID:            pd.PageID,
			Filename:      pd.Filename,
			Status:        pd.Status,
			OriginalRef:   pd.OriginalURL,
			TranslatedRef: pd.TranslatedURL,
		})
	}
	return s
}

// Progress returns completion as "done/total" with a percentage.
func (s BatchSummary) Progress() string {
	if s.TotalPages == 0 {
		return "0/0"
	}
	return fmt.Sprintf("%d/%d (%d%%)", s.CompletedPages, s.TotalPages,
		s.CompletedPages*100/s.TotalPages)
}

// Result is the outcome of a query: exactly one of Loading, Err, or Data
// is meaningful at a time.
type Result[T any] struct {
	Data    T
	Err     error
	Loading bool
}

// Query runs fetch and wraps its outcome in a Result. The pending state
// exists for callers that render before the fetch resolves.
func Query[T any](ctx context.Context, fetch func(context.Context) (T, error)) Result[T] {
	data, err := fetch(ctx)
	if err != nil {
		return Result[T]{Err: err}
	}
	return Result[T]{Data: data}
}
