// Package engine implements the batch/page lifecycle: batch creation, the
// sequential per-page processing pipeline with progress reporting, derived
// batch status, and deletion with resource release.
//
// The engine exclusively owns the authoritative local entity graph. Every
// mutation recomputes the derived batch status and persists the whole graph
// synchronously before returning, so a reload observes the transition.
//
// This is the offline/dev processing path: the pipeline is simulated with
// fixed progress increments and deterministic pacing. Backend-backed
// batches are owned by the remote client instead.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scantrad/scantrad/internal/blob"
	"github.com/scantrad/scantrad/internal/schema"
	"github.com/scantrad/scantrad/internal/store"
)

// ErrNoFiles is returned by CreateBatch for an empty input sequence.
// Empty input yields no batch; callers must guard.
var ErrNoFiles = errors.New("no files provided")

// ProgressFunc observes per-page pipeline progress. For each page it is
// called with progress values 0, 20, ... 100 while processing, then once
// more with (100, done) when the page is finalized. Within one batch,
// callbacks for page i+1 never start before page i's done callback.
type ProgressFunc func(pageID string, progress int, status schema.PageStatus)

// FileInput is one file accepted for a new batch.
type FileInput struct {
	Filename string
	Data     io.Reader
}

// Config holds engine tuning knobs.
type Config struct {
	// StepDelay is the pacing delay between progress increments.
	StepDelay time.Duration

	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns the pacing used by the real pipeline simulation.
func DefaultConfig() *Config {
	return &Config{
		StepDelay: 300 * time.Millisecond,
		Logger:    log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// Engine owns the local batch graph.
type Engine struct {
	store  *store.Store
	blobs  *blob.Store
	config *Config
	graph  map[string]*schema.Batch

	now func() time.Time
}

// New creates an engine backed by the given store and blob store, loading
// any previously persisted graph. A corrupt persisted graph degrades to an
// empty one inside the store.
func New(st *store.Store, blobs *blob.Store, config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	graph, err := st.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load batch graph: %w", err)
	}

	// Re-adopt blob references persisted by earlier runs so deletes can
	// release them.
	for _, batch := range graph {
		for _, page := range batch.Pages {
			blobs.Adopt(page.OriginalRef)
			blobs.Adopt(page.TranslatedRef)
		}
	}

	return &Engine{
		store:  st,
		blobs:  blobs,
		config: config,
		graph:  graph,
		now:    time.Now,
	}, nil
}

// CreateBatch accepts files and builds a pending batch, one page per file
// in input order. Returns the new batch id, or ErrNoFiles for empty input.
func (e *Engine) CreateBatch(files []FileInput) (string, error) {
	if len(files) == 0 {
		return "", ErrNoFiles
	}

	now := e.now()
	batchID := schema.NewBatchID(now)

	pages := make([]*schema.Page, 0, len(files))
	for i, f := range files {
		ref, err := e.blobs.Put(f.Filename, f.Data)
		if err != nil {
			// Roll back blobs already allocated for this batch.
			for _, p := range pages {
				if relErr := e.blobs.Release(p.OriginalRef); relErr != nil {
					e.config.Logger.Printf("Warning: rollback release failed: %v", relErr)
				}
			}
			return "", fmt.Errorf("failed to store file %s: %w", f.Filename, err)
		}
		pages = append(pages, &schema.Page{
			ID:          fmt.Sprintf("page_%d", i+1),
			Filename:    f.Filename,
			Status:      schema.StatusPending,
			OriginalRef: ref,
		})
	}

	batch := &schema.Batch{
		ID:        batchID,
		Status:    schema.BatchPending,
		Pages:     pages,
		CreatedAt: now,
	}

	e.graph[batchID] = batch
	if err := e.persist(); err != nil {
		return "", err
	}

	e.config.Logger.Printf("Created batch %s with %d pages", batchID, len(pages))
	return batchID, nil
}

// ProcessBatch advances every page of the batch through the simulated
// pipeline, strictly sequentially in page order: a page fully completes
// before the next one starts. Progress is reported in fixed 20% increments
// with StepDelay pacing between them.
//
// Cancelling ctx stops the pipeline at the next pacing increment and
// returns ctx.Err(); the in-flight page stays persisted as processing.
// Deleting the batch mid-flight does not stop callbacks from firing;
// ignoring stale callbacks is the caller's responsibility.
func (e *Engine) ProcessBatch(ctx context.Context, batchID string, onProgress ProgressFunc) error {
	batch, ok := e.graph[batchID]
	if !ok {
		return nil
	}

	e.config.Logger.Printf("Processing batch %s (%d pages)", batchID, len(batch.Pages))

	for i, page := range batch.Pages {
		pageID := page.ID

		e.updatePage(batchID, pageID, PageUpdate{
			Status:              statusPtr(schema.StatusProcessing),
			DetectedBubbleCount: intPtr(rand.IntN(8) + 2),
		})
		if onProgress != nil {
			onProgress(pageID, 0, schema.StatusProcessing)
		}

		for progress := 20; progress <= 100; progress += 20 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.config.StepDelay):
			}
			if onProgress != nil {
				onProgress(pageID, progress, schema.StatusProcessing)
			}
		}

		translatedRef, err := e.makeTranslatedArtifact(page, i+1)
		if err != nil {
			e.config.Logger.Printf("Warning: failed to write translated artifact for %s: %v", pageID, err)
			e.updatePage(batchID, pageID, PageUpdate{Status: statusPtr(schema.StatusError)})
			if onProgress != nil {
				onProgress(pageID, 100, schema.StatusError)
			}
			continue
		}

		e.updatePage(batchID, pageID, PageUpdate{
			Status:                statusPtr(schema.StatusDone),
			TranslatedRef:         &translatedRef,
			TranslatedTexts:       simulatedTexts(i + 1),
			ProcessingTimeSeconds: floatPtr(float64(rand.IntN(30) + 10)),
		})
		if onProgress != nil {
			onProgress(pageID, 100, schema.StatusDone)
		}
	}

	return nil
}

// PageUpdate carries a partial page mutation. Nil fields are left alone.
type PageUpdate struct {
	Status                *schema.PageStatus
	TranslatedRef         *string
	DetectedBubbleCount   *int
	TranslatedTexts       []string
	ProcessingTimeSeconds *float64
}

// UpdatePageStatus merges fields into the named page, re-runs the derived
// status rule, and persists. A missing batch or page is a documented no-op,
// not an error: stale callbacks referencing deleted batches are expected
// under concurrent UI interaction.
func (e *Engine) UpdatePageStatus(batchID, pageID string, update PageUpdate) {
	e.updatePage(batchID, pageID, update)
}

func (e *Engine) updatePage(batchID, pageID string, update PageUpdate) {
	batch, ok := e.graph[batchID]
	if !ok {
		return
	}
	page := batch.FindPage(pageID)
	if page == nil {
		return
	}

	if update.Status != nil {
		page.Status = *update.Status
	}
	if update.TranslatedRef != nil {
		page.TranslatedRef = *update.TranslatedRef
	}
	if update.DetectedBubbleCount != nil {
		page.DetectedBubbleCount = *update.DetectedBubbleCount
	}
	if update.TranslatedTexts != nil {
		page.TranslatedTexts = update.TranslatedTexts
	}
	if update.ProcessingTimeSeconds != nil {
		page.ProcessingTimeSeconds = *update.ProcessingTimeSeconds
	}

	batch.Recompute(e.now())

	if err := e.persist(); err != nil {
		e.config.Logger.Printf("Warning: failed to persist after page update: %v", err)
	}
}

// GetBatch returns the batch with the given id, or nil.
func (e *Engine) GetBatch(batchID string) *schema.Batch {
	return e.graph[batchID]
}

// AllBatches returns every batch, newest first.
func (e *Engine) AllBatches() []*schema.Batch {
	batches := make([]*schema.Batch, 0, len(e.graph))
	for _, b := range e.graph {
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].CreatedAt.After(batches[j].CreatedAt)
	})
	return batches
}

// ExportResults copies the translated artifacts of a batch's completed
// pages into dir, returning how many files were written. Remote references
// are skipped; only locally-held artifacts can be exported.
func (e *Engine) ExportResults(batchID, dir string) (int, error) {
	batch, ok := e.graph[batchID]
	if !ok {
		return 0, fmt.Errorf("batch %s not found", batchID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	written := 0
	for _, page := range batch.Pages {
		if page.Status != schema.StatusDone || !schema.IsLocalRef(page.TranslatedRef) {
			continue
		}
		src, err := e.blobs.Open(page.TranslatedRef)
		if err != nil {
			return written, fmt.Errorf("failed to open artifact for %s: %w", page.ID, err)
		}
		name := strings.TrimSuffix(page.Filename, filepath.Ext(page.Filename)) +
			"_translated" + filepath.Ext(page.TranslatedRef)
		dst, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			src.Close()
			return written, fmt.Errorf("failed to create %s: %w", name, err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}
		written++
	}
	return written, nil
}

// DeleteBatch removes a batch, releasing every locally-held resource handle
// its pages own before removing the record. Missing batches are a no-op.
func (e *Engine) DeleteBatch(batchID string) error {
	batch, ok := e.graph[batchID]
	if !ok {
		return nil
	}

	e.releaseBatchResources(batch)
	delete(e.graph, batchID)

	if err := e.persist(); err != nil {
		return err
	}
	e.config.Logger.Printf("Deleted batch %s", batchID)
	return nil
}

// ClearAll removes every batch, releasing all locally-held resources.
func (e *Engine) ClearAll() error {
	for _, batch := range e.graph {
		e.releaseBatchResources(batch)
	}
	e.graph = map[string]*schema.Batch{}
	return e.persist()
}

func (e *Engine) releaseBatchResources(batch *schema.Batch) {
	for _, page := range batch.Pages {
		for _, ref := range []string{page.OriginalRef, page.TranslatedRef} {
			if !schema.IsLocalRef(ref) {
				continue
			}
			if err := e.blobs.Release(ref); err != nil {
				e.config.Logger.Printf("Warning: failed to release %s: %v", ref, err)
			}
		}
	}
}

func (e *Engine) persist() error {
	if err := e.store.Save(e.graph); err != nil {
		return fmt.Errorf("failed to persist batch graph: %w", err)
	}
	return nil
}

// makeTranslatedArtifact writes the simulated translated image for a page
// and returns its blob reference.
func (e *Engine) makeTranslatedArtifact(page *schema.Page, pageNumber int) (string, error) {
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="300" height="400"><rect width="300" height="400" fill="#f5f5f5"/><text x="150" y="200" text-anchor="middle" font-size="14">Translated page %d (%s)</text></svg>`,
		pageNumber, page.Filename,
	)
	name := strings.TrimSuffix(page.Filename, ".png") + "_translated.svg"
	return e.blobs.Put(name, strings.NewReader(svg))
}

func simulatedTexts(pageNumber int) []string {
	return []string{
		fmt.Sprintf("Translated dialogue %dA", pageNumber),
		fmt.Sprintf("Translated dialogue %dB", pageNumber),
		fmt.Sprintf("Translated thought %d", pageNumber),
	}
}

func statusPtr(s schema.PageStatus) *schema.PageStatus { return &s }
func intPtr(n int) *int                                { return &n }
func floatPtr(f float64) *float64                      { return &f }
