// Package dropzone watches a directory for incoming page images and
// hands settled files to a submit callback. Editors and downloaders
// write files in bursts, so events are debounced before anything is
// submitted.
package dropzone

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config holds watcher settings.
type Config struct {
	// Dir is the directory to watch for page images.
	Dir string

	// DebounceInterval is how long a file must stay quiet before it is
	// considered fully written.
	DebounceInterval time.Duration

	// PollInterval is how often the pending queue is scanned.
	PollInterval time.Duration

	// Logger for watcher events
	Logger *log.Logger
}

// DefaultConfig returns sensible watcher defaults for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		DebounceInterval: 500 * time.Millisecond,
		PollInterval:     200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[dropzone] ", log.LstdFlags),
	}
}

// SubmitFunc receives a settled group of image paths, sorted by name.
type SubmitFunc func(paths []string)

// Watcher monitors a drop directory and batches newly arrived images.
type Watcher struct {
	config Config
	submit SubmitFunc

	watcher *fsnotify.Watcher

	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// imageExtensions are the page formats the backend accepts.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// New creates a watcher for config that calls submit with each settled
// group of images. Start begins watching.
func New(config Config, submit SubmitFunc) (*Watcher, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("watch directory not set")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 200 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[dropzone] ", log.LstdFlags)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		config:      config,
		submit:      submit,
		watcher:     fw,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins watching the drop directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := w.watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.config.Dir, err)
	}

	w.running = true
	w.wg.Add(2)
	go w.eventLoop()
	go w.processQueue()

	w.config.Logger.Printf("Watching %s", w.config.Dir)
	return nil
}

// Stop stops the watcher and waits for its goroutines to exit. Safe to
// call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsImage(event.Name) {
				continue
			}
			w.queueChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watch error: %v", err)
		}
	}
}

// queueChange records a file event, restarting its debounce window.
func (w *Watcher) queueChange(path string) {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()

	w.changeQueue[path] = time.Now()
}

func (w *Watcher) processQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flushSettled()
		}
	}
}

// flushSettled submits every queued file whose debounce window has
// elapsed. Files that arrived together leave together.
func (w *Watcher) flushSettled() {
	w.changeQueueMu.Lock()

	now := time.Now()
	var ready []string
	for path, queuedAt := range w.changeQueue {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(w.changeQueue, path)
	}
	w.changeQueueMu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)

	w.config.Logger.Printf("Submitting %d settled file(s)", len(ready))
	w.submit(ready)
}

// IsImage reports whether path has a page image extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}
