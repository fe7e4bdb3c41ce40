// Package blob manages locally-held image data for pages created from
// uploaded files.
//
// Each accepted file is copied under the data directory and referenced by
// an opaque "blob:" locator. The locator owns the underlying file: it must
// be released exactly once, when the owning batch is deleted. Remote URLs
// pass through untouched and own nothing.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const refPrefix = "blob:"

// Store copies file data under Root/blobs and tracks live references.
type Store struct {
	root string

	mu   sync.Mutex
	live map[string]bool // relpath -> allocated and not yet released

	// releaseHook, when set, observes every successful release. Tests use
	// it to count releases.
	releaseHook func(ref string)
}

// NewStore creates a blob store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		root: dir,
		live: make(map[string]bool),
	}
}

// SetReleaseHook installs an observer called after each successful release.
func (s *Store) SetReleaseHook(fn func(ref string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseHook = fn
}

// Put copies r into the store and returns a blob reference owning the copy.
func (s *Store) Put(filename string, r io.Reader) (string, error) {
	rel := filepath.Join("blobs", uuid.New().String()+filepath.Ext(filename))
	abs := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("failed to create blob file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(abs)
		return "", fmt.Errorf("failed to write blob data: %w", err)
	}

	s.mu.Lock()
	s.live[rel] = true
	s.mu.Unlock()

	return refPrefix + rel, nil
}

// Adopt marks a previously persisted blob reference as live again, so a
// fresh process can release blobs allocated by an earlier one. Non-blob
// references are ignored.
func (s *Store) Adopt(ref string) {
	rel, ok := parseRef(ref)
	if !ok {
		return
	}
	s.mu.Lock()
	s.live[rel] = true
	s.mu.Unlock()
}

// Open returns a reader for a blob reference.
func (s *Store) Open(ref string) (*os.File, error) {
	rel, ok := parseRef(ref)
	if !ok {
		return nil, fmt.Errorf("not a blob reference: %q", ref)
	}
	return os.Open(filepath.Join(s.root, rel))
}

// Release frees the file behind a blob reference.
//
// Releasing a non-blob reference (remote URL, data URL, empty) is a no-op:
// only locally-allocated handles own anything. Releasing the same blob
// twice is an error, since double-release indicates a bookkeeping bug in
// the caller.
func (s *Store) Release(ref string) error {
	rel, ok := parseRef(ref)
	if !ok {
		return nil
	}

	s.mu.Lock()
	if !s.live[rel] {
		s.mu.Unlock()
		return fmt.Errorf("blob %q already released", ref)
	}
	delete(s.live, rel)
	hook := s.releaseHook
	s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.root, rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob %q: %w", ref, err)
	}
	if hook != nil {
		hook(ref)
	}
	return nil
}

// LiveCount returns the number of allocated, unreleased blobs.
func (s *Store) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func parseRef(ref string) (string, bool) {
	if !strings.HasPrefix(ref, refPrefix) {
		return "", false
	}
	return strings.TrimPrefix(ref, refPrefix), true
}
