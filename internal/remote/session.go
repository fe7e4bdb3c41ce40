// Package remote talks to the translation backend: batch submission,
// status/result queries, and the tag-indexed cache that keeps dependent
// views fresh. The backend is the source of truth for the batches it owns;
// local copies are advisory and rebuilt on every successful fetch.
package remote

import (
	"fmt"
	"sync"

	"github.com/scantrad/scantrad/internal/store"
)

// Session holds the current user identity. The identity is one plain
// string (the pseudo) threaded as a header on every request; there is no
// token and no expiry. It is unset at start, set on successful login,
// cleared on logout, and persisted so it survives a restart.
type Session struct {
	store *store.Store

	mu     sync.RWMutex
	pseudo string
}

// NewSession creates a session, restoring any persisted identity.
func NewSession(st *store.Store) (*Session, error) {
	pseudo, err := st.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return &Session{store: st, pseudo: pseudo}, nil
}

// Pseudo returns the current identity, or "" when logged out.
func (s *Session) Pseudo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pseudo
}

// LoggedIn reports whether an identity is set.
func (s *Session) LoggedIn() bool {
	return s.Pseudo() != ""
}

// set stores and persists the identity. Called by Client.Login on success.
func (s *Session) set(pseudo string) error {
	s.mu.Lock()
	s.pseudo = pseudo
	s.mu.Unlock()
	if err := s.store.SaveSession(pseudo); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Clear removes the identity. Logout is just this: no server round trip.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.pseudo = ""
	s.mu.Unlock()
	if err := s.store.ClearSession(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
