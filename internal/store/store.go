// Package store provides durable persistence for the batch/page entity
// graph and the login session.
//
// The store is a small key-value layer over embedded SQLite (WAL mode for
// concurrent readers). The whole graph is serialized as one JSON object
// under a fixed key, so a reload immediately after any lifecycle transition
// observes that transition: every mutation is followed by a synchronous
// Save before the mutating call returns.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/scantrad/scantrad/internal/schema"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Fixed keys in the kv table.
const (
	keyBatches = "batches"
	keySession = "session"
)

// Store wraps the SQLite connection holding the persisted entity graph.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open creates or opens the store database at the given path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// The caller MUST call Close() when done.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path, logger: logger}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection, checkpointing the WAL first so all
// changes land in the main file.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the kv table. Idempotent.
func (s *Store) initSchema() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// put upserts a raw value under key.
func (s *Store) put(key, value string) error {
	query := `
	INSERT INTO kv (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.conn.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// get reads a raw value. Returns ("", false, nil) when the key is absent.
func (s *Store) get(key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// del removes a key. Idempotent.
func (s *Store) del(key string) error {
	if _, err := s.conn.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Save persists the entire batch graph synchronously.
func (s *Store) Save(graph map[string]*schema.Batch) error {
	data, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to marshal batch graph: %w", err)
	}
	return s.put(keyBatches, string(data))
}

// Load reads the persisted batch graph.
//
// A missing blob yields an empty graph. A corrupt blob is logged and also
// yields an empty graph rather than failing the caller: persistence errors
// are recovered locally, never propagated.
func (s *Store) Load() (map[string]*schema.Batch, error) {
	value, ok, err := s.get(keyBatches)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]*schema.Batch{}, nil
	}

	var graph map[string]*schema.Batch
	if err := json.Unmarshal([]byte(value), &graph); err != nil {
		s.logger.Printf("Warning: corrupt batch graph, starting empty: %v", err)
		return map[string]*schema.Batch{}, nil
	}
	if graph == nil {
		graph = map[string]*schema.Batch{}
	}
	return graph, nil
}

// SaveSession persists the logged-in pseudo so identity survives a reload.
func (s *Store) SaveSession(pseudo string) error {
	return s.put(keySession, pseudo)
}

// LoadSession returns the persisted pseudo, or "" when logged out.
func (s *Store) LoadSession() (string, error) {
	value, ok, err := s.get(keySession)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

// ClearSession removes the persisted identity. Idempotent.
func (s *Store) ClearSession() error {
	return s.del(keySession)
}
