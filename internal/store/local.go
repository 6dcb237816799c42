package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"studioregister/internal/logger"
)

// Collection keys, one per entity collection.
const (
	KeyClasses  = "classes"
	KeyStudents = "students"
	KeySessions = "sessions"
	KeyPoints   = "points"
	KeyAwards   = "awards"
)

// Local is the device-side store: one sqlite row per collection holding the
// JSON-encoded records. It is the single source of truth for reads; the remote
// mirror is advisory.
type Local struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenLocal opens (creating if needed) the sqlite store at path.
func OpenLocal(path string, log *logger.Logger) (*Local, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping local db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		key      TEXT PRIMARY KEY,
		payload  TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate local db: %w", err)
	}
	return &Local{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Local) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Healthy verifies the local store is reachable.
func (s *Local) Healthy() bool {
	return s != nil && s.db != nil && s.db.Ping() == nil
}

// LoadCollection reads the records stored under key. A missing key or a corrupt
// payload degrades to an empty collection; corruption is logged, never fatal.
func LoadCollection[T any](s *Local, key string) []T {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM collections WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.log.Errorf("local read %s: %v", key, err)
		return nil
	}

	var records []T
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		s.log.Errorf("local payload %s corrupt, starting empty: %v", key, err)
		return nil
	}
	return records
}

// SaveCollection replaces the records stored under key.
func SaveCollection[T any](s *Local, key string, records []T) error {
	if records == nil {
		records = []T{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO collections (key, payload, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
	`, key, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
