package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteKV keeps slots in a sqlite table. Each Set is a single INSERT OR REPLACE statement.
type SQLiteKV struct {
	db   *sqlx.DB
	path string
}

// NewSQLiteKV opens (or creates) sqlite database and makes the slots table
func NewSQLiteKV(dbPath string) (*SQLiteKV, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS slots (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER
		)`)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to create slots table: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create slots table: %w", err)
	}

	return &SQLiteKV{db: db, path: dbPath}, nil
}

// Get returns slot value, ok is false if the slot was never set
func (s *SQLiteKV) Get(key string) (value string, ok bool, err error) {
	if err := s.db.Get(&value, "SELECT value FROM slots WHERE key = ?", key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get slot %s: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or replaces slot value
func (s *SQLiteKV) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT OR REPLACE INTO slots (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set slot %s: %w", key, err)
	}
	return nil
}

// Delete removes slot, no-op if missing
func (s *SQLiteKV) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM slots WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

func (s *SQLiteKV) String() string {
	return "sqlite:" + s.path
}
