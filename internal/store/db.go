// Package store persists runs, their progress and their results in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"go-school-projections/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed run store. It implements pipeline.Recorder.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the database at path (":memory:" for an in-memory one)
// and applies pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	if path == ":memory:" {
		dsn = ":memory:?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path is the database location the store was opened with
func (s *Store) Path() string { return s.path }

func nullFloat(f model.Float) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f.Value, Valid: f.Valid}
}

func fromNull(n sql.NullFloat64) model.Float {
	if !n.Valid {
		return model.None()
	}
	return model.Some(n.Float64)
}
