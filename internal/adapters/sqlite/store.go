// Package sqlite is a file-backed entity store for local development and
// offline demos. It mirrors the Postgres schema closely enough for the
// search path, including its column-narrowing behavior.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/creerlio/discovery/internal/core/ports"
)

// Store wraps a sqlite database handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" keeps a single
// connection so every query sees the same database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the handle for seeding.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks the handle.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the profile, job and intent tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS talent_profiles (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  skills TEXT NOT NULL DEFAULT '[]',
  experience_years INTEGER,
  bio TEXT NOT NULL DEFAULT '',
  city TEXT, state TEXT, country TEXT,
  latitude REAL, longitude REAL,
  search_visible INTEGER,
  search_summary TEXT,
  availability_description TEXT
);`, `
CREATE TABLE IF NOT EXISTS business_profiles (
  id TEXT PRIMARY KEY,
  business_name TEXT NOT NULL DEFAULT '',
  name TEXT,
  description TEXT NOT NULL DEFAULT '',
  industries TEXT NOT NULL DEFAULT '[]',
  location TEXT, city TEXT, state TEXT, country TEXT,
  latitude REAL, longitude REAL,
  search_visible INTEGER,
  search_summary TEXT
);`, `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  business_profile_id TEXT REFERENCES business_profiles(id),
  title TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  location TEXT, city TEXT, state TEXT, country TEXT,
  employment_type TEXT,
  status TEXT NOT NULL DEFAULT 'draft',
  latitude REAL, longitude REAL
);`, `
CREATE TABLE IF NOT EXISTS intent_modes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  profile_type TEXT NOT NULL,
  profile_id TEXT NOT NULL,
  intent_status TEXT,
  visibility INTEGER NOT NULL DEFAULT 0,
  UNIQUE (profile_type, profile_id)
);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func translate(err error) error {
	if err != nil && strings.Contains(err.Error(), "no such column") {
		return fmt.Errorf("%s: %w", err.Error(), ports.ErrUndefinedColumn)
	}
	return err
}
