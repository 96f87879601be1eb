// Package db wraps the SQLite session store: projects, sessions with their
// bout lists, and split lineage. The relational store is the single source
// of truth and the serialization point for naming uniqueness.
package db

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// OpenDB opens a database connection without touching the schema.
// Migrations manage the schema; use NewDB to open and migrate in one step.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Serialized access keeps the write path simple; SQLite handles the
	// request-per-thread model fine at this scale.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// NewDB opens the database and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// IsUniqueConstraint reports whether err is a SQLite UNIQUE constraint
// violation. The naming tracker relies on this to retry with the next
// candidate when two splits race for the same suffix.
func IsUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
