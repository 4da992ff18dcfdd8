// Package sqlite provides the embedded SQLite store (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hudson-blanoire/chroma-server/internal/store/sqlstore"
)

// Dialect is the SQLite flavour of the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	Schema:            sqlstore.Schema("BLOB"),
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// Open opens (or creates) a SQLite database at the given path and enables WAL journal mode.
// An empty path opens a private in-memory database.
func Open(path string) (*sql.DB, error) {
	var dsn string
	if path == "" {
		dsn = fmt.Sprintf("file:chroma-%s?mode=memory&_pragma=foreign_keys(ON)", uuid.NewString())
	} else {
		// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// single writer: an in-memory database is per connection, and WAL
	// transactions that upgrade from read to write fail with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New opens the database at path, creates the schema and returns the store.
func New(ctx context.Context, path string) (*sqlstore.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	s := sqlstore.New(db, Dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
