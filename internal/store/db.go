package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrUnavailable marks storage-open failures (permissions, quota,
// corruption). Callers must treat it as fatal: there is no safe optimistic
// path without durable local state.
var ErrUnavailable = errors.New("store unavailable")

// DB wraps a SQLite database connection for the app-owned daybook.db.
// fts records whether the running binary's SQLite carries the fts5 module;
// Migrate sets it and SearchRecords picks its query strategy from it.
type DB struct {
	*sql.DB
	fts bool
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Open failures wrap ErrUnavailable so callers can distinguish a dead store
// from ordinary query errors.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w: %w", ErrUnavailable, err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w: %w", ErrUnavailable, err)
	}
	return &DB{DB: db}, nil
}
