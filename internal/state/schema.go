// Package state owns the SQLite database: DSN parsing, open/pragma setup,
// and the embedded schema migrations for the monitoring tables.
package state

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ParseDatabaseURL turns a DATABASE_URL value into a SQLite path. Accepted
// forms: "sqlite:///var/db.sqlite", "sqlite:watch.db", a plain filesystem
// path, ":memory:", or a "file:" DSN. Any other URL scheme is rejected.
func ParseDatabaseURL(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("database url is empty")
	}
	if rest, ok := strings.CutPrefix(v, "sqlite://"); ok {
		v = rest
	} else if rest, ok := strings.CutPrefix(v, "sqlite:"); ok {
		v = rest
	} else if i := strings.Index(v, "://"); i > 0 {
		return "", fmt.Errorf("unsupported database scheme %q (only sqlite is supported)", v[:i])
	}
	if v == "" {
		return "", fmt.Errorf("database url %q has no path", raw)
	}
	return v, nil
}

// OpenDB opens (or creates) a SQLite database at path with recommended pragmas:
// WAL journal mode, synchronous=NORMAL, foreign_keys=ON, busy_timeout=5000.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	// Single-writer: only one connection needed.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	return db, nil
}

// Open parses a DATABASE_URL value, opens the database, and applies the
// embedded migrations.
func Open(databaseURL string) (*sql.DB, error) {
	path, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
