package database

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

func New(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; a single connection also keeps
	// ":memory:" databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// IsConstraint reports whether err is a UNIQUE or PRIMARY KEY violation.
func IsConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func Migrate(db *sql.DB) error {
	_, err := db.Exec(`
-- BABIL Database Schema

-- Pages carry a cache of their latest revision.
CREATE TABLE IF NOT EXISTS pages (
    name TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    format TEXT NOT NULL DEFAULT 'markdown',
    current_markdown TEXT NOT NULL,
    current_html TEXT NOT NULL,
    current_plain_text TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Revisions are the append-only history of a page.
CREATE TABLE IF NOT EXISTS revisions (
    id TEXT PRIMARY KEY,
    page_name TEXT NOT NULL,
    idx INTEGER NOT NULL,
    title TEXT NOT NULL,
    markdown TEXT NOT NULL,
    html TEXT NOT NULL,
    plain_text TEXT NOT NULL,
    format TEXT NOT NULL DEFAULT 'markdown',
    editor TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(page_name) REFERENCES pages(name),
    UNIQUE (page_name, idx)
);

CREATE INDEX IF NOT EXISTS revisions_created_at ON revisions(created_at);

-- Identities are self-chosen tokens.
CREATE TABLE IF NOT EXISTS identities (
    token TEXT PRIMARY KEY,
    write_allowed INTEGER NOT NULL DEFAULT 0,
    is_admin INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

-- Modifications list the pages an identity edited.
CREATE TABLE IF NOT EXISTS modifications (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    token TEXT NOT NULL,
    page_name TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS modifications_token ON modifications(token, id);
`)
	return err
}
