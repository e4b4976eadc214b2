// Package store keeps the dataset tables in SQLite and answers the filter
// queries of the case hub. Free-text filters run inside SQLite through the
// text_matches SQL function, which evaluates the boolean query language.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/multicare-dataset/website/internal/query"
)

const driverName = "sqlite3_casehub"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sources (
	name      TEXT PRIMARY KEY,
	kind      TEXT NOT NULL,
	checksum  TEXT NOT NULL DEFAULT '',
	row_count INTEGER NOT NULL DEFAULT 0,
	synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS articles (
	article_id     TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	year           INTEGER NOT NULL DEFAULT 0,
	citation       TEXT NOT NULL DEFAULT '',
	link           TEXT NOT NULL DEFAULT '',
	commercial_use INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cases (
	case_id    TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	article_id TEXT NOT NULL,
	age        INTEGER,
	gender     TEXT NOT NULL DEFAULT '',
	case_text  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS images (
	file       TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	case_id    TEXT NOT NULL,
	article_id TEXT NOT NULL,
	caption    TEXT NOT NULL DEFAULT '',
	labels     TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS image_labels (
	file  TEXT NOT NULL,
	label TEXT NOT NULL,
	UNIQUE(file, label)
);

-- Pairs of sources that contain the same row id. Only one of them owns the
-- stored row, so changing or removing either requires reimporting the other.
CREATE TABLE IF NOT EXISTS source_overlaps (
	source TEXT NOT NULL,
	other  TEXT NOT NULL,
	UNIQUE(source, other)
);

CREATE INDEX IF NOT EXISTS idx_articles_year ON articles(year);
CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
CREATE INDEX IF NOT EXISTS idx_cases_article ON cases(article_id);
CREATE INDEX IF NOT EXISTS idx_cases_source ON cases(source);
CREATE INDEX IF NOT EXISTS idx_images_case ON images(case_id);
CREATE INDEX IF NOT EXISTS idx_images_article ON images(article_id);
CREATE INDEX IF NOT EXISTS idx_images_source ON images(source);
CREATE INDEX IF NOT EXISTS idx_image_labels_label ON image_labels(label);
`

var registerOnce sync.Once

// registerDriver installs a sqlite3 driver whose connections expose
// text_matches(text, query) backed by query.Matches.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("text_matches", query.Matches, true)
			},
		})
	})
}

// DB wraps a sql.DB with dataset-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	registerDriver()
	conn, err := sql.Open(driverName, dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
