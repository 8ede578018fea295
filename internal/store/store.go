// Package store implements the SQLite-backed system of record: repositories,
// documents and their linear version history, anchors, providers, the plugin
// registry, and app settings. All other components derive their state from
// this store through its change feed.
package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS repo (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	path       TEXT NOT NULL UNIQUE,
	settings   TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS doc (
	id         TEXT PRIMARY KEY,
	repo_id    TEXT NOT NULL REFERENCES repo(id) ON DELETE CASCADE,
	slug       TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	src_path   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(repo_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_doc_repo ON doc(repo_id);

CREATE TABLE IF NOT EXISTS doc_version (
	id         TEXT PRIMARY KEY,
	doc_id     TEXT NOT NULL REFERENCES doc(id) ON DELETE CASCADE,
	body       TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_version_doc ON doc_version(doc_id, id);

CREATE TABLE IF NOT EXISTS anchor (
	id         TEXT PRIMARY KEY,
	doc_id     TEXT NOT NULL REFERENCES doc(id) ON DELETE CASCADE,
	line       INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_anchor_doc ON anchor(doc_id);

CREATE TABLE IF NOT EXISTS link (
	from_doc_id TEXT NOT NULL REFERENCES doc(id) ON DELETE CASCADE,
	to_doc_id   TEXT NOT NULL REFERENCES doc(id) ON DELETE CASCADE,
	UNIQUE(from_doc_id, to_doc_id)
);

CREATE INDEX IF NOT EXISTS idx_link_from ON link(from_doc_id);
CREATE INDEX IF NOT EXISTS idx_link_to ON link(to_doc_id);

CREATE TABLE IF NOT EXISTS provider (
	name       TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	enabled    INTEGER NOT NULL DEFAULT 0,
	api_key    TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	plugin     TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS plugin (
	name         TEXT PRIMARY KEY,
	version      TEXT NOT NULL DEFAULT 'dev',
	kind         TEXT NOT NULL DEFAULT 'core',
	permissions  TEXT NOT NULL DEFAULT '{}',
	enabled      INTEGER NOT NULL DEFAULT 0,
	installed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS app_setting (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scan_job (
	id          TEXT PRIMARY KEY,
	repo_id     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT NOT NULL DEFAULT '{}',
	started_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS ai_trace (
	id         TEXT PRIMARY KEY,
	repo_id    TEXT NOT NULL DEFAULT '',
	doc_id     TEXT NOT NULL DEFAULT '',
	anchor_id  TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL,
	request    TEXT NOT NULL DEFAULT '{}',
	response   TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with store-specific operations and owns the change feed.
//
// Mutations to a single document are linearized by a per-document lock; the
// corresponding change-feed entry is appended under the same lock, so no
// write can be dropped from maintenance and per-document feed order matches
// write order.
type DB struct {
	conn *sql.DB
	feed *Feed

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex

	entropy *ulid.MonotonicEntropy
	idMu    sync.Mutex
}

// Open opens (or creates) the SQLite database, applies the schema, and seeds
// the default provider rows.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
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
	db := &DB{
		conn:     conn,
		feed:     NewFeed(),
		docLocks: make(map[string]*sync.Mutex),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := db.seedProviders(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Conn exposes the underlying connection for the derived index and graph
// caches. Callers must never mutate store tables through it.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Feed returns the change feed consumed by the maintenance worker.
func (db *DB) Feed() *Feed {
	return db.feed
}

// Close closes the change feed and the underlying database connection.
func (db *DB) Close() error {
	db.feed.Close()
	return db.conn.Close()
}

// NewID returns a new monotonic ULID for entity ids. ULIDs sort by creation
// time, which keeps doc_version ids aligned with history order.
func (db *DB) NewID() string {
	db.idMu.Lock()
	defer db.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), db.entropy).String()
}

// lockDoc acquires the per-document mutex, creating it on first use.
func (db *DB) lockDoc(docID string) *sync.Mutex {
	db.mu.Lock()
	l, ok := db.docLocks[docID]
	if !ok {
		l = &sync.Mutex{}
		db.docLocks[docID] = l
	}
	db.mu.Unlock()
	l.Lock()
	return l
}

// Seeded providers: one always-usable local backend plus disabled remote
// rows. Remote providers stay off until enabled with a key (privacy default).
func (db *DB) seedProviders() error {
	seeds := []struct {
		name    string
		kind    string
		enabled int
	}{
		{"local", "local", 1},
		{"openrouter", "remote", 0},
		{"openai", "remote", 0},
		{"ollama", "local", 0},
	}
	for _, s := range seeds {
		_, err := db.conn.Exec(
			`INSERT INTO provider (name, kind, enabled) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
			s.name, s.kind, s.enabled)
		if err != nil {
			return fmt.Errorf("store: seed provider %s: %w", s.name, err)
		}
	}
	return nil
}
