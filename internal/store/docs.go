package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
)

// CreateDoc inserts a new document with its first version and enqueues index
// maintenance. Fails with ErrConflict when the slug exists in the repo and
// ErrNotFound when the repo is unknown.
func (db *DB) CreateDoc(repoID, slug, title, body, srcPath string) (*models.Document, error) {
	var repoExists int
	if err := db.conn.QueryRow(`SELECT count(*) FROM repo WHERE id = ?`, repoID).Scan(&repoExists); err != nil {
		return nil, fmt.Errorf("store: check repo: %w", err)
	}
	if repoExists == 0 {
		return nil, fmt.Errorf("store: %w: repo %s", apperr.ErrNotFound, repoID)
	}

	var slugTaken int
	if err := db.conn.QueryRow(`SELECT count(*) FROM doc WHERE repo_id = ? AND slug = ?`, repoID, slug).Scan(&slugTaken); err != nil {
		return nil, fmt.Errorf("store: check slug: %w", err)
	}
	if slugTaken > 0 {
		return nil, fmt.Errorf("store: %w: slug %s in repo %s", apperr.ErrConflict, slug, repoID)
	}

	docID := db.NewID()
	versionID := db.NewID()
	cs := checksum.SumString(body)
	now := time.Now().UTC()

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(
		`INSERT INTO doc (id, repo_id, slug, title, body, checksum, src_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		docID, repoID, slug, title, body, cs, srcPath, now, now); err != nil {
		return nil, fmt.Errorf("store: insert doc: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO doc_version (id, doc_id, body, message, created_at) VALUES (?, ?, ?, '', ?)`,
		versionID, docID, body, now); err != nil {
		return nil, fmt.Errorf("store: insert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}

	db.feed.Append(Change{Op: OpUpsert, DocID: docID, RepoID: repoID, Slug: slug, Title: title, Body: body, Created: true})
	return &models.Document{
		ID: docID, RepoID: repoID, Slug: slug, Title: title, Body: body,
		Checksum: cs, SrcPath: srcPath, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// UpdateDoc appends a new version and updates the live row. Updates to one
// document are serialized by a per-document lock. When the body is unchanged
// from the current version, no version is created and the current version id
// is returned with skipped=true.
func (db *DB) UpdateDoc(docID, body, message string) (versionID string, skipped bool, err error) {
	l := db.lockDoc(docID)
	defer l.Unlock()

	var repoID, slug, title, cur string
	err = db.conn.QueryRow(`SELECT repo_id, slug, title, checksum FROM doc WHERE id = ?`, docID).
		Scan(&repoID, &slug, &title, &cur)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("store: %w: doc %s", apperr.ErrNotFound, docID)
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get doc: %w", err)
	}

	cs := checksum.SumString(body)
	if cs == cur {
		var currentVersion string
		err = db.conn.QueryRow(
			`SELECT id FROM doc_version WHERE doc_id = ? ORDER BY id DESC LIMIT 1`, docID).Scan(&currentVersion)
		if err != nil {
			return "", false, fmt.Errorf("store: current version: %w", err)
		}
		return currentVersion, true, nil
	}

	versionID = db.NewID()
	now := time.Now().UTC()

	tx, err := db.conn.Begin()
	if err != nil {
		return "", false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(
		`INSERT INTO doc_version (id, doc_id, body, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		versionID, docID, body, message, now); err != nil {
		return "", false, fmt.Errorf("store: insert version: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE doc SET body = ?, checksum = ?, updated_at = ? WHERE id = ?`,
		body, cs, now, docID); err != nil {
		return "", false, fmt.Errorf("store: update doc: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("store: commit: %w", err)
	}

	db.feed.Append(Change{Op: OpUpsert, DocID: docID, RepoID: repoID, Slug: slug, Title: title, Body: body})
	return versionID, false, nil
}

// GetDoc returns a document by id. With withContent=false the body is
// omitted (cheap metadata path used by graph title lookups).
func (db *DB) GetDoc(docID string, withContent bool) (*models.Document, error) {
	cols := `id, repo_id, slug, title, '', checksum, src_path, created_at, updated_at`
	if withContent {
		cols = `id, repo_id, slug, title, body, checksum, src_path, created_at, updated_at`
	}
	var d models.Document
	err := db.conn.QueryRow(`SELECT `+cols+` FROM doc WHERE id = ?`, docID).
		Scan(&d.ID, &d.RepoID, &d.Slug, &d.Title, &d.Body, &d.Checksum, &d.SrcPath, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %w: doc %s", apperr.ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get doc: %w", err)
	}
	return &d, nil
}

// GetDocBySlug returns a document in a repo by slug, without body.
func (db *DB) GetDocBySlug(repoID, slug string) (*models.Document, error) {
	var d models.Document
	err := db.conn.QueryRow(
		`SELECT id, repo_id, slug, title, checksum, src_path, created_at, updated_at FROM doc WHERE repo_id = ? AND slug = ?`,
		repoID, slug).
		Scan(&d.ID, &d.RepoID, &d.Slug, &d.Title, &d.Checksum, &d.SrcPath, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %w: slug %s", apperr.ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get doc by slug: %w", err)
	}
	return &d, nil
}

// FindDoc resolves a document by id or, failing that, by slug in any repo.
// Used by the AI gateway, which accepts either form.
func (db *DB) FindDoc(idOrSlug string) (*models.Document, error) {
	var d models.Document
	err := db.conn.QueryRow(
		`SELECT id, repo_id, slug, title, body, checksum, src_path, created_at, updated_at FROM doc WHERE id = ? OR slug = ? LIMIT 1`,
		idOrSlug, idOrSlug).
		Scan(&d.ID, &d.RepoID, &d.Slug, &d.Title, &d.Body, &d.Checksum, &d.SrcPath, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %w: doc %s", apperr.ErrNotFound, idOrSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("store: find doc: %w", err)
	}
	return &d, nil
}

// DeleteDoc removes a document and enqueues cache removal. Returns false
// when the doc does not exist.
func (db *DB) DeleteDoc(docID string) (bool, error) {
	l := db.lockDoc(docID)
	defer l.Unlock()

	var repoID, slug string
	err := db.conn.QueryRow(`SELECT repo_id, slug FROM doc WHERE id = ?`, docID).Scan(&repoID, &slug)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: get doc: %w", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM doc WHERE id = ?`, docID); err != nil {
		return false, fmt.Errorf("store: delete doc: %w", err)
	}
	db.feed.Append(Change{Op: OpDelete, DocID: docID, RepoID: repoID, Slug: slug})
	return true, nil
}

// ListVersions returns a document's history, oldest first.
func (db *DB) ListVersions(docID string) ([]models.Version, error) {
	rows, err := db.conn.Query(
		`SELECT id, doc_id, message, created_at FROM doc_version WHERE doc_id = ? ORDER BY id ASC`, docID)
	if err != nil {
		return nil, fmt.Errorf("store: list versions: %w", err)
	}
	defer rows.Close()

	var out []models.Version
	for rows.Next() {
		var v models.Version
		if err := rows.Scan(&v.ID, &v.DocID, &v.Message, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RepoDocSources returns slug → src_path for every scanner-managed doc in a
// repo. Docs created through the API (empty src_path) are excluded; the
// scanner must never tombstone them.
func (db *DB) RepoDocSources(repoID string) (map[string]string, error) {
	rows, err := db.conn.Query(
		`SELECT slug, src_path FROM doc WHERE repo_id = ? AND src_path != ''`, repoID)
	if err != nil {
		return nil, fmt.Errorf("store: repo doc sources: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var slug, src string
		if err := rows.Scan(&slug, &src); err != nil {
			return nil, err
		}
		out[slug] = src
	}
	return out, rows.Err()
}

// DocChecksum returns the stored checksum for a (repo, slug) pair, or empty
// string when the doc is not indexed yet.
func (db *DB) DocChecksum(repoID, slug string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM doc WHERE repo_id = ? AND slug = ?`, repoID, slug).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: doc checksum: %w", err)
	}
	return cs, nil
}
