package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// UpsertAnchor records an anchor position. The anchor id is identity (a
// stable token embedded in document content); line is advisory. Upserting an
// existing id replaces line and timestamp, never duplicates.
func (db *DB) UpsertAnchor(docID, anchorID string, line int) error {
	var docExists int
	if err := db.conn.QueryRow(`SELECT count(*) FROM doc WHERE id = ?`, docID).Scan(&docExists); err != nil {
		return fmt.Errorf("store: check doc: %w", err)
	}
	if docExists == 0 {
		return fmt.Errorf("store: %w: doc %s", apperr.ErrNotFound, docID)
	}
	now := time.Now().UTC()
	_, err := db.conn.Exec(`
		INSERT INTO anchor (id, doc_id, line, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc_id     = excluded.doc_id,
			line       = excluded.line,
			updated_at = excluded.updated_at
	`, anchorID, docID, line, now, now)
	if err != nil {
		return fmt.Errorf("store: upsert anchor: %w", err)
	}
	return nil
}

// ListAnchors returns all anchors for a document, newest first.
func (db *DB) ListAnchors(docID string) ([]models.Anchor, error) {
	rows, err := db.conn.Query(
		`SELECT id, doc_id, line, created_at, updated_at FROM anchor WHERE doc_id = ? ORDER BY updated_at DESC`, docID)
	if err != nil {
		return nil, fmt.Errorf("store: list anchors: %w", err)
	}
	defer rows.Close()

	var out []models.Anchor
	for rows.Next() {
		var a models.Anchor
		if err := rows.Scan(&a.ID, &a.DocID, &a.Line, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAnchor returns one anchor by id.
func (db *DB) GetAnchor(anchorID string) (*models.Anchor, error) {
	var a models.Anchor
	err := db.conn.QueryRow(
		`SELECT id, doc_id, line, created_at, updated_at FROM anchor WHERE id = ?`, anchorID).
		Scan(&a.ID, &a.DocID, &a.Line, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %w: anchor %s", apperr.ErrNotFound, anchorID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get anchor: %w", err)
	}
	return &a, nil
}

// DeleteAnchor removes an anchor, returning false when it did not exist.
func (db *DB) DeleteAnchor(anchorID string) (bool, error) {
	res, err := db.conn.Exec(`DELETE FROM anchor WHERE id = ?`, anchorID)
	if err != nil {
		return false, fmt.Errorf("store: delete anchor: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
