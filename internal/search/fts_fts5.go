//go:build sqlite_fts5

package search

import (
	"database/sql"
	"fmt"

	"github.com/starford/ansuz/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS doc_fts USING fts5(
			doc_id UNINDEXED,
			repo_id UNINDEXED,
			slug UNINDEXED,
			title,
			body,
			tokenize = 'porter unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// Upsert replaces the index entry for a document.
func (ix *Index) Upsert(docID, repoID, slug, title, body string) error {
	tx, err := ix.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM doc_fts WHERE doc_id = ?`, docID)
	if _, err := tx.Exec(
		`INSERT INTO doc_fts (doc_id, repo_id, slug, title, body) VALUES (?, ?, ?, ?, ?)`,
		docID, repoID, slug, title, body); err != nil {
		return fmt.Errorf("search: upsert entry: %w", err)
	}
	return tx.Commit()
}

// Delete removes a document's index entry.
func (ix *Index) Delete(docID string) error {
	if _, err := ix.conn.Exec(`DELETE FROM doc_fts WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("search: delete entry: %w", err)
	}
	return nil
}

// Query runs a ranked FTS5 match. Title matches rank above body matches via
// bm25 column weights; snippets are cut around the densest match window.
func (ix *Index) Query(text, repoID string, limit, offset int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := ix.conn.Query(`
		SELECT doc_id,
		       slug,
		       snippet(doc_fts, 3, ?, ?, '...', 12),
		       snippet(doc_fts, 4, ?, ?, '...', 64),
		       bm25(doc_fts, 0, 0, 0, 4.0, 1.0)
		FROM doc_fts
		WHERE doc_fts MATCH ?
		  AND (? = '' OR repo_id = ?)
		ORDER BY bm25(doc_fts, 0, 0, 0, 4.0, 1.0)
		LIMIT ? OFFSET ?
	`, markStart, markEnd, markStart, markEnd, text, repoID, repoID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		var titleSnip, bodySnip string
		if err := rows.Scan(&h.DocID, &h.Slug, &titleSnip, &bodySnip, &h.Rank); err != nil {
			return nil, err
		}
		h.TitleSnip = renderSnippet(titleSnip)
		h.BodySnip = renderSnippet(bodySnip)
		out = append(out, h)
	}
	return out, rows.Err()
}
