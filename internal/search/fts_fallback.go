//go:build !sqlite_fts5

package search

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// Without the sqlite_fts5 build tag the index keeps a plain shadow table and
// answers queries with case-folded LIKE matching. Ranking still weights
// title hits above body hits so callers observe the same ordering contract.
func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS doc_fts (
			doc_id  TEXT PRIMARY KEY,
			repo_id TEXT NOT NULL,
			slug    TEXT NOT NULL,
			title   TEXT NOT NULL,
			body    TEXT NOT NULL
		);
	`)
	return err
}

// Upsert replaces the index entry for a document.
func (ix *Index) Upsert(docID, repoID, slug, title, body string) error {
	_, err := ix.conn.Exec(`
		INSERT INTO doc_fts (doc_id, repo_id, slug, title, body) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			repo_id = excluded.repo_id,
			slug    = excluded.slug,
			title   = excluded.title,
			body    = excluded.body
	`, docID, repoID, slug, title, body)
	if err != nil {
		return fmt.Errorf("search: upsert entry: %w", err)
	}
	return nil
}

// Delete removes a document's index entry.
func (ix *Index) Delete(docID string) error {
	if _, err := ix.conn.Exec(`DELETE FROM doc_fts WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("search: delete entry: %w", err)
	}
	return nil
}

// Query performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (ix *Index) Query(text, repoID string, limit, offset int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	like := "%" + strings.ToLower(text) + "%"
	rows, err := ix.conn.Query(`
		SELECT doc_id, slug, title, body,
		       CASE WHEN lower(title) LIKE ? THEN 0.0 ELSE 1.0 END AS rank
		FROM doc_fts
		WHERE (lower(title) LIKE ? OR lower(body) LIKE ?)
		  AND (? = '' OR repo_id = ?)
		ORDER BY rank ASC, slug ASC
		LIMIT ? OFFSET ?
	`, like, like, like, repoID, repoID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		var title, body string
		if err := rows.Scan(&h.DocID, &h.Slug, &title, &body, &h.Rank); err != nil {
			return nil, err
		}
		h.TitleSnip = renderSnippet(highlight(title, text))
		h.BodySnip = renderSnippet(window(highlight(body, text)))
		out = append(out, h)
	}
	return out, rows.Err()
}

// highlight wraps case-insensitive occurrences of term in the internal
// markers later rewritten to <b> tags.
func highlight(s, term string) string {
	if term == "" {
		return s
	}
	lower := strings.ToLower(s)
	needle := strings.ToLower(term)
	var sb strings.Builder
	for {
		i := strings.Index(lower, needle)
		if i < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:i])
		sb.WriteString(markStart)
		sb.WriteString(s[i : i+len(term)])
		sb.WriteString(markEnd)
		s = s[i+len(term):]
		lower = lower[i+len(needle):]
	}
}

// window cuts the snippet around the first highlighted match.
func window(s string) string {
	const span = 200
	i := strings.Index(s, markStart)
	if i < 0 {
		if len(s) > span {
			return s[:span] + "..."
		}
		return s
	}
	start := i - span/2
	if start < 0 {
		start = 0
	}
	end := i + span/2
	if end > len(s) {
		end = len(s)
	}
	out := s[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(s) {
		out += "..."
	}
	return out
}
