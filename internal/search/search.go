// Package search maintains the derived full-text index over document titles
// and bodies. It is populated only through the store's change feed; callers
// must never mutate it directly.
package search

import (
	"database/sql"
	"fmt"
	"html"
	"strings"
)

// Highlight markers used inside raw snippets before HTML escaping. The
// snippet text is escaped first and the markers are swapped for the
// whitelisted wrap tags afterwards, so document content can never inject
// markup.
const (
	markStart = "\x01"
	markEnd   = "\x02"
)

// Index answers ranked full-text queries with highlighted snippets.
type Index struct {
	conn *sql.DB
}

// New prepares the index schema on the store's connection.
func New(conn *sql.DB) (*Index, error) {
	if err := initFTS(conn); err != nil {
		return nil, fmt.Errorf("search: apply fts schema: %w", err)
	}
	return &Index{conn: conn}, nil
}

// renderSnippet HTML-escapes a raw snippet and rewrites the internal
// highlight markers to <b> wrap tags.
func renderSnippet(raw string) string {
	escaped := html.EscapeString(raw)
	escaped = strings.ReplaceAll(escaped, markStart, "<b>")
	escaped = strings.ReplaceAll(escaped, markEnd, "</b>")
	return escaped
}
