// Package graph maintains the directed wikilink graph derived from document
// bodies and answers backlink, neighborhood, co-citation, and path queries.
// Edges are rebuilt from the store's change feed; unresolved link targets are
// dropped rather than stored as dangling edges.
package graph

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
)

const (
	minDepth = 1
	maxDepth = 3

	relatedLimit = 20
)

// Graph answers structural queries over the link table.
type Graph struct {
	conn *sql.DB
}

// New returns a graph backed by the store's connection. The link table is
// part of the store schema, so there is nothing to initialize here.
func New(conn *sql.DB) *Graph {
	return &Graph{conn: conn}
}

// UpdateLinks re-derives the outgoing edges of a document from its body.
// Link targets resolve against slugs within the same repository; targets
// that do not resolve are ignored.
func (g *Graph) UpdateLinks(docID, repoID, body string) error {
	targets := parser.ExtractLinks(body)

	tx, err := g.conn.Begin()
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM link WHERE from_doc_id = ?`, docID); err != nil {
		return fmt.Errorf("graph: clear edges: %w", err)
	}
	for _, slug := range targets {
		var toID string
		err := tx.QueryRow(
			`SELECT id FROM doc WHERE repo_id = ? AND slug = ?`, repoID, slug).Scan(&toID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("graph: resolve %q: %w", slug, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO link (from_doc_id, to_doc_id) VALUES (?, ?)
			 ON CONFLICT(from_doc_id, to_doc_id) DO NOTHING`, docID, toID); err != nil {
			return fmt.Errorf("graph: insert edge: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteLinks removes all edges touching a deleted document.
func (g *Graph) DeleteLinks(docID string) error {
	_, err := g.conn.Exec(
		`DELETE FROM link WHERE from_doc_id = ? OR to_doc_id = ?`, docID, docID)
	if err != nil {
		return fmt.Errorf("graph: delete edges: %w", err)
	}
	return nil
}

// Backlinks returns the documents linking to docID.
func (g *Graph) Backlinks(docID string) ([]models.GraphDoc, error) {
	if err := g.checkDoc(docID); err != nil {
		return nil, err
	}
	rows, err := g.conn.Query(`
		SELECT d.id, d.slug, d.title
		FROM link l JOIN doc d ON d.id = l.from_doc_id
		WHERE l.to_doc_id = ?
		ORDER BY d.slug
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("graph: backlinks: %w", err)
	}
	return scanDocs(rows)
}

// Neighbors returns documents reachable from docID within depth hops over
// the undirected projection of the graph. Depth is clamped to [1, 3] and the
// starting document is excluded from the result.
func (g *Graph) Neighbors(docID string, depth int) ([]models.GraphDoc, error) {
	if err := g.checkDoc(docID); err != nil {
		return nil, err
	}
	if depth < minDepth {
		depth = minDepth
	}
	if depth > maxDepth {
		depth = maxDepth
	}
	visited, err := g.bfs(docID, depth)
	if err != nil {
		return nil, err
	}
	delete(visited, docID)
	if len(visited) == 0 {
		return nil, nil
	}
	return g.loadDocs(visited)
}

// Related returns documents co-cited with docID: documents whose set of
// referrers overlaps with docID's, ranked by how many referrers they share.
func (g *Graph) Related(docID string) ([]models.GraphDoc, error) {
	if err := g.checkDoc(docID); err != nil {
		return nil, err
	}
	rows, err := g.conn.Query(`
		SELECT d.id, d.slug, d.title
		FROM link a
		JOIN link b ON b.from_doc_id = a.from_doc_id AND b.to_doc_id != a.to_doc_id
		JOIN doc d ON d.id = b.to_doc_id
		WHERE a.to_doc_id = ?
		GROUP BY d.id, d.slug, d.title
		ORDER BY COUNT(*) DESC, d.slug
		LIMIT ?
	`, docID, relatedLimit)
	if err != nil {
		return nil, fmt.Errorf("graph: related: %w", err)
	}
	return scanDocs(rows)
}

// Path returns one shortest undirected path from startID to endID as a
// sequence of documents, [start] when the endpoints coincide, and an empty
// slice when no path exists.
func (g *Graph) Path(startID, endID string) ([]models.GraphDoc, error) {
	if err := g.checkDoc(startID); err != nil {
		return nil, err
	}
	if err := g.checkDoc(endID); err != nil {
		return nil, err
	}
	if startID == endID {
		docs, err := g.loadDocs(map[string]struct{}{startID: {}})
		if err != nil {
			return nil, err
		}
		return docs, nil
	}

	parent := map[string]string{startID: ""}
	frontier := []string{startID}
	for len(frontier) > 0 && parent[endID] == "" {
		var next []string
		for _, id := range frontier {
			adj, err := g.adjacent(id)
			if err != nil {
				return nil, err
			}
			for _, n := range adj {
				if _, seen := parent[n]; seen {
					continue
				}
				parent[n] = id
				next = append(next, n)
			}
		}
		frontier = next
	}
	if _, found := parent[endID]; !found {
		return []models.GraphDoc{}, nil
	}

	var ids []string
	for id := endID; id != ""; id = parent[id] {
		ids = append(ids, id)
	}
	// parent chain walks end to start; reverse in place.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return g.loadDocsOrdered(ids)
}

// bfs collects ids reachable from start within depth undirected hops,
// including start itself.
func (g *Graph) bfs(start string, depth int) (map[string]struct{}, error) {
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			adj, err := g.adjacent(id)
			if err != nil {
				return nil, err
			}
			for _, n := range adj {
				if _, seen := visited[n]; seen {
					continue
				}
				visited[n] = struct{}{}
				next = append(next, n)
			}
		}
		frontier = next
	}
	return visited, nil
}

// adjacent returns ids connected to id by an edge in either direction.
func (g *Graph) adjacent(id string) ([]string, error) {
	rows, err := g.conn.Query(`
		SELECT to_doc_id FROM link WHERE from_doc_id = ?
		UNION
		SELECT from_doc_id FROM link WHERE to_doc_id = ?
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("graph: adjacency: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (g *Graph) checkDoc(docID string) error {
	var one int
	err := g.conn.QueryRow(`SELECT 1 FROM doc WHERE id = ?`, docID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("graph: doc %s: %w", docID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("graph: check doc: %w", err)
	}
	return nil
}

func (g *Graph) loadDocs(ids map[string]struct{}) ([]models.GraphDoc, error) {
	var out []models.GraphDoc
	for id := range ids {
		d, err := g.loadDoc(id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	// Deterministic order for callers and tests.
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (g *Graph) loadDocsOrdered(ids []string) ([]models.GraphDoc, error) {
	out := make([]models.GraphDoc, 0, len(ids))
	for _, id := range ids {
		d, err := g.loadDoc(id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (g *Graph) loadDoc(id string) (models.GraphDoc, error) {
	var d models.GraphDoc
	err := g.conn.QueryRow(`SELECT id, slug, title FROM doc WHERE id = ?`, id).
		Scan(&d.ID, &d.Slug, &d.Title)
	if err != nil {
		return d, fmt.Errorf("graph: load doc %s: %w", id, err)
	}
	return d, nil
}

func scanDocs(rows *sql.Rows) ([]models.GraphDoc, error) {
	defer rows.Close()
	var out []models.GraphDoc
	for rows.Next() {
		var d models.GraphDoc
		if err := rows.Scan(&d.ID, &d.Slug, &d.Title); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
