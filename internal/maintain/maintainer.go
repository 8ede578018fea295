// Package maintain runs the single consumer of the store's change feed and
// keeps the full-text index and link graph in sync with the system of record.
package maintain

import (
	"log/slog"

	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/store"
)

// Notifier receives a callback after each change is applied to the derived
// caches, for event fan-out. May be nil.
type Notifier func(c store.Change)

// Maintainer drains the change feed in append order. A failure on one
// document is logged and skipped so a single bad row cannot wedge the feed.
type Maintainer struct {
	feed   *store.Feed
	index  *search.Index
	graph  *graph.Graph
	notify Notifier
	logger *slog.Logger

	done chan struct{}
}

// New wires a maintainer to the feed and the derived caches.
func New(feed *store.Feed, index *search.Index, g *graph.Graph, notify Notifier, logger *slog.Logger) *Maintainer {
	return &Maintainer{
		feed:   feed,
		index:  index,
		graph:  g,
		notify: notify,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine. It exits when the feed is closed
// and drained.
func (m *Maintainer) Start() {
	go func() {
		defer close(m.done)
		for {
			c, ok := m.feed.Next()
			if !ok {
				return
			}
			m.apply(c)
			if m.notify != nil {
				m.notify(c)
			}
			m.feed.Done()
		}
	}()
}

// Stop blocks until the consumer goroutine has exited. The store's Close
// must have been called first to close the feed.
func (m *Maintainer) Stop() {
	<-m.done
}

func (m *Maintainer) apply(c store.Change) {
	switch c.Op {
	case store.OpUpsert:
		if err := m.index.Upsert(c.DocID, c.RepoID, c.Slug, c.Title, c.Body); err != nil {
			m.logger.Warn("maintain: index upsert failed", "doc_id", c.DocID, "error", err)
		}
		if err := m.graph.UpdateLinks(c.DocID, c.RepoID, c.Body); err != nil {
			m.logger.Warn("maintain: graph update failed", "doc_id", c.DocID, "error", err)
		}
	case store.OpDelete:
		if err := m.index.Delete(c.DocID); err != nil {
			m.logger.Warn("maintain: index delete failed", "doc_id", c.DocID, "error", err)
		}
		if err := m.graph.DeleteLinks(c.DocID); err != nil {
			m.logger.Warn("maintain: graph delete failed", "doc_id", c.DocID, "error", err)
		}
	}
}
