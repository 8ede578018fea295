// Package testutil provides shared test helpers for setting up stores and
// the derived-cache pipeline.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/maintain"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/store"
)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLogger returns a quiet structured logger for tests.
func TestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestCore creates a store with the full derived-cache pipeline running:
// search index, link graph, and the maintenance worker consuming the change
// feed. Call db.Feed().Wait() for read-after-write visibility.
func TestCore(t *testing.T) (*store.DB, *search.Index, *graph.Graph) {
	t.Helper()
	db := TestDB(t)
	index, err := search.New(db.Conn())
	if err != nil {
		t.Fatal(err)
	}
	g := graph.New(db.Conn())
	m := maintain.New(db.Feed(), index, g, nil, TestLogger(t))
	m.Start()
	t.Cleanup(func() {
		db.Close()
		m.Stop()
	})
	return db, index, g
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
