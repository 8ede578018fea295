package store

import "sync"

// ChangeOp identifies the kind of document mutation.
type ChangeOp int

const (
	// OpUpsert covers both create and update; the carried body is the live body.
	OpUpsert ChangeOp = iota
	// OpDelete removes the document from every derived cache.
	OpDelete
)

// Change is one entry in the document change feed.
type Change struct {
	Op      ChangeOp
	DocID   string
	RepoID  string
	Slug    string
	Title   string
	Body    string
	Created bool // first version of a new document
}

// Feed is an append log of document changes with a single consumer cursor.
// Appends never block (the log grows as needed), so enqueueing under the
// store's write lock cannot stall writers; the consumer drains in append
// order, which preserves per-document write order.
type Feed struct {
	mu      sync.Mutex
	queue   []Change
	notify  chan struct{}
	pending int
	idle    *sync.Cond
	closed  bool
}

// NewFeed creates an empty change feed.
func NewFeed() *Feed {
	f := &Feed{notify: make(chan struct{}, 1)}
	f.idle = sync.NewCond(&f.mu)
	return f
}

// Append adds a change to the log.
func (f *Feed) Append(c Change) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, c)
	f.pending++
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a change is available or the feed is closed.
// The second return is false once the feed is closed and drained.
func (f *Feed) Next() (Change, bool) {
	for {
		f.mu.Lock()
		if len(f.queue) > 0 {
			c := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return c, true
		}
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return Change{}, false
		}
		<-f.notify
	}
}

// Done marks one change as fully processed by the consumer.
func (f *Feed) Done() {
	f.mu.Lock()
	if f.pending > 0 {
		f.pending--
	}
	if f.pending == 0 {
		f.idle.Broadcast()
	}
	f.mu.Unlock()
}

// Wait blocks until every appended change has been processed. Used by
// callers (and tests) that need read-after-write visibility in the index.
func (f *Feed) Wait() {
	f.mu.Lock()
	for f.pending > 0 {
		f.idle.Wait()
	}
	f.mu.Unlock()
}

// Close stops the feed. Pending entries may still be drained by Next.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.pending = 0
	f.idle.Broadcast()
	f.mu.Unlock()
	close(f.notify)
}
