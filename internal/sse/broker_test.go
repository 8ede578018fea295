package sse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "client channel closed")
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestSubscribeReceivesDocEvents(t *testing.T) {
	b := NewBroker(time.Hour) // throttle graph events out of the way
	defer b.Close()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	assert.Equal(t, 1, b.ClientCount())

	b.PublishDocEvent("created", "intro")
	msg := recv(t, ch)
	assert.Contains(t, msg, "event: doc.created")
	assert.Contains(t, msg, `"slug":"intro"`)

	b.PublishDocEvent("updated", "intro")
	assert.Contains(t, recv(t, ch), "event: doc.updated")

	b.PublishDocEvent("deleted", "intro")
	assert.Contains(t, recv(t, ch), "event: doc.deleted")
}

func TestScanProgressEvent(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishScanProgress("job-1", 42)
	msg := recv(t, ch)
	assert.Contains(t, msg, "event: progress.scan")
	assert.Contains(t, msg, `"job_id":"job-1"`)
	assert.Contains(t, msg, `"files":42`)
}

func TestGraphEventsAreThrottled(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First doc event carries one graph.updated along with it.
	b.PublishDocEvent("created", "a")
	b.PublishDocEvent("updated", "a")
	b.PublishDocEvent("updated", "a")

	var msgs []string
	for i := 0; i < 4; i++ {
		msgs = append(msgs, recv(t, ch))
	}
	joined := strings.Join(msgs, "")
	assert.Equal(t, 1, strings.Count(joined, "event: graph.updated"),
		"within the throttle window only one graph event goes out")

	// Nothing further queued.
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.ClientCount())
}

func TestCloseStopsEverything(t *testing.T) {
	b := NewBroker(0)
	ch := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after close is a no-op, not a panic.
	b.PublishDocEvent("created", "x")
	b.PublishScanProgress("job", 1)
	assert.Equal(t, 0, b.ClientCount())

	ch2 := b.Subscribe()
	_, ok = <-ch2
	assert.False(t, ok)
}
