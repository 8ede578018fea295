package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedPreservesAppendOrder(t *testing.T) {
	f := NewFeed()
	defer f.Close()

	f.Append(Change{Op: OpUpsert, DocID: "a", Body: "1"})
	f.Append(Change{Op: OpUpsert, DocID: "a", Body: "2"})
	f.Append(Change{Op: OpDelete, DocID: "a"})

	c, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "1", c.Body)
	f.Done()

	c, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, "2", c.Body)
	f.Done()

	c, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, OpDelete, c.Op)
	f.Done()
}

func TestFeedWaitBlocksUntilDrained(t *testing.T) {
	f := NewFeed()
	defer f.Close()

	f.Append(Change{Op: OpUpsert, DocID: "a"})

	done := make(chan struct{})
	go func() {
		f.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the change was processed")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := f.Next()
	require.True(t, ok)
	f.Done()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Done")
	}
}

func TestFeedCloseStopsConsumer(t *testing.T) {
	f := NewFeed()
	f.Append(Change{Op: OpUpsert, DocID: "a"})
	f.Close()

	// Entries appended before Close still drain.
	_, ok := f.Next()
	assert.True(t, ok)
	f.Done()

	_, ok = f.Next()
	assert.False(t, ok)
}
