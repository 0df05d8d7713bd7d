package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/scullery/internal/ir"
)

func invEvent(id string) Event {
	return Event{Type: EventTypeInvocation, Invocation: &ir.Invocation{ID: id}}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	assert.True(t, q.Enqueue(invEvent("a")))
	assert.True(t, q.Enqueue(invEvent("b")))
	assert.True(t, q.Enqueue(invEvent("c")))
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, e.Invocation.ID)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_EnqueueAfterClose(t *testing.T) {
	q := newEventQueue()
	q.Close()
	assert.False(t, q.Enqueue(invEvent("a")))
}

func TestEventQueue_CloseIsIdempotent(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close() // must not panic on double close
}

func TestEventQueue_SignalCoalesces(t *testing.T) {
	q := newEventQueue()

	q.Enqueue(invEvent("a"))
	q.Enqueue(invEvent("b"))

	// Both events are dequeueable even though the buffered signal channel
	// coalesced the two wakeups into one.
	<-q.Wait()
	_, ok := q.TryDequeue()
	require.True(t, ok)
	_, ok = q.TryDequeue()
	require.True(t, ok)
}

func TestEventQueue_WaitClosedOnClose(t *testing.T) {
	q := newEventQueue()
	q.Close()

	select {
	case <-q.Wait():
	default:
		t.Fatal("Wait channel should be closed after Close")
	}
}
