package engine

import (
	"sync"

	"github.com/hearthside/scullery/internal/ir"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeInvocation represents an action invocation to execute.
	EventTypeInvocation EventType = iota + 1
	// EventTypeCompletion represents an action completion to evaluate
	// sync rules against.
	EventTypeCompletion
)

// Event wraps invocations and completions for the event queue.
type Event struct {
	Type       EventType
	Invocation *ir.Invocation
	Completion *ir.Completion
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded to allow cascading sync firings to enqueue
// arbitrarily many generated invocations without blocking. Runaway growth is
// bounded by the per-flow quota, not by the queue.
//
// Thread-safety is provided for external enqueuing (HTTP handlers) while the
// engine's Run loop dequeues. The signal channel enables context-aware
// waiting in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered size 1; coalesces wakeups
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the Event's pointers become collectible; the
	// underlying array otherwise retains them until reallocation.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select alongside ctx.Done().
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
