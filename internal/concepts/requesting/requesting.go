// Package requesting implements the Requesting concept, the ingress/egress
// boundary. The request action records an inbound HTTP call as a completed
// action so rules can match it; the respond action delivers the response
// payload back to the HTTP task waiting on the correlation handle.
package requesting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/engine"
	"github.com/hearthside/scullery/internal/ir"
)

// DefaultTimeout bounds how long Await blocks for a response. A request
// whose route has incomplete rule coverage would otherwise hang the client
// forever.
const DefaultTimeout = 10 * time.Second

// Concept correlates in-flight HTTP requests with the responses rules
// eventually produce. State is in-memory only; a pending request does not
// survive a restart, which matches HTTP semantics.
type Concept struct {
	mu      sync.Mutex
	waiters map[string]chan ir.Object
	timeout time.Duration
}

func New() *Concept {
	return &Concept{
		waiters: make(map[string]chan ir.Object),
		timeout: DefaultTimeout,
	}
}

// WithTimeout overrides the Await watchdog. Tests use a short bound.
func (c *Concept) WithTimeout(d time.Duration) *Concept {
	c.timeout = d
	return c
}

func (c *Concept) Name() string { return "Requesting" }

func (c *Concept) Actions() map[string]concept.Action {
	return map[string]concept.Action{
		"request": c.request,
		"respond": c.respond,
	}
}

func (c *Concept) Queries() map[string]concept.Query {
	return map[string]concept.Query{}
}

// request records an inbound call. It always succeeds: it is a recording
// action, not a business action. The input carries the route path and all
// body fields; the output carries the correlation handle later responds
// key on. The handle is the invocation's flow token, which the HTTP layer
// already holds from submitting the action, so it can Await without seeing
// this output.
// Input: {path, ...body}. Output: {request}.
func (c *Concept) request(ctx context.Context, _ ir.Object) ir.Object {
	handle := engine.FlowTokenFromContext(ctx)
	if handle == "" {
		handle = uuid.Must(uuid.NewV7()).String()
	}
	c.ensure(handle)
	return ir.Object{"request": ir.String(handle)}
}

// respond delivers a response payload to the task awaiting the handle.
// Input: {request, ...payload}. Output: {}.
// A handle with no waiter (already answered, timed out, or unknown) is
// logged and ignored; the first response wins.
func (c *Concept) respond(_ context.Context, input ir.Object) ir.Object {
	handle, _ := input["request"].(ir.String)

	payload := make(ir.Object, len(input))
	for k, v := range input {
		if k == "request" {
			continue
		}
		payload[k] = v
	}

	c.mu.Lock()
	ch, ok := c.waiters[string(handle)]
	c.mu.Unlock()

	if !ok {
		slog.Warn("response for unknown or abandoned request",
			"request", string(handle))
		return ir.Object{}
	}

	select {
	case ch <- payload:
	default:
		slog.Warn("request already answered; response dropped",
			"request", string(handle))
	}
	return ir.Object{}
}

// Await blocks until a respond fires for the handle, the watchdog expires,
// or the context is canceled. The HTTP layer calls it after submitting the
// request action; it is safe to call before that action has executed.
func (c *Concept) Await(ctx context.Context, handle string) (ir.Object, error) {
	ch := c.ensure(handle)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		c.abandon(handle)
		return payload, nil
	case <-timer.C:
		c.abandon(handle)
		return nil, fmt.Errorf("no response for request %q within %s", handle, c.timeout)
	case <-ctx.Done():
		c.abandon(handle)
		return nil, ctx.Err()
	}
}

// Pending reports the number of requests still awaiting a response.
func (c *Concept) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Concept) abandon(handle string) {
	c.mu.Lock()
	delete(c.waiters, handle)
	c.mu.Unlock()
}

// ensure returns the waiter channel for a handle, creating it on first
// sight. Both the request action and Await may be the first to see a
// handle; respond never is.
func (c *Concept) ensure(handle string) chan ir.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.waiters[handle]
	if !ok {
		ch = make(chan ir.Object, 1)
		c.waiters[handle] = ch
	}
	return ch
}
