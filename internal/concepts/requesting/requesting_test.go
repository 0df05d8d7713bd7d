package requesting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/scullery/internal/engine"
	"github.com/hearthside/scullery/internal/ir"
)

func TestRequestThenRespond_DeliversPayload(t *testing.T) {
	c := New()
	ctx := context.Background()

	out := c.request(ctx, ir.Object{"path": ir.String("/Recipe/addRecipe")})
	require.Contains(t, out, "request")
	handle := string(out["request"].(ir.String))

	done := make(chan ir.Object, 1)
	go func() {
		payload, err := c.Await(ctx, handle)
		require.NoError(t, err)
		done <- payload
	}()

	respOut := c.respond(ctx, ir.Object{
		"request": ir.String(handle),
		"recipe":  ir.String("recipe-1"),
	})
	assert.Equal(t, ir.Object{}, respOut)

	select {
	case payload := <-done:
		assert.Equal(t, ir.Object{"recipe": ir.String("recipe-1")}, payload)
	case <-time.After(time.Second):
		t.Fatal("awaiting task never received the response")
	}
}

func TestAwait_RespondBeforeAwaitStillDelivers(t *testing.T) {
	c := New()
	ctx := context.Background()

	out := c.request(ctx, ir.Object{"path": ir.String("/Recipe/addRecipe")})
	handle := string(out["request"].(ir.String))

	c.respond(ctx, ir.Object{
		"request": ir.String(handle),
		"error":   ir.String("Recipe must have at least one ingredient."),
	})

	payload, err := c.Await(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, ir.String("Recipe must have at least one ingredient."), payload["error"])
}

func TestAwait_WatchdogExpires(t *testing.T) {
	c := New().WithTimeout(20 * time.Millisecond)
	ctx := context.Background()

	out := c.request(ctx, ir.Object{"path": ir.String("/Recipe/addRecipe")})
	handle := string(out["request"].(ir.String))

	_, err := c.Await(ctx, handle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response")
	assert.Zero(t, c.Pending(), "abandoned request must not leak a waiter")
}

func TestAwait_ContextCanceled(t *testing.T) {
	c := New()

	out := c.request(context.Background(), ir.Object{"path": ir.String("/x")})
	handle := string(out["request"].(ir.String))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Await(ctx, handle)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwait_BeforeRequestActionExecutes(t *testing.T) {
	// The HTTP layer may start awaiting a flow token before the engine has
	// run the request action; the response must still arrive.
	c := New()
	ctx := context.Background()

	done := make(chan ir.Object, 1)
	go func() {
		payload, err := c.Await(ctx, "flow-7")
		require.NoError(t, err)
		done <- payload
	}()

	// Waiter exists as soon as Await registered it.
	require.Eventually(t, func() bool { return c.Pending() == 1 },
		time.Second, time.Millisecond)

	c.respond(ctx, ir.Object{"request": ir.String("flow-7"), "recipe": ir.String("r1")})

	select {
	case payload := <-done:
		assert.Equal(t, ir.String("r1"), payload["recipe"])
	case <-time.After(time.Second):
		t.Fatal("awaiting task never received the response")
	}
}

func TestRequest_UsesFlowTokenAsHandle(t *testing.T) {
	c := New()
	ctx := engine.WithFlowToken(context.Background(), "flow-42")

	out := c.request(ctx, ir.Object{"path": ir.String("/Recipe/addRecipe")})
	assert.Equal(t, ir.String("flow-42"), out["request"])
}

func TestRespond_FirstResponseWins(t *testing.T) {
	c := New()
	ctx := context.Background()

	out := c.request(ctx, ir.Object{"path": ir.String("/Recipe/addRecipe")})
	handle := string(out["request"].(ir.String))

	c.respond(ctx, ir.Object{"request": ir.String(handle), "recipe": ir.String("first")})
	// Second response has no waiter left; it must not block or panic.
	c.respond(ctx, ir.Object{"request": ir.String(handle), "recipe": ir.String("second")})

	payload, err := c.Await(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, ir.String("first"), payload["recipe"])
}
