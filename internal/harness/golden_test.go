package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/store"
)

func TestNormalizeTrace_StableIDPlaceholders(t *testing.T) {
	uuid1 := "0192d7a1-0000-7000-8000-000000000001"
	uuid2 := "0192d7a1-0000-7000-8000-000000000002"

	trace := []store.TraceEvent{
		{
			Seq:    2,
			Action: "UserAuthentication.login",
			Input:  ir.Object{"username": ir.String("alice")},
			Output: ir.Object{"user": ir.String(uuid1), "sessionId": ir.String(uuid2)},
		},
		{
			Seq:    4,
			Action: "UserAuthentication._noop",
			Input:  ir.Object{"user": ir.String(uuid1)},
		},
	}

	normalized := NormalizeTrace(trace)

	// Keys are visited in sorted order, so sessionId is seen before user.
	assert.Equal(t, ir.String("<id-002>"), normalized[0].Output["user"])
	assert.Equal(t, ir.String("<id-001>"), normalized[0].Output["sessionId"])
	// The same id gets the same placeholder everywhere.
	assert.Equal(t, ir.String("<id-002>"), normalized[1].Input["user"])
	// Non-id strings pass through.
	assert.Equal(t, ir.String("alice"), normalized[0].Input["username"])
	// The source trace is untouched.
	assert.Equal(t, ir.String(uuid1), trace[0].Output["user"])
}

func TestRunWithGolden_RegisterFlow(t *testing.T) {
	RunWithGolden(t, &Scenario{
		Name:        "register-flow",
		Description: "a single registration produces one invocation and one completion",
		Flow: []Step{{
			Invoke: "UserAuthentication.register",
			Args:   map[string]any{"username": "alice", "password": "hunter2-long"},
		}},
	})
}
