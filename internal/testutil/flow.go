package testutil

import (
	"fmt"
	"sync"
)

// SequentialFlowGenerator returns "flow-001", "flow-002", ... in order.
//
// Scenario runs use it so each step's flow token is predictable and the
// resulting trace is byte-identical across runs.
type SequentialFlowGenerator struct {
	mu sync.Mutex
	n  int
}

// NewSequentialFlowGenerator creates a generator starting at flow-001.
func NewSequentialFlowGenerator() *SequentialFlowGenerator {
	return &SequentialFlowGenerator{}
}

// Generate returns the next flow token.
// Implements engine.FlowTokenGenerator.
func (g *SequentialFlowGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("flow-%03d", g.n)
}
