package engine

import "sync"

// RepeatGuard cuts off syncs that keep firing the same binding within one
// flow, the signature of a self-triggering cycle:
//
//	Recipe.addRecipe completes, sync fires RecipeScaler.scaleManually,
//	its completion matches the same sync's when again, and so on.
//
// The guard counts firings per (flow, sync, binding hash) and refuses
// further firings past the limit. It is deliberately a counter, not a
// seen-once set: the engine is stateless per event, and replaying the same
// completion legitimately fires the same (sync, binding) a second time.
// The limit only exists to bound genuinely unbounded self-triggering, so it
// defaults high (DefaultMaxRepeats) relative to any legitimate chain.
type RepeatGuard struct {
	mu     sync.Mutex
	limit  int
	counts map[string]map[string]int // flow token -> sync:binding -> firings
}

// NewRepeatGuard creates a guard allowing up to limit firings of the same
// (sync, binding) per flow.
func NewRepeatGuard(limit int) *RepeatGuard {
	return &RepeatGuard{
		limit:  limit,
		counts: make(map[string]map[string]int),
	}
}

// Allow records one firing of (sync, binding) in the flow and reports
// whether it is within the limit. The firing is counted even when refused,
// so diagnostics can see how far past the limit a cycle ran.
//
// Thread-safe, though in practice only the Run loop calls it.
func (g *RepeatGuard) Allow(flowToken, syncName, bindingHash string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	flow := g.counts[flowToken]
	if flow == nil {
		flow = make(map[string]int)
		g.counts[flowToken] = flow
	}

	key := syncName + ":" + bindingHash
	flow[key]++
	return flow[key] <= g.limit
}

// Count returns the recorded firings of (sync, binding) in the flow.
// Used for testing and introspection.
func (g *RepeatGuard) Count(flowToken, syncName, bindingHash string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	flow := g.counts[flowToken]
	if flow == nil {
		return 0
	}
	return flow[syncName+":"+bindingHash]
}

// Clear removes all history for a flow token. Called when a flow reaches a
// terminal state to prevent unbounded memory growth.
func (g *RepeatGuard) Clear(flowToken string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.counts, flowToken)
}

// FlowCount returns the number of flows with tracked history.
// Used for testing cleanup.
func (g *RepeatGuard) FlowCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.counts)
}
