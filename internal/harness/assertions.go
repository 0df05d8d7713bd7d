package harness

import (
	"fmt"
	"strings"

	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/store"
)

// evaluateAssertion checks one assertion against the combined trace.
// Returns an empty string on success, a failure message otherwise.
func evaluateAssertion(a Assertion, trace []store.TraceEvent) string {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(a, trace)
	case AssertTraceOrder:
		return assertTraceOrder(a, trace)
	case AssertTraceCount:
		return assertTraceCount(a, trace)
	default:
		return fmt.Sprintf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks the action completed at least once, with a
// subset match on its input when args are given.
func assertTraceContains(a Assertion, trace []store.TraceEvent) string {
	var sawAction bool
	for _, event := range actionEvents(trace) {
		if string(event.Action) != a.Action {
			continue
		}
		sawAction = true
		if matchesSubset(a.Args, event.Input) {
			return ""
		}
	}
	if sawAction {
		return fmt.Sprintf("action %s completed but no invocation matched args %v", a.Action, a.Args)
	}
	return fmt.Sprintf("action %s never completed", a.Action)
}

// assertTraceOrder checks the listed actions completed in the given
// relative order. Other actions may appear in between.
func assertTraceOrder(a Assertion, trace []store.TraceEvent) string {
	next := 0
	for _, event := range actionEvents(trace) {
		if next < len(a.Actions) && string(event.Action) == a.Actions[next] {
			next++
		}
	}
	if next < len(a.Actions) {
		return fmt.Sprintf("expected order [%s]; stopped waiting for %s",
			strings.Join(a.Actions, ", "), a.Actions[next])
	}
	return ""
}

// assertTraceCount checks the action completed exactly Count times.
func assertTraceCount(a Assertion, trace []store.TraceEvent) string {
	n := 0
	for _, event := range actionEvents(trace) {
		if string(event.Action) == a.Action {
			n++
		}
	}
	if n != a.Count {
		return fmt.Sprintf("action %s completed %d time(s), want %d", a.Action, n, a.Count)
	}
	return ""
}

// actionEvents filters out sync-firing entries, leaving completed actions.
func actionEvents(trace []store.TraceEvent) []store.TraceEvent {
	var events []store.TraceEvent
	for _, event := range trace {
		if event.SyncName == "" {
			events = append(events, event)
		}
	}
	return events
}

// matchesSubset reports whether every field of want equals the matching
// field of got. A nil want matches anything.
func matchesSubset(want map[string]any, got ir.Object) bool {
	for key, raw := range want {
		expected, err := ir.FromGo(raw)
		if err != nil {
			return false
		}
		actual, ok := got[key]
		if !ok || !ir.Equal(expected, actual) {
			return false
		}
	}
	return true
}
