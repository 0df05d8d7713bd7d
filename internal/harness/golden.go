package harness

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/store"
)

// TraceSnapshot is the golden-file representation of a scenario run.
type TraceSnapshot struct {
	Scenario string             `json:"scenario"`
	Trace    []store.TraceEvent `json:"trace"`
}

// uuidPattern matches the document and session ids the concepts mint.
var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// NormalizeTrace rewrites every UUID-shaped string in the trace to a
// positional placeholder ("<id-001>", "<id-002>", ...) assigned in first
// appearance order. Everything else in the trace is already
// deterministic, so the normalized form is stable across runs.
func NormalizeTrace(trace []store.TraceEvent) []store.TraceEvent {
	ids := make(map[string]string)

	normalized := make([]store.TraceEvent, len(trace))
	for i, event := range trace {
		normalized[i] = store.TraceEvent{
			Seq:      event.Seq,
			Action:   event.Action,
			Input:    normalizeValue(event.Input, ids).(ir.Object),
			SyncName: event.SyncName,
		}
		if event.Output != nil {
			normalized[i].Output = normalizeValue(event.Output, ids).(ir.Object)
		}
	}
	return normalized
}

func normalizeValue(v ir.Value, ids map[string]string) ir.Value {
	switch val := v.(type) {
	case ir.String:
		if uuidPattern.MatchString(string(val)) {
			placeholder, ok := ids[string(val)]
			if !ok {
				placeholder = fmt.Sprintf("<id-%03d>", len(ids)+1)
				ids[string(val)] = placeholder
			}
			return ir.String(placeholder)
		}
		return val
	case ir.Array:
		out := make(ir.Array, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem, ids)
		}
		return out
	case ir.Object:
		// Sorted keys fix the placeholder numbering; map iteration order
		// would randomize it.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(ir.Object, len(val))
		for _, k := range keys {
			out[k] = normalizeValue(val[k], ids)
		}
		return out
	case nil:
		return ir.Object{}
	default:
		return val
	}
}

// RunWithGolden executes the scenario, fails the test on any step or
// assertion error, and compares the normalized trace against
// testdata/golden/{scenario.Name}.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}

	snapshot := TraceSnapshot{
		Scenario: scenario.Name,
		Trace:    NormalizeTrace(result.Trace),
	}
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("scenario %s: marshal snapshot: %v", scenario.Name, err)
	}
	raw = append(raw, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, raw)
}
