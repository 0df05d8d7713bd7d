package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/concepts/recipe"
	"github.com/hearthside/scullery/internal/concepts/requesting"
	"github.com/hearthside/scullery/internal/concepts/scaler"
	"github.com/hearthside/scullery/internal/concepts/tips"
	"github.com/hearthside/scullery/internal/concepts/userauth"
	"github.com/hearthside/scullery/internal/docstore"
	"github.com/hearthside/scullery/internal/engine"
	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/llm"
	"github.com/hearthside/scullery/internal/store"
	"github.com/hearthside/scullery/internal/syncs"
	"github.com/hearthside/scullery/internal/testutil"
)

// scenarioEpoch is the fixed wall-clock start for every run.
var scenarioEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Result is the outcome of one scenario run.
type Result struct {
	Pass   bool
	Errors []string
	Steps  []StepResult
	Trace  []store.TraceEvent
}

// StepResult records one step's flow token and response record.
type StepResult struct {
	FlowToken string
	Response  ir.Object
}

// AddError records a failure message.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Run executes a scenario against a fresh application and returns the
// result. Every step runs to quiescence in its own flow before the next
// step starts.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	logStore, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open action log: %w", err)
	}
	defer logStore.Close()

	docs, err := docstore.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	defer docs.Close()

	wall := testutil.NewWallClock(scenarioEpoch, time.Second)
	scripted := &llm.Scripted{Responses: scenario.LLMResponses}

	req := requesting.New().WithTimeout(time.Second)
	recipes := recipe.New(docs)
	registry, err := concept.NewRegistry(
		req,
		userauth.New(docs).WithClock(wall.Now),
		recipes,
		scaler.New(docs, recipes, scripted).WithClock(wall.Now),
		tips.New(docs, scripted).WithClock(wall.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	eng, err := engine.New(logStore, registry, syncs.All(), testutil.NewSequentialFlowGenerator())
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	result := &Result{}
	vars := make(map[string]ir.Value)

	steps := make([]Step, 0, len(scenario.Setup)+len(scenario.Flow))
	steps = append(steps, scenario.Setup...)
	steps = append(steps, scenario.Flow...)

	for i, step := range steps {
		stepResult, err := runStep(ctx, eng, req, logStore, step, vars, result)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, stepResult)
	}

	trace, err := collectTrace(ctx, logStore, len(result.Steps))
	if err != nil {
		return nil, err
	}
	result.Trace = trace

	for i, assertion := range scenario.Assertions {
		if msg := evaluateAssertion(assertion, trace); msg != "" {
			result.AddError("assertion %d (%s): %s", i, assertion.Type, msg)
		}
	}

	result.Pass = len(result.Errors) == 0
	return result, nil
}

// runStep submits one step and collects its response. Mismatched expect
// clauses land in result.Errors; infrastructure failures return an error.
func runStep(
	ctx context.Context,
	eng *engine.Engine,
	req *requesting.Concept,
	logStore *store.Store,
	step Step,
	vars map[string]ir.Value,
	result *Result,
) (StepResult, error) {
	var response ir.Object
	var flow string

	if step.Request != "" {
		body, err := buildInput(step.Body, vars)
		if err != nil {
			return StepResult{}, err
		}
		body["path"] = ir.String(step.Request)

		flowToken, ok := eng.Submit("Requesting.request", body)
		if !ok {
			return StepResult{}, fmt.Errorf("engine rejected request %s", step.Request)
		}
		flow = flowToken
		if err := eng.Drain(ctx); err != nil {
			return StepResult{}, fmt.Errorf("engine failed: %w", err)
		}

		response, err = req.Await(ctx, flow)
		if err != nil {
			return StepResult{}, fmt.Errorf("request %s produced no response: %w", step.Request, err)
		}
	} else {
		args, err := buildInput(step.Args, vars)
		if err != nil {
			return StepResult{}, err
		}

		action := ir.ActionRef(step.Invoke)
		flowToken, ok := eng.Submit(action, args)
		if !ok {
			return StepResult{}, fmt.Errorf("engine rejected invocation %s", step.Invoke)
		}
		flow = flowToken
		if err := eng.Drain(ctx); err != nil {
			return StepResult{}, fmt.Errorf("engine failed: %w", err)
		}

		history, err := logStore.ReadFlowHistory(ctx, flow)
		if err != nil {
			return StepResult{}, err
		}
		for _, rec := range history {
			if rec.Invocation.Action == action {
				response = rec.Completion.Output
				break
			}
		}
		if response == nil {
			return StepResult{}, fmt.Errorf("invocation %s never completed", step.Invoke)
		}
	}

	for outputField, varName := range step.Capture {
		val, ok := response[outputField]
		if !ok {
			return StepResult{}, fmt.Errorf("capture: response has no field %q (response: %v)", outputField, response)
		}
		vars[varName] = val
	}

	checkExpect(step, response, result)
	return StepResult{FlowToken: flow, Response: response}, nil
}

// checkExpect does a subset match of step.Expect against the response.
func checkExpect(step Step, response ir.Object, result *Result) {
	for key, raw := range step.Expect {
		actual, ok := response[key]
		if !ok {
			result.AddError("expect %q: field missing from response %v", key, response)
			continue
		}
		if raw == "$any" {
			continue
		}
		want, err := ir.FromGo(raw)
		if err != nil {
			result.AddError("expect %q: %v", key, err)
			continue
		}
		if !ir.Equal(want, actual) {
			result.AddError("expect %q: want %v, got %v", key, want, actual)
		}
	}
}

// buildInput converts a YAML map to a record, substituting "$name"
// strings with captured variables.
func buildInput(raw map[string]any, vars map[string]ir.Value) (ir.Object, error) {
	substituted, err := substitute(raw, vars)
	if err != nil {
		return nil, err
	}
	val, err := ir.FromGo(substituted)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	obj, ok := val.(ir.Object)
	if !ok {
		obj = ir.Object{}
	}
	return obj, nil
}

func substitute(v any, vars map[string]ir.Value) (any, error) {
	switch val := v.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		if len(val) > 1 && val[0] == '$' {
			name := val[1:]
			bound, ok := vars[name]
			if !ok {
				return nil, fmt.Errorf("unknown variable $%s", name)
			}
			return bound, nil
		}
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			sub, err := substitute(elem, vars)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			sub, err := substitute(elem, vars)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return val, nil
	}
}

// collectTrace concatenates the traces of flow-001 .. flow-N in order.
func collectTrace(ctx context.Context, logStore *store.Store, stepCount int) ([]store.TraceEvent, error) {
	var trace []store.TraceEvent
	for i := 1; i <= stepCount; i++ {
		flow := fmt.Sprintf("flow-%03d", i)
		events, err := logStore.ReadTrace(ctx, flow)
		if err != nil {
			return nil, fmt.Errorf("read trace for %s: %w", flow, err)
		}
		trace = append(trace, events...)
	}
	return trace, nil
}
