package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines one behavioral test: a sequence of steps driven
// through the engine plus assertions over the resulting action log.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named
	// after it.
	Name string `yaml:"name"`

	// Description explains the behavior this scenario pins down.
	Description string `yaml:"description"`

	// LLMResponses scripts the language model, in consumption order.
	// Steps that never reach the model need no entries.
	LLMResponses []string `yaml:"llm_responses,omitempty"`

	// Setup steps run before the main flow. Same shape as Flow; kept
	// separate so a scenario reads as precondition then behavior.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the behavior under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the combined trace across all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one submission to the engine. Exactly one of Invoke or Request
// must be set.
type Step struct {
	// Invoke names a concept action to run directly, e.g.
	// "UserAuthentication.register".
	Invoke string `yaml:"invoke,omitempty"`

	// Args are the action's input record. String values of the form
	// "$name" are replaced with captured variables.
	Args map[string]any `yaml:"args,omitempty"`

	// Request is a route path, e.g. "/Recipe/addRecipe". The step is
	// recorded as a Requesting.request and the rule set produces the
	// response.
	Request string `yaml:"request,omitempty"`

	// Body is the request's JSON body. Same "$name" substitution as Args.
	Body map[string]any `yaml:"body,omitempty"`

	// Capture stores response fields as variables: output field name to
	// variable name.
	Capture map[string]string `yaml:"capture,omitempty"`

	// Expect is a subset match against the step's response. The special
	// value "$any" only requires the field to be present.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion validates the combined trace.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count.
	Type string `yaml:"type"`

	// Action names the action (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args is a subset match on the invocation input (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of completions (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected completion order (trace_order). Other
	// actions may appear between them.
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(&step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(&step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(&assertion); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s *Step) error {
	switch {
	case s.Invoke != "" && s.Request != "":
		return fmt.Errorf("invoke and request are mutually exclusive")
	case s.Invoke == "" && s.Request == "":
		return fmt.Errorf("either invoke or request is required")
	case s.Invoke != "" && !strings.Contains(s.Invoke, "."):
		return fmt.Errorf("invoke must be Concept.action, got %q", s.Invoke)
	case s.Request != "" && !strings.HasPrefix(s.Request, "/"):
		return fmt.Errorf("request must be a route path, got %q", s.Request)
	}
	return nil
}

func validateAssertion(a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("action is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("actions list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("action is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
