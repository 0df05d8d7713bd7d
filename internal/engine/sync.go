package engine

import (
	"context"
	"fmt"
)

// WhereFunc is a sync's optional refinement stage. It receives the frames
// produced by the when-clause and narrows or enriches them through queries
// and filters. Returning an error (or panicking) is a defect in that one
// sync; the engine isolates it and other syncs still evaluate.
type WhereFunc func(ctx context.Context, fr *Frames) error

// Sync is one declarative reactive rule: when a completed action matches
// the When patterns, the surviving frames (after Where) each fire every
// Then pattern as a new invocation.
//
// A sync is a pure declaration. Variables are allocated per sync with
// frame.NewVar, so identical display names in different syncs never
// collide.
type Sync struct {
	Name  string
	When  []ActionPattern
	Where WhereFunc // optional
	Then  []ActionPattern
}

// validate checks structural requirements at registration time.
func (s Sync) validate() error {
	if s.Name == "" {
		return fmt.Errorf("sync has no name")
	}
	if len(s.When) == 0 {
		return fmt.Errorf("sync %s: empty when-clause", s.Name)
	}
	if len(s.Then) == 0 {
		return fmt.Errorf("sync %s: empty then-clause", s.Name)
	}
	for _, p := range s.When {
		if p.Action.IsQuery() {
			return fmt.Errorf("sync %s: when-clause matches query %s; only actions complete as events", s.Name, p.Action)
		}
	}
	for _, p := range s.Then {
		if p.Action.IsQuery() {
			return fmt.Errorf("sync %s: then-clause invokes query %s; queries belong in where", s.Name, p.Action)
		}
		if len(p.Output) != 0 {
			return fmt.Errorf("sync %s: then-clause pattern for %s constrains output; then instantiates inputs only", s.Name, p.Action)
		}
	}
	return nil
}
