package concept

import (
	"fmt"
	"log/slog"
	"sort"

	"context"

	"github.com/hearthside/scullery/internal/ir"
)

// Registry is the explicit registration table mapping (concept, member) to
// handler functions. It is built at startup by enumerating each concept's
// action and query maps - no runtime reflection over methods.
//
// The registry is immutable after construction; reads are safe from any
// goroutine.
type Registry struct {
	actions map[ir.ActionRef]Action
	queries map[ir.ActionRef]Query
}

// NewRegistry builds a registry from the given concepts.
// Duplicate concept names and query names missing the underscore prefix
// are registration errors.
func NewRegistry(concepts ...Concept) (*Registry, error) {
	r := &Registry{
		actions: make(map[ir.ActionRef]Action),
		queries: make(map[ir.ActionRef]Query),
	}

	seen := make(map[string]bool, len(concepts))
	for _, c := range concepts {
		name := c.Name()
		if seen[name] {
			return nil, fmt.Errorf("duplicate concept name: %s", name)
		}
		seen[name] = true

		for action, fn := range c.Actions() {
			ref := ir.ActionRef(name + "." + action)
			if ref.IsQuery() {
				return nil, fmt.Errorf("action %s must not use the query prefix", ref)
			}
			r.actions[ref] = fn
		}
		for query, fn := range c.Queries() {
			ref := ir.ActionRef(name + "." + query)
			if !ref.IsQuery() {
				return nil, fmt.Errorf("query %s must use the underscore prefix", ref)
			}
			r.queries[ref] = fn
		}
	}

	return r, nil
}

// Invoke runs the named action and returns its output record.
//
// A panic inside an action is an engine-facing defect in that concept; it
// is recovered, logged, and converted into an {error} output so the sync
// engine only ever sees completions.
func (r *Registry) Invoke(ctx context.Context, action ir.ActionRef, input ir.Object) (output ir.Object) {
	fn, ok := r.actions[action]
	if !ok {
		slog.Error("unknown action invoked", "action", action)
		return ErrorOutput(fmt.Sprintf("unknown action: %s", action))
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("action panicked",
				"action", action,
				"panic", rec,
			)
			output = ErrorOutput("An internal server error occurred.")
		}
	}()

	output = fn(ctx, input)
	if output == nil {
		output = ir.Object{}
	}

	slog.Debug("action completed",
		"action", action,
		"is_error", output["error"] != nil,
	)
	return output
}

// RunQuery runs the named query and returns its rows.
func (r *Registry) RunQuery(ctx context.Context, query ir.ActionRef, input ir.Object) ([]ir.Object, error) {
	fn, ok := r.queries[query]
	if !ok {
		return nil, fmt.Errorf("unknown query: %s", query)
	}
	return fn(ctx, input)
}

// HasAction reports whether the registry knows the given action.
func (r *Registry) HasAction(action ir.ActionRef) bool {
	_, ok := r.actions[action]
	return ok
}

// HasQuery reports whether the registry knows the given query.
func (r *Registry) HasQuery(query ir.ActionRef) bool {
	_, ok := r.queries[query]
	return ok
}

// Refs returns every registered action and query reference, sorted.
// Used by the HTTP layer to enumerate passthrough routes.
func (r *Registry) Refs() []ir.ActionRef {
	refs := make([]ir.ActionRef, 0, len(r.actions)+len(r.queries))
	for ref := range r.actions {
		refs = append(refs, ref)
	}
	for ref := range r.queries {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}
