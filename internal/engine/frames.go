package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/frame"
	"github.com/hearthside/scullery/internal/ir"
)

// queryConcurrency bounds how many per-frame refinement queries run at once
// within a single QueryAsync stage.
const queryConcurrency = 8

// Frames is the where-stage refinement pipeline handed to a sync's Where
// function. It wraps the live frame set and the concept registry, and
// exposes the two refinement operations: QueryAsync (query the concepts,
// fork per row, drop frames with no rows) and Filter (predicate over a
// frame).
//
// A Where function threads the set through successive stages; each stage
// typically depends on bindings produced by the previous one (resolve
// session, then resolve the resource owner from the session's user). The
// empty set doubles as "fail closed": a stage that cannot establish the
// required facts suppresses the then-clause without a separate error
// channel.
type Frames struct {
	registry *concept.Registry
	set      frame.Set
}

// NewFrames wraps a frame set for refinement against a registry.
func NewFrames(registry *concept.Registry, set frame.Set) *Frames {
	return &Frames{registry: registry, set: set}
}

// Set returns the current frame set.
func (fr *Frames) Set() frame.Set {
	return fr.set
}

// Len returns the number of live frames.
func (fr *Frames) Len() int {
	return fr.set.Len()
}

// Branch returns an independent pipeline over the same registry and the
// current set. Stages run on the branch do not affect the receiver; a Where
// function probes a branch and then decides which frames the original
// keeps.
func (fr *Frames) Branch() *Frames {
	return &Frames{registry: fr.registry, set: fr.set}
}

// Replace swaps in a new live set.
func (fr *Frames) Replace(set frame.Set) {
	fr.set = set
}

// Clear drops every frame, suppressing the then-clause.
func (fr *Frames) Clear() {
	fr.set = frame.NewSet()
}

// Filter keeps only frames satisfying the predicate. Used for business
// rules that need no further query, like comparing two bound variables.
func (fr *Frames) Filter(keep func(frame.Frame) bool) *Frames {
	fr.set = fr.set.Filter(keep)
	return fr
}

// QueryAsync refines every live frame through a concept query.
//
// For each frame: bound variables are substituted into the query input, the
// query runs against the registry, and every returned row forks a new frame
// binding the output spec's variables to fields of that row. A frame whose
// query returns zero rows contributes zero output frames - it is dropped,
// which implements existential filtering.
//
// Per-frame queries execute concurrently, but results are merged in input
// order and each output frame descends only from its own input frame;
// bindings never cross between unrelated frames. A missing output field or
// a conflicting rebind drops just the offending fork.
//
// Infrastructure errors (datastore down) abort the whole stage; business
// absence is an empty row set, not an error.
func (fr *Frames) QueryAsync(ctx context.Context, query ir.ActionRef, input Record, output map[string]*frame.Var) error {
	if !query.IsQuery() {
		return fmt.Errorf("queryAsync: %s is not a query", query)
	}

	in := fr.set.Frames()
	forked := make([][]frame.Frame, len(in))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queryConcurrency)

	for i, f := range in {
		g.Go(func() error {
			queryInput, err := instantiate(input, f)
			if err != nil {
				return fmt.Errorf("queryAsync %s: %w", query, err)
			}

			rows, err := fr.registry.RunQuery(gctx, query, queryInput)
			if err != nil {
				return fmt.Errorf("queryAsync %s: %w", query, err)
			}

			var out []frame.Frame
			for _, row := range rows {
				child := f
				ok := true
				for field, v := range output {
					val, present := row[field]
					if !present {
						ok = false
						break
					}
					child, ok = child.Bind(v, val)
					if !ok {
						break
					}
				}
				if ok {
					out = append(out, child)
				}
			}
			forked[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var merged []frame.Frame
	for _, out := range forked {
		merged = append(merged, out...)
	}
	fr.set = frame.NewSet(merged...)
	return nil
}
