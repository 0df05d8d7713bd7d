// Package frame provides the sync engine's unit of partial-binding state:
// variables, frames, and frame sets.
//
// A Frame maps logical variables to concrete values. A Set is an ordered
// sequence of frames representing all currently-live partial matches -
// semantically a disjunction of independent binding environments. Frames
// are created when a sync's when-clause matches, refined and forked by
// where-clause queries, and consumed when the then-clause fires. They never
// outlive one trigger cycle.
package frame

import (
	"github.com/hearthside/scullery/internal/ir"
)

// Var is an opaque variable identity. Identity is pointer identity: two
// vars with the same display name declared by different syncs never
// collide. Allocate vars with NewVar, once per sync declaration.
type Var struct {
	name string
}

// NewVar allocates a fresh variable with the given display name.
func NewVar(name string) *Var {
	return &Var{name: name}
}

// Name returns the display name. Only used for diagnostics and binding
// hashes; never for identity.
func (v *Var) Name() string {
	return v.name
}

// Frame is one partial variable-binding environment.
//
// Frames are immutable per step: Bind and Extend return a copy, leaving the
// receiver untouched, so forked lineages never share mutable state. A
// variable bound in a frame never rebinds to a conflicting value within
// that frame's lineage.
type Frame struct {
	bindings map[*Var]ir.Value
}

// New returns an empty frame.
func New() Frame {
	return Frame{bindings: map[*Var]ir.Value{}}
}

// Get returns the value bound to v, if any.
func (f Frame) Get(v *Var) (ir.Value, bool) {
	val, ok := f.bindings[v]
	return val, ok
}

// Bind returns a copy of the frame with v bound to val.
//
// If v is already bound, the existing binding is constrained: binding to an
// equal value returns the frame unchanged, binding to a conflicting value
// fails. A failed bind means the frame drops out of the match.
func (f Frame) Bind(v *Var, val ir.Value) (Frame, bool) {
	if existing, ok := f.bindings[v]; ok {
		if ir.Equal(existing, val) {
			return f, true
		}
		return Frame{}, false
	}
	return f.extend(v, val), true
}

// extend copies the frame and adds one binding. Callers must have checked
// that v is unbound.
func (f Frame) extend(v *Var, val ir.Value) Frame {
	next := make(map[*Var]ir.Value, len(f.bindings)+1)
	for k, existing := range f.bindings {
		next[k] = existing
	}
	next[v] = val
	return Frame{bindings: next}
}

// Len returns the number of bound variables.
func (f Frame) Len() int {
	return len(f.bindings)
}

// Bindings returns the frame's bindings keyed by variable display name.
// Used for binding hashes and trace output.
func (f Frame) Bindings() ir.Object {
	out := make(ir.Object, len(f.bindings))
	for v, val := range f.bindings {
		out[v.name] = val
	}
	return out
}

// Set is an ordered sequence of frames. The zero value is an empty set.
// An empty set means "no live matches": a sync whose frames all drop out
// simply does not fire, which is how existential filtering fails closed.
type Set struct {
	frames []Frame
}

// NewSet builds a set from frames in order.
func NewSet(frames ...Frame) Set {
	return Set{frames: frames}
}

// Append returns a set with the given frames added at the end.
func (s Set) Append(frames ...Frame) Set {
	combined := make([]Frame, 0, len(s.frames)+len(frames))
	combined = append(combined, s.frames...)
	combined = append(combined, frames...)
	return Set{frames: combined}
}

// Len returns the number of live frames.
func (s Set) Len() int {
	return len(s.frames)
}

// Empty reports whether no frames are live.
func (s Set) Empty() bool {
	return len(s.frames) == 0
}

// Frames returns the underlying frames in order. The slice is shared;
// callers must not mutate it.
func (s Set) Frames() []Frame {
	return s.frames
}

// Filter returns the subset of frames for which keep returns true,
// preserving order.
func (s Set) Filter(keep func(Frame) bool) Set {
	var kept []Frame
	for _, f := range s.frames {
		if keep(f) {
			kept = append(kept, f)
		}
	}
	return Set{frames: kept}
}

// Dedupe returns the set with frames carrying identical bindings removed,
// keeping first occurrences. Multi-anchor matching can produce the same
// logical frame twice; firing it twice would double consequent actions.
func (s Set) Dedupe() Set {
	seen := make(map[string]bool, len(s.frames))
	var kept []Frame
	for _, f := range s.frames {
		hash, err := ir.BindingHash(f.Bindings())
		if err != nil {
			// Unhashable bindings cannot collide; keep the frame.
			kept = append(kept, f)
			continue
		}
		if seen[hash] {
			continue
		}
		seen[hash] = true
		kept = append(kept, f)
	}
	return Set{frames: kept}
}
