package engine

import (
	"fmt"

	"github.com/hearthside/scullery/internal/frame"
	"github.com/hearthside/scullery/internal/ir"
)

// Term is one slot in a pattern record: a literal value (which a concrete
// value must deep-equal), a variable (bind on first sight, constrain on
// reuse), or a nested record pattern applied to a nested object. The zero
// Term is invalid.
type Term struct {
	variable *frame.Var
	literal  ir.Value
	record   Record
	absent   bool
}

// Lit builds a literal term.
func Lit(v ir.Value) Term {
	return Term{literal: v}
}

// V builds a variable term.
func V(v *frame.Var) Term {
	return Term{variable: v}
}

// Rec builds a nested record term. Then-clauses use it to assemble a
// structured field out of bound variables.
func Rec(r Record) Term {
	return Term{record: r}
}

// Absent builds a term that requires its key to be missing from the
// concrete record. An action with an empty success output is matched by
// {error: Absent()} on the success path and {error: V(err)} on the error
// path; without the absence constraint both paths would match the error
// completion.
func Absent() Term {
	return Term{absent: true}
}

// IsVar reports whether the term is a variable placeholder.
func (t Term) IsVar() bool {
	return t.variable != nil
}

// IsAbsent reports whether the term is an absence constraint.
func (t Term) IsAbsent() bool {
	return t.absent
}

// IsRecord reports whether the term is a nested record pattern.
func (t Term) IsRecord() bool {
	return t.record != nil
}

// Record is a pattern over a keyed-parameter record. Keys absent from the
// pattern are ignored: a pattern is a sub-record constraint, not a
// full-record equality.
type Record map[string]Term

// ActionPattern is a template over a concept action's input and output,
// used both to match completed actions (when) and to instantiate new
// invocations (then).
type ActionPattern struct {
	Action ir.ActionRef
	Input  Record
	Output Record
}

// matchRecord unifies a pattern record against a concrete record under an
// existing frame. All-or-nothing: any failing key drops the whole match.
// A key named by the pattern but absent from the concrete record fails.
func matchRecord(pattern Record, concrete ir.Object, f frame.Frame) (frame.Frame, bool) {
	for key, term := range pattern {
		if term.IsAbsent() {
			if _, present := concrete[key]; present {
				return frame.Frame{}, false
			}
			continue
		}
		val, ok := concrete[key]
		if !ok {
			return frame.Frame{}, false
		}
		if term.IsVar() {
			next, ok := f.Bind(term.variable, val)
			if !ok {
				return frame.Frame{}, false
			}
			f = next
			continue
		}
		if term.IsRecord() {
			obj, ok := val.(ir.Object)
			if !ok {
				return frame.Frame{}, false
			}
			next, ok := matchRecord(term.record, obj, f)
			if !ok {
				return frame.Frame{}, false
			}
			f = next
			continue
		}
		if !ir.Equal(term.literal, val) {
			return frame.Frame{}, false
		}
	}
	return f, true
}

// matchAction unifies one action pattern against a realized completed
// action (its invocation input and completion output) under a frame.
func matchAction(p ActionPattern, inv ir.Invocation, comp ir.Completion, f frame.Frame) (frame.Frame, bool) {
	if p.Action != inv.Action {
		return frame.Frame{}, false
	}
	f, ok := matchRecord(p.Input, inv.Input, f)
	if !ok {
		return frame.Frame{}, false
	}
	return matchRecord(p.Output, comp.Output, f)
}

// instantiate substitutes a frame's bindings into a pattern record,
// producing a concrete input for a then-clause invocation. Every variable
// in the pattern must be bound; an unbound variable is an authoring error
// in the sync definition.
func instantiate(pattern Record, f frame.Frame) (ir.Object, error) {
	out := make(ir.Object, len(pattern))
	for key, term := range pattern {
		switch {
		case term.IsAbsent():
			return nil, fmt.Errorf("absence constraint on %q cannot be instantiated", key)
		case term.IsVar():
			val, ok := f.Get(term.variable)
			if !ok {
				return nil, fmt.Errorf("variable %q unbound at instantiation", term.variable.Name())
			}
			out[key] = val
		case term.IsRecord():
			nested, err := instantiate(term.record, f)
			if err != nil {
				return nil, err
			}
			out[key] = nested
		default:
			out[key] = term.literal
		}
	}
	return out, nil
}
