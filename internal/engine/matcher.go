package engine

import (
	"github.com/hearthside/scullery/internal/frame"
	"github.com/hearthside/scullery/internal/store"
)

// anchored pairs an in-progress frame with whether it has consumed the
// triggering completion. Only anchored frames survive matchWhen: a sync
// fires for a completion only if at least one of its when-patterns matched
// that completion, never purely off old history.
type anchored struct {
	f        frame.Frame
	consumed bool
}

// matchWhen evaluates a conjunctive when-clause against a flow's completion
// history, producing the initial frame set for one trigger cycle.
//
// Each pattern in the clause may match any completed action in the history
// (the triggering completion is part of the history at evaluation time).
// Patterns are matched left to right; every pattern must match some record,
// and variables shared across patterns enforce equality constraints between
// the records they matched. A frame set is the cross product of consistent
// choices, deduplicated by binding hash: distinct anchor choices that land
// on identical bindings are one logical match, not two.
//
// Returns the empty set when the clause does not match - the sync is simply
// inert for this event.
func matchWhen(when []ActionPattern, history []store.CompletedAction, triggerCompletionID string) frame.Set {
	if len(when) == 0 {
		return frame.Set{}
	}

	live := []anchored{{f: frame.New()}}

	for _, pattern := range when {
		var next []anchored
		for _, a := range live {
			for _, rec := range history {
				f, ok := matchAction(pattern, rec.Invocation, rec.Completion, a.f)
				if !ok {
					continue
				}
				next = append(next, anchored{
					f:        f,
					consumed: a.consumed || rec.Completion.ID == triggerCompletionID,
				})
			}
		}
		if len(next) == 0 {
			return frame.Set{}
		}
		live = next
	}

	var frames []frame.Frame
	for _, a := range live {
		if a.consumed {
			frames = append(frames, a.f)
		}
	}
	return frame.NewSet(frames...).Dedupe()
}
