// Package concept defines the contract every concept module satisfies and
// the registry that dispatches to them.
//
// A concept is a named, self-contained state+behavior unit exposing actions
// (mutating) and queries (read-only, underscore-prefixed names). Actions
// take a single keyed-parameter record and return either a success record
// or an {error} record: business failures are data, not Go errors. Queries
// return zero or more rows; absence is an empty result, never an error
// record.
package concept

import (
	"context"

	"github.com/hearthside/scullery/internal/ir"
)

// Action is a mutating concept operation. Preconditions that fail produce
// an {error} output; the returned record is never nil.
type Action func(ctx context.Context, input ir.Object) ir.Object

// Query is a read-only concept operation returning zero or more rows.
// The error return is for infrastructure failures (datastore down), never
// for business-level absence.
type Query func(ctx context.Context, input ir.Object) ([]ir.Object, error)

// Concept is an independently defined state+behavior module.
type Concept interface {
	// Name returns the concept's registered name, e.g. "Recipe".
	Name() string
	// Actions returns the concept's actions keyed by action name.
	Actions() map[string]Action
	// Queries returns the concept's queries keyed by query name
	// (including the underscore prefix).
	Queries() map[string]Query
}

// ErrorOutput builds the {error} record every concept uses for business
// failures.
func ErrorOutput(msg string) ir.Object {
	return ir.Object{"error": ir.String(msg)}
}
