package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer tracks the number of completions processed per flow and
// enforces a maximum steps limit.
//
// Each flow has its own QuotaEnforcer instance. The quota is checked on
// every completion before evaluating sync rules.
//
// This prevents runaway flows where many distinct sync rules fire in
// sequence (linear explosion), as opposed to cyclic patterns caught by the
// repeat guard:
//   - Repeat guard: catches recursive patterns (A fires B fires A ...)
//   - Max-steps quota: catches linear explosions (A, B, C, ..., Z)
//
// Together they guarantee termination.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(flowToken string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			FlowToken: flowToken,
			Steps:     q.current,
			Limit:     q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a flow exceeds the max steps quota.
// Unlike a repeat-limit trip (which skips individual firings), quota
// exceeded terminates the entire flow.
type StepsExceededError struct {
	FlowToken string
	Steps     int
	Limit     int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded max steps quota: %d steps > %d limit",
		e.FlowToken, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
