package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a defect or guard trip detected during engine
// execution, as opposed to business {error} records, which are ordinary
// completion data the engine never interprets.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the affected flow.
	FlowToken string

	// SyncName identifies the sync rule, when one is involved.
	SyncName string

	// BindingHash identifies the specific frame binding, for repeat-limit
	// errors.
	BindingHash string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeRepeatLimit indicates the same (sync, binding) fired more
	// times in one flow than the repeat limit allows.
	ErrCodeRepeatLimit RuntimeErrorCode = "REPEAT_LIMIT"

	// ErrCodeQuotaExceeded indicates the flow exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeMissingAction indicates a then-clause references an action
	// absent from the registry.
	ErrCodeMissingAction RuntimeErrorCode = "MISSING_ACTION"

	// ErrCodeUnboundVariable indicates a then-clause pattern used a
	// variable no when or where stage bound (an authoring error).
	ErrCodeUnboundVariable RuntimeErrorCode = "UNBOUND_VARIABLE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.FlowToken != "" && e.SyncName != "" {
		return fmt.Sprintf("%s: %s (flow=%s, sync=%s)", e.Code, e.Message, e.FlowToken, e.SyncName)
	}
	if e.FlowToken != "" {
		return fmt.Sprintf("%s: %s (flow=%s)", e.Code, e.Message, e.FlowToken)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRepeatLimitError returns true if the error is a repeat-limit trip.
// Uses errors.As to handle wrapped errors.
func IsRepeatLimitError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRepeatLimit
	}
	return false
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// NewRepeatLimitError creates a RuntimeError for a repeat-limit trip.
func NewRepeatLimitError(flowToken, syncName, bindingHash string, limit int) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodeRepeatLimit,
		Message:     fmt.Sprintf("sync fired same binding more than %d times in flow", limit),
		FlowToken:   flowToken,
		SyncName:    syncName,
		BindingHash: bindingHash,
	}
}

// NewUnboundVariableError creates a RuntimeError for an unbound then-clause
// variable.
func NewUnboundVariableError(flowToken, syncName string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeUnboundVariable,
		Message:   cause.Error(),
		FlowToken: flowToken,
		SyncName:  syncName,
	}
}
