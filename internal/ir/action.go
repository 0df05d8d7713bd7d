package ir

import "strings"

// ActionRef is a typed reference to a concept action or query.
// Format: "Concept.action", e.g. "Recipe.addRecipe" or
// "UserAuthentication._getActiveSession". Queries carry the underscore
// prefix on the member name.
type ActionRef string

// Concept returns the concept part of the reference.
func (r ActionRef) Concept() string {
	if i := strings.IndexByte(string(r), '.'); i >= 0 {
		return string(r)[:i]
	}
	return string(r)
}

// Member returns the action or query name part of the reference.
func (r ActionRef) Member() string {
	if i := strings.IndexByte(string(r), '.'); i >= 0 {
		return string(r)[i+1:]
	}
	return ""
}

// IsQuery reports whether the reference names a query (underscore prefix).
func (r ActionRef) IsQuery() bool {
	return strings.HasPrefix(r.Member(), "_")
}

// Invocation represents an action invocation record: a concept action is
// about to run (or ran) with the given input. Invocation records carry the
// flow token that correlates everything caused by one external request.
type Invocation struct {
	ID        string    `json:"id"` // Content-addressed hash
	FlowToken string    `json:"flow_token"`
	Action    ActionRef `json:"action"`
	Input     Object    `json:"input"`
	Seq       int64     `json:"seq"` // Logical clock
}

// Completion represents an action completion record. Error outputs are
// ordinary completions whose Output carries an "error" key; the engine
// treats errors as data, never as exceptions.
type Completion struct {
	ID           string `json:"id"` // Content-addressed hash
	InvocationID string `json:"invocation_id"`
	Output       Object `json:"output"`
	Seq          int64  `json:"seq"` // Logical clock
}

// IsError reports whether the completion output is an {error} record.
func (c Completion) IsError() bool {
	_, ok := c.Output["error"]
	return ok
}

// SyncFiring records that a sync rule fired for a completion (store-layer).
// Uses an auto-increment ID for FK references.
type SyncFiring struct {
	ID           int64  `json:"id"`
	CompletionID string `json:"completion_id"`
	SyncName     string `json:"sync_name"`
	BindingHash  string `json:"binding_hash"`
	Seq          int64  `json:"seq"`
}
