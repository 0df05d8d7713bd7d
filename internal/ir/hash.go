package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInvocation = "scullery/invocation/v1"
	DomainCompletion = "scullery/completion/v1"
	DomainBinding    = "scullery/binding/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed ID for an invocation.
// The ID is stable across restarts and replays given the same inputs.
func InvocationID(flowToken string, action ActionRef, input Object, seq int64) (string, error) {
	obj := Object{
		"flow_token": String(flowToken),
		"action":     String(action),
		"input":      input,
		"seq":        Int(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("InvocationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInvocation, canonical), nil
}

// CompletionID computes the content-addressed ID for a completion.
// Links to the invocation it completes via invocationID.
func CompletionID(invocationID string, output Object, seq int64) (string, error) {
	obj := Object{
		"invocation_id": String(invocationID),
		"output":        output,
		"seq":           Int(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CompletionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCompletion, canonical), nil
}

// BindingHash computes a hash over a set of frame bindings.
// The engine uses it to deduplicate frames produced by multi-anchor
// matching and to key the per-flow repeat guard.
func BindingHash(bindings Object) (string, error) {
	canonical, err := MarshalCanonical(bindings)
	if err != nil {
		return "", fmt.Errorf("BindingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBinding, canonical), nil
}

// MustBindingHash is like BindingHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustBindingHash(bindings Object) string {
	hash, err := BindingHash(bindings)
	if err != nil {
		panic(err)
	}
	return hash
}
