// Package engine implements the reactive sync engine.
//
// The engine is the heart of scullery: it receives action invocations,
// executes them against the concept registry, and on every completion
// evaluates the registered sync rules. A sync declares a trigger pattern
// (when), an optional refinement stage (where), and consequent actions
// (then). Consequent invocations feed back into the engine, so chains of
// syncs run to quiescence.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The engine processes all events in a single goroutine for deterministic
// behavior. This ensures:
// - Predictable sync rule evaluation order
// - Reproducible event log per flow
// - Simple reasoning about causality
//
// Event Processing Flow:
// 1. Events enqueued to FIFO queue (invocations or completions)
// 2. Engine.Run() dequeues events one at a time
// 3. Invocations: written to the log, executed via the registry, and the
//    resulting completion is enqueued
// 4. Completions: written to the log, then every sync's when-clause is
//    matched against the flow's completion history
// 5. Surviving frames fire the sync's then-clause, enqueuing new invocations
//
// The only concurrency inside one trigger cycle is the where-stage: per-frame
// refinement queries run in parallel, with results merged back in input-frame
// order. Everything else is strictly single-threaded.
//
// Matching is stateless per event: re-delivering a completion re-fires the
// syncs it matches. Termination is guarded by a per-flow step quota and a
// repeat limit on (sync, binding) pairs, not by memoization.
package engine
