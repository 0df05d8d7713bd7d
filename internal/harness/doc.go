// Package harness runs end-to-end behavioral scenarios against the real
// application: real concepts over in-memory databases, the full rule set,
// and a scripted language model.
//
// A scenario is a YAML file describing a sequence of steps. Each step is
// either a direct concept action (invoke) or an HTTP-shaped request
// (request) that travels through Requesting and the rule set. Steps run
// to quiescence one at a time, each in its own flow, and the scenario's
// assertions are evaluated over the combined action log.
//
// Determinism: flow tokens are sequential (flow-001, flow-002, ...), the
// wall clock is fixed, and the language model replays scripted responses.
// The only nondeterminism left is the document ids the concepts mint;
// golden comparison normalizes those to positional placeholders, so the
// serialized trace is byte-identical across runs.
//
// Cross-step data flows through capture variables: a step can capture an
// output field under a name, and later steps reference it as "$name" in
// their bodies.
package harness
