// Package quadra implements a safety-limited agent loop for investigating
// ETL pipeline discrepancies.
//
// An [Agent] drives a conversational tool-calling protocol with an LLM: the
// model decides, turn by turn, which read-only diagnostic tool to invoke
// while investigating a reported problem (a failed quadratura, missing
// records, amount differences). Every run is bounded by a [LimitPolicy]:
// iteration count, model call count, monetary budget, wall-clock time,
// per-tool call quotas, and a keyword-based SQL safety filter.
//
// # Architecture
//
//   - [LimitPolicy]: immutable thresholds with pure check functions that
//     return a typed [Violation] instead of panicking.
//   - [RunStats]: per-run counters, monotonically increasing, owned by a
//     single run.
//   - [EstimateCost]: converts token usage into a monetary estimate.
//   - [Registry]: the fixed set of callable tools; Dispatch never fails,
//     it returns errors as data so the model can adapt.
//   - [Agent]: the orchestration loop. Every termination path, including
//     limit violations, cancellation, and internal errors, produces the
//     same [RunOutcome] shape.
//
// Concrete diagnostic tools live in the tools subpackage; model backends
// in models; the HTTP wrapper in server.
//
// # Isolation
//
// A run is strictly sequential: one outstanding model call at a time, tool
// invocations executed in the order the model requested them. Independent
// runs share nothing mutable; construct one Agent per run (or reuse one,
// since Run builds all per-run state itself).
package quadra
