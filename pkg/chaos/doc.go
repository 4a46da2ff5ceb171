// Package chaos implements the fault injection layer.
//
// Chaos injection deliberately blocks or delays a fraction of an agent's
// eligible events to exercise its retry and error-handling paths without
// touching the real policy. Injection is configured per agent through role
// overrides and is always distinguishable from a genuine policy block.
//
// When a seed is configured, the block decision for an event is a pure
// function of (seed, event id): the generator is re-seeded per call from a
// hash of the two, so an identical pair always reproduces the same outcome.
// This is what makes incident replay deterministic.
package chaos
