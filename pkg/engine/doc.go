// Package engine renders verdicts for attempted agent actions.
//
// The evaluation order is fixed: a valid scoped token short-circuits to
// allow (a human already authorized the scope, so chaos and policy are
// skipped); otherwise chaos injection may block; otherwise the agent's
// resolved policy, or the configured baseline when no role is assigned, is
// evaluated block-first, then ask, then allow. No match means block. Any
// evaluation error also means block. The engine never fails open.
package engine
