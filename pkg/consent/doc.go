// Package consent suspends ask verdicts until a human resolves them.
//
// Each pending request is a single-fire completion handle keyed by event id
// with its own deadline timer. Exactly one resolution wins; later calls are
// no-ops and the timer is cancelled on early resolution so a stale timeout
// can never fire against a reused event id. A request that reaches its
// deadline resolves to block.
package consent
