// Package timeline implements the append-only broadcast log.
//
// Every event, decision, token transition, and role change is appended to a
// bounded in-memory log (newest first, oldest evicted past the cap) and
// fanned out to subscribed observers. Fan-out is best effort: a slow or dead
// observer loses entries rather than delaying the append path, so decision
// latency is never coupled to observer health.
package timeline
