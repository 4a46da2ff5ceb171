// Package server exposes the daemon's HTTP API: decision submission,
// consent long-polling and resolution, token lifecycle, role management,
// template inspection, the timeline, a server-sent event stream for
// observers, and Prometheus metrics.
package server
