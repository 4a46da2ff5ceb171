// Package retention prunes terminal token records on a cron schedule.
//
// Expiry itself stays lazy and is evaluated at use time; pruning only
// reclaims memory from revoked records and records whose expiry passed more
// than the configured max age ago.
package retention
