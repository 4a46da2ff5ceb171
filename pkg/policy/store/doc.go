// Package store persists role assignments so an agent's resolved policy
// survives daemon restarts.
//
// Two backends are provided: a flat JSON file holding the full assignment
// list (the default), and a SQLite database for deployments that already run
// one. Both expose the same Store interface and are selected in config.
package store
