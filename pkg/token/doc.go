// Package token implements the scoped authorization token lifecycle.
//
// Tokens are opaque signed bearer values of the form "<id>.<sig>" where sig
// is an HMAC-SHA256 over the id. Only a daemon holding the signing key can
// verify them. Raw token values never reach logs or the timeline; audit
// trails carry a one-way hash instead.
//
// A token's scopes are fixed at issuance. Its lifecycle is
// active -> paused -> active (resume), with revocation terminal from any
// state. Expiry is evaluated lazily at use time, never by a background sweep.
package token
