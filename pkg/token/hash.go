package token

import (
	"crypto/sha256"
	"encoding/hex"
)

// AuditHash returns the one-way hash of a raw token value, suitable for
// logs and timeline entries. The hash cannot be reversed into the bearer
// value or exchanged for one.
func AuditHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
