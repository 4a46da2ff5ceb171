package token

import "fmt"

// GrantError indicates an issuance request that cannot produce a valid
// token, such as a missing agent or a malformed scope pattern.
type GrantError struct {
	Reason string
}

func (e *GrantError) Error() string {
	return fmt.Sprintf("invalid token grant: %s", e.Reason)
}
