package consent

import "fmt"

// UnknownConsentError indicates an event id with no pending request.
type UnknownConsentError struct {
	EventID string
}

func (e *UnknownConsentError) Error() string {
	return fmt.Sprintf("no pending consent for event %s", e.EventID)
}
