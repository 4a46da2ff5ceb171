package timeline

import "time"

// EntryType discriminates timeline entry variants.
type EntryType string

const (
	// EntryEvent is a raw submitted event.
	EntryEvent EntryType = "event"

	// EntryDecision is a rendered verdict for an event.
	EntryDecision EntryType = "decision"

	// EntryAsk is a pending human consent request.
	EntryAsk EntryType = "ask"

	// EntryToken is a token lifecycle transition.
	EntryToken EntryType = "token"

	// EntryRole is a role application.
	EntryRole EntryType = "roleApplied"
)

// PolicyMatch records which rule produced a verdict, and from which list and
// source it came. Consent resolutions carry the original ask's match so
// observers can reconstruct why a human was involved.
type PolicyMatch struct {
	// Rule is the pattern that matched.
	Rule string `json:"rule,omitempty"`

	// List is the rule list the pattern came from ("allow", "ask", "block").
	List string `json:"list,omitempty"`

	// Source attributes the verdict ("policy", "baseline", "token", "chaos",
	// "default", "evaluation_failed", "consent_timeout").
	Source string `json:"source,omitempty"`
}

// Entry is one timeline record. Only the fields relevant to the entry's type
// are populated; raw token values never appear here, only one-way hashes.
type Entry struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Timestamp time.Time `json:"ts"`

	Agent  string `json:"agent,omitempty"`
	Intent string `json:"intent,omitempty"`
	Target string `json:"target,omitempty"`

	// Status carries the verdict for decision entries and the token status
	// for token entries.
	Status string `json:"status,omitempty"`

	// TokenHash is the one-way audit hash of a token value.
	TokenHash string `json:"token_hash,omitempty"`

	// Template is the template id for role entries.
	Template string `json:"template,omitempty"`

	// EventID back-references the event an entry relates to.
	EventID string `json:"event_id,omitempty"`

	PolicyMatch *PolicyMatch   `json:"policy_match,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}
