package engine

// Verdict values.
const (
	StatusAllow = "allow"
	StatusBlock = "block"
	StatusAsk   = "ask"
)

// Verdict sources, recorded so operators can tell intentional chaos from
// real policy enforcement.
const (
	SourcePolicy     = "policy"
	SourceBaseline   = "baseline"
	SourceToken      = "token"
	SourceChaos      = "chaos"
	SourceDefault    = "default"
	SourceEvalFailed = "evaluation_failed"
)

// Event is one attempted action submitted for a verdict.
type Event struct {
	ID     string         `json:"id"`
	Agent  string         `json:"agent"`
	Intent string         `json:"intent"`
	Target string         `json:"target,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Signature returns the "intent:target" string evaluated against policy
// patterns. An absent target still carries the colon so "fs.delete:*"
// style patterns behave uniformly.
func (e Event) Signature() string {
	return e.Intent + ":" + e.Target
}

// Decision is the rendered verdict for an event.
type Decision struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Rule    string `json:"rule,omitempty"`
	Source  string `json:"source,omitempty"`
	ByToken bool   `json:"byToken"`
}
