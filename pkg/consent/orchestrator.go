package consent

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kagehq/echos-sub001/pkg/telemetry/metrics"
	"github.com/kagehq/echos-sub001/pkg/timeline"
	"github.com/kagehq/echos-sub001/pkg/token"
)

// DefaultDeadline bounds how long a request may stay pending before it
// resolves to block.
const DefaultDeadline = 120 * time.Second

// Verdict values a human resolution may carry.
const (
	VerdictAllow = "allow"
	VerdictBlock = "block"
)

// Grant is an optional token grant attached to a human allow decision.
type Grant struct {
	Scopes   []string      `json:"scopes"`
	Duration time.Duration `json:"duration"`
	Reason   string        `json:"reason,omitempty"`
}

// Resolution is the outcome delivered to every waiter of an event id. Token
// is populated, raw bearer value included, when the resolving human attached
// a grant; the original caller adopts it for future calls.
type Resolution struct {
	Verdict string        `json:"verdict"`
	Source  string        `json:"source"`
	Token   *token.Record `json:"token,omitempty"`
}

// Request describes one pending consent for listings.
type Request struct {
	EventID   string    `json:"event_id"`
	Agent     string    `json:"agent"`
	Intent    string    `json:"intent"`
	Target    string    `json:"target,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline"`
}

type pending struct {
	request Request
	match   *timeline.PolicyMatch

	timer *time.Timer
	done  chan struct{}

	once       sync.Once
	resolution Resolution
}

// Config contains configuration for the orchestrator.
type Config struct {
	// Deadline is the per-request resolution window (default
	// DefaultDeadline).
	Deadline time.Duration `yaml:"deadline" json:"deadline"`
}

// DefaultConfig returns the default consent configuration.
func DefaultConfig() *Config {
	return &Config{Deadline: DefaultDeadline}
}

// Orchestrator owns all pending consent requests.
type Orchestrator struct {
	config   *Config
	logger   *slog.Logger
	tokens   *token.Manager
	timeline *timeline.Log
	metrics  *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*pending
}

// NewOrchestrator creates a consent orchestrator. The token manager mints
// granted tokens; the timeline log receives ask and resolution entries; the
// metrics track the pending gauge and resolution outcomes. All three are
// optional.
func NewOrchestrator(config *Config, tokens *token.Manager, tl *timeline.Log, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Deadline <= 0 {
		config.Deadline = DefaultDeadline
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		config:   config,
		logger:   logger.With("component", "consent"),
		tokens:   tokens,
		timeline: tl,
		metrics:  m,
		pending:  make(map[string]*pending),
	}
}

// Register creates a pending request for an event that received an ask
// verdict, starts its deadline timer, and broadcasts the ask. Registering
// an event id that is already pending returns the existing request.
func (o *Orchestrator) Register(eventID, agent, intent, target string, match *timeline.PolicyMatch) Request {
	o.mu.Lock()
	if existing, ok := o.pending[eventID]; ok {
		o.mu.Unlock()
		return existing.request
	}

	now := time.Now().UTC()
	p := &pending{
		request: Request{
			EventID:   eventID,
			Agent:     agent,
			Intent:    intent,
			Target:    target,
			CreatedAt: now,
			Deadline:  now.Add(o.config.Deadline),
		},
		match: match,
		done:  make(chan struct{}),
	}
	p.timer = time.AfterFunc(o.config.Deadline, func() {
		o.complete(eventID, Resolution{Verdict: VerdictBlock, Source: "consent_timeout"}, nil)
	})
	o.pending[eventID] = p
	open := len(o.pending)
	o.mu.Unlock()

	o.metrics.SetConsentPending(open)
	o.logger.Info("consent requested",
		"event_id", eventID,
		"agent", agent,
		"intent", intent,
		"deadline", p.request.Deadline,
	)

	if o.timeline != nil {
		o.timeline.Append(timeline.Entry{
			Type:        timeline.EntryAsk,
			Agent:       agent,
			Intent:      intent,
			Target:      target,
			EventID:     eventID,
			Status:      "pending",
			PolicyMatch: match,
		})
	}
	return p.request
}

// Await suspends until the event id is resolved, its deadline fires, or the
// caller's context ends. A context end before resolution yields block; the
// pending request itself stays live for other waiters.
func (o *Orchestrator) Await(ctx context.Context, eventID string) (Resolution, error) {
	o.mu.Lock()
	p, ok := o.pending[eventID]
	o.mu.Unlock()
	if !ok {
		return Resolution{}, &UnknownConsentError{EventID: eventID}
	}

	select {
	case <-p.done:
		return p.resolution, nil
	case <-ctx.Done():
		return Resolution{Verdict: VerdictBlock, Source: "consent_cancelled"}, ctx.Err()
	}
}

// Resolve records a human decision for a pending event id. Only the first
// resolution wins; later calls and unknown ids are no-ops and report false.
// An allow carrying a grant mints a token scoped per the grant.
func (o *Orchestrator) Resolve(eventID, verdict string, grant *Grant) (Resolution, bool) {
	if verdict != VerdictAllow {
		verdict = VerdictBlock
	}

	var granted *token.Record
	if verdict == VerdictAllow && grant != nil && o.tokens != nil {
		o.mu.Lock()
		p, ok := o.pending[eventID]
		o.mu.Unlock()
		if ok {
			record, err := o.tokens.Issue(p.request.Agent, grant.Scopes, grant.Duration, grant.Reason)
			if err != nil {
				o.logger.Warn("consent grant rejected",
					"event_id", eventID,
					"error", err,
				)
			} else {
				granted = record
			}
		}
	}

	return o.complete(eventID, Resolution{Verdict: verdict, Source: "consent", Token: granted}, granted)
}

// Pending returns a snapshot of open requests sorted by creation time.
func (o *Orchestrator) Pending() []Request {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Request, 0, len(o.pending))
	for _, p := range o.pending {
		out = append(out, p.request)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

// PendingCount returns the number of open requests.
func (o *Orchestrator) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// complete fires a pending request exactly once, cancels its timer, removes
// it, and appends the resolution with the original ask's policy match.
func (o *Orchestrator) complete(eventID string, resolution Resolution, granted *token.Record) (Resolution, bool) {
	o.mu.Lock()
	p, ok := o.pending[eventID]
	if ok {
		delete(o.pending, eventID)
	}
	open := len(o.pending)
	o.mu.Unlock()
	if !ok {
		return Resolution{}, false
	}

	fired := false
	p.once.Do(func() {
		fired = true
		p.timer.Stop()
		p.resolution = resolution
		close(p.done)
	})
	if !fired {
		return Resolution{}, false
	}

	o.metrics.SetConsentPending(open)
	o.metrics.RecordConsentResolution(resolution.Verdict, resolution.Source)
	o.logger.Info("consent resolved",
		"event_id", eventID,
		"agent", p.request.Agent,
		"verdict", resolution.Verdict,
		"source", resolution.Source,
		"granted", granted != nil,
	)

	if o.timeline != nil {
		entry := timeline.Entry{
			Type:        timeline.EntryDecision,
			Agent:       p.request.Agent,
			Intent:      p.request.Intent,
			Target:      p.request.Target,
			EventID:     eventID,
			Status:      resolution.Verdict,
			PolicyMatch: withSource(p.match, resolution.Source),
		}
		if granted != nil {
			entry.TokenHash = granted.Hash
		}
		o.timeline.Append(entry)
	}
	return resolution, true
}

// withSource clones the ask's policy match with the resolution source so
// observers keep the "policy said ask" context on the resolution entry.
func withSource(match *timeline.PolicyMatch, source string) *timeline.PolicyMatch {
	out := timeline.PolicyMatch{Source: source}
	if match != nil {
		out.Rule = match.Rule
		out.List = match.List
	}
	return &out
}
