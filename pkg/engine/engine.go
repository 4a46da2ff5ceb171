package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kagehq/echos-sub001/pkg/chaos"
	"github.com/kagehq/echos-sub001/pkg/consent"
	"github.com/kagehq/echos-sub001/pkg/policy/manager"
	"github.com/kagehq/echos-sub001/pkg/policy/match"
	"github.com/kagehq/echos-sub001/pkg/telemetry/metrics"
	"github.com/kagehq/echos-sub001/pkg/timeline"
	"github.com/kagehq/echos-sub001/pkg/token"
)

// BaselinePolicy is the fallback rule set for agents with no assigned role.
// Its contents are a deployment choice; empty lists mean every unmatched
// signature blocks.
type BaselinePolicy struct {
	Allow []string `yaml:"allow" json:"allow"`
	Ask   []string `yaml:"ask" json:"ask"`
	Block []string `yaml:"block" json:"block"`
}

// Config contains configuration for the decision engine.
type Config struct {
	// Baseline applies to agents with no role assignment.
	Baseline BaselinePolicy `yaml:"baseline" json:"baseline"`

	// MatchBudget is the wall-clock budget per rule list evaluation
	// (default match.DefaultBudget).
	MatchBudget time.Duration `yaml:"match_budget" json:"match_budget"`

	// Chaos is the daemon-level injection config, used when an agent's
	// role carries none.
	Chaos *chaos.Config `yaml:"chaos,omitempty" json:"chaos,omitempty"`
}

// DefaultConfig returns the default engine configuration: empty baseline
// lists, so unassigned agents block on everything.
func DefaultConfig() *Config {
	return &Config{MatchBudget: match.DefaultBudget}
}

// Engine is the decision authority. All of its collaborators are owned by
// the daemon; the engine itself holds no mutable state beyond them.
type Engine struct {
	config   *Config
	logger   *slog.Logger
	tokens   *token.Manager
	injector *chaos.Injector
	resolver *manager.Resolver
	consent  *consent.Orchestrator
	timeline *timeline.Log
	metrics  *metrics.Metrics
}

// New creates a decision engine. The token manager, resolver, consent
// orchestrator, and timeline are required; metrics are optional.
func New(config *Config, tokens *token.Manager, injector *chaos.Injector, resolver *manager.Resolver, orchestrator *consent.Orchestrator, tl *timeline.Log, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MatchBudget <= 0 {
		config.MatchBudget = match.DefaultBudget
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		config:   config,
		logger:   logger.With("component", "engine"),
		tokens:   tokens,
		injector: injector,
		resolver: resolver,
		consent:  orchestrator,
		timeline: tl,
		metrics:  m,
	}
}

// Decide renders the verdict for an event, optionally carrying a bearer
// token. It never returns an error: every failure mode resolves to block.
func (e *Engine) Decide(ctx context.Context, event Event, bearer string) Decision {
	start := time.Now()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	e.timeline.Append(timeline.Entry{
		Type:    timeline.EntryEvent,
		Agent:   event.Agent,
		Intent:  event.Intent,
		Target:  event.Target,
		EventID: event.ID,
		Meta:    event.Meta,
	})

	decision := e.decide(ctx, event, bearer)
	e.metrics.RecordDecision(decision.Status, decision.Source, time.Since(start))

	e.logger.Info("decision rendered",
		"event_id", event.ID,
		"agent", event.Agent,
		"signature", event.Signature(),
		"status", decision.Status,
		"source", decision.Source,
		"rule", decision.Rule,
		"by_token", decision.ByToken,
	)
	return decision
}

func (e *Engine) decide(ctx context.Context, event Event, bearer string) Decision {
	// A valid scoped token bypasses chaos and policy entirely; the human
	// who granted it already authorized the scope.
	if bearer != "" {
		if hash, ok := e.tokens.Authorize(bearer, event.Intent); ok {
			return e.finish(event, Decision{
				ID:      event.ID,
				Status:  StatusAllow,
				Source:  SourceToken,
				ByToken: true,
			}, hash)
		}
	}

	assignment, assigned := e.resolver.Resolve(event.Agent)

	chaosCfg := e.config.Chaos
	if assigned && assignment.Chaos != nil {
		chaosCfg = assignment.Chaos
	}
	if result := e.injector.Inject(chaosCfg, event.Agent, event.Intent, event.ID); result.Eligible {
		e.metrics.RecordChaos(event.Intent, result.Triggered)
		if result.Delay > 0 {
			select {
			case <-time.After(result.Delay):
			case <-ctx.Done():
			}
		}
		if result.Triggered {
			return e.finish(event, Decision{
				ID:     event.ID,
				Status: StatusBlock,
				Source: SourceChaos,
			}, "")
		}
	}

	var (
		source string
		allow  []string
		ask    []string
		block  []string
	)
	if assigned {
		source = SourcePolicy
		allow, ask, block = assignment.Policy.Allow, assignment.Policy.Ask, assignment.Policy.Block
	} else {
		source = SourceBaseline
		allow, ask, block = e.config.Baseline.Allow, e.config.Baseline.Ask, e.config.Baseline.Block
	}

	list, rule, err := e.evaluate(event.Signature(), allow, ask, block)
	if err != nil {
		// Matcher budget exhaustion and malformed rules both land here.
		// The verdict is block, never an error to the caller.
		e.logger.Error("policy evaluation failed, blocking",
			"event_id", event.ID,
			"agent", event.Agent,
			"signature", event.Signature(),
			"error", err,
		)
		return e.finish(event, Decision{
			ID:     event.ID,
			Status: StatusBlock,
			Source: SourceEvalFailed,
		}, "")
	}

	switch list {
	case "block":
		return e.finish(event, Decision{
			ID: event.ID, Status: StatusBlock, Rule: rule, Source: source,
		}, "")
	case "ask":
		e.consent.Register(event.ID, event.Agent, event.Intent, event.Target, &timeline.PolicyMatch{
			Rule: rule, List: "ask", Source: source,
		})
		return Decision{ID: event.ID, Status: StatusAsk, Rule: rule, Source: source}
	case "allow":
		return e.finish(event, Decision{
			ID: event.ID, Status: StatusAllow, Rule: rule, Source: source,
		}, "")
	}

	return e.finish(event, Decision{
		ID:     event.ID,
		Status: StatusBlock,
		Source: SourceDefault,
	}, "")
}

// evaluate runs the signature through the block, ask, and allow lists in
// that order. Block always wins regardless of rule order in the template.
func (e *Engine) evaluate(signature string, allow, ask, block []string) (list, rule string, err error) {
	lists := []struct {
		name  string
		rules []string
	}{
		{"block", block},
		{"ask", ask},
		{"allow", allow},
	}

	for _, l := range lists {
		patterns := make([]*match.Pattern, 0, len(l.rules))
		for _, raw := range l.rules {
			p, err := match.Compile(raw)
			if err != nil {
				return "", "", err
			}
			patterns = append(patterns, p)
		}

		p, err := match.Match(patterns, signature, e.config.MatchBudget)
		if err != nil {
			return "", "", err
		}
		if p != nil {
			return l.name, p.String(), nil
		}
	}
	return "", "", nil
}

// finish appends the decision to the timeline and returns it.
func (e *Engine) finish(event Event, decision Decision, tokenHash string) Decision {
	e.timeline.Append(timeline.Entry{
		Type:      timeline.EntryDecision,
		Agent:     event.Agent,
		Intent:    event.Intent,
		Target:    event.Target,
		EventID:   event.ID,
		Status:    decision.Status,
		TokenHash: tokenHash,
		PolicyMatch: &timeline.PolicyMatch{
			Rule:   decision.Rule,
			List:   listFor(decision),
			Source: decision.Source,
		},
	})
	return decision
}

// listFor names the rule list a decision came from, when one applies.
func listFor(decision Decision) string {
	if decision.Rule == "" {
		return ""
	}
	switch decision.Status {
	case StatusAllow:
		return "allow"
	case StatusBlock:
		return "block"
	case StatusAsk:
		return "ask"
	}
	return ""
}
