package manager

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kagehq/echos-sub001/pkg/policy/match"
	"github.com/kagehq/echos-sub001/pkg/policy/store"
	"github.com/kagehq/echos-sub001/pkg/timeline"
)

// Resolver resolves agents to their effective policies.
// It owns the in-memory assignment map; callers never see the raw map, only
// copies of individual assignments.
type Resolver struct {
	manager  *Manager
	store    store.Store
	timeline *timeline.Log
	logger   *slog.Logger

	mu          sync.RWMutex
	assignments map[string]*RoleAssignment
}

// NewResolver creates a role resolver backed by the given template manager
// and assignment store. Persisted assignments are loaded immediately so
// agents keep their policies across restarts. The timeline is optional;
// when set, every role application is recorded on it.
func NewResolver(ctx context.Context, manager *Manager, st store.Store, tl *timeline.Log, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		manager:     manager,
		store:       st,
		timeline:    tl,
		logger:      logger.With("component", "policy.resolver"),
		assignments: make(map[string]*RoleAssignment),
	}

	records, err := st.Load(ctx)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		r.assignments[rec.AgentID] = assignmentFromRecord(rec)
	}

	if len(records) > 0 {
		r.logger.Info("role assignments restored", "count", len(records))
	}

	return r, nil
}

// ApplyRole assigns a template (plus optional overrides) to an agent, stores
// and persists the assignment, and returns the resolved policy.
//
// Returns *UnknownTemplateError when the template id is absent from the
// current template set, and *InvalidOverrideError when any override pattern
// falls outside the closed pattern grammar.
func (r *Resolver) ApplyRole(ctx context.Context, agentID, templateID string, overrides *Overrides) (*RoleAssignment, error) {
	tmpl, ok := r.manager.Get(templateID)
	if !ok {
		return nil, &UnknownTemplateError{TemplateID: templateID}
	}

	if overrides != nil {
		if err := match.ValidateOverrides(overrides.Allow, overrides.Ask, overrides.Block); err != nil {
			return nil, &InvalidOverrideError{AgentID: agentID, Cause: err}
		}
	}

	assignment := &RoleAssignment{
		AgentID:    agentID,
		TemplateID: templateID,
		Policy:     MergePolicy(tmpl, overrides),
		AppliedAt:  time.Now().UTC(),
	}
	if overrides != nil {
		assignment.Chaos = overrides.Chaos
	}

	if err := r.store.Save(ctx, recordFromAssignment(assignment)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.assignments[agentID] = assignment
	r.mu.Unlock()

	if r.timeline != nil {
		r.timeline.Append(timeline.Entry{
			Type:     timeline.EntryRole,
			Agent:    agentID,
			Template: templateID,
		})
	}

	r.logger.Info("role applied",
		"agent", agentID,
		"template", templateID,
		"allow_rules", len(assignment.Policy.Allow),
		"ask_rules", len(assignment.Policy.Ask),
		"block_rules", len(assignment.Policy.Block),
		"chaos_enabled", assignment.Chaos != nil && assignment.Chaos.Enabled,
	)

	return assignment.clone(), nil
}

// Resolve returns the agent's current assignment, or false when the agent
// has no assigned role.
func (r *Resolver) Resolve(agentID string) (*RoleAssignment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assignment, ok := r.assignments[agentID]
	if !ok {
		return nil, false
	}
	return assignment.clone(), true
}

// Assignments returns all current assignments sorted by agent id.
func (r *Resolver) Assignments() []*RoleAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*RoleAssignment, 0, len(r.assignments))
	for _, assignment := range r.assignments {
		out = append(out, assignment.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AgentID < out[j].AgentID
	})
	return out
}

// MergePolicy produces the resolved policy for a template plus overrides:
// each rule list is the template's list with the override's list appended
// (concatenation, not deduplication), and limits are shallow-merged with
// override values taking precedence. Non-numeric limit entries are pruned.
func MergePolicy(tmpl *Template, overrides *Overrides) ResolvedPolicy {
	policy := ResolvedPolicy{
		Allow: append([]string(nil), tmpl.Allow...),
		Ask:   append([]string(nil), tmpl.Ask...),
		Block: append([]string(nil), tmpl.Block...),
	}

	limits := make(map[string]float64)
	mergeLimits(limits, tmpl.Limits)

	if overrides != nil {
		policy.Allow = append(policy.Allow, overrides.Allow...)
		policy.Ask = append(policy.Ask, overrides.Ask...)
		policy.Block = append(policy.Block, overrides.Block...)
		mergeLimits(limits, overrides.Limits)
	}

	if len(limits) > 0 {
		policy.Limits = limits
	}

	return policy
}

// mergeLimits copies numeric entries from src into dst, pruning everything
// else.
func mergeLimits(dst map[string]float64, src map[string]any) {
	for key, value := range src {
		if num, ok := asNumber(value); ok {
			dst[key] = num
		}
	}
}

// asNumber coerces the numeric types YAML and JSON decoding produce.
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// clone returns a copy the caller can hold without aliasing resolver state.
func (a *RoleAssignment) clone() *RoleAssignment {
	cloned := &RoleAssignment{
		AgentID:    a.AgentID,
		TemplateID: a.TemplateID,
		AppliedAt:  a.AppliedAt,
		Policy: ResolvedPolicy{
			Allow: append([]string(nil), a.Policy.Allow...),
			Ask:   append([]string(nil), a.Policy.Ask...),
			Block: append([]string(nil), a.Policy.Block...),
		},
	}

	if a.Policy.Limits != nil {
		cloned.Policy.Limits = make(map[string]float64, len(a.Policy.Limits))
		for k, v := range a.Policy.Limits {
			cloned.Policy.Limits[k] = v
		}
	}

	if a.Chaos != nil {
		chaosCopy := *a.Chaos
		cloned.Chaos = &chaosCopy
	}

	return cloned
}

// recordFromAssignment converts an assignment to its persisted shape.
func recordFromAssignment(a *RoleAssignment) *store.Record {
	return &store.Record{
		AgentID:    a.AgentID,
		TemplateID: a.TemplateID,
		Allow:      a.Policy.Allow,
		Ask:        a.Policy.Ask,
		Block:      a.Policy.Block,
		Limits:     a.Policy.Limits,
		AppliedAt:  a.AppliedAt,
		Chaos:      a.Chaos,
	}
}

// assignmentFromRecord converts a persisted record back to an assignment.
func assignmentFromRecord(rec *store.Record) *RoleAssignment {
	return &RoleAssignment{
		AgentID:    rec.AgentID,
		TemplateID: rec.TemplateID,
		AppliedAt:  rec.AppliedAt,
		Chaos:      rec.Chaos,
		Policy: ResolvedPolicy{
			Allow:  rec.Allow,
			Ask:    rec.Ask,
			Block:  rec.Block,
			Limits: rec.Limits,
		},
	}
}
