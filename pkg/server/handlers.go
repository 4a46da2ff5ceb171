package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kagehq/echos-sub001/pkg/chaos"
	"github.com/kagehq/echos-sub001/pkg/consent"
	"github.com/kagehq/echos-sub001/pkg/engine"
	"github.com/kagehq/echos-sub001/pkg/policy/manager"
	"github.com/kagehq/echos-sub001/pkg/timeline"
	"github.com/kagehq/echos-sub001/pkg/token"
)

// maxBodyBytes caps request bodies; every payload here is small.
const maxBodyBytes = 1 << 20

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

type eventRequest struct {
	ID     string         `json:"id"`
	Agent  string         `json:"agent"`
	Intent string         `json:"intent"`
	Target string         `json:"target"`
	Meta   map[string]any `json:"meta"`
}

type decideRequest struct {
	ID     string         `json:"id"`
	Agent  string         `json:"agent"`
	Intent string         `json:"intent"`
	Target string         `json:"target"`
	Meta   map[string]any `json:"meta"`

	// Event carries the nested request shape; the flat fields above are
	// accepted too.
	Event *eventRequest `json:"event"`
	Token string        `json:"token"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	ev := eventRequest{ID: req.ID, Agent: req.Agent, Intent: req.Intent, Target: req.Target, Meta: req.Meta}
	if req.Event != nil {
		ev = *req.Event
	}
	if ev.Agent == "" || ev.Intent == "" {
		writeError(w, http.StatusBadRequest, "invalid_event", "agent and intent are required")
		return
	}

	decision := s.engine.Decide(r.Context(), engine.Event{
		ID:     ev.ID,
		Agent:  ev.Agent,
		Intent: ev.Intent,
		Target: ev.Target,
		Meta:   ev.Meta,
	}, req.Token)

	writeJSON(w, http.StatusOK, decision)
}

// handleEventAppend records an observed event on the timeline without
// rendering a verdict.
func (s *Server) handleEventAppend(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Agent == "" || req.Intent == "" {
		writeError(w, http.StatusBadRequest, "invalid_event", "agent and intent are required")
		return
	}

	entry := s.timeline.Append(timeline.Entry{
		Type:    timeline.EntryEvent,
		Agent:   req.Agent,
		Intent:  req.Intent,
		Target:  req.Target,
		EventID: req.ID,
		Meta:    req.Meta,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "id": entry.ID})
}

func (s *Server) handleConsentList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pending": s.consent.Pending()})
}

// handleConsentAwait long-polls until the event is resolved or its deadline
// fires. The pending request survives a dropped client connection.
func (s *Server) handleConsentAwait(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")

	resolution, err := s.consent.Await(r.Context(), eventID)
	if err != nil {
		var unknown *consent.UnknownConsentError
		if errors.As(err, &unknown) {
			writeError(w, http.StatusNotFound, "unknown_consent", err.Error())
			return
		}
		// Client went away; the verdict still resolves server-side.
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": resolution.Verdict,
		"source": resolution.Source,
		"token":  resolution.Token,
	})
}

type resolveRequest struct {
	Verdict string        `json:"verdict"`
	Status  string        `json:"status"` // accepted alias for verdict
	Grant   *grantRequest `json:"grant"`
}

type grantRequest struct {
	Scopes      []string `json:"scopes"`
	DurationSec int      `json:"duration_sec"`
	Reason      string   `json:"reason"`
}

func (s *Server) handleConsentResolve(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")

	var req resolveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	verdict := req.Verdict
	if verdict == "" {
		verdict = req.Status
	}

	var grant *consent.Grant
	if req.Grant != nil {
		grant = &consent.Grant{
			Scopes:   req.Grant.Scopes,
			Duration: time.Duration(req.Grant.DurationSec) * time.Second,
			Reason:   req.Grant.Reason,
		}
	}

	resolution, ok := s.consent.Resolve(eventID, verdict, grant)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_consent", "no pending consent for event "+eventID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": resolution.Verdict,
		"token":  resolution.Token,
	})
}

type issueRequest struct {
	Agent       string   `json:"agent"`
	Scopes      []string `json:"scopes"`
	DurationSec int      `json:"duration_sec"`
	Reason      string   `json:"reason"`
}

func (s *Server) handleTokenIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	record, err := s.tokens.Issue(req.Agent, req.Scopes, time.Duration(req.DurationSec)*time.Second, req.Reason)
	if err != nil {
		var grantErr *token.GrantError
		if errors.As(err, &grantErr) {
			writeError(w, http.StatusBadRequest, "invalid_grant", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "issue_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleTokenList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tokens": s.tokens.List()})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleTokenIntrospect(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.tokens.Introspect(req.Token))
}

// handleTokenOp serves pause, resume, and revoke. All three are idempotent
// no-ops on unknown values; the response reports whether a transition
// actually happened.
func (s *Server) handleTokenOp(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		var changed bool
		switch op {
		case "pause":
			changed = s.tokens.Pause(req.Token)
		case "resume":
			changed = s.tokens.Resume(req.Token)
		case "revoke":
			changed = s.tokens.Revoke(req.Token)
		}

		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": changed})
	}
}

func (s *Server) handleRoleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assignments": s.resolver.Assignments()})
}

func (s *Server) handleRoleGet(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentId")

	assignment, ok := s.resolver.Resolve(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "no_role", "agent "+agentID+" has no role assignment")
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type applyRoleRequest struct {
	Template  string            `json:"template"`
	Overrides *overridesRequest `json:"overrides"`
}

type overridesRequest struct {
	Allow  []string       `json:"allow"`
	Ask    []string       `json:"ask"`
	Block  []string       `json:"block"`
	Limits map[string]any `json:"limits"`
	Chaos  *chaos.Config  `json:"chaos"`
}

func (s *Server) handleRoleApply(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentId")

	var req applyRoleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	var overrides *manager.Overrides
	if req.Overrides != nil {
		overrides = &manager.Overrides{
			Allow:  req.Overrides.Allow,
			Ask:    req.Overrides.Ask,
			Block:  req.Overrides.Block,
			Limits: req.Overrides.Limits,
			Chaos:  req.Overrides.Chaos,
		}
	}

	assignment, err := s.resolver.ApplyRole(r.Context(), agentID, req.Template, overrides)
	if err != nil {
		var unknownTmpl *manager.UnknownTemplateError
		var invalidOverride *manager.InvalidOverrideError
		switch {
		case errors.As(err, &unknownTmpl):
			writeError(w, http.StatusNotFound, "unknown_template", err.Error())
		case errors.As(err, &invalidOverride):
			writeError(w, http.StatusBadRequest, "invalid_override", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "apply_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, assignment)
}

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   s.manager.Version(),
		"templates": s.manager.List(),
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Has("from") || query.Has("to") {
		from, err := parseTimeParam(query.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "from: "+err.Error())
			return
		}
		to, err := parseTimeParam(query.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "to: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": s.timeline.Query(from, to)})
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": s.timeline.Recent(limit)})
}

func (s *Server) handleTimelineExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := s.timeline.Export(w); err != nil {
		s.logger.Debug("timeline export aborted", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"templates": s.manager.Count(),
		"pending":   s.consent.PendingCount(),
	})
}

// parseTimeParam parses an RFC 3339 query value; empty means open bound.
func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
