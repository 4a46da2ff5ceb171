package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kagehq/echos-sub001/pkg/chaos"
	"github.com/kagehq/echos-sub001/pkg/config"
	"github.com/kagehq/echos-sub001/pkg/consent"
	"github.com/kagehq/echos-sub001/pkg/engine"
	"github.com/kagehq/echos-sub001/pkg/policy/manager"
	"github.com/kagehq/echos-sub001/pkg/policy/store"
	"github.com/kagehq/echos-sub001/pkg/telemetry/metrics"
	"github.com/kagehq/echos-sub001/pkg/timeline"
	"github.com/kagehq/echos-sub001/pkg/token"
)

const researchAssistantYAML = `name: Research Assistant
version: "1"
allow:
  - "llm.chat:*"
ask:
  - "slack.post:*"
block:
  - "fs.delete:*"
`

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "research_assistant.yaml"), []byte(researchAssistantYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr := manager.NewManager(&manager.ManagerConfig{Path: dir}, nil)
	if err := mgr.Load(); err != nil {
		t.Fatal(err)
	}

	tl := timeline.NewLog(nil, nil)
	st := store.NewFileStore(filepath.Join(dir, "assignments.json"))
	resolver, err := manager.NewResolver(context.Background(), mgr, st, tl, nil)
	if err != nil {
		t.Fatal(err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(nil, registry)
	tokens := token.NewManager(&token.Config{SigningKey: "test-signing-key"}, tl, m, nil)
	orchestrator := consent.NewOrchestrator(&consent.Config{Deadline: 5 * time.Second}, tokens, tl, m, nil)
	eng := engine.New(nil, tokens, chaos.NewInjector(nil), resolver, orchestrator, tl, m, nil)

	cfg := config.DefaultConfig()
	return New(&cfg.Server, Deps{
		Engine:   eng,
		Consent:  orchestrator,
		Tokens:   tokens,
		Manager:  mgr,
		Resolver: resolver,
		Timeline: tl,
		Registry: registry,
	}, nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
}

func applyRole(t *testing.T, handler http.Handler, agent string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/v1/roles/"+agent, map[string]any{
		"template": "research_assistant",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("apply role status = %d, body: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Decide(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()
	applyRole(t, handler, "agent-1")

	rec := doJSON(t, handler, http.MethodPost, "/v1/decide", map[string]any{
		"agent": "agent-1", "intent": "llm.chat", "target": "gpt-4",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var decision engine.Decision
	decodeInto(t, rec, &decision)
	if decision.Status != engine.StatusAllow {
		t.Errorf("decision = %s, want allow", decision.Status)
	}
	if decision.Rule != "llm.chat:*" {
		t.Errorf("rule = %s, want llm.chat:*", decision.Rule)
	}
}

func TestServer_Decide_Validation(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/v1/decide", map[string]any{"agent": "agent-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a missing intent", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/decide", strings.NewReader("{broken"))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed JSON", rec2.Code)
	}
}

func TestServer_Decide_NestedEventShape(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()
	applyRole(t, handler, "agent-1")

	rec := doJSON(t, handler, http.MethodPost, "/v1/decide", map[string]any{
		"event": map[string]any{"agent": "agent-1", "intent": "llm.chat", "target": "gpt-4"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var decision engine.Decision
	decodeInto(t, rec, &decision)
	if decision.Status != engine.StatusAllow {
		t.Errorf("decision = %s, want allow", decision.Status)
	}
}

func TestServer_EventAppend(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/v1/events", map[string]any{
		"agent": "agent-1", "intent": "llm.chat", "target": "gpt-4",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/timeline", nil)
	var listing struct {
		Entries []timeline.Entry `json:"entries"`
	}
	decodeInto(t, rec, &listing)
	if len(listing.Entries) != 1 || listing.Entries[0].Type != timeline.EntryEvent {
		t.Errorf("timeline = %+v, want one event entry", listing.Entries)
	}
}

func TestServer_ConsentFlow(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()
	applyRole(t, handler, "agent-1")

	rec := doJSON(t, handler, http.MethodPost, "/v1/decide", map[string]any{
		"agent": "agent-1", "intent": "slack.post", "target": "#general",
	})
	var decision engine.Decision
	decodeInto(t, rec, &decision)
	if decision.Status != engine.StatusAsk {
		t.Fatalf("decision = %s, want ask", decision.Status)
	}

	// The ask shows up in the pending listing.
	rec = doJSON(t, handler, http.MethodGet, "/v1/consent", nil)
	var listing struct {
		Pending []consent.Request `json:"pending"`
	}
	decodeInto(t, rec, &listing)
	if len(listing.Pending) != 1 || listing.Pending[0].EventID != decision.ID {
		t.Fatalf("pending listing = %+v, want the ask event", listing.Pending)
	}

	// Resolve with a token grant.
	rec = doJSON(t, handler, http.MethodPost, "/v1/consent/"+decision.ID, map[string]any{
		"verdict": "allow",
		"grant":   map[string]any{"scopes": []string{"slack.post"}, "duration_sec": 300},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var resolved struct {
		Status string        `json:"status"`
		Token  *token.Record `json:"token"`
	}
	decodeInto(t, rec, &resolved)
	if resolved.Status != "allow" {
		t.Errorf("resolved status = %s, want allow", resolved.Status)
	}
	if resolved.Token == nil || resolved.Token.Value == "" {
		t.Fatal("resolution carries no adoptable token")
	}

	// The granted token now bypasses the ask.
	rec = doJSON(t, handler, http.MethodPost, "/v1/decide", map[string]any{
		"agent": "agent-1", "intent": "slack.post", "target": "#general",
		"token": resolved.Token.Value,
	})
	decodeInto(t, rec, &decision)
	if decision.Status != engine.StatusAllow || !decision.ByToken {
		t.Errorf("decision with granted token = %+v, want allow byToken", decision)
	}

	// Resolving again is a no-op.
	rec = doJSON(t, handler, http.MethodPost, "/v1/consent/"+decision.ID, map[string]any{"verdict": "block"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("second resolve status = %d, want 404", rec.Code)
	}
}

func TestServer_ConsentAwait_Unknown(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	rec := doJSON(t, handler, http.MethodGet, "/v1/consent/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_TokenLifecycle(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/v1/tokens", map[string]any{
		"agent": "agent-1", "scopes": []string{"llm.chat"}, "duration_sec": 300,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var record token.Record
	decodeInto(t, rec, &record)
	if record.Value == "" {
		t.Fatal("issued token has no bearer value")
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/tokens/introspect", map[string]any{"token": record.Value})
	var intro token.Introspection
	decodeInto(t, rec, &intro)
	if !intro.Active {
		t.Error("introspection active = false for a fresh token")
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/tokens/pause", map[string]any{"token": record.Value})
	var opResult struct {
		OK      bool `json:"ok"`
		Changed bool `json:"changed"`
	}
	decodeInto(t, rec, &opResult)
	if !opResult.OK || !opResult.Changed {
		t.Errorf("pause = %+v, want ok and changed", opResult)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/tokens/revoke", map[string]any{"token": record.Value})
	decodeInto(t, rec, &opResult)
	if !opResult.Changed {
		t.Error("revoke reported no transition")
	}

	// Resume after revoke has no effect.
	rec = doJSON(t, handler, http.MethodPost, "/v1/tokens/resume", map[string]any{"token": record.Value})
	decodeInto(t, rec, &opResult)
	if !opResult.OK || opResult.Changed {
		t.Errorf("resume after revoke = %+v, want ok without transition", opResult)
	}

	// Raw values never appear in the listing.
	rec = doJSON(t, handler, http.MethodGet, "/v1/tokens", nil)
	if strings.Contains(rec.Body.String(), record.Value) {
		t.Error("token listing leaks a raw bearer value")
	}
}

func TestServer_TokenIssue_Invalid(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/v1/tokens", map[string]any{
		"agent": "", "scopes": []string{"llm.chat"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_Roles(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/v1/roles/agent-1", map[string]any{"template": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown template status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/roles/agent-1", map[string]any{
		"template":  "research_assistant",
		"overrides": map[string]any{"allow": []string{"(a+)+"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid override status = %d, want 400", rec.Code)
	}

	applyRole(t, handler, "agent-1")

	rec = doJSON(t, handler, http.MethodGet, "/v1/roles/agent-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get role status = %d", rec.Code)
	}
	var assignment manager.RoleAssignment
	decodeInto(t, rec, &assignment)
	if assignment.TemplateID != "research_assistant" {
		t.Errorf("template = %s, want research_assistant", assignment.TemplateID)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/roles/nobody", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing role status = %d, want 404", rec.Code)
	}
}

func TestServer_Templates(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	rec := doJSON(t, handler, http.MethodGet, "/v1/templates", nil)
	var listing struct {
		Version   string              `json:"version"`
		Templates []*manager.Template `json:"templates"`
	}
	decodeInto(t, rec, &listing)
	if listing.Version == "" {
		t.Error("templates listing has no version")
	}
	if len(listing.Templates) != 1 || listing.Templates[0].ID != "research_assistant" {
		t.Errorf("templates = %+v, want [research_assistant]", listing.Templates)
	}
}

func TestServer_TimelineAndExport(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()
	applyRole(t, handler, "agent-1")

	doJSON(t, handler, http.MethodPost, "/v1/decide", map[string]any{
		"agent": "agent-1", "intent": "llm.chat", "target": "gpt-4",
	})

	rec := doJSON(t, handler, http.MethodGet, "/v1/timeline?limit=5", nil)
	var listing struct {
		Entries []timeline.Entry `json:"entries"`
	}
	decodeInto(t, rec, &listing)
	if len(listing.Entries) == 0 {
		t.Fatal("timeline is empty after a decision")
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/timeline?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/timeline/export", nil)
	if got := rec.Header().Get("Content-Type"); got != "application/x-ndjson" {
		t.Errorf("export content type = %s, want application/x-ndjson", got)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) < 2 {
		t.Errorf("export produced %d lines, want the full timeline", len(lines))
	}

	from := time.Now().Add(-time.Minute).Format(time.RFC3339)
	to := time.Now().Add(time.Minute).Format(time.RFC3339)
	rec = doJSON(t, handler, http.MethodGet, "/v1/timeline?from="+from+"&to="+to, nil)
	decodeInto(t, rec, &listing)
	if len(listing.Entries) == 0 {
		t.Error("time-range query returned nothing for a covering window")
	}
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()
	applyRole(t, handler, "agent-1")
	doJSON(t, handler, http.MethodPost, "/v1/decide", map[string]any{
		"agent": "agent-1", "intent": "llm.chat", "target": "gpt-4",
	})

	rec := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "echos_decisions_total") {
		t.Error("metrics output lacks echos_decisions_total")
	}
}

func TestServer_Stream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()
	applyRole(t, s.Routes(), "agent-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %s, want text/event-stream", got)
	}

	// Trigger a broadcast once the subscription is live.
	go func() {
		time.Sleep(50 * time.Millisecond)
		body := strings.NewReader(`{"agent":"agent-1","intent":"llm.chat","target":"gpt-4"}`)
		resp, err := http.Post(ts.URL+"/v1/decide", "application/json", body)
		if err == nil {
			resp.Body.Close()
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			if event := strings.TrimPrefix(line, "event: "); event != string(timeline.EntryEvent) && event != string(timeline.EntryDecision) {
				t.Errorf("unexpected stream event %q", event)
			}
			return
		}
	}
	t.Fatalf("stream closed without an event: %v", scanner.Err())
}
