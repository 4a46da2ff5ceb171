//go:build integration

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kagehq/echos-sub001/pkg/chaos"
	"github.com/kagehq/echos-sub001/pkg/config"
	"github.com/kagehq/echos-sub001/pkg/consent"
	"github.com/kagehq/echos-sub001/pkg/engine"
	"github.com/kagehq/echos-sub001/pkg/policy/manager"
	"github.com/kagehq/echos-sub001/pkg/policy/store"
	"github.com/kagehq/echos-sub001/pkg/server"
	"github.com/kagehq/echos-sub001/pkg/timeline"
	"github.com/kagehq/echos-sub001/pkg/token"
)

// TestDecisionAPIIntegration exercises the end-to-end flow: template load,
// role application, hot reload, ask suspension, human resolution with a
// grant, and the token bypass, all over the HTTP API.
func TestDecisionAPIIntegration(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "research_assistant.yaml", `name: Research Assistant
allow:
  - "llm.chat:*"
ask:
  - "slack.post:*"
block:
  - "fs.delete:*"
`)

	mgr := manager.NewManager(&manager.ManagerConfig{
		Path:  dir,
		Watch: true,
		Watcher: &manager.WatcherConfig{
			Path:             dir,
			DebounceInterval: 20 * time.Millisecond,
			Extensions:       []string{".yaml", ".yml"},
		},
	}, nil)
	if err := mgr.Load(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer mgr.Stop()

	tl := timeline.NewLog(nil, nil)
	st := store.NewFileStore(filepath.Join(dir, "assignments.json"))
	resolver, err := manager.NewResolver(ctx, mgr, st, tl, nil)
	if err != nil {
		t.Fatal(err)
	}

	tokens := token.NewManager(&token.Config{SigningKey: "integration-key"}, tl, nil, nil)
	orchestrator := consent.NewOrchestrator(&consent.Config{Deadline: 10 * time.Second}, tokens, tl, nil, nil)
	eng := engine.New(nil, tokens, chaos.NewInjector(nil), resolver, orchestrator, tl, nil, nil)

	cfg := config.DefaultConfig()
	srv := server.New(&cfg.Server, server.Deps{
		Engine:   eng,
		Consent:  orchestrator,
		Tokens:   tokens,
		Manager:  mgr,
		Resolver: resolver,
		Timeline: tl,
	}, nil)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	post := func(path string, body map[string]any) map[string]any {
		t.Helper()
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	// Apply a role, then decide.
	post("/v1/roles/agent-1", map[string]any{"template": "research_assistant"})

	decision := post("/v1/decide", map[string]any{"agent": "agent-1", "intent": "llm.chat", "target": "gpt-4"})
	if decision["status"] != "allow" {
		t.Fatalf("llm.chat decision = %v, want allow", decision["status"])
	}

	// Ask flow with a long-polling waiter.
	decision = post("/v1/decide", map[string]any{"agent": "agent-1", "intent": "slack.post", "target": "#general"})
	if decision["status"] != "ask" {
		t.Fatalf("slack.post decision = %v, want ask", decision["status"])
	}
	eventID := decision["id"].(string)

	awaited := make(chan map[string]any, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/v1/consent/" + eventID)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		var out map[string]any
		if json.NewDecoder(resp.Body).Decode(&out) == nil {
			awaited <- out
		}
	}()

	time.Sleep(100 * time.Millisecond)
	post("/v1/consent/"+eventID, map[string]any{
		"verdict": "allow",
		"grant":   map[string]any{"scopes": []string{"slack.post"}, "duration_sec": 300},
	})

	select {
	case result := <-awaited:
		if result["status"] != "allow" {
			t.Fatalf("awaited status = %v, want allow", result["status"])
		}
		tokenObj, ok := result["token"].(map[string]any)
		if !ok || tokenObj["token"] == "" {
			t.Fatal("awaited resolution carries no token")
		}

		// The granted token bypasses the ask on the next call.
		decision = post("/v1/decide", map[string]any{
			"agent": "agent-1", "intent": "slack.post", "target": "#general",
			"token": tokenObj["token"],
		})
		if decision["status"] != "allow" || decision["byToken"] != true {
			t.Fatalf("decision with token = %v, want allow byToken", decision)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("long-poll waiter never resolved")
	}

	// Hot reload: a new template shows up without a restart.
	writeTemplate(t, dir, "ops_bot.yaml", "allow:\n  - \"deploy.status:*\"\n")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Has("ops_bot") {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !mgr.Has("ops_bot") {
		t.Fatal("hot reload never picked up the new template")
	}
}

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
