package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_Load(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "research_assistant.yaml", researchAssistantYAML)
	writeTemplate(t, dir, "ops_bot.yaml", "allow:\n  - \"deploy.status:*\"\n")

	m := NewManager(&ManagerConfig{Path: dir}, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	templates := m.List()
	if len(templates) != 2 {
		t.Fatalf("List() length = %d, want 2", len(templates))
	}
	// Sorted by id.
	if templates[0].ID != "ops_bot" || templates[1].ID != "research_assistant" {
		t.Errorf("List() ids = [%s %s], want [ops_bot research_assistant]",
			templates[0].ID, templates[1].ID)
	}

	if !m.Has("research_assistant") {
		t.Error("Has(research_assistant) = false, want true")
	}
	if m.Has("missing") {
		t.Error("Has(missing) = true, want false")
	}
}

func TestManager_Load_BrokenTemplateIsolated(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "good.yaml", researchAssistantYAML)
	writeTemplate(t, dir, "broken.yaml", ": not yaml [")

	m := NewManager(&ManagerConfig{Path: dir}, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v, want nil (broken file must be isolated)", err)
	}

	if !m.Has("good") {
		t.Error("Has(good) = false, want true")
	}
	if m.Has("broken") {
		t.Error("Has(broken) = true, want the broken template omitted")
	}
}

func TestManager_Reload_AtomicSwap(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "first.yaml", researchAssistantYAML)

	m := NewManager(&ManagerConfig{Path: dir}, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	v1 := m.Version()

	writeTemplate(t, dir, "second.yaml", "allow:\n  - \"x.y:*\"\n")
	if err := m.reload(); err != nil {
		t.Fatalf("reload() error = %v, want nil", err)
	}

	if m.Version() == v1 {
		t.Error("Version() unchanged after reload with new template")
	}
	if got := len(m.List()); got != 2 {
		t.Errorf("List() length after reload = %d, want 2", got)
	}

	// Deleting a template file removes it from the set on the next rebuild.
	if err := os.Remove(filepath.Join(dir, "first.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := m.reload(); err != nil {
		t.Fatalf("reload() error = %v, want nil", err)
	}
	if m.Has("first") {
		t.Error("Has(first) = true after its file was deleted")
	}
}

func TestManager_Watch_TriggersReload(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "first.yaml", researchAssistantYAML)

	m := NewManager(&ManagerConfig{
		Path:  dir,
		Watch: true,
		Watcher: &WatcherConfig{
			Path:             dir,
			DebounceInterval: 10 * time.Millisecond,
			Extensions:       []string{".yaml", ".yml"},
		},
	}, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	defer m.Stop()

	writeTemplate(t, dir, "hot.yaml", "allow:\n  - \"hot.reload:*\"\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.Has("hot") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("template added on disk never appeared after hot reload")
}

func TestRegistry_Replace(t *testing.T) {
	r := NewTemplateRegistry()
	r.Replace([]*Template{{ID: "a"}, {ID: "b"}})

	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}

	r.Replace([]*Template{{ID: "c"}})
	if r.Count() != 1 {
		t.Fatalf("Count() after Replace = %d, want 1", r.Count())
	}
	if r.Has("a") {
		t.Error("Has(a) = true after replacement, want false")
	}
	if !r.Has("c") {
		t.Error("Has(c) = false, want true")
	}
}
