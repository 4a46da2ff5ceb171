package manager

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const researchAssistantYAML = `name: Research Assistant
version: "1.0.0"
description: Read-mostly research agent
allow:
  - "llm.chat:*"
  - "fs.read:*"
ask:
  - "slack.post:*"
block:
  - "fs.delete:*"
limits:
  daily_usd: 25
  monthly_usd: 300
`

func writeTemplate(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write template %s: %v", name, err)
	}
	return path
}

func TestTemplateLoader_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "research_assistant.yaml", researchAssistantYAML)

	loader := NewTemplateLoader(nil)
	tmpl, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v, want nil", err)
	}

	if tmpl.ID != "research_assistant" {
		t.Errorf("tmpl.ID = %q, want %q (derived from file name)", tmpl.ID, "research_assistant")
	}
	if tmpl.Name != "Research Assistant" {
		t.Errorf("tmpl.Name = %q, want %q", tmpl.Name, "Research Assistant")
	}
	if len(tmpl.Allow) != 2 {
		t.Errorf("len(tmpl.Allow) = %d, want 2", len(tmpl.Allow))
	}
	if len(tmpl.Block) != 1 || tmpl.Block[0] != "fs.delete:*" {
		t.Errorf("tmpl.Block = %v, want [fs.delete:*]", tmpl.Block)
	}
	if tmpl.SourceFile != path {
		t.Errorf("tmpl.SourceFile = %q, want %q", tmpl.SourceFile, path)
	}
}

func TestTemplateLoader_NameDefaultsToID(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "minimal.yaml", "allow:\n  - \"llm.chat:*\"\n")

	loader := NewTemplateLoader(nil)
	tmpl, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v, want nil", err)
	}

	if tmpl.Name != "minimal" {
		t.Errorf("tmpl.Name = %q, want %q", tmpl.Name, "minimal")
	}
}

func TestTemplateLoader_FileNotFound(t *testing.T) {
	loader := NewTemplateLoader(nil)

	_, err := loader.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("LoadFromFile() error = nil, want *LoadError")
	}

	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("LoadFromFile() error type = %T, want *LoadError", err)
	}
}

func TestTemplateLoader_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "broken.yaml", "allow: [unclosed\n")

	loader := NewTemplateLoader(nil)
	_, err := loader.LoadFromFile(path)
	if err == nil {
		t.Fatal("LoadFromFile() error = nil, want *ParseError")
	}

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("LoadFromFile() error type = %T, want *ParseError", err)
	}
}

func TestTemplateLoader_MaxFileSize(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "big.yaml", researchAssistantYAML)

	loader := NewTemplateLoader(&LoaderConfig{
		MaxFileSize: 10,
		Extensions:  []string{".yaml"},
	})

	_, err := loader.LoadFromFile(path)
	if err == nil {
		t.Fatal("LoadFromFile() error = nil, want size limit error")
	}
}

func TestTemplateLoader_LoadFromDirectory_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "good.yaml", researchAssistantYAML)
	writeTemplate(t, dir, "broken.yaml", "allow: [unclosed\n")
	writeTemplate(t, dir, "ignored.txt", "not a template")
	writeTemplate(t, dir, ".hidden.yaml", researchAssistantYAML)

	loader := NewTemplateLoader(nil)
	templates, errList, err := loader.LoadFromDirectory(dir)
	if err != nil {
		t.Fatalf("LoadFromDirectory() error = %v, want nil", err)
	}

	if len(templates) != 1 {
		t.Fatalf("LoadFromDirectory() returned %d templates, want 1", len(templates))
	}
	if templates[0].ID != "good" {
		t.Errorf("templates[0].ID = %q, want %q", templates[0].ID, "good")
	}

	if len(errList.Errors) != 1 {
		t.Errorf("errList has %d errors, want 1 (broken.yaml only)", len(errList.Errors))
	}
}

func TestTemplateLoader_LoadFromDirectory_Missing(t *testing.T) {
	loader := NewTemplateLoader(nil)

	_, _, err := loader.LoadFromDirectory(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("LoadFromDirectory() error = nil, want error for missing directory")
	}
}
