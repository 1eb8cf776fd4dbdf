package agentconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSimpleConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agent.yaml", `
agent_ref: demo-agent
max_iterations: 10
tools:
  - name: search
    command: ["search-cli"]
    parameters:
      - name: query
        type: string
        inject_as: argument
hooks:
  pre_tool_exec:
    command: ["echo", "pre"]
context_manifest:
  - kind: file
    id: system-prompt
    path: prompt.md
    on_missing: error
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentRef != "demo-agent" {
		t.Errorf("expected agent_ref demo-agent, got %q", cfg.AgentRef)
	}
	tool := cfg.ToolByName("search")
	if tool == nil {
		t.Fatal("expected tool 'search' to be present")
	}
	if len(cfg.ContextManifest) != 1 || cfg.ContextManifest[0].Kind != SourceFile {
		t.Errorf("expected one file source, got %+v", cfg.ContextManifest)
	}
}

func TestLoadResolvesImports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
agent_ref: base-agent
tools:
  - name: shared-tool
    command: ["shared"]
`)
	path := writeFile(t, dir, "agent.yaml", `
imports: ["base.yaml"]
agent_ref: demo-agent
tools:
  - name: extra-tool
    command: ["extra"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentRef != "demo-agent" {
		t.Errorf("expected override agent_ref to win, got %q", cfg.AgentRef)
	}
	if cfg.ToolByName("shared-tool") == nil {
		t.Error("expected imported tool to be present")
	}
	if cfg.ToolByName("extra-tool") == nil {
		t.Error("expected overriding tool to be present")
	}
}

func TestLoadDetectsImportCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
imports: ["b.yaml"]
agent_ref: a
`)
	path := writeFile(t, dir, "b.yaml", `
imports: ["a.yaml"]
agent_ref: b
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected import cycle to be rejected")
	}
}

func TestLoadRejectsMultipleStdinParameters(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agent.yaml", `
agent_ref: demo-agent
tools:
  - name: bad-tool
    command: ["bad"]
    parameters:
      - name: a
        type: string
        inject_as: stdin
      - name: b
        type: string
        inject_as: stdin
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for two stdin parameters")
	}
}

func TestLoadRejectsUnknownSourceKind(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agent.yaml", `
agent_ref: demo-agent
context_manifest:
  - kind: mystery
    id: x
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown source kind")
	}
}

func TestLoadRejectsMissingAgentRef(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agent.yaml", `
tools: []
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing agent_ref")
	}
}
