package toolexec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/contextbuild"
)

func TestExecuteArgumentInjection(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "echo-arg",
		Command: []string{"echo"},
		Parameters: []agentconfig.ToolParameter{
			{Name: "message", Type: agentconfig.ParamString, InjectAs: agentconfig.InjectArgument},
		},
	}
	args, _ := json.Marshal(map[string]any{"message": "hello"})

	e := NewExecutor(contextbuild.Vars{}, 0)
	res, err := e.Execute(context.Background(), def, args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("expected stdout 'hello', got %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
}

func TestExecuteOptionInjection(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "cat-option",
		Command: []string{"cat"},
		Parameters: []agentconfig.ToolParameter{
			{Name: "path", Type: agentconfig.ParamString, InjectAs: agentconfig.InjectOption, OptionName: "-n"},
		},
	}
	args, _ := json.Marshal(map[string]any{"path": "/dev/null"})

	e := NewExecutor(contextbuild.Vars{}, 0)
	res, err := e.Execute(context.Background(), def, args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"cat", "-n", "/dev/null"}
	if len(res.ResolvedCommand) != len(want) {
		t.Fatalf("unexpected resolved command: %v", res.ResolvedCommand)
	}
	for i := range want {
		if res.ResolvedCommand[i] != want[i] {
			t.Errorf("resolved command[%d] = %q, want %q", i, res.ResolvedCommand[i], want[i])
		}
	}
}

func TestExecuteStdinInjection(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "cat-stdin",
		Command: []string{"cat"},
		Parameters: []agentconfig.ToolParameter{
			{Name: "body", Type: agentconfig.ParamString, InjectAs: agentconfig.InjectStdin},
		},
	}
	args, _ := json.Marshal(map[string]any{"body": "piped content"})

	e := NewExecutor(contextbuild.Vars{}, 0)
	res, err := e.Execute(context.Background(), def, args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "piped content" {
		t.Errorf("expected stdout 'piped content', got %q", res.Stdout)
	}
}

func TestExecuteNoStdinParameterLeavesStdinEmpty(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "cat-noop",
		Command: []string{"cat"},
	}
	e := NewExecutor(contextbuild.Vars{}, 0)
	res, err := e.Execute(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Stdout != "" {
		t.Errorf("expected empty stdout, got %q", res.Stdout)
	}
}

func TestExecuteRejectsUnsafeCommandTemplate(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "unsafe",
		Command: []string{"echo; rm -rf /"},
	}
	e := NewExecutor(contextbuild.Vars{}, 0)
	if _, err := e.Execute(context.Background(), def, nil); err == nil {
		t.Fatal("expected unsafe command template to be rejected")
	}
}

func TestExecuteReportsNonZeroExit(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "fail",
		Command: []string{"sh", "-c", "exit 3"},
	}
	e := NewExecutor(contextbuild.Vars{}, 0)
	res, err := e.Execute(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", res.ExitCode)
	}
}

func TestExecuteMissingRequiredParameter(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "needs-arg",
		Command: []string{"echo"},
		Parameters: []agentconfig.ToolParameter{
			{Name: "message", Type: agentconfig.ParamString, InjectAs: agentconfig.InjectArgument, Required: true},
		},
	}
	e := NewExecutor(contextbuild.Vars{}, 0)
	if _, err := e.Execute(context.Background(), def, nil); err == nil {
		t.Fatal("expected error for missing required parameter")
	}
}
