package toolexec

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/contextbuild"
)

func TestExecuteRejectsWrongArgumentType(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "needs-number",
		Command: []string{"echo"},
		Parameters: []agentconfig.ToolParameter{
			{Name: "count", Type: agentconfig.ParamNumber, InjectAs: agentconfig.InjectArgument, Required: true},
		},
	}
	args, _ := json.Marshal(map[string]any{"count": "not-a-number"})

	e := NewExecutor(contextbuild.Vars{}, 0)
	if _, err := e.Execute(context.Background(), def, args); err == nil {
		t.Fatal("expected schema validation to reject a string where a number was required")
	}
}

func TestExecuteAcceptsValidArguments(t *testing.T) {
	def := &agentconfig.ToolDefinition{
		Name:    "needs-number",
		Command: []string{"echo"},
		Parameters: []agentconfig.ToolParameter{
			{Name: "count", Type: agentconfig.ParamNumber, InjectAs: agentconfig.InjectArgument, Required: true},
		},
	}
	args, _ := json.Marshal(map[string]any{"count": 3})

	e := NewExecutor(contextbuild.Vars{}, 0)
	if _, err := e.Execute(context.Background(), def, args); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}
