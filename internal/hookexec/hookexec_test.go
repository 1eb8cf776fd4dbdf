package hookexec

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/journal"
)

func newTestStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunSucceedsAndWritesArtifacts(t *testing.T) {
	store := newTestStore(t)
	e := NewExecutor(store, "run-1")

	def := agentconfig.HookDefinition{Command: []string{"sh", "-c", "echo ok"}}
	inv := Invocation{Point: agentconfig.HookPreToolExec, HookName: "pre_tool_exec", StepIndex: 1, Payload: json.RawMessage(`{"tool":"search"}`)}

	outcome, err := e.Run(context.Background(), def, inv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Succeeded {
		t.Error("expected hook to succeed")
	}
	if string(outcome.FinalPayload) != string(inv.Payload) {
		t.Errorf("expected unmodified payload passthrough, got %s", outcome.FinalPayload)
	}

	if _, err := os.Stat(filepath.Join(outcome.IOPathRef, "execution_meta", "stdout.log")); err != nil {
		t.Errorf("expected stdout.log to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outcome.IOPathRef, "input", "context.json")); err != nil {
		t.Errorf("expected input/context.json to exist: %v", err)
	}
}

func TestRunReadsControlSkip(t *testing.T) {
	store := newTestStore(t)
	e := NewExecutor(store, "run-1")

	def := agentconfig.HookDefinition{Command: []string{"sh", "-c",
		`echo '{"skip":true,"reason":"already handled"}' > "$DELTA_HOOK_IO_PATH/output/control.json"`}}
	inv := Invocation{HookName: "pre_tool_exec", Payload: json.RawMessage(`{}`)}

	outcome, err := e.Run(context.Background(), def, inv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Succeeded {
		t.Fatal("expected hook to succeed")
	}
	if !outcome.Control.Skip {
		t.Errorf("expected control.skip=true, got %+v", outcome.Control)
	}
}

func TestRunFailureDiscardsOutputs(t *testing.T) {
	store := newTestStore(t)
	e := NewExecutor(store, "run-1")

	def := agentconfig.HookDefinition{Command: []string{"sh", "-c",
		`echo '{"overridden":true}' > "$DELTA_HOOK_IO_PATH/output/final_payload.json"; exit 1`}}
	inv := Invocation{HookName: "pre_llm_req", Payload: json.RawMessage(`{"original":true}`)}

	outcome, err := e.Run(context.Background(), def, inv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Succeeded {
		t.Fatal("expected hook to be reported as failed")
	}
	if string(outcome.FinalPayload) != string(inv.Payload) {
		t.Errorf("expected failed hook's output to be ignored, got %s", outcome.FinalPayload)
	}
}

func TestRunEnvironmentExposesRunIDAndIOPath(t *testing.T) {
	store := newTestStore(t)
	e := NewExecutor(store, "run-42")

	def := agentconfig.HookDefinition{Command: []string{"sh", "-c",
		`echo "$DELTA_RUN_ID" > "$DELTA_HOOK_IO_PATH/output/final_payload.json"`}}
	inv := Invocation{HookName: "on_error", Payload: json.RawMessage(`{}`)}

	outcome, err := e.Run(context.Background(), def, inv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := string(outcome.FinalPayload)
	if got != "run-42\n" {
		t.Errorf("expected DELTA_RUN_ID to be visible to the hook, got %q", got)
	}
}

func TestRunRejectsUnsafeCommand(t *testing.T) {
	store := newTestStore(t)
	e := NewExecutor(store, "run-1")

	def := agentconfig.HookDefinition{Command: []string{"echo; rm -rf /"}}
	inv := Invocation{HookName: "on_run_end", Payload: json.RawMessage(`{}`)}

	if _, err := e.Run(context.Background(), def, inv); err == nil {
		t.Fatal("expected unsafe hook command to be rejected")
	}
}
