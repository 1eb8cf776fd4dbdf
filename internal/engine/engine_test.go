package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/contextbuild"
	"github.com/delta-run/delta/internal/hookexec"
	"github.com/delta-run/delta/internal/journal"
	"github.com/delta-run/delta/internal/llmclient"
	"github.com/delta-run/delta/internal/toolexec"
)

// newTestEngine wires an Engine against a temp run directory and a fake
// LLM server driven by responses, the JSON bodies to send back, one per
// call in order.
func newTestEngine(t *testing.T, cfg *agentconfig.AgentConfig, responses []string) (*Engine, *journal.Store, string) {
	t.Helper()
	runDir := t.TempDir()
	store, err := journal.Initialize(runDir)
	if err != nil {
		t.Fatalf("journal.Initialize: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := journal.WriteMetadataAtomic(runDir, &journal.Metadata{
		RunID:     "run-1",
		Status:    journal.StatusRunning,
		StartTime: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("WriteMetadataAtomic: %v", err)
	}

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(atomic.AddInt32(&calls, 1)) - 1
		if i >= len(responses) {
			t.Fatalf("llm called more times (%d) than responses provided (%d)", i+1, len(responses))
		}
		w.Write([]byte(responses[i]))
	}))
	t.Cleanup(srv.Close)

	vars := contextbuild.Vars{CWD: runDir}
	builder := contextbuild.NewBuilder(store, vars)
	tools := toolexec.NewExecutor(vars, 0)
	hooks := hookexec.NewExecutor(store, cfg.AgentRef)
	llm := llmclient.NewClient(llmclient.Config{Endpoint: srv.URL, HTTPClient: srv.Client()})

	e := New(store, builder, tools, hooks, llm, cfg, "test-model")
	return e, store, runDir
}

func TestRunCompletesWithNoToolCalls(t *testing.T) {
	cfg := &agentconfig.AgentConfig{AgentRef: "agent-1", MaxIterations: 5}
	e, store, runDir := newTestEngine(t, cfg, []string{
		`{"choices":[{"message":{"role":"assistant","content":"all done"}}]}`,
	})

	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != journal.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", outcome.Status)
	}

	ends, err := store.ReadByType(journal.EventRunEnd)
	if err != nil {
		t.Fatalf("ReadByType: %v", err)
	}
	if len(ends) != 1 {
		t.Fatalf("expected exactly one RUN_END event, got %d", len(ends))
	}

	meta, err := journal.ReadMetadata(runDir)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Status != journal.StatusCompleted {
		t.Errorf("expected metadata status COMPLETED, got %s", meta.Status)
	}
}

func TestRunDispatchesToolThenCompletes(t *testing.T) {
	cfg := &agentconfig.AgentConfig{
		AgentRef:      "agent-1",
		MaxIterations: 5,
		Tools: []agentconfig.ToolDefinition{
			{
				Name:    "echoer",
				Command: []string{"echo"},
				Parameters: []agentconfig.ToolParameter{
					{Name: "message", Type: agentconfig.ParamString, InjectAs: agentconfig.InjectArgument, Required: true},
				},
			},
		},
	}
	e, store, runDir := newTestEngine(t, cfg, []string{
		`{"choices":[{"message":{"role":"assistant","content":"calling tool","tool_calls":[{"id":"call-1","type":"function","function":{"name":"echoer","arguments":"{\"message\":\"hi\"}"}}]}}]}`,
		`{"choices":[{"message":{"role":"assistant","content":"done"}}]}`,
	})

	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != journal.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", outcome.Status)
	}

	results, err := store.ReadByType(journal.EventActionResult)
	if err != nil {
		t.Fatalf("ReadByType: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one ACTION_RESULT event, got %d", len(results))
	}
	var payload journal.ActionResultPayload
	if err := json.Unmarshal(results[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal ACTION_RESULT payload: %v", err)
	}
	if payload.Status != journal.ActionSuccess {
		t.Errorf("expected SUCCESS, got %s", payload.Status)
	}
	if !strings.Contains(payload.ObservationContent, "hi") {
		t.Errorf("expected observation to contain tool output, got %q", payload.ObservationContent)
	}

	meta, err := journal.ReadMetadata(runDir)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.IterationsCompleted != 1 {
		t.Errorf("expected 1 completed iteration, got %d", meta.IterationsCompleted)
	}
}

func TestRunSuspendsOnAskHuman(t *testing.T) {
	cfg := &agentconfig.AgentConfig{AgentRef: "agent-1", MaxIterations: 5}
	e, _, runDir := newTestEngine(t, cfg, []string{
		`{"choices":[{"message":{"role":"assistant","content":"need input","tool_calls":[{"id":"call-1","type":"function","function":{"name":"ask_human","arguments":"{\"question\":\"proceed?\"}"}}]}}]}`,
	})

	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != journal.StatusWaitingForInput {
		t.Fatalf("expected WAITING_FOR_INPUT, got %s", outcome.Status)
	}
	if outcome.Interaction == nil || outcome.Interaction.Question != "proceed?" {
		t.Fatalf("expected interaction question to be carried on outcome, got %+v", outcome.Interaction)
	}

	data, err := os.ReadFile(runDir + "/interaction/request.json")
	if err != nil {
		t.Fatalf("expected request.json to exist: %v", err)
	}
	if !strings.Contains(string(data), "proceed?") {
		t.Errorf("expected request.json to contain the question, got %q", data)
	}

	meta, err := journal.ReadMetadata(runDir)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Status != journal.StatusWaitingForInput {
		t.Errorf("expected metadata status WAITING_FOR_INPUT, got %s", meta.Status)
	}
}

func TestRunFailsAfterMaxIterations(t *testing.T) {
	cfg := &agentconfig.AgentConfig{
		AgentRef:      "agent-1",
		MaxIterations: 2,
		Tools: []agentconfig.ToolDefinition{
			{Name: "echoer", Command: []string{"echo", "again"}},
		},
	}
	resp := `{"choices":[{"message":{"role":"assistant","content":"looping","tool_calls":[{"id":"call-1","type":"function","function":{"name":"echoer","arguments":"{}"}}]}}]}`
	e, _, runDir := newTestEngine(t, cfg, []string{resp, resp})

	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != journal.StatusFailed {
		t.Fatalf("expected FAILED, got %s", outcome.Status)
	}
	if outcome.Error != "max iterations reached" {
		t.Errorf("unexpected error message: %q", outcome.Error)
	}

	meta, err := journal.ReadMetadata(runDir)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Status != journal.StatusFailed {
		t.Errorf("expected metadata status FAILED, got %s", meta.Status)
	}
}

