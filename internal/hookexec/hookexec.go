// Package hookexec invokes external commands bound to lifecycle points,
// exchanging structured data with them through a per-invocation I/O
// directory rather than over stdin/stdout. A non-zero exit means the
// hook failed: its outputs are discarded and the caller proceeds with the
// unmodified payload.
package hookexec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/execsafety"
	"github.com/delta-run/delta/internal/journal"
	"github.com/delta-run/delta/internal/procrun"
)

// Executor runs hook invocations against a run's journal store.
type Executor struct {
	Store *journal.Store
	RunID string
}

// NewExecutor constructs an Executor bound to a run.
func NewExecutor(store *journal.Store, runID string) *Executor {
	return &Executor{Store: store, RunID: runID}
}

// Invocation describes one hook call: the point it fires at, the step
// index it occurred on, and the hook-kind-specific payload to hand the
// child process.
type Invocation struct {
	Point     agentconfig.HookPoint
	HookName  string
	StepIndex int
	Payload   json.RawMessage
}

// Outcome is what the engine needs after a hook runs: whether it
// succeeded, the (possibly overridden) payload, and any control
// directives it issued.
type Outcome struct {
	Succeeded     bool
	FinalPayload  json.RawMessage
	Control       Control
	IOPathRef     string
}

// Control mirrors output/control.json: directives independent of payload
// content.
type Control struct {
	Skip   bool   `json:"skip"`
	Reason string `json:"reason,omitempty"`
}

type contextDoc struct {
	HookName  string    `json:"hook_name"`
	StepIndex int       `json:"step_index"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Run executes def against inv, writing its full I/O directory and
// returning the outcome. The journal's HOOK_EXECUTION_AUDIT event is the
// caller's responsibility — Run only performs the invocation and artifact
// capture.
func (e *Executor) Run(ctx context.Context, def agentconfig.HookDefinition, inv Invocation) (Outcome, error) {
	if err := execsafety.CheckCommand(def.Command); err != nil {
		return Outcome{}, fmt.Errorf("hook %q: unsafe command template: %w", inv.HookName, err)
	}

	seq := e.Store.NextHookSeq()

	ctxDoc := contextDoc{
		HookName:  inv.HookName,
		StepIndex: inv.StepIndex,
		RunID:     e.RunID,
		Timestamp: time.Now().UTC(),
	}
	ctxJSON, err := json.Marshal(ctxDoc)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal hook context: %w", err)
	}

	dir, err := e.Store.PrepareHookDirs(seq, inv.HookName, journal.HookInput{
		ContextJSON: ctxJSON,
		PayloadJSON: inv.Payload,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("prepare hook io directory: %w", err)
	}

	env := append(os.Environ(),
		"DELTA_RUN_ID="+e.RunID,
		"DELTA_HOOK_IO_PATH="+dir,
	)

	res, err := procrun.Run(ctx, procrun.Request{
		Argv:    def.Command,
		Env:     env,
		Timeout: def.Timeout(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("hook %q: %w", inv.HookName, err)
	}

	if err := e.Store.WriteHookExecutionMeta(dir, journal.HookExecutionMeta{
		Command:    def.Command,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		DurationMs: res.Duration.Milliseconds(),
	}); err != nil {
		return Outcome{}, fmt.Errorf("write hook execution metadata: %w", err)
	}

	outcome := readOutputDir(dir)
	outcome.Succeeded = res.ExitCode == 0
	outcome.IOPathRef = dir
	if !outcome.Succeeded {
		outcome.FinalPayload = inv.Payload
		outcome.Control = Control{}
	} else if outcome.FinalPayload == nil {
		outcome.FinalPayload = inv.Payload
	}

	return outcome, nil
}

// readOutputDir reads back whatever the hook wrote to output/, applying
// the payload precedence rule: final_payload.json wins over
// payload_override.dat when both are present.
func readOutputDir(dir string) Outcome {
	var out Outcome

	if data, err := os.ReadFile(filepath.Join(dir, "output", "final_payload.json")); err == nil {
		out.FinalPayload = json.RawMessage(data)
	} else if data, err := os.ReadFile(filepath.Join(dir, "output", "payload_override.dat")); err == nil {
		out.FinalPayload = json.RawMessage(data)
	}

	if data, err := os.ReadFile(filepath.Join(dir, "output", "control.json")); err == nil {
		var c Control
		if json.Unmarshal(data, &c) == nil {
			out.Control = c
		}
	}

	return out
}
