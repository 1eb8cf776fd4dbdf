// Package rundriver composes workspace resolution, journal/metadata
// bootstrap, janitor reconciliation, and the engine into one end-to-end
// run invocation: everything a CLI entry point needs to turn "run this
// agent against this workspace" into a finished journal and a structured
// result.
package rundriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/contextbuild"
	"github.com/delta-run/delta/internal/engine"
	"github.com/delta-run/delta/internal/hookexec"
	"github.com/delta-run/delta/internal/janitor"
	"github.com/delta-run/delta/internal/journal"
	"github.com/delta-run/delta/internal/llmclient"
	"github.com/delta-run/delta/internal/metrics"
	"github.com/delta-run/delta/internal/toolexec"
	"github.com/delta-run/delta/internal/workspace"
)

// ErrRunIDRequired is returned when Continue is set without a RunID.
var ErrRunIDRequired = errors.New("run id required to continue a run")

// processMetrics is the single Engine metrics instance for this process.
// Prometheus collectors can only be registered once against the default
// registry, so Run reuses the same instance across every invocation rather
// than constructing one per call.
var (
	processMetrics     *metrics.Engine
	processMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Engine {
	processMetricsOnce.Do(func() {
		processMetrics = metrics.NewEngine()
	})
	return processMetrics
}

// Options configures one invocation of Run.
type Options struct {
	// WorkspaceRoot is the directory holding the .delta control plane.
	WorkspaceRoot string
	// AgentConfigPath is the agent YAML file to load.
	AgentConfigPath string
	// RunID selects an existing run (Continue) or names a new one
	// (explicit new-run id); left empty, a new run generates its own id.
	RunID string
	// Continue selects resume semantics over new-run semantics.
	Continue bool
	// Message is the initial task (new run) or the human's answer /
	// follow-up turn (continue).
	Message string
	// Force allows the janitor to reconcile a run recorded on a
	// different host.
	Force bool

	Model         string
	LLMEndpoint   string
	LLMAPIKey     string
	MaxIterations int
}

// Run executes the full new-or-continue procedure and returns the
// finished run's structured result. A non-nil error means the run never
// reached a point where a result could be produced at all (configuration,
// initialization, or duplicate-id failures), that the engine itself
// returned an error (a journal, metadata or artifact write failed, or a
// hook could not be run), or that the final result could not be read back.
// Every other outcome, including a run that ends FAILED, is captured in the
// returned Result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	ws, err := workspace.Open(opts.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	cfg, err := agentconfig.Load(opts.AgentConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load agent config: %w", err)
	}

	runID, runDir, err := resolveRun(ws, opts)
	if err != nil {
		return nil, err
	}

	store, err := journal.Initialize(runDir)
	if err != nil {
		return nil, fmt.Errorf("initialize journal: %w", err)
	}
	defer store.Close()

	vars := contextbuild.Vars{
		AgentHome: filepath.Dir(opts.AgentConfigPath),
		CWD:       ws.Root,
		RunID:     runID,
	}

	if opts.Continue {
		if err := reconcileContinue(store, runDir, opts); err != nil {
			return nil, err
		}
	} else {
		if err := bootstrapNewRun(store, runDir, runID, cfg, opts.Message); err != nil {
			return nil, err
		}
	}

	tools := toolexec.NewExecutor(vars, 0)
	hooks := hookexec.NewExecutor(store, runID)
	llm := llmclient.NewClient(llmclient.Config{Endpoint: opts.LLMEndpoint, APIKey: opts.LLMAPIKey})
	builder := contextbuild.NewBuilder(store, vars)

	eng := engine.New(store, builder, tools, hooks, llm, cfg, opts.Model)
	eng.Metrics = sharedMetrics()
	if opts.MaxIterations > 0 {
		eng.MaxIterations = opts.MaxIterations
	}

	outcome, err := eng.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run engine: %w", err)
	}

	fireOnRunEnd(ctx, store, hooks, cfg, outcome.Status)

	return buildResult(store, runDir, runID, ws, cfg, outcome)
}

// resolveRun decides the run id and directory for opts, creating a fresh
// run directory for a new run (failing with workspace.ErrRunExists on a
// duplicate id) or validating that a continued run already exists.
func resolveRun(ws *workspace.Workspace, opts Options) (runID, runDir string, err error) {
	if opts.Continue {
		if opts.RunID == "" {
			return "", "", ErrRunIDRequired
		}
		if !ws.RunExists(opts.RunID) {
			return "", "", fmt.Errorf("run %q does not exist", opts.RunID)
		}
		return opts.RunID, ws.RunDir(opts.RunID), nil
	}

	runID = opts.RunID
	if runID == "" {
		runID, err = workspace.GenerateRunID(time.Now())
		if err != nil {
			return "", "", fmt.Errorf("generate run id: %w", err)
		}
	} else if !workspace.ValidRunID(runID) {
		return "", "", fmt.Errorf("invalid run id %q", runID)
	}

	runDir, err = ws.CreateRunDir(runID)
	if err != nil {
		return "", "", err
	}
	return runID, runDir, nil
}

// bootstrapNewRun records RUN_START (and USER_MESSAGE, if a task was
// given) and writes the run's initial metadata.
func bootstrapNewRun(store *journal.Store, runDir, runID string, cfg *agentconfig.AgentConfig, task string) error {
	if _, err := store.Append(journal.EventRunStart, journal.RunStartPayload{
		RunID:    runID,
		Task:     task,
		AgentRef: cfg.AgentRef,
	}); err != nil {
		return fmt.Errorf("append run start event: %w", err)
	}
	if task != "" {
		if _, err := store.Append(journal.EventUserMessage, journal.UserMessagePayload{Content: task}); err != nil {
			return fmt.Errorf("append user message event: %w", err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = ""
	}
	meta := &journal.Metadata{
		RunID:       runID,
		AgentRef:    cfg.AgentRef,
		Task:        task,
		Status:      journal.StatusRunning,
		StartTime:   time.Now().UTC(),
		PID:         os.Getpid(),
		Hostname:    hostname,
		ProcessName: processName(),
	}
	if err := journal.WriteMetadataAtomic(runDir, meta); err != nil {
		return fmt.Errorf("write initial run metadata: %w", err)
	}
	return nil
}

// reconcileContinue runs the janitor, then applies whichever of the two
// continuation paths spec.md §4.8 describes: delivering a human answer to
// a WAITING_FOR_INPUT run, or appending a new USER_MESSAGE turn to an
// already-terminal one.
func reconcileContinue(store *journal.Store, runDir string, opts Options) error {
	outcome, err := janitor.Check(store, runDir, opts.Force)
	if err != nil {
		return fmt.Errorf("reconcile run state: %w", err)
	}
	if outcome == janitor.OutcomeAlive {
		return fmt.Errorf("run %q is still active on %s", opts.RunID, opts.WorkspaceRoot)
	}
	if outcome == janitor.OutcomeOrphaned {
		sharedMetrics().ObserveOrphanReclaimed()
	}

	meta, err := journal.ReadMetadata(runDir)
	if err != nil {
		return fmt.Errorf("read run metadata: %w", err)
	}

	switch {
	case meta.Status == journal.StatusWaitingForInput:
		path := filepath.Join(runDir, "interaction", "response.txt")
		if err := os.WriteFile(path, []byte(opts.Message), 0o644); err != nil {
			return fmt.Errorf("write interaction response: %w", err)
		}
	case meta.Status.IsTerminal():
		if opts.Message != "" {
			if _, err := store.Append(journal.EventUserMessage, journal.UserMessagePayload{Content: opts.Message}); err != nil {
				return fmt.Errorf("append user message event: %w", err)
			}
		}
	}

	running := journal.StatusRunning
	if _, err := journal.UpdateMetadata(runDir, journal.MetadataPatch{Status: &running}); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

func processName() string {
	return filepath.Base(os.Args[0])
}

// fireOnRunEnd fires the on_run_end hook if the agent defines one. It is
// best-effort, matching spec.md §4.8's step 6: a hook failure here never
// changes the run's already-finalized status.
func fireOnRunEnd(ctx context.Context, store *journal.Store, hooks *hookexec.Executor, cfg *agentconfig.AgentConfig, status journal.RunStatus) {
	def, ok := cfg.Hooks[agentconfig.HookOnRunEnd]
	if !ok {
		return
	}
	payload, err := marshalRunEndPayload(status)
	if err != nil {
		return
	}
	outcome, err := hooks.Run(ctx, def, hookexec.Invocation{
		Point:    agentconfig.HookOnRunEnd,
		HookName: string(agentconfig.HookOnRunEnd),
		Payload:  payload,
	})
	if err != nil {
		return
	}
	auditStatus := "FAILED"
	if outcome.Succeeded {
		auditStatus = "SUCCESS"
	}
	store.Append(journal.EventHookExecutionAudit, journal.HookExecutionAuditPayload{
		HookName:  string(agentconfig.HookOnRunEnd),
		Status:    auditStatus,
		IOPathRef: outcome.IOPathRef,
	})
}
