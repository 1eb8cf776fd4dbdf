package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/contextbuild"
	"github.com/delta-run/delta/internal/hookexec"
	"github.com/delta-run/delta/internal/journal"
	"github.com/delta-run/delta/internal/llmclient"
	"github.com/delta-run/delta/internal/metrics"
	"github.com/delta-run/delta/internal/toolexec"
)

// DefaultMaxIterations bounds a run when the agent config leaves
// max_iterations unset.
const DefaultMaxIterations = 50

// Engine runs one agent's Think-Act-Observe loop against an open journal.
// It holds no state of its own across iterations beyond the loop counter:
// every iteration's messages come from Builder, which in turn replays the
// journal from disk, so a crash mid-run loses nothing a fresh process
// can't reconstruct.
type Engine struct {
	Store         *journal.Store
	Builder       *contextbuild.Builder
	Tools         *toolexec.Executor
	Hooks         *hookexec.Executor
	LLM           *llmclient.Client
	Cfg           *agentconfig.AgentConfig
	Model         string
	MaxIterations int
	Logger        *slog.Logger

	// Metrics receives per-iteration, per-tool, and per-hook observations.
	// Nil is safe: every Observe* call on a nil *metrics.Engine is a no-op.
	Metrics *metrics.Engine

	iteration int
}

// New constructs an Engine. MaxIterations falls back to cfg.MaxIterations,
// then to DefaultMaxIterations.
func New(store *journal.Store, builder *contextbuild.Builder, tools *toolexec.Executor, hooks *hookexec.Executor, llm *llmclient.Client, cfg *agentconfig.AgentConfig, model string) *Engine {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &Engine{
		Store:         store,
		Builder:       builder,
		Tools:         tools,
		Hooks:         hooks,
		LLM:           llm,
		Cfg:           cfg,
		Model:         model,
		MaxIterations: maxIter,
		Logger:        slog.Default(),
	}
}

// Outcome is what a run settled into: a terminal status, or a suspended
// one awaiting a human answer.
type Outcome struct {
	Status      journal.RunStatus
	Error       string
	Interaction *InteractionRequest
}

// Run drives iterations until the model stops requesting tools, an
// ask_human call suspends the run, or the iteration budget is exhausted.
// A non-nil error return means the journal, run metadata or an artifact
// could not be written, or a bound hook could not be run at all (the hook
// executor returned an error) — every other failure mode is absorbed into
// Outcome and recorded as journal events instead.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	for e.iteration = 0; e.iteration < e.MaxIterations; e.iteration++ {
		outcome, done, err := e.step(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if done {
			e.Metrics.ObserveIteration(string(outcome.Status))
			e.Metrics.ObserveRunStatus(string(outcome.Status))
			return outcome, nil
		}
		e.Metrics.ObserveIteration("continue")
	}
	outcome, err := e.finish(journal.StatusFailed, "max iterations reached")
	if err == nil {
		e.Metrics.ObserveIteration(string(outcome.Status))
		e.Metrics.ObserveRunStatus(string(outcome.Status))
	}
	return outcome, err
}

// step runs one PREPARE through OBSERVE cycle. done is true once the run
// has reached a terminal or suspended state and Run should stop looping.
func (e *Engine) step(ctx context.Context) (Outcome, bool, error) {
	messages, err := e.Builder.Build(ctx, e.Cfg.ContextManifest)
	if err != nil {
		outcome, ferr := e.failRun(ctx, fmt.Errorf("build context: %w", err))
		return outcome, true, ferr
	}

	reqEnvelope, err := buildRequest(e.Model, messages, e.Cfg.Tools)
	if err != nil {
		outcome, ferr := e.failRun(ctx, fmt.Errorf("build llm request: %w", err))
		return outcome, true, ferr
	}

	if outcome, fired, err := e.runHook(ctx, agentconfig.HookPreLLMReq, json.RawMessage(reqEnvelope)); err != nil {
		return Outcome{}, true, err
	} else if fired && outcome.Succeeded && len(outcome.FinalPayload) > 0 {
		reqEnvelope = outcome.FinalPayload
	}

	started := time.Now()
	inv, err := e.LLM.Send(ctx, reqEnvelope)
	if err != nil {
		outcome, ferr := e.failRun(ctx, fmt.Errorf("llm request failed: %w", err))
		return outcome, true, ferr
	}

	invocationID := uuid.NewString()
	if err := e.Store.SaveInvocation(invocationID, journal.InvocationArtifacts{
		Request:  inv.Request,
		Response: inv.Response,
		Metadata: journal.InvocationMetadata{
			StartedAt:  started,
			EndedAt:    started.Add(inv.Duration),
			DurationMs: inv.Duration.Milliseconds(),
		},
	}); err != nil {
		return Outcome{}, true, fmt.Errorf("persist llm invocation: %w", err)
	}

	respEnvelope := inv.Response
	if outcome, fired, err := e.runHook(ctx, agentconfig.HookPostLLMResp, respEnvelope); err != nil {
		return Outcome{}, true, err
	} else if fired && outcome.Succeeded && len(outcome.FinalPayload) > 0 {
		respEnvelope = outcome.FinalPayload
	}

	parsed, err := parseResponse(respEnvelope)
	if err != nil {
		outcome, ferr := e.failRun(ctx, fmt.Errorf("parse llm response: %w", err))
		return outcome, true, ferr
	}
	if len(parsed.Choices) == 0 {
		outcome, ferr := e.failRun(ctx, fmt.Errorf("llm response contained no choices"))
		return outcome, true, ferr
	}
	choice := parsed.Choices[0].Message

	var toolCalls []journal.ToolCall
	for _, tc := range choice.ToolCalls {
		toolCalls = append(toolCalls, journal.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: json.RawMessage(tc.Function.Arguments)})
	}

	if _, err := e.Store.Append(journal.EventThought, journal.ThoughtPayload{
		Content:          choice.Content,
		LLMInvocationRef: invocationID,
		ToolCalls:        toolCalls,
	}); err != nil {
		return Outcome{}, true, fmt.Errorf("append thought event: %w", err)
	}

	if len(toolCalls) == 0 {
		e.Logger.Info("run completed", "run_dir", e.Store.RunDir(), "iteration", e.iteration)
		outcome, err := e.finish(journal.StatusCompleted, "")
		return outcome, true, err
	}

	for _, tc := range toolCalls {
		if tc.Name == AskHumanTool {
			question, err := parseAskHumanArgs(tc.Args)
			if err != nil {
				if rerr := e.recordToolFailure(tc.ID, tc.Name, tc.Args, nil, err.Error()); rerr != nil {
					return Outcome{}, true, rerr
				}
				continue
			}
			outcome, err := e.suspendForHuman(tc.ID, question)
			return outcome, true, err
		}
		if err := e.dispatchTool(ctx, tc); err != nil {
			return Outcome{}, true, err
		}
	}

	if err := e.advance(); err != nil {
		return Outcome{}, true, err
	}
	return Outcome{}, false, nil
}

// dispatchTool resolves, hooks, executes, and observes one tool call.
// Execution failures (unknown tool, bad arguments, non-zero exit) are
// recorded as a FAILED ACTION_RESULT and never returned as an error: the
// loop continues to the next tool call or iteration. The error return is
// reserved for journal/artifact writes that themselves failed and for a
// bound hook that the hook executor could not run.
func (e *Engine) dispatchTool(ctx context.Context, tc journal.ToolCall) error {
	actionID := tc.ID
	if actionID == "" {
		actionID = uuid.NewString()
	}

	def := e.Cfg.ToolByName(tc.Name)
	if def == nil {
		return e.recordToolFailure(actionID, tc.Name, tc.Args, nil, fmt.Sprintf("unknown tool %q", tc.Name))
	}

	argv, stdin, err := e.Tools.Resolve(def, tc.Args)
	if err != nil {
		return e.recordToolFailure(actionID, tc.Name, tc.Args, nil, err.Error())
	}

	if _, err := e.Store.Append(journal.EventActionRequest, journal.ActionRequestPayload{
		ActionID:        actionID,
		ToolName:        tc.Name,
		ToolArgs:        tc.Args,
		ResolvedCommand: argv,
	}); err != nil {
		return fmt.Errorf("append action request event: %w", err)
	}

	outcome, _, err := e.runHook(ctx, agentconfig.HookPreToolExec, preToolExecPayload{
		ActionID:        actionID,
		ToolName:        tc.Name,
		ResolvedCommand: argv,
	})
	if err != nil {
		return err
	}

	if outcome.Control.Skip {
		reason := outcome.Control.Reason
		if reason == "" {
			reason = "skipped by pre_tool_exec hook"
		}
		_, err := e.Store.Append(journal.EventActionResult, journal.ActionResultPayload{
			ActionID:           actionID,
			Status:             journal.ActionSuccess,
			ObservationContent: reason,
		})
		return err
	}

	result, execErr := e.Tools.ExecuteResolved(ctx, tc.Name, argv, stdin)
	if execErr != nil {
		e.Metrics.ObserveToolExecution(tc.Name, "failed", 0)
		return e.recordActionResult(actionID, journal.ActionFailed, execErr.Error(), "")
	}

	toolStatus := "success"
	if result.ExitCode != 0 {
		toolStatus = "failed"
	}
	e.Metrics.ObserveToolExecution(tc.Name, toolStatus, result.Duration)

	executionID := uuid.NewString()
	if err := e.Store.SaveToolExecution(executionID, journal.ToolExecutionArtifacts{
		Command:    result.ResolvedCommand,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ExitCode:   result.ExitCode,
		DurationMs: result.Duration.Milliseconds(),
	}); err != nil {
		return fmt.Errorf("save tool execution artifacts: %w", err)
	}

	if _, _, err := e.runHook(ctx, agentconfig.HookPostToolExec, postToolExecPayload{
		ActionID:   actionID,
		ToolName:   tc.Name,
		ExitCode:   result.ExitCode,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		DurationMs: result.Duration.Milliseconds(),
	}); err != nil {
		return err
	}

	status := journal.ActionSuccess
	if result.ExitCode != 0 {
		status = journal.ActionFailed
	}
	return e.recordActionResult(actionID, status, formatObservation(result), executionID)
}

func (e *Engine) recordToolFailure(actionID, toolName string, toolArgs json.RawMessage, argv []string, message string) error {
	if _, err := e.Store.Append(journal.EventActionRequest, journal.ActionRequestPayload{
		ActionID:        actionID,
		ToolName:        toolName,
		ToolArgs:        toolArgs,
		ResolvedCommand: argv,
	}); err != nil {
		return fmt.Errorf("append action request event: %w", err)
	}
	return e.recordActionResult(actionID, journal.ActionFailed, message, "")
}

func (e *Engine) recordActionResult(actionID string, status journal.ActionStatus, observation, executionRef string) error {
	_, err := e.Store.Append(journal.EventActionResult, journal.ActionResultPayload{
		ActionID:           actionID,
		Status:             status,
		ObservationContent: observation,
		ExecutionRef:       executionRef,
	})
	if err != nil {
		return fmt.Errorf("append action result event: %w", err)
	}
	return nil
}

func formatObservation(r toolexec.Result) string {
	if r.TimedOut {
		return fmt.Sprintf("command timed out after %s\nstdout:\n%s\nstderr:\n%s", r.Duration, r.Stdout, r.Stderr)
	}
	return fmt.Sprintf("exit_code: %d\nstdout:\n%s\nstderr:\n%s", r.ExitCode, r.Stdout, r.Stderr)
}

func (e *Engine) suspendForHuman(actionID, question string) (Outcome, error) {
	if actionID == "" {
		actionID = uuid.NewString()
	}
	if err := writeInteractionRequest(e.Store.RunDir(), InteractionRequest{ActionID: actionID, Question: question}); err != nil {
		return Outcome{}, fmt.Errorf("write interaction request: %w", err)
	}
	status := journal.StatusWaitingForInput
	if _, err := journal.UpdateMetadata(e.Store.RunDir(), journal.MetadataPatch{Status: &status}); err != nil {
		return Outcome{}, fmt.Errorf("update run metadata: %w", err)
	}
	return Outcome{
		Status:      journal.StatusWaitingForInput,
		Interaction: &InteractionRequest{ActionID: actionID, Question: question},
	}, nil
}

func (e *Engine) advance() error {
	n := e.iteration + 1
	if _, err := journal.UpdateMetadata(e.Store.RunDir(), journal.MetadataPatch{IterationsCompleted: &n}); err != nil {
		return fmt.Errorf("update run metadata: %w", err)
	}
	return nil
}

// finish marks the run terminal: it writes the terminal status to metadata
// first, then appends the closing RUN_END event. The two writes are
// separate, so a failure between them leaves metadata terminal without a
// RUN_END event.
func (e *Engine) finish(status journal.RunStatus, errMsg string) (Outcome, error) {
	now := time.Now().UTC()
	patch := journal.MetadataPatch{Status: &status, EndTime: &now}
	if errMsg != "" {
		patch.Error = &errMsg
	}
	if _, err := journal.UpdateMetadata(e.Store.RunDir(), patch); err != nil {
		return Outcome{}, fmt.Errorf("update run metadata: %w", err)
	}
	if _, err := e.Store.Append(journal.EventRunEnd, journal.RunEndPayload{Status: status}); err != nil {
		return Outcome{}, fmt.Errorf("append run end event: %w", err)
	}
	return Outcome{Status: status, Error: errMsg}, nil
}

// failRun records a SYSTEM_MESSAGE(ERROR), fires on_error (its outcome is
// audited but never changes the run's fate), and finishes the run FAILED.
func (e *Engine) failRun(ctx context.Context, cause error) (Outcome, error) {
	e.Logger.Warn("run failed", "run_dir", e.Store.RunDir(), "iteration", e.iteration, "error", cause)
	if _, err := e.Store.Append(journal.EventSystemMessage, journal.SystemMessagePayload{
		Level:   journal.SystemError,
		Content: cause.Error(),
	}); err != nil {
		return Outcome{}, fmt.Errorf("append system message event: %w", err)
	}
	if _, _, err := e.runHook(ctx, agentconfig.HookOnError, errorPayload{Message: cause.Error()}); err != nil {
		return Outcome{}, err
	}
	return e.finish(journal.StatusFailed, cause.Error())
}

type preToolExecPayload struct {
	ActionID        string   `json:"action_id"`
	ToolName        string   `json:"tool_name"`
	ResolvedCommand []string `json:"resolved_command"`
}

type postToolExecPayload struct {
	ActionID   string `json:"action_id"`
	ToolName   string `json:"tool_name"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// runHook fires the hook bound to point, if the agent config defines one,
// and appends a HOOK_EXECUTION_AUDIT event for it (SUCCESS or FAILED);
// fired reports whether a hook ran. When no hook is bound, no audit event
// is appended and fired is false: it synthesizes a successful no-op Outcome
// carrying payload unchanged so callers can apply the same
// FinalPayload-replacement logic regardless of whether a hook ran.
func (e *Engine) runHook(ctx context.Context, point agentconfig.HookPoint, payload any) (hookexec.Outcome, bool, error) {
	def, ok := e.Cfg.Hooks[point]
	if !ok {
		raw, err := toRawMessage(payload)
		if err != nil {
			return hookexec.Outcome{}, false, err
		}
		return hookexec.Outcome{Succeeded: true, FinalPayload: raw}, false, nil
	}

	raw, err := toRawMessage(payload)
	if err != nil {
		return hookexec.Outcome{}, false, err
	}

	hookStarted := time.Now()
	outcome, err := e.Hooks.Run(ctx, def, hookexec.Invocation{
		Point:     point,
		HookName:  string(point),
		StepIndex: e.iteration,
		Payload:   raw,
	})
	if err != nil {
		e.Metrics.ObserveHookExecution(string(point), "failed", time.Since(hookStarted))
		return hookexec.Outcome{}, false, fmt.Errorf("run %s hook: %w", point, err)
	}

	status := "FAILED"
	hookMetricStatus := "failed"
	if outcome.Succeeded {
		status = "SUCCESS"
		hookMetricStatus = "success"
	}
	e.Metrics.ObserveHookExecution(string(point), hookMetricStatus, time.Since(hookStarted))
	if _, err := e.Store.Append(journal.EventHookExecutionAudit, journal.HookExecutionAuditPayload{
		HookName:  string(point),
		Status:    status,
		IOPathRef: outcome.IOPathRef,
	}); err != nil {
		return hookexec.Outcome{}, false, fmt.Errorf("append hook execution audit event: %w", err)
	}

	return outcome, true, nil
}

func toRawMessage(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal hook payload: %w", err)
	}
	return data, nil
}
