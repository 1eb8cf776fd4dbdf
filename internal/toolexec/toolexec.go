// Package toolexec translates a tool definition plus LLM-supplied
// arguments into a subprocess invocation: binding parameters into argv,
// stdin, or option slots, substituting ${AGENT_HOME}/${CWD} variables, and
// capturing the result. Tool calls are dispatched one at a time, in the
// order the LLM returned them — there is no concurrent fan-out.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/contextbuild"
	"github.com/delta-run/delta/internal/execsafety"
	"github.com/delta-run/delta/internal/procrun"
)

// DefaultTimeout is used when a tool's caller does not override it.
const DefaultTimeout = 30 * time.Second

// Executor runs tool invocations against a fixed workspace directory.
type Executor struct {
	Vars    contextbuild.Vars
	Timeout time.Duration
}

// NewExecutor constructs an Executor. A zero Timeout means DefaultTimeout.
func NewExecutor(vars contextbuild.Vars, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{Vars: vars, Timeout: timeout}
}

// Result is what an invocation produced, independent of how the call was
// resolved against the journal.
type Result struct {
	ResolvedCommand []string
	Stdout          string
	Stderr          string
	ExitCode        int
	Duration        time.Duration
	TimedOut        bool
}

// Resolve binds def's command template against args without running
// anything, so a caller can log the resolved command (and give a
// pre_tool_exec hook the chance to skip it) before committing to a
// subprocess. Execute calls this internally.
func (e *Executor) Resolve(def *agentconfig.ToolDefinition, args json.RawMessage) ([]string, io.Reader, error) {
	if err := validateArgs(def, args); err != nil {
		return nil, nil, err
	}

	var values map[string]json.RawMessage
	if len(args) > 0 {
		if err := json.Unmarshal(args, &values); err != nil {
			return nil, nil, fmt.Errorf("decode tool arguments: %w", err)
		}
	}

	argv, stdin, err := e.bindCommand(def, values)
	if err != nil {
		return nil, nil, err
	}
	if err := execsafety.CheckCommand(argv); err != nil {
		return nil, nil, fmt.Errorf("tool %q: unsafe command template: %w", def.Name, err)
	}
	return argv, stdin, nil
}

// Execute resolves def against args and runs it to completion. A non-zero
// exit is reported in Result, not returned as an error; Execute's error
// return covers malformed argument payloads and failures to even start the
// subprocess.
func (e *Executor) Execute(ctx context.Context, def *agentconfig.ToolDefinition, args json.RawMessage) (Result, error) {
	argv, stdin, err := e.Resolve(def, args)
	if err != nil {
		return Result{}, err
	}
	return e.ExecuteResolved(ctx, def.Name, argv, stdin)
}

// ExecuteResolved runs an already-resolved argv, skipping the bind/safety
// step. A caller that logged an ACTION_REQUEST and ran a pre_tool_exec hook
// against the resolved command calls this instead of Execute, so the
// command isn't re-bound (and re-validated) a second time.
func (e *Executor) ExecuteResolved(ctx context.Context, toolName string, argv []string, stdin io.Reader) (Result, error) {
	env := os.Environ()
	if e.Vars.AgentHome != "" {
		env = append(env, "AGENT_HOME="+e.Vars.AgentHome)
	}

	runRes, err := procrun.Run(ctx, procrun.Request{
		Argv:    argv,
		Dir:     e.Vars.CWD,
		Env:     env,
		Stdin:   stdin,
		Timeout: e.Timeout,
	})
	if err != nil {
		return Result{}, fmt.Errorf("tool %q: %w", toolName, err)
	}
	return Result{
		ResolvedCommand: argv,
		Stdout:          runRes.Stdout,
		Stderr:          runRes.Stderr,
		ExitCode:        runRes.ExitCode,
		Duration:        runRes.Duration,
		TimedOut:        runRes.TimedOut,
	}, nil
}
