package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// InvocationDir returns the artifact directory for an LLM invocation id
// (io/invocations/<id>/), created on demand by SaveInvocation.
func (s *Store) InvocationDir(invocationID string) string {
	return filepath.Join(s.runDir, "io", "invocations", invocationID)
}

// ToolExecutionDir returns the artifact directory for a tool execution id
// (io/tool_executions/<id>/).
func (s *Store) ToolExecutionDir(executionID string) string {
	return filepath.Join(s.runDir, "io", "tool_executions", executionID)
}

// HookDir returns the artifact directory for a hook invocation, named
// <NNN>_<hook_name>.
func (s *Store) HookDir(seq int, hookName string) string {
	return filepath.Join(s.runDir, "io", "hooks", fmt.Sprintf("%03d_%s", seq, hookName))
}

// InvocationArtifacts is everything persisted for one LLM call.
type InvocationArtifacts struct {
	Request  json.RawMessage
	Response json.RawMessage
	Metadata InvocationMetadata
}

// InvocationMetadata captures timing for an LLM invocation.
type InvocationMetadata struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	DurationMs int64    `json:"duration_ms"`
}

// SaveInvocation writes request.json, response.json, and metadata.json
// under io/invocations/<id>/, for every THOUGHT
// event that references invocationID.
func (s *Store) SaveInvocation(invocationID string, artifacts InvocationArtifacts) error {
	dir := s.InvocationDir(invocationID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create invocation artifact dir: %w", err)
	}
	if err := writeJSONFile(filepath.Join(dir, "request.json"), artifacts.Request); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(dir, "response.json"), artifacts.Response); err != nil {
		return err
	}
	metaBytes, err := json.MarshalIndent(artifacts.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal invocation metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), append(metaBytes, '\n'), 0o644)
}

// ToolExecutionArtifacts is everything persisted for one tool execution.
type ToolExecutionArtifacts struct {
	Command    []string
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
}

// SaveToolExecution writes command.txt, stdout.log, stderr.log,
// exit_code.txt, and duration_ms.txt under io/tool_executions/<id>/.
func (s *Store) SaveToolExecution(executionID string, artifacts ToolExecutionArtifacts) error {
	dir := s.ToolExecutionDir(executionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tool execution artifact dir: %w", err)
	}
	files := map[string]string{
		"command.txt":     joinCommand(artifacts.Command),
		"stdout.log":       artifacts.Stdout,
		"stderr.log":       artifacts.Stderr,
		"exit_code.txt":    fmt.Sprintf("%d", artifacts.ExitCode),
		"duration_ms.txt":  fmt.Sprintf("%d", artifacts.DurationMs),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func joinCommand(command []string) string {
	out := ""
	for i, c := range command {
		if i > 0 {
			out += " "
		}
		out += c
	}
	return out
}

func writeJSONFile(path string, raw json.RawMessage) error {
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return os.WriteFile(path, append(append([]byte{}, raw...), '\n'), 0o644)
}

// HookInput is what gets written before a hook subprocess starts.
type HookInput struct {
	ContextJSON  json.RawMessage
	PayloadJSON  json.RawMessage
	PayloadIsDat bool
}

// HookExecutionMeta is what gets written after a hook subprocess finishes.
type HookExecutionMeta struct {
	Command    []string
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
}

// PrepareHookDirs creates io/hooks/<NNN>_<hook_name>/{input,output,execution_meta}
// and writes the input/ documents, so the hook subprocess finds its I/O
// directory populated and writable before it starts.
func (s *Store) PrepareHookDirs(seq int, hookName string, in HookInput) (string, error) {
	dir := s.HookDir(seq, hookName)
	for _, sub := range []string{"input", "output", "execution_meta"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create hook artifact dir %s: %w", sub, err)
		}
	}

	if err := writeJSONFile(filepath.Join(dir, "input", "context.json"), in.ContextJSON); err != nil {
		return "", err
	}
	payloadName := "payload.json"
	if in.PayloadIsDat {
		payloadName = "payload.dat"
	}
	if err := os.WriteFile(filepath.Join(dir, "input", payloadName), in.PayloadJSON, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", payloadName, err)
	}
	return dir, nil
}

// WriteHookExecutionMeta writes execution_meta/ for a finished hook
// invocation. The hook's own output/ writes, if any, are left untouched.
func (s *Store) WriteHookExecutionMeta(dir string, meta HookExecutionMeta) error {
	files := map[string]string{
		"command.txt":     joinCommand(meta.Command),
		"stdout.log":       meta.Stdout,
		"stderr.log":       meta.Stderr,
		"exit_code.txt":    fmt.Sprintf("%d", meta.ExitCode),
		"duration_ms.txt":  fmt.Sprintf("%d", meta.DurationMs),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, "execution_meta", name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// WriteEngineLog appends a human-readable diagnostic line to engine.log.
// Best-effort: failures are swallowed. The contract here is that
// this helper never raises.
func (s *Store) WriteEngineLog(line string) {
	path := filepath.Join(s.runDir, "engine.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), line)
}
