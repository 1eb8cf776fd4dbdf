// Package journal implements the append-only event log and run metadata
// substrate: a JSONL event log with
// monotonically increasing sequence numbers, atomically-updated run
// metadata, and the per-run artifact directories under io/ that capture
// every LLM call, tool execution, and hook invocation byte-for-byte.
package journal

import (
	"encoding/json"
	"time"
)

// EventType identifies the category of a journal event. The set is closed:
// This is a closed set; no other values are valid.
type EventType string

const (
	EventRunStart           EventType = "RUN_START"
	EventUserMessage        EventType = "USER_MESSAGE"
	EventThought            EventType = "THOUGHT"
	EventActionRequest      EventType = "ACTION_REQUEST"
	EventActionResult       EventType = "ACTION_RESULT"
	EventSystemMessage      EventType = "SYSTEM_MESSAGE"
	EventHookExecutionAudit EventType = "HOOK_EXECUTION_AUDIT"
	EventRunEnd             EventType = "RUN_END"
)

// ActionStatus is the outcome recorded on an ACTION_RESULT event.
type ActionStatus string

const (
	ActionSuccess ActionStatus = "SUCCESS"
	ActionFailed  ActionStatus = "FAILED"
)

// SystemLevel is the severity recorded on a SYSTEM_MESSAGE event.
type SystemLevel string

const (
	SystemInfo  SystemLevel = "INFO"
	SystemWarn  SystemLevel = "WARN"
	SystemError SystemLevel = "ERROR"
)

// Event is a single append-only journal record. Seq is strictly increasing
// within a run starting at 1; Payload is type-specific and is
// decoded lazily by callers that know the Type.
type Event struct {
	Seq       int             `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// RunStartPayload is the payload of a RUN_START event.
type RunStartPayload struct {
	RunID    string `json:"run_id"`
	Task     string `json:"task"`
	AgentRef string `json:"agent_ref"`
}

// UserMessagePayload is the payload of a USER_MESSAGE event.
type UserMessagePayload struct {
	Content string `json:"content"`
}

// ToolCall is one tool invocation as returned by the LLM in a THOUGHT event.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ThoughtPayload is the payload of a THOUGHT event.
type ThoughtPayload struct {
	Content          string     `json:"content"`
	LLMInvocationRef string     `json:"llm_invocation_ref"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// ActionRequestPayload is the payload of an ACTION_REQUEST event.
type ActionRequestPayload struct {
	ActionID        string   `json:"action_id"`
	ToolName        string   `json:"tool_name"`
	ToolArgs        json.RawMessage `json:"tool_args"`
	ResolvedCommand []string `json:"resolved_command"`
}

// ActionResultPayload is the payload of an ACTION_RESULT event.
type ActionResultPayload struct {
	ActionID          string       `json:"action_id"`
	Status            ActionStatus `json:"status"`
	ObservationContent string      `json:"observation_content"`
	ExecutionRef       string      `json:"execution_ref,omitempty"`
}

// SystemMessagePayload is the payload of a SYSTEM_MESSAGE event.
type SystemMessagePayload struct {
	Level   SystemLevel `json:"level"`
	Content string      `json:"content"`
}

// HookExecutionAuditPayload is the payload of a HOOK_EXECUTION_AUDIT event.
type HookExecutionAuditPayload struct {
	HookName  string `json:"hook_name"`
	Status    string `json:"status"`
	IOPathRef string `json:"io_path_ref"`
}

// RunEndPayload is the payload of a RUN_END event.
type RunEndPayload struct {
	Status RunStatus `json:"status"`
}

// RunStatus is the run's lifecycle state.
type RunStatus string

const (
	StatusRunning          RunStatus = "RUNNING"
	StatusWaitingForInput  RunStatus = "WAITING_FOR_INPUT"
	StatusCompleted        RunStatus = "COMPLETED"
	StatusFailed           RunStatus = "FAILED"
	StatusInterrupted      RunStatus = "INTERRUPTED"
)

// IsTerminal reports whether status is one of the three terminal states.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusInterrupted:
		return true
	default:
		return false
	}
}
