package rundriver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/engine"
	"github.com/delta-run/delta/internal/journal"
	"github.com/delta-run/delta/internal/workspace"
)

// SchemaVersion identifies the shape of Result below.
const SchemaVersion = "1"

// Exit codes for process termination, matched to the run's terminal status.
const (
	ExitCompleted       = 0
	ExitFailed          = 1
	ExitWaitingForInput = 101
	ExitInterrupted     = 130
	ExitCannotExecute   = 126
)

// Result is the structured description of one run invocation's outcome,
// serialized to stdout when the caller asks for JSON output.
type Result struct {
	SchemaVersion string             `json:"schema_version"`
	RunID         string             `json:"run_id"`
	Status        journal.RunStatus  `json:"status"`
	Result        string             `json:"result,omitempty"`
	Error         string             `json:"error,omitempty"`
	Interaction   *ResultInteraction `json:"interaction,omitempty"`
	Metrics       ResultMetrics      `json:"metrics"`
	Metadata      ResultMetadata     `json:"metadata"`
}

// ResultInteraction mirrors engine.InteractionRequest for a run suspended
// waiting on a human.
type ResultInteraction struct {
	ActionID string `json:"action_id"`
	Question string `json:"question"`
}

// ResultMetrics summarizes a run's cost and duration.
type ResultMetrics struct {
	Iterations int         `json:"iterations"`
	DurationMs int64       `json:"duration_ms"`
	StartTime  string      `json:"start_time"`
	EndTime    string      `json:"end_time,omitempty"`
	Usage      ResultUsage `json:"usage"`
}

// ResultUsage aggregates token counts across every LLM invocation in the run.
type ResultUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ResultMetadata carries identifying information that doesn't fit the
// metrics/result split.
type ResultMetadata struct {
	AgentName     string `json:"agent_name"`
	WorkspacePath string `json:"workspace_path"`
}

// ExitCode maps a terminal (or suspended) run status to the process exit
// code a CLI entry point should return.
func ExitCode(status journal.RunStatus) int {
	switch status {
	case journal.StatusCompleted:
		return ExitCompleted
	case journal.StatusWaitingForInput:
		return ExitWaitingForInput
	case journal.StatusInterrupted:
		return ExitInterrupted
	default:
		return ExitFailed
	}
}

// buildResult assembles the structured Result for a finished engine Outcome,
// reading back whatever artifacts the run left on disk (metadata for
// timing, invocation responses for usage, the final THOUGHT for the
// completed result body).
func buildResult(store *journal.Store, runDir, runID string, ws *workspace.Workspace, cfg *agentconfig.AgentConfig, outcome engine.Outcome) (*Result, error) {
	meta, err := journal.ReadMetadata(runDir)
	if err != nil {
		return nil, fmt.Errorf("read final run metadata: %w", err)
	}

	res := &Result{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Status:        outcome.Status,
		Error:         outcome.Error,
		Metrics: ResultMetrics{
			Iterations: meta.IterationsCompleted,
			StartTime:  meta.StartTime.Format("2006-01-02T15:04:05Z07:00"),
			Usage:      aggregateUsage(runDir),
		},
		Metadata: ResultMetadata{
			AgentName:     cfg.AgentRef,
			WorkspacePath: ws.Root,
		},
	}

	if meta.EndTime != nil {
		res.Metrics.EndTime = meta.EndTime.Format("2006-01-02T15:04:05Z07:00")
		res.Metrics.DurationMs = meta.EndTime.Sub(meta.StartTime).Milliseconds()
	}

	if outcome.Interaction != nil {
		res.Interaction = &ResultInteraction{
			ActionID: outcome.Interaction.ActionID,
			Question: outcome.Interaction.Question,
		}
	}

	if outcome.Status == journal.StatusCompleted {
		content, err := lastResultContent(store)
		if err != nil {
			return nil, err
		}
		res.Result = content
	}

	return res, nil
}

// lastResultContent returns the final assistant message of a completed run:
// the content of the last THOUGHT event, which for a COMPLETED run is the
// one the engine appended right before deciding there were no further tool
// calls to make.
func lastResultContent(store *journal.Store) (string, error) {
	thoughts, err := store.ReadByType(journal.EventThought)
	if err != nil {
		return "", fmt.Errorf("read thought events: %w", err)
	}
	if len(thoughts) == 0 {
		return "", nil
	}
	var payload journal.ThoughtPayload
	if err := json.Unmarshal(thoughts[len(thoughts)-1].Payload, &payload); err != nil {
		return "", fmt.Errorf("unmarshal final thought payload: %w", err)
	}
	return payload.Content, nil
}

// invocationResponse is the slice of a persisted LLM response this package
// needs to read back; it deliberately duplicates engine's unexported wire
// shape rather than importing it.
type invocationResponse struct {
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// aggregateUsage sums token usage across every io/invocations/*/response.json
// artifact the run produced. Missing or malformed files are skipped rather
// than failing result construction: usage reporting is best-effort.
func aggregateUsage(runDir string) ResultUsage {
	var total ResultUsage
	matches, err := filepath.Glob(filepath.Join(runDir, "io", "invocations", "*", "response.json"))
	if err != nil {
		return total
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var resp invocationResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		total.PromptTokens += resp.Usage.PromptTokens
		total.CompletionTokens += resp.Usage.CompletionTokens
		total.TotalTokens += resp.Usage.TotalTokens
	}
	return total
}

func marshalRunEndPayload(status journal.RunStatus) (json.RawMessage, error) {
	return json.Marshal(struct {
		Status journal.RunStatus `json:"status"`
	}{Status: status})
}
