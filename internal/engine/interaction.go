package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AskHumanTool is the reserved tool name that suspends a run for human
// input instead of dispatching to a subprocess. It is never listed in an
// agent's tool definitions; the engine recognizes it by name among the
// LLM's requested tool calls.
const AskHumanTool = "ask_human"

// InteractionRequest is written to interaction/request.json when the
// engine suspends a run on an ask_human call.
type InteractionRequest struct {
	ActionID string `json:"action_id"`
	Question string `json:"question"`
}

type askHumanArgs struct {
	Question string `json:"question"`
}

func parseAskHumanArgs(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("ask_human call carried no arguments")
	}
	var a askHumanArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return "", fmt.Errorf("decode ask_human arguments: %w", err)
	}
	if a.Question == "" {
		return "", fmt.Errorf("ask_human call's question argument is empty")
	}
	return a.Question, nil
}

func writeInteractionRequest(runDir string, req InteractionRequest) error {
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal interaction request: %w", err)
	}
	path := filepath.Join(runDir, "interaction", "request.json")
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// readInteractionResponse reads a human's answer left for a resumed run.
// It is the Run Driver's job to call this before resuming, not the
// engine's: the engine only ever produces the request side.
func readInteractionResponse(runDir string) (string, error) {
	path := filepath.Join(runDir, "interaction", "response.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read interaction response: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
