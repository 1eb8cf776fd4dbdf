// Package engine drives one run's Think-Act-Observe loop: rebuild context,
// call the LLM, dispatch any requested tools, observe their results, and
// repeat until the model stops requesting tools, a human is asked a
// question, or the iteration budget runs out.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/contextbuild"
)

// llmMessage is one entry of the request envelope's message array, shaped
// like the OpenAI chat-completions wire format every provider in this
// space speaks a dialect of.
type llmMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []llmToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type llmToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function llmFunctionCall `json:"function"`
}

type llmFunctionCall struct {
	Name string `json:"name"`
	// Arguments is a JSON-encoded string, not a nested object, matching
	// how providers in this family actually put it on the wire.
	Arguments string `json:"arguments"`
}

type llmTool struct {
	Type     string         `json:"type"`
	Function llmFunctionDef `json:"function"`
}

type llmFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type llmRequest struct {
	Model    string       `json:"model"`
	Messages []llmMessage `json:"messages"`
	Tools    []llmTool    `json:"tools,omitempty"`
}

type llmResponseChoice struct {
	Message llmMessage `json:"message"`
}

type llmUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type llmResponse struct {
	Choices []llmResponseChoice `json:"choices"`
	Usage   llmUsage            `json:"usage"`
}

// buildRequest translates the materialized message list and the agent's
// tool definitions into a request envelope ready to hand to llmclient.
func buildRequest(model string, messages []contextbuild.Message, tools []agentconfig.ToolDefinition) (json.RawMessage, error) {
	req := llmRequest{Model: model}
	for _, m := range messages {
		req.Messages = append(req.Messages, toWireMessage(m))
	}
	for _, t := range tools {
		def, err := toWireTool(t)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.Name, err)
		}
		req.Tools = append(req.Tools, def)
	}
	return json.Marshal(req)
}

func toWireMessage(m contextbuild.Message) llmMessage {
	wm := llmMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		wm.ToolCalls = append(wm.ToolCalls, llmToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: llmFunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Args),
			},
		})
	}
	return wm
}

// toWireTool renders a tool definition's parameters as a JSON Schema
// object, the shape every provider here expects a function's "parameters"
// field to take.
func toWireTool(t agentconfig.ToolDefinition) (llmTool, error) {
	properties := map[string]any{}
	var required []string
	for _, p := range t.Parameters {
		schemaType, err := jsonSchemaType(p.Type)
		if err != nil {
			return llmTool{}, err
		}
		properties[p.Name] = map[string]any{"type": schemaType}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	params, err := json.Marshal(schema)
	if err != nil {
		return llmTool{}, fmt.Errorf("marshal parameter schema: %w", err)
	}
	return llmTool{
		Type: "function",
		Function: llmFunctionDef{
			Name:       t.Name,
			Parameters: params,
		},
	}, nil
}

func jsonSchemaType(t agentconfig.ParamType) (string, error) {
	switch t {
	case agentconfig.ParamString:
		return "string", nil
	case agentconfig.ParamNumber:
		return "number", nil
	case agentconfig.ParamBoolean:
		return "boolean", nil
	default:
		return "", fmt.Errorf("unknown parameter type %q", t)
	}
}

// parseResponse decodes a provider response envelope. It does not
// interpret the result beyond that: callers read Choices/Usage directly.
func parseResponse(raw json.RawMessage) (llmResponse, error) {
	var resp llmResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return llmResponse{}, fmt.Errorf("decode llm response: %w", err)
	}
	return resp, nil
}
