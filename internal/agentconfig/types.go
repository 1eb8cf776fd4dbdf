// Package agentconfig loads an agent's configuration: its tool and hook
// definitions and its context manifest. Loading (YAML parsing, imports
// resolution) exists to produce the resolved shape the engine consumes.
package agentconfig

import "time"

// InjectKind selects how a tool parameter's value is placed into the
// resolved command.
type InjectKind string

const (
	InjectArgument InjectKind = "argument"
	InjectStdin    InjectKind = "stdin"
	InjectOption   InjectKind = "option"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// ToolParameter is one parameter slot of a ToolDefinition.
type ToolParameter struct {
	Name       string     `yaml:"name"`
	Type       ParamType  `yaml:"type"`
	InjectAs   InjectKind `yaml:"inject_as"`
	OptionName string     `yaml:"option_name,omitempty"`
	Required   bool       `yaml:"required,omitempty"`
}

// ToolDefinition describes one tool the agent can invoke: a name, an argv
// command template, and parameters binding LLM arguments into
// argv/stdin/option injection slots.
type ToolDefinition struct {
	Name      string          `yaml:"name"`
	Command   []string        `yaml:"command"`
	Parameters []ToolParameter `yaml:"parameters"`
}

// StdinParameter returns the single stdin-injected parameter, if any.
// Validate enforces at most one exists at load time, so callers never need
// to check for a second match.
func (t *ToolDefinition) StdinParameter() *ToolParameter {
	for i := range t.Parameters {
		if t.Parameters[i].InjectAs == InjectStdin {
			return &t.Parameters[i]
		}
	}
	return nil
}

// HookPoint is one of the closed set of lifecycle points a hook may bind
// to.
type HookPoint string

const (
	HookPreLLMReq    HookPoint = "pre_llm_req"
	HookPostLLMResp  HookPoint = "post_llm_resp"
	HookPreToolExec  HookPoint = "pre_tool_exec"
	HookPostToolExec HookPoint = "post_tool_exec"
	HookOnError      HookPoint = "on_error"
	HookOnRunEnd     HookPoint = "on_run_end"
)

// DefaultHookTimeout is used when a hook definition omits timeout_ms.
const DefaultHookTimeout = 30 * time.Second

// MinHookTimeout and MaxHookTimeout bound a configured hook timeout to
// [100ms, 600s].
const (
	MinHookTimeout = 100 * time.Millisecond
	MaxHookTimeout = 600 * time.Second
)

// HookDefinition describes one external command bound to a lifecycle point.
type HookDefinition struct {
	Command   []string `yaml:"command"`
	TimeoutMs int      `yaml:"timeout_ms,omitempty"`
}

// Timeout returns the definition's configured timeout, clamped to
// [MinHookTimeout, MaxHookTimeout], defaulting to DefaultHookTimeout when
// unset.
func (h *HookDefinition) Timeout() time.Duration {
	if h.TimeoutMs <= 0 {
		return DefaultHookTimeout
	}
	d := time.Duration(h.TimeoutMs) * time.Millisecond
	if d < MinHookTimeout {
		return MinHookTimeout
	}
	if d > MaxHookTimeout {
		return MaxHookTimeout
	}
	return d
}

// OnMissing selects what a File source does when its path does not exist.
type OnMissing string

const (
	OnMissingError OnMissing = "error"
	OnMissingSkip  OnMissing = "skip"
)

// SourceKind is the tagged union discriminator for a context manifest
// Source.
type SourceKind string

const (
	SourceFile         SourceKind = "file"
	SourceComputedFile SourceKind = "computed_file"
	SourceJournal      SourceKind = "journal"
)

// DefaultComputedTimeout is used when a computed-file source omits
// timeout_ms.
const DefaultComputedTimeout = 30 * time.Second

// Source is one entry of a context manifest. Exactly the fields relevant to
// Kind are meaningful; Validate enforces this at load time.
type Source struct {
	Kind SourceKind `yaml:"kind"`
	ID   string     `yaml:"id,omitempty"`

	// File source fields.
	Path      string    `yaml:"path,omitempty"`
	OnMissing OnMissing `yaml:"on_missing,omitempty"`

	// ComputedFile source fields.
	GeneratorCommand []string `yaml:"generator_command,omitempty"`
	OutputPath       string   `yaml:"output_path,omitempty"`
	TimeoutMs        int      `yaml:"timeout_ms,omitempty"`

	// Journal source fields.
	MaxIterations *int `yaml:"max_iterations,omitempty"`
}

// Timeout returns the computed-file source's timeout, defaulting to
// DefaultComputedTimeout when unset.
func (s *Source) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return DefaultComputedTimeout
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Manifest is an ordered list of context Sources.
type Manifest []Source

// AgentConfig is the fully-resolved configuration for one agent: its
// system prompt reference, tool definitions, hook definitions, and context
// manifest. This is the shape the engine consumes.
type AgentConfig struct {
	AgentRef        string                        `yaml:"agent_ref"`
	SystemPromptRef string                        `yaml:"system_prompt_ref,omitempty"`
	Tools           []ToolDefinition              `yaml:"tools"`
	Hooks           map[HookPoint]HookDefinition  `yaml:"hooks"`
	ContextManifest Manifest                      `yaml:"context_manifest"`
	MaxIterations   int                           `yaml:"max_iterations,omitempty"`
}

// ToolByName returns the tool definition with the given name, or nil.
func (c *AgentConfig) ToolByName(name string) *ToolDefinition {
	for i := range c.Tools {
		if c.Tools[i].Name == name {
			return &c.Tools[i]
		}
	}
	return nil
}
