package agentconfig

import "fmt"

// Validate checks an AgentConfig for the structural constraints loaders
// cannot express in the type system: name uniqueness, at-most-one stdin
// parameter per tool, and source field consistency per manifest entry kind.
func Validate(c *AgentConfig) error {
	if c.AgentRef == "" {
		return fmt.Errorf("agent_ref is required")
	}

	seenTools := map[string]bool{}
	for _, t := range c.Tools {
		if t.Name == "" {
			return fmt.Errorf("tool definition missing name")
		}
		if seenTools[t.Name] {
			return fmt.Errorf("duplicate tool name %q", t.Name)
		}
		seenTools[t.Name] = true
		if len(t.Command) == 0 {
			return fmt.Errorf("tool %q: command must not be empty", t.Name)
		}
		if err := validateToolParameters(t); err != nil {
			return fmt.Errorf("tool %q: %w", t.Name, err)
		}
	}

	for point, h := range c.Hooks {
		if !validHookPoint(point) {
			return fmt.Errorf("unknown hook point %q", point)
		}
		if len(h.Command) == 0 {
			return fmt.Errorf("hook %q: command must not be empty", point)
		}
	}

	seenSourceIDs := map[string]bool{}
	for i, s := range c.ContextManifest {
		if err := validateSource(s); err != nil {
			return fmt.Errorf("context manifest entry %d: %w", i, err)
		}
		if s.ID != "" {
			if seenSourceIDs[s.ID] {
				return fmt.Errorf("duplicate context manifest source id %q", s.ID)
			}
			seenSourceIDs[s.ID] = true
		}
	}

	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}

	return nil
}

func validateToolParameters(t ToolDefinition) error {
	stdinCount := 0
	seenNames := map[string]bool{}
	for _, p := range t.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter missing name")
		}
		if seenNames[p.Name] {
			return fmt.Errorf("duplicate parameter name %q", p.Name)
		}
		seenNames[p.Name] = true

		switch p.InjectAs {
		case InjectArgument, InjectStdin:
			// no further fields required
		case InjectOption:
			if p.OptionName == "" {
				return fmt.Errorf("parameter %q: option_name is required when inject_as is option", p.Name)
			}
		default:
			return fmt.Errorf("parameter %q: unknown inject_as %q", p.Name, p.InjectAs)
		}
		if p.InjectAs == InjectStdin {
			stdinCount++
		}
		switch p.Type {
		case ParamString, ParamNumber, ParamBoolean:
		default:
			return fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type)
		}
	}
	if stdinCount > 1 {
		return fmt.Errorf("at most one parameter may be injected via stdin, found %d", stdinCount)
	}
	return nil
}

func validHookPoint(p HookPoint) bool {
	switch p {
	case HookPreLLMReq, HookPostLLMResp, HookPreToolExec, HookPostToolExec, HookOnError, HookOnRunEnd:
		return true
	default:
		return false
	}
}

func validateSource(s Source) error {
	switch s.Kind {
	case SourceFile:
		if s.Path == "" {
			return fmt.Errorf("file source requires path")
		}
		switch s.OnMissing {
		case "", OnMissingError, OnMissingSkip:
		default:
			return fmt.Errorf("file source: unknown on_missing %q", s.OnMissing)
		}
	case SourceComputedFile:
		if len(s.GeneratorCommand) == 0 {
			return fmt.Errorf("computed_file source requires generator_command")
		}
		if s.OutputPath == "" {
			return fmt.Errorf("computed_file source requires output_path")
		}
	case SourceJournal:
		if s.MaxIterations != nil && *s.MaxIterations < 0 {
			return fmt.Errorf("journal source: max_iterations must not be negative")
		}
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
	return nil
}
