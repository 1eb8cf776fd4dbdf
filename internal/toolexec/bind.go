package toolexec

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/delta-run/delta/internal/agentconfig"
)

// bindCommand expands the tool's command template and, in parameter
// definition order, appends each argument or option value, returning the
// stdin parameter's value separately (at most one may exist, enforced at
// config-load time). The returned io.Reader is nil, not a typed nil, when
// no parameter is stdin-injected.
func (e *Executor) bindCommand(def *agentconfig.ToolDefinition, values map[string]json.RawMessage) ([]string, io.Reader, error) {
	argv := append([]string{}, e.Vars.ExpandAll(def.Command)...)
	var stdin io.Reader

	for _, p := range def.Parameters {
		raw, present := values[p.Name]
		if !present {
			if p.Required {
				return nil, nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		value, err := renderParamValue(p, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}

		switch p.InjectAs {
		case agentconfig.InjectArgument:
			argv = append(argv, value)
		case agentconfig.InjectOption:
			argv = append(argv, p.OptionName, value)
		case agentconfig.InjectStdin:
			stdin = strings.NewReader(value)
		default:
			return nil, nil, fmt.Errorf("unknown inject_as %q", p.InjectAs)
		}
	}

	return argv, stdin, nil
}

// renderParamValue converts a raw JSON argument value into the string form
// placed on argv or stdin.
func renderParamValue(p agentconfig.ToolParameter, raw json.RawMessage) (string, error) {
	switch p.Type {
	case agentconfig.ParamString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("expected string, got %s", raw)
		}
		return s, nil
	case agentconfig.ParamNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", fmt.Errorf("expected number, got %s", raw)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case agentconfig.ParamBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", fmt.Errorf("expected boolean, got %s", raw)
		}
		return strconv.FormatBool(b), nil
	default:
		return "", fmt.Errorf("unknown parameter type %q", p.Type)
	}
}
