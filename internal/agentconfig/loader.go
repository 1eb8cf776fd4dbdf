package agentconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawDocument mirrors AgentConfig's shape plus the imports directive that
// is resolved before the final struct is assembled.
type rawDocument struct {
	Imports         []string                     `yaml:"imports"`
	AgentRef        string                        `yaml:"agent_ref"`
	SystemPromptRef string                        `yaml:"system_prompt_ref"`
	Tools           []ToolDefinition              `yaml:"tools"`
	Hooks           map[HookPoint]HookDefinition  `yaml:"hooks"`
	ContextManifest Manifest                      `yaml:"context_manifest"`
	MaxIterations   int                           `yaml:"max_iterations"`
}

// Load reads an agent configuration file, resolving imports (cycle-safe)
// and validating the merged result before returning it.
func Load(path string) (*AgentConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("agent config path is required")
	}
	doc, err := loadRecursive(path, map[string]bool{})
	if err != nil {
		return nil, err
	}
	cfg := &AgentConfig{
		AgentRef:        doc.AgentRef,
		SystemPromptRef: doc.SystemPromptRef,
		Tools:           doc.Tools,
		Hooks:           doc.Hooks,
		ContextManifest: doc.ContextManifest,
		MaxIterations:   doc.MaxIterations,
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRecursive parses path and merges in every file named by its imports
// list, depth first, with cycle detection so a self-referencing import
// chain fails instead of looping forever.
func loadRecursive(path string, seen map[string]bool) (*rawDocument, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve agent config path: %w", err)
	}
	if seen[absPath] {
		return nil, fmt.Errorf("agent config import cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read agent config %s: %w", absPath, err)
	}
	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse agent config %s: %w", absPath, err)
	}

	merged := &rawDocument{}
	baseDir := filepath.Dir(absPath)
	for _, imp := range doc.Imports {
		imp = strings.TrimSpace(imp)
		if imp == "" {
			continue
		}
		impPath := imp
		if !filepath.IsAbs(impPath) {
			impPath = filepath.Join(baseDir, impPath)
		}
		sub, err := loadRecursive(impPath, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeDocuments(merged, sub)
	}
	merged = mergeDocuments(merged, &doc)
	return merged, nil
}

// mergeDocuments overlays override onto base: non-zero scalar fields
// replace; tools and hooks are merged, with override entries taking
// precedence on key collision (hooks keyed by point, tools by name — last
// write wins, matching the manifest's "imports are processed in order"
// contract). A non-empty context manifest in override replaces base's
// manifest wholesale rather than being appended to it.
func mergeDocuments(base, override *rawDocument) *rawDocument {
	out := &rawDocument{
		AgentRef:        base.AgentRef,
		SystemPromptRef: base.SystemPromptRef,
		MaxIterations:   base.MaxIterations,
		Tools:           append([]ToolDefinition{}, base.Tools...),
		Hooks:           map[HookPoint]HookDefinition{},
		ContextManifest: append(Manifest{}, base.ContextManifest...),
	}
	for k, v := range base.Hooks {
		out.Hooks[k] = v
	}

	if override.AgentRef != "" {
		out.AgentRef = override.AgentRef
	}
	if override.SystemPromptRef != "" {
		out.SystemPromptRef = override.SystemPromptRef
	}
	if override.MaxIterations != 0 {
		out.MaxIterations = override.MaxIterations
	}
	out.Tools = appendOrReplaceTools(out.Tools, override.Tools)
	for k, v := range override.Hooks {
		out.Hooks[k] = v
	}
	if len(override.ContextManifest) > 0 {
		out.ContextManifest = override.ContextManifest
	}
	return out
}

func appendOrReplaceTools(base []ToolDefinition, overrides []ToolDefinition) []ToolDefinition {
	for _, o := range overrides {
		replaced := false
		for i := range base {
			if base[i].Name == o.Name {
				base[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			base = append(base, o)
		}
	}
	return base
}
