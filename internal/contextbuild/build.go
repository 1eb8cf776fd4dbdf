package contextbuild

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/delta-run/delta/internal/agentconfig"
	"github.com/delta-run/delta/internal/journal"
	"github.com/delta-run/delta/internal/procrun"
)

// Builder resolves a context manifest into an ordered Message list. It
// holds no state between calls: Build reads the manifest and replays the
// journal fresh every time, so a crash between iterations never loses
// context — the next process reconstructs the same messages from disk.
type Builder struct {
	Store *journal.Store
	Vars  Vars
}

// NewBuilder constructs a Builder over an open journal store.
func NewBuilder(store *journal.Store, vars Vars) *Builder {
	return &Builder{Store: store, Vars: vars}
}

// Build resolves manifest in order, concatenating each source's messages.
func (b *Builder) Build(ctx context.Context, manifest agentconfig.Manifest) ([]Message, error) {
	var out []Message
	for i, src := range manifest {
		msgs, err := b.buildSource(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("context manifest entry %d (kind=%s): %w", i, src.Kind, err)
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (b *Builder) buildSource(ctx context.Context, src agentconfig.Source) ([]Message, error) {
	switch src.Kind {
	case agentconfig.SourceFile:
		return b.buildFileSource(src)
	case agentconfig.SourceComputedFile:
		return b.buildComputedFileSource(ctx, src)
	case agentconfig.SourceJournal:
		return b.buildJournalSource(src)
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

func (b *Builder) buildFileSource(src agentconfig.Source) ([]Message, error) {
	path := b.Vars.Expand(src.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && src.OnMissing == agentconfig.OnMissingSkip {
			return nil, nil
		}
		return nil, fmt.Errorf("read file source %s: %w", path, err)
	}
	return []Message{{Role: RoleSystem, Content: string(data)}}, nil
}

func (b *Builder) buildComputedFileSource(ctx context.Context, src agentconfig.Source) ([]Message, error) {
	argv := b.Vars.ExpandAll(src.GeneratorCommand)
	outputPath := b.Vars.Expand(src.OutputPath)

	res, err := procrun.Run(ctx, procrun.Request{
		Argv:    argv,
		Dir:     b.Vars.CWD,
		Timeout: src.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("run generator command: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("generator command exited %d: %s", res.ExitCode, res.Stderr)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read computed-file output %s: %w", outputPath, err)
	}
	return []Message{{Role: RoleSystem, Content: string(data)}}, nil
}

func (b *Builder) buildJournalSource(src agentconfig.Source) ([]Message, error) {
	events, err := b.Store.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if src.MaxIterations != nil {
		events = lastNIterations(events, *src.MaxIterations)
	}
	return replayEvents(events)
}

// lastNIterations retains only events belonging to the last n iterations,
// where an iteration boundary is a THOUGHT event. All events before the
// n-th-from-last THOUGHT are dropped.
func lastNIterations(events []journal.Event, n int) []journal.Event {
	if n <= 0 {
		return nil
	}
	thoughtIdx := -1
	seen := 0
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == journal.EventThought {
			seen++
			if seen == n {
				thoughtIdx = i
				break
			}
		}
	}
	if thoughtIdx == -1 {
		return events
	}
	return events[thoughtIdx:]
}

func replayEvents(events []journal.Event) ([]Message, error) {
	var out []Message
	for _, ev := range events {
		switch ev.Type {
		case journal.EventUserMessage:
			var p journal.UserMessagePayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode USER_MESSAGE seq=%d: %w", ev.Seq, err)
			}
			out = append(out, Message{Role: RoleUser, Content: p.Content})

		case journal.EventThought:
			var p journal.ThoughtPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode THOUGHT seq=%d: %w", ev.Seq, err)
			}
			msg := Message{Role: RoleAssistant, Content: p.Content}
			for _, tc := range p.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
			}
			out = append(out, msg)

		case journal.EventActionResult:
			var p journal.ActionResultPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode ACTION_RESULT seq=%d: %w", ev.Seq, err)
			}
			out = append(out, Message{Role: RoleTool, Content: p.ObservationContent, ToolCallID: p.ActionID})

		default:
			// RUN_START, ACTION_REQUEST, SYSTEM_MESSAGE, HOOK_EXECUTION_AUDIT,
			// and RUN_END carry no message of their own.
		}
	}
	return out, nil
}
