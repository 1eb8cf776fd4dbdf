package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JournalFilename is the name of the append-only event log within a run
// directory.
const JournalFilename = "journal.jsonl"

// Store is the append-only event log and metadata substrate for a single
// run. Writes are serialized per run; a Store is
// owned by exactly one writer (the running engine).
type Store struct {
	runDir string

	mu          sync.Mutex
	file        *os.File
	nextSeq     int
	nextHookSeq int
}

// Initialize opens (or resumes) the journal for runDir, ensuring every
// subdirectory exists. If journal.jsonl already exists
// it is scanned to discover the highest seq and the Store resumes from
// seq+1; otherwise writes begin at seq 1.
func Initialize(runDir string) (*Store, error) {
	for _, sub := range []string{
		"io/invocations",
		"io/tool_executions",
		"io/hooks",
		"interaction",
	} {
		if err := os.MkdirAll(filepath.Join(runDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create run subdirectory %s: %w", sub, err)
		}
	}

	path := filepath.Join(runDir, JournalFilename)
	highestSeq := 0
	if existing, err := os.ReadFile(path); err == nil {
		events, perr := parseLines(existing)
		if perr != nil {
			return nil, perr
		}
		for _, e := range events {
			if e.Seq > highestSeq {
				highestSeq = e.Seq
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read existing journal: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal for append: %w", err)
	}

	hookEntries, err := os.ReadDir(filepath.Join(runDir, "io", "hooks"))
	if err != nil {
		return nil, fmt.Errorf("read existing hook artifact directories: %w", err)
	}

	return &Store{
		runDir:      runDir,
		file:        f,
		nextSeq:     highestSeq + 1,
		nextHookSeq: len(hookEntries) + 1,
	}, nil
}

// NextHookSeq returns the next run-scoped hook invocation counter and
// advances it. Counters are assigned in allocation order under s.mu, the
// same lock guarding journal sequence assignment.
func (s *Store) NextHookSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nextHookSeq
	s.nextHookSeq++
	return n
}

// Close releases the underlying journal file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Append serializes {seq, timestamp, type, payload} as one JSON line and
// appends it to the journal. It returns the assigned seq. Writes are
// serialized by s.mu so sequence assignment never races.
func (s *Store) Append(eventType EventType, payload any) (int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, &ErrAppendFailed{Cause: fmt.Errorf("marshal payload: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, &ErrAppendFailed{Cause: fmt.Errorf("journal closed")}
	}

	event := Event{
		Seq:       s.nextSeq,
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Payload:   raw,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return 0, &ErrAppendFailed{Cause: fmt.Errorf("marshal event: %w", err)}
	}
	line = append(line, '\n')

	if _, err := s.file.Write(line); err != nil {
		return 0, &ErrAppendFailed{Cause: err}
	}
	if err := s.file.Sync(); err != nil {
		return 0, &ErrAppendFailed{Cause: fmt.Errorf("sync journal: %w", err)}
	}

	s.nextSeq++
	return event.Seq, nil
}

// ReadAll parses every non-blank line of the journal. A malformed line is a
// fatal error (ErrMalformedLine), never silently skipped.
func (s *Store) ReadAll() ([]Event, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir, JournalFilename))
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return parseLines(data)
}

// ReadByType returns every event of the given type, in journal order.
func (s *Store) ReadByType(t EventType) ([]Event, error) {
	all, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range all {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out, nil
}

// RunDir returns the run directory this Store operates on.
func (s *Store) RunDir() string { return s.runDir }

func parseLines(data []byte) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, lineNo, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return events, nil
}
