package procrun

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesStdout(t *testing.T) {
	res, err := Run(context.Background(), Request{Argv: []string{"echo", "hello"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("expected stdout 'hello', got %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), Request{Argv: []string{"sh", "-c", "exit 7"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("expected exit code 7, got %d", res.ExitCode)
	}
}

func TestRunEnforcesTimeout(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Argv:    []string{"sleep", "5"},
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.TimedOut {
		t.Error("expected TimedOut to be true")
	}
}

func TestRunRejectsEmptyArgv(t *testing.T) {
	if _, err := Run(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestCappedBufferTruncatesOutput(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Argv:      []string{"sh", "-c", "printf 'abcdefgh'"},
		MaxOutput: 4,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Stdout) != 4 {
		t.Errorf("expected output capped to 4 bytes, got %d: %q", len(res.Stdout), res.Stdout)
	}
}
