// Package janitor reconciles on-disk run metadata against real OS state at
// resume time. A run recorded as RUNNING in metadata.json may belong to a
// process that crashed, was killed, or — worse — whose PID was recycled by
// an unrelated process since. The janitor's job is to tell the difference
// and mark orphans INTERRUPTED before a resume proceeds, never touching
// earlier journal events or artifacts.
package janitor

import (
	"fmt"
	"os"
	"time"

	"github.com/delta-run/delta/internal/journal"
)

// Outcome describes what Check decided about a run.
type Outcome string

const (
	// OutcomeClean means metadata already reflects a terminal or
	// otherwise non-running state; nothing to reconcile.
	OutcomeClean Outcome = "clean"
	// OutcomeAlive means the recorded PID is running and still looks like
	// the same process that wrote the metadata; the run may be resumed
	// as-is (or is still actively running elsewhere).
	OutcomeAlive Outcome = "alive"
	// OutcomeOrphaned means the run was transitioned to INTERRUPTED.
	OutcomeOrphaned Outcome = "orphaned"
)

// ErrForeignHost is returned when a run's metadata was written on a
// different host and force wasn't set. Reconciling process liveness across
// machines isn't something a local PID probe can do.
type ErrForeignHost struct {
	Recorded string
	Local    string
}

func (e *ErrForeignHost) Error() string {
	return fmt.Sprintf("run metadata was recorded on host %q, this is %q (use --force to override)", e.Recorded, e.Local)
}

// Check reconciles a single run's metadata against OS state, appending a
// SYSTEM_MESSAGE(WARN) and rewriting status to INTERRUPTED when it finds an
// orphan. store must be the journal store for runDir's run.
func Check(store *journal.Store, runDir string, force bool) (Outcome, error) {
	meta, err := journal.ReadMetadata(runDir)
	if err != nil {
		return "", fmt.Errorf("read run metadata: %w", err)
	}

	if meta.Status != journal.StatusRunning {
		return OutcomeClean, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve local hostname: %w", err)
	}
	if meta.Hostname != "" && meta.Hostname != hostname && !force {
		return "", &ErrForeignHost{Recorded: meta.Hostname, Local: hostname}
	}

	if processAlive(meta.PID) {
		if sameProcess(meta.PID, meta.ProcessName) {
			return OutcomeAlive, nil
		}
		return orphan(store, runDir, meta, fmt.Sprintf(
			"pid %d is running but its command name no longer matches %q (likely pid reuse)",
			meta.PID, meta.ProcessName))
	}

	return orphan(store, runDir, meta, fmt.Sprintf("pid %d is not running", meta.PID))
}

func orphan(store *journal.Store, runDir string, meta *journal.Metadata, reason string) (Outcome, error) {
	if _, err := store.Append(journal.EventSystemMessage, journal.SystemMessagePayload{
		Level:   journal.SystemWarn,
		Content: "run marked interrupted: " + reason,
	}); err != nil {
		return "", fmt.Errorf("append orphan warning: %w", err)
	}

	status := journal.StatusInterrupted
	now := time.Now().UTC()
	if _, err := journal.UpdateMetadata(runDir, journal.MetadataPatch{
		Status:  &status,
		EndTime: &now,
	}); err != nil {
		return "", fmt.Errorf("mark run interrupted: %w", err)
	}

	return OutcomeOrphaned, nil
}
