package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetadataFilename is the name of the run metadata file within a run
// directory.
const MetadataFilename = "metadata.json"

// Metadata is the mutable run descriptor. It is
// rewritten atomically (temp file + rename) on every status change so a
// crash never leaves a partially-written file on disk.
type Metadata struct {
	RunID                string     `json:"run_id"`
	AgentRef             string     `json:"agent_ref"`
	Task                 string     `json:"task"`
	Status               RunStatus  `json:"status"`
	IterationsCompleted  int        `json:"iterations_completed"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	PID                  int        `json:"pid"`
	Hostname             string     `json:"hostname"`
	ProcessName          string     `json:"process_name"`
	Error                string     `json:"error,omitempty"`
}

// MetadataPath returns the path to a run's metadata file.
func MetadataPath(runDir string) string {
	return filepath.Join(runDir, MetadataFilename)
}

// WriteMetadataAtomic serializes meta to the run directory's metadata file,
// writing to a sibling temp file and renaming it into place so readers never
// observe a partial write.
func WriteMetadataAtomic(runDir string, meta *Metadata) error {
	path := MetadataPath(runDir)

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(runDir, ".metadata-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync metadata temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename metadata into place: %w", err)
	}
	return nil
}

// ReadMetadata reads and parses a run's metadata file.
func ReadMetadata(runDir string) (*Metadata, error) {
	data, err := os.ReadFile(MetadataPath(runDir))
	if err != nil {
		return nil, fmt.Errorf("read run metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse run metadata: %w", err)
	}
	return &meta, nil
}

// MetadataPatch describes a partial update applied to the on-disk metadata
// by UpdateMetadata. Every field is a pointer: nil fields are left
// untouched, and a non-nil field is written even if it points at a zero
// value.
type MetadataPatch struct {
	Status              *RunStatus
	IterationsCompleted *int
	EndTime             *time.Time
	Error               *string
}

// UpdateMetadata reads the current metadata, applies patch, and writes the
// result back atomically. Callers needing a consistent read-modify-write
// across concurrent updaters should serialize calls themselves; neither
// this function nor the journal Store takes a lock around it.
func UpdateMetadata(runDir string, patch MetadataPatch) (*Metadata, error) {
	meta, err := ReadMetadata(runDir)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil {
		meta.Status = *patch.Status
	}
	if patch.IterationsCompleted != nil {
		meta.IterationsCompleted = *patch.IterationsCompleted
	}
	if patch.EndTime != nil {
		meta.EndTime = patch.EndTime
	}
	if patch.Error != nil {
		meta.Error = *patch.Error
	}
	if err := WriteMetadataAtomic(runDir, meta); err != nil {
		return nil, err
	}
	return meta, nil
}
