// Package workspace implements the on-disk workspace layout: a
// directory on disk carrying a .delta/ control plane subdirectory, a
// VERSION file, and one subdirectory per run. The workspace itself holds
// no global mutable state — no "current run" pointer — so that multiple
// runs can operate on it concurrently.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ControlPlaneDir is the name of the workspace's control-plane subdirectory.
const ControlPlaneDir = ".delta"

// VersionFilename names the schema-version marker file under the control
// plane directory.
const VersionFilename = "VERSION"

// SchemaVersion is the current on-disk schema version written to VERSION
// when a workspace is created.
const SchemaVersion = "1"

// Workspace is a resolved workspace root.
type Workspace struct {
	Root string
}

// ControlPlane returns the path to the workspace's .delta/ directory.
func (w *Workspace) ControlPlane() string {
	return filepath.Join(w.Root, ControlPlaneDir)
}

// RunDir returns the path to a specific run's directory under the control
// plane, i.e. .delta/<run_id>/.
func (w *Workspace) RunDir(runID string) string {
	return filepath.Join(w.ControlPlane(), runID)
}

// Open resolves root as a workspace, ensuring .delta/VERSION exists. If the
// directory or control plane is missing it is created lazily; Open never
// deletes anything.
func Open(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	w := &Workspace{Root: abs}

	if err := os.MkdirAll(w.ControlPlane(), 0o755); err != nil {
		return nil, fmt.Errorf("create control plane directory: %w", err)
	}

	versionPath := filepath.Join(w.ControlPlane(), VersionFilename)
	if _, err := os.Stat(versionPath); os.IsNotExist(err) {
		if err := os.WriteFile(versionPath, []byte(SchemaVersion+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("write workspace VERSION: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat workspace VERSION: %w", err)
	}

	return w, nil
}

// Version reads the workspace's schema version.
func (w *Workspace) Version() (string, error) {
	data, err := os.ReadFile(filepath.Join(w.ControlPlane(), VersionFilename))
	if err != nil {
		return "", fmt.Errorf("read workspace VERSION: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ErrRunExists is returned by CreateRunDir when a run directory already
// exists, enforcing run id uniqueness.
type ErrRunExists struct {
	RunID string
	Path  string
}

func (e *ErrRunExists) Error() string {
	return fmt.Sprintf("Run ID '%s' already exists: %s", e.RunID, e.Path)
}

// CreateRunDir creates a new run directory under the control plane. It
// fails atomically with ErrRunExists if the directory already exists: the
// run directory is created by a single os.Mkdir, which fails without
// writing anything when the directory is already there.
func (w *Workspace) CreateRunDir(runID string) (string, error) {
	dir := w.RunDir(runID)
	if err := os.MkdirAll(w.ControlPlane(), 0o755); err != nil {
		return "", fmt.Errorf("create control plane directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return "", &ErrRunExists{RunID: runID, Path: dir}
		}
		return "", fmt.Errorf("create run directory: %w", err)
	}
	return dir, nil
}

// RunExists reports whether a run directory already exists for runID.
func (w *Workspace) RunExists(runID string) bool {
	info, err := os.Stat(w.RunDir(runID))
	return err == nil && info.IsDir()
}

// ListRunIDs enumerates run directories under the control plane, sorted
// lexically (run ids are either client-supplied or the
// YYYYMMDD_HHMMSS_<6hex> format, which sorts chronologically).
func (w *Workspace) ListRunIDs() ([]string, error) {
	entries, err := os.ReadDir(w.ControlPlane())
	if err != nil {
		return nil, fmt.Errorf("list control plane directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}
