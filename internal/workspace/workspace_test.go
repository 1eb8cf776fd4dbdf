package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenCreatesControlPlaneAndVersion(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := os.Stat(w.ControlPlane()); err != nil {
		t.Fatalf("expected control plane directory, got error: %v", err)
	}
	version, err := w.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("expected version %q, got %q", SchemaVersion, version)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	root := t.TempDir()
	if _, err := Open(root); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := Open(root); err != nil {
		t.Fatalf("second Open: %v", err)
	}
}

func TestCreateRunDirFailsOnDuplicate(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dir, err := w.CreateRunDir("run-1")
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	marker := filepath.Join(dir, "marker.txt")
	if err := os.WriteFile(marker, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	_, err = w.CreateRunDir("run-1")
	var exists *ErrRunExists
	if err == nil {
		t.Fatal("expected ErrRunExists on duplicate run id")
	}
	if !isErrRunExists(err, &exists) {
		t.Fatalf("expected *ErrRunExists, got %T: %v", err, err)
	}

	// The existing directory must be untouched.
	if data, err := os.ReadFile(marker); err != nil || string(data) != "keep" {
		t.Fatalf("existing run directory was modified: data=%q err=%v", data, err)
	}
}

func isErrRunExists(err error, target **ErrRunExists) bool {
	if e, ok := err.(*ErrRunExists); ok {
		*target = e
		return true
	}
	return false
}

func TestGenerateRunIDFormat(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	id, err := GenerateRunID(now)
	if err != nil {
		t.Fatalf("GenerateRunID: %v", err)
	}
	if !ValidRunID(id) {
		t.Errorf("generated id %q is not a valid run id", id)
	}
	wantPrefix := "20260731_120000_"
	if len(id) < len(wantPrefix) || id[:len(wantPrefix)] != wantPrefix {
		t.Errorf("expected prefix %q, got %q", wantPrefix, id)
	}
}

func TestValidRunIDRejectsPathSeparators(t *testing.T) {
	if ValidRunID("../escape") {
		t.Error("expected path traversal id to be rejected")
	}
	if ValidRunID("") {
		t.Error("expected empty id to be rejected")
	}
}
