package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// NewSessionID generates a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// MetadataFilename is the name of the metadata file written beside the
// session's socket.
const MetadataFilename = "session.json"

// SocketFilename is the name of the Unix-domain socket a holder listens on.
const SocketFilename = "session.sock"

// Metadata is the on-disk record of a session, written by the holder at
// startup and updated as the session's working directory changes. A client
// reads it to decide whether a session is worth connecting to before
// touching the socket.
type Metadata struct {
	SessionID    string    `json:"session_id"`
	Command      []string  `json:"command"`
	HolderPID    int       `json:"holder_pid"`
	SubordinatePID int     `json:"subordinate_pid"`
	Status       Status    `json:"status"`
	WorkDir      string    `json:"work_dir"`
	CreatedAt    time.Time `json:"created_at"`
}

// Dir returns the directory a session with the given id and root lives in.
func Dir(root, sessionID string) string {
	return filepath.Join(root, sessionID)
}

func metadataPath(dir string) string { return filepath.Join(dir, MetadataFilename) }
func socketPath(dir string) string   { return filepath.Join(dir, SocketFilename) }

// WriteMetadata persists m to dir, creating dir if necessary.
func WriteMetadata(dir string, m Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	return os.WriteFile(metadataPath(dir), data, 0o644)
}

// ReadMetadata reads back what WriteMetadata wrote.
func ReadMetadata(dir string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(metadataPath(dir))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse session metadata: %w", err)
	}
	return m, nil
}
