package workspace

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// runIDPattern validates a client-supplied run id: letters, digits,
// underscore, dash. This keeps run ids safe to use as directory names
// across platforms.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// GenerateRunID produces a run id of the form YYYYMMDD_HHMMSS_<6hex>,
// using the given reference time converted to UTC.
func GenerateRunID(now time.Time) (string, error) {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate run id suffix: %w", err)
	}
	return fmt.Sprintf("%s_%s", now.UTC().Format("20060102_150405"), hex.EncodeToString(buf[:])), nil
}

// ValidRunID reports whether id is safe to use as a run directory name.
func ValidRunID(id string) bool {
	return id != "" && runIDPattern.MatchString(id)
}
