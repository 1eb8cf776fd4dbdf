//go:build linux

package janitor

import (
	"fmt"
	"os"
	"strings"
)

// sameProcess compares the recorded process name against the live
// /proc/<pid>/comm entry, catching the case where the original process
// exited and the OS handed its PID to something unrelated.
func sameProcess(pid int, recordedName string) bool {
	if recordedName == "" {
		return true
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return false
	}
	live := strings.TrimSpace(string(data))
	return live == recordedName
}
