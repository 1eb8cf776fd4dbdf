package janitor

import (
	"os"
	"syscall"
)

// processAlive reports whether pid refers to a running process, using the
// conventional signal-0 liveness probe (no signal delivered, just an
// existence/permission check).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
