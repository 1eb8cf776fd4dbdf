package session

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Launch starts a detached holder process for a new session rooted at
// dir, running command with workDir as its initial working directory. It
// returns once the holder's socket file exists, or an error if the holder
// fails to bind it within the process-launch window. The holder writes its
// metadata just after binding, so it may not yet be on disk when Launch
// returns.
//
// The holder is the delta binary re-invoked against itself with
// HolderEntryArg, set apart from the caller's process group via
// Setpgid so it survives the caller exiting or receiving a terminal
// signal — a caller's Ctrl-C must not take the session down with it.
func Launch(dir, sessionID, command, workDir string) (pid int, err error) {
	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve own executable: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create session directory: %w", err)
	}

	argv := []string{HolderEntryArg, dir, sessionID, workDir, command}
	cmd := exec.Command(self, argv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start session holder: %w", err)
	}

	holderPID := cmd.Process.Pid
	// The holder outlives this call; release it instead of waiting so this
	// process doesn't stay attached as the holder's parent via cmd.Wait.
	if err := cmd.Process.Release(); err != nil {
		return 0, fmt.Errorf("release session holder: %w", err)
	}

	if err := waitForSocket(dir); err != nil {
		return 0, err
	}

	return holderPID, nil
}
