package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/delta-run/delta/internal/session"
	"github.com/spf13/cobra"
)

// sessionsRoot is where session directories live under a workspace, kept
// separate from .delta's run directories since a session outlives any one
// run and may be shared across them.
const sessionsRoot = ".delta/sessions"

func buildSessionCmd() *cobra.Command {
	var workspaceRoot string
	cmd := &cobra.Command{
		Use:   "session",
		Short: "manage long-lived command execution sessions",
	}
	cmd.PersistentFlags().StringVar(&workspaceRoot, "workspace", ".", "workspace root directory")

	cmd.AddCommand(
		buildSessionStartCmd(&workspaceRoot),
		buildSessionExecCmd(&workspaceRoot),
		buildSessionStatusCmd(&workspaceRoot),
		buildSessionEndCmd(&workspaceRoot),
	)
	return cmd
}

func sessionDir(workspaceRoot, sessionID string) string {
	return session.Dir(filepath.Join(workspaceRoot, sessionsRoot), sessionID)
}

func buildSessionStartCmd(workspaceRoot *string) *cobra.Command {
	var workDir, command string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "launch a new session holder",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := session.NewSessionID()
			if workDir == "" {
				workDir = *workspaceRoot
			}
			if command == "" {
				command = "sh"
			}
			pid, err := session.Launch(sessionDir(*workspaceRoot, id), id, command, workDir)
			if err != nil {
				return fmt.Errorf("launch session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session_id: %s\nholder_pid: %d\n", id, pid)
			return nil
		},
	}
	cmd.Flags().StringVar(&workDir, "work-dir", "", "initial working directory (defaults to the workspace root)")
	cmd.Flags().StringVar(&command, "command", "sh", "subordinate command the session wraps")
	return cmd
}

func buildSessionExecCmd(workspaceRoot *string) *cobra.Command {
	var sessionID, command string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "run a command against an existing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := sessionDir(*workspaceRoot, sessionID)
			if !session.IsAlive(dir) {
				return fmt.Errorf("session %q has no live holder", sessionID)
			}
			resp, err := session.Connect(dir).Exec(command, timeout)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), resp.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), resp.Stderr)
			if resp.ExitCode != 0 {
				return fmt.Errorf("command exited with status %d", resp.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (required)")
	cmd.Flags().StringVar(&command, "command", "", "shell command to run (required)")
	cmd.Flags().DurationVar(&timeout, "timeout", session.DefaultExecTimeout, "command timeout")
	cobra.CheckErr(cmd.MarkFlagRequired("session-id"))
	cobra.CheckErr(cmd.MarkFlagRequired("command"))
	return cmd
}

func buildSessionStatusCmd(workspaceRoot *string) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "report a session's liveness and working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := sessionDir(*workspaceRoot, sessionID)
			if !session.IsAlive(dir) {
				fmt.Fprintln(cmd.OutOrStdout(), "status: dead")
				return nil
			}
			resp, err := session.Connect(dir).Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: alive\npid: %d\ncwd: %s\ncreated_at: %s\n", resp.PID, resp.Cwd, resp.CreatedAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (required)")
	cobra.CheckErr(cmd.MarkFlagRequired("session-id"))
	return cmd
}

func buildSessionEndCmd(workspaceRoot *string) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "end",
		Short: "terminate a session's holder",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := sessionDir(*workspaceRoot, sessionID)
			if !session.IsAlive(dir) {
				return session.Reap(dir)
			}
			_, err := session.Connect(dir).End()
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (required)")
	cobra.CheckErr(cmd.MarkFlagRequired("session-id"))
	return cmd
}
