package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "continue", "session"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestSessionCmdIncludesSubcommands(t *testing.T) {
	cmd := buildSessionCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"start", "exec", "status", "end"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected session subcommand %q to be registered", name)
		}
	}
}

func TestContinueRequiresRunID(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetArgs([]string{"continue", "--agent", "agent.yaml"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected continue without --run-id to fail")
	}
}
