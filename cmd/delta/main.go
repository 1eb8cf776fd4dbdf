// Package main provides the CLI entry point for delta, a stateless,
// journal-driven agent execution runtime: each invocation resolves a
// workspace, runs or resumes one agent turn through the Think-Act-Observe
// engine, and exits once the run reaches a terminal or suspended state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/delta-run/delta/internal/rundriver"
	"github.com/delta-run/delta/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A session holder is the delta binary re-exec'd against itself; this
	// must be checked before any cobra setup runs, since the holder never
	// parses ordinary CLI flags.
	if len(os.Args) > 1 && os.Args[1] == session.HolderEntryArg {
		if err := session.RunHolderFromArgs(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(rundriver.ExitFailed)
	}
}

// buildRootCmd assembles the command tree. Separated from main for testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "delta",
		Short:        "delta - stateless, journal-driven agent execution runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildRunCmd(),
		buildContinueCmd(),
		buildSessionCmd(),
	)
	return rootCmd
}

type runFlags struct {
	workspace string
	agent     string
	runID     string
	message   string
	model     string
	endpoint  string
	apiKey    string
	maxIter   int
	output    string

	metricsAddr string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.workspace, "workspace", ".", "workspace root directory")
	cmd.Flags().StringVar(&f.agent, "agent", "", "path to the agent config file (required)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run id (generated if omitted for a new run)")
	cmd.Flags().StringVar(&f.message, "message", "", "initial task, or the human's reply when continuing")
	cmd.Flags().StringVar(&f.model, "model", "", "model name passed to the LLM provider")
	cmd.Flags().StringVar(&f.endpoint, "llm-endpoint", os.Getenv("DELTA_LLM_ENDPOINT"), "LLM provider endpoint")
	cmd.Flags().StringVar(&f.apiKey, "llm-api-key", os.Getenv("DELTA_LLM_API_KEY"), "LLM provider API key")
	cmd.Flags().IntVar(&f.maxIter, "max-iterations", 0, "override the agent config's iteration budget")
	cmd.Flags().StringVar(&f.output, "output", "text", "result format: text, json, or raw")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address for the run's duration (e.g. 127.0.0.1:9090)")
	cobra.CheckErr(cmd.MarkFlagRequired("agent"))
}

func (f *runFlags) options(continueRun bool, force bool) rundriver.Options {
	return rundriver.Options{
		WorkspaceRoot:   f.workspace,
		AgentConfigPath: f.agent,
		RunID:           f.runID,
		Continue:        continueRun,
		Message:         f.message,
		Force:           force,
		Model:           f.model,
		LLMEndpoint:     f.endpoint,
		LLMAPIKey:       f.apiKey,
		MaxIterations:   f.maxIter,
	}
}

func buildRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start a new run against a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, flags.options(false, false), flags.output, flags.metricsAddr)
		},
	}
	flags.register(cmd)
	return cmd
}

func buildContinueCmd() *cobra.Command {
	flags := &runFlags{}
	var force bool
	cmd := &cobra.Command{
		Use:   "continue",
		Short: "resume an existing run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.runID == "" {
				return fmt.Errorf("--run-id is required to continue a run")
			}
			return executeRun(cmd, flags.options(true, force), flags.output, flags.metricsAddr)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "reconcile a run recorded on a different host")
	return cmd
}

// executeRun invokes the run driver, renders the result in the requested
// format, and sets the process exit code to match the run's terminal
// status — the only path by which a non-zero status reaches os.Exit. When
// metricsAddr is set, a Prometheus exporter listens for the run's duration
// so an external scraper can observe mid-run iteration/tool/hook metrics;
// it's stopped once the run finishes regardless of outcome.
func executeRun(cmd *cobra.Command, opts rundriver.Options, output, metricsAddr string) error {
	stopMetrics := serveMetrics(metricsAddr)
	defer stopMetrics()

	result, err := rundriver.Run(context.Background(), opts)
	if err != nil {
		return err
	}

	switch output {
	case "raw":
		if result.Result != "" {
			fmt.Fprint(cmd.OutOrStdout(), result.Result)
		}
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	default:
		renderText(cmd, result)
	}

	exitCode := rundriver.ExitCode(result.Status)
	if exitCode != rundriver.ExitCompleted {
		os.Exit(exitCode)
	}
	return nil
}

// serveMetrics starts a best-effort /metrics HTTP server on addr, returning
// a stop function that's always safe to call (a no-op when addr is empty
// or the listener failed to bind). A scrape failure here never blocks or
// fails a run: metrics export is an observability add-on, not part of the
// run's own correctness.
func serveMetrics(addr string) (stop func()) {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Warn("metrics listener failed to bind, continuing without it", "addr", addr, "error", err)
		return func() {}
	}
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()
	return func() { srv.Close() }
}

func renderText(cmd *cobra.Command, result *rundriver.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s\n", result.RunID, result.Status)
	switch {
	case result.Error != "":
		fmt.Fprintf(out, "error: %s\n", result.Error)
	case result.Interaction != nil:
		fmt.Fprintf(out, "waiting for input: %s\n", result.Interaction.Question)
	case result.Result != "":
		fmt.Fprintln(out, result.Result)
	}
	fmt.Fprintf(out, "iterations: %d, duration: %dms\n", result.Metrics.Iterations, result.Metrics.DurationMs)
}
