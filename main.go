// autoprobe runs an autonomous code investigation: a turn-based loop between
// a remote reasoning service and a set of sandboxed inspection tools rooted
// at the target codebase.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"

	"autoprobe/agent"
	"autoprobe/llm"
	"autoprobe/sandbox"
	"autoprobe/store"
	"autoprobe/tools"
	"autoprobe/transcript"
)

// Exit codes: 0 concluded with a report, 2 turn budget exhausted, 1 fatal.
const (
	exitConcluded = 0
	exitFatal     = 1
	exitExhausted = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := loadAppConfig(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFatal
	}

	if cfg.History {
		return printHistory(cfg)
	}

	if cfg.Root == "" {
		fmt.Fprintln(os.Stderr, "Error: -root is required")
		return exitFatal
	}
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		return exitFatal
	}
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFatal
	}

	runID := uuid.NewString()
	logger, logFile, err := buildLogger(cfg, runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFatal
	}
	defer logFile.Close()

	sb, err := sandbox.New(cfg.Root)
	if err != nil {
		logger.Error("sandbox setup failed", "root", cfg.Root, "error", err)
		return exitFatal
	}
	defer sb.Close()

	registry := tools.NewRegistry()
	tools.RegisterFilesystemTools(registry, sb)
	tools.RegisterShellTool(registry, sandbox.NewShellExecutor(sb, cfg.ShellTimeout, cfg.MaxOutputBytes))

	transport := llm.NewTransport(
		llm.NewGeminiClient(cfg.APIKey, cfg.Model),
		llm.TransportConfig{
			RequestInterval: cfg.RequestInterval,
			MaxRetries:      cfg.MaxRetries,
			Backoff:         cfg.Backoff,
		},
		logger,
	)

	tlog, err := transcript.New(filepath.Join(cfg.LogDir, runID+".transcript.log"))
	if err != nil {
		logger.Error("transcript setup failed", "error", err)
		return exitFatal
	}
	defer tlog.Close()

	ctrl, err := agent.New(agent.Config{
		RunID:      runID,
		Mission:    cfg.Mission,
		Model:      cfg.Model,
		TurnBudget: cfg.Turns,
		Verbose:    cfg.Verbose,
	}, transport, registry, sb, tlog, logger)
	if err != nil {
		logger.Error("agent setup failed", "error", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("run starting",
		"run_id", runID, "root", sb.Root(), "model", cfg.Model, "turns", cfg.Turns,
		"transcript", tlog.Path())

	started := time.Now()
	res, runErr := ctrl.Run(ctx)

	rec := store.Run{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Mission:    cfg.Mission,
		Model:      cfg.Model,
	}
	if runErr != nil {
		rec.Outcome = "fatal"
	} else {
		rec.Outcome = res.Outcome.String()
		rec.Turns = res.TurnsUsed
		rec.Report = res.Report
	}
	recordRun(cfg, logger, rec)

	if runErr != nil {
		logger.Error("run failed", "run_id", runID, "error", runErr)
		return exitFatal
	}
	if res.Outcome == agent.OutcomeExhausted {
		logger.Warn("run exhausted its turn budget", "run_id", runID, "turns", res.TurnsUsed)
		fmt.Fprintf(os.Stderr, "Turn budget (%d) exhausted without a final report. Transcript: %s\n",
			res.TurnsUsed, tlog.Path())
		return exitExhausted
	}

	fmt.Println(res.Report)
	return exitConcluded
}

// buildLogger fans log records out to stderr (Info, or Debug with -verbose)
// and to a per-run debug log file next to the transcript.
func buildLogger(cfg *appConfig, runID string) (*slog.Logger, *os.File, error) {
	f, err := os.OpenFile(filepath.Join(cfg.LogDir, runID+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	stderrLevel := slog.LevelInfo
	if cfg.Verbose {
		stderrLevel = slog.LevelDebug
	}
	logger := slog.New(slogmulti.Fanout(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel}),
		slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))
	return logger, f, nil
}

func recordRun(cfg *appConfig, logger *slog.Logger, rec store.Run) {
	s, err := store.Open(filepath.Join(cfg.LogDir, "runs.db"))
	if err != nil {
		logger.Warn("run history unavailable", "error", err)
		return
	}
	defer s.Close()
	if err := s.Record(context.Background(), rec); err != nil {
		logger.Warn("run not recorded", "error", err)
	}
}

func printHistory(cfg *appConfig) int {
	s, err := store.Open(filepath.Join(cfg.LogDir, "runs.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFatal
	}
	defer s.Close()

	runs, err := s.List(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFatal
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return exitConcluded
	}
	for _, r := range runs {
		mission := r.Mission
		if mission == "" {
			mission = "(default mission)"
		}
		fmt.Printf("%s  %s  %-9s  %2d turns  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.ID[:8], r.Outcome, r.Turns, mission)
	}
	return exitConcluded
}
