package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysopt/cmd/sysopt/tui"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
	"github.com/jamesainslie/sysopt/pkg/sysopt/output"
	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Apply the tuning categories",
	Long: `Run CPU, IO, Memory, Services, Security and Disk tuning in that order.

Each category runs independently: a failure in one never stops the next.
CPU, IO and Disk tuning are skipped on virtual machines.

With --dry-run no command is executed; the report lists what would run.
The exit status is non-zero when any category failed.`,
	Args: cobra.NoArgs,
	RunE: runOptimize,
}

var (
	optimizeDryRun      bool
	optimizeInteractive bool
	optimizeSnapshot    bool
)

func init() {
	optimizeCmd.Flags().BoolVarP(&optimizeDryRun, "dry-run", "d", false, "record commands instead of running them")
	optimizeCmd.Flags().BoolVarP(&optimizeInteractive, "interactive", "i", false, "show live progress")
	optimizeCmd.Flags().BoolVar(&optimizeSnapshot, "snapshot", false, "snapshot configuration files before tuning")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	s, err := openSession(!optimizeInteractive)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if optimizeSnapshot && !optimizeDryRun {
		snap, err := s.engine().CreateSnapshot(ctx, s.resolver().Resolve())
		if err != nil {
			return fmt.Errorf("pre-run snapshot: %w", err)
		}
		printInfo("Snapshot %s created (%d targets).", snap.ID, len(snap.Members))
	}

	deps := tuning.Deps{Logging: s.logs, DryRun: optimizeDryRun}
	if optimizeDryRun {
		deps.Executor = executor.NewRecorder()
	}
	pipeline := tuning.New(s.cfg, deps)

	var report *tuning.RunReport
	if optimizeInteractive && s.logs.Path() != "" {
		report, err = tui.RunProgress(ctx, s.logs.Path(), pipeline.Run)
	} else {
		if optimizeInteractive {
			fmt.Fprintln(os.Stderr, "Warning: live progress needs log_management.enable; running without it")
		}
		report, err = pipeline.Run(ctx)
	}
	if err != nil {
		return err
	}

	recordHistory(s, report)

	if err := render(&output.Document{Report: report}); err != nil {
		return err
	}
	if !report.Succeeded() {
		return errRunFailed
	}
	return nil
}

// recordHistory stores the report. A history failure never fails the run.
func recordHistory(s *session, report *tuning.RunReport) {
	if !s.cfg.History.Enabled {
		return
	}
	log := s.logs.Get("history")

	store, err := s.history()
	if err != nil {
		log.Warn("run history unavailable", "error", err)
		return
	}
	defer store.Close()

	if err := store.Record(report); err != nil {
		log.Warn("recording run failed", "run", report.ID, "error", err)
		return
	}
	if days := s.cfg.History.RetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		if n, err := store.Prune(cutoff); err != nil {
			log.Warn("pruning run history failed", "error", err)
		} else if n > 0 {
			log.Debug("pruned run history", "removed", n)
		}
	}
}
