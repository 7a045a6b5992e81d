package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/output"
	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past optimize runs",
	Long: `List the reports of past optimize runs, newest first.

Reports are kept in a local store under $XDG_DATA_HOME/sysopt/history
and pruned after history.retention_days.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run report",
	Long:  `Display a run report by its ID or a unique ID prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove reports older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show (0 for all)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	store, err := s.history()
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer store.Close()

	runs, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if runs == nil {
		runs = []*tuning.RunReport{}
	}
	return render(&output.Document{Runs: runs})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	store, err := s.history()
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer store.Close()

	report, err := store.Get(args[0])
	if err != nil {
		return err
	}
	return render(&output.Document{Report: report})
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	days := s.cfg.History.RetentionDays
	if days <= 0 {
		days = config.DefaultHistoryRetentionDays
	}

	store, err := s.history()
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer store.Close()

	printInfo("Removing runs older than %d days...", days)
	n, err := store.Prune(time.Now().AddDate(0, 0, -days))
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d runs.", n)
	return nil
}
