package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysopt/pkg/sysopt/backup"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
	"github.com/jamesainslie/sysopt/pkg/sysopt/output"
)

var systemSnapshotCmd = &cobra.Command{
	Use:   "system-snapshot",
	Short: "Whole-system snapshots through timeshift",
}

var systemSnapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a timeshift snapshot",
	Args:  cobra.NoArgs,
	RunE:  runSystemSnapshotCreate,
}

var systemSnapshotListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List timeshift snapshots",
	Args:    cobra.NoArgs,
	RunE:    runSystemSnapshotList,
}

var systemSnapshotComment string

func init() {
	systemSnapshotCreateCmd.Flags().StringVarP(&systemSnapshotComment, "comment", "c", "", "snapshot comment (default \"sysopt\")")
	systemSnapshotCmd.AddCommand(systemSnapshotCreateCmd)
	systemSnapshotCmd.AddCommand(systemSnapshotListCmd)
	rootCmd.AddCommand(systemSnapshotCmd)
}

func runSystemSnapshotCreate(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	if err := backup.NewTimeshift(executor.OS{}, s.logs).Create(cmd.Context(), systemSnapshotComment); err != nil {
		return err
	}
	printInfo("System snapshot created.")
	return nil
}

func runSystemSnapshotList(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	snaps, err := backup.NewTimeshift(executor.OS{}, s.logs).List(cmd.Context())
	if err != nil {
		return err
	}
	if snaps == nil {
		snaps = []backup.SystemSnapshot{}
	}
	return render(&output.Document{System: snaps})
}
