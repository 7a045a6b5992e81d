package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysopt/pkg/sysopt/backup"
	"github.com/jamesainslie/sysopt/pkg/sysopt/output"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Snapshot and restore configuration files",
	Long: `Capture the configuration targets into a timestamped snapshot under
<backup_location>/backups and put them back later.

Targets are the built-in configuration files, restore_settings.restore_targets
and restore_settings.custom_backup.paths. See 'sysopt backup targets'.`,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot of every target",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotCreate,
}

var snapshotListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List snapshots, newest first",
	Args:    cobra.NoArgs,
	RunE:    runSnapshotList,
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <id> [target...]",
	Short: "Restore a snapshot",
	Long: `Restore every member of a snapshot, or only the named targets.

Each member goes to the target's current path when the target is still
configured, else to the path it was captured from. A failing member does
not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSnapshotRestore,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a snapshot",
	Args:    cobra.ExactArgs(1),
	RunE:    runSnapshotDelete,
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	snap, err := s.engine().CreateSnapshot(cmd.Context(), s.resolver().Resolve())
	if err != nil {
		return err
	}
	printInfo("Snapshot %s created in %s", snap.ID, snap.Dir)
	printInfo("  captured %d targets", len(snap.Members))
	for _, m := range snap.Missing {
		printInfo("  missing  %s (%s)", m.Name, m.Path)
	}
	for _, f := range snap.Failed {
		printInfo("  failed   %s: %s", f.Name, f.Error)
	}
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	snaps, err := s.engine().ListSnapshots()
	if err != nil {
		return err
	}
	if snaps == nil {
		snaps = []*backup.Snapshot{}
	}
	return render(&output.Document{Snapshots: snaps})
}

func runSnapshotRestore(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	results, err := s.engine().RestoreSnapshot(cmd.Context(), args[0], s.resolver(), args[1:]...)
	for _, r := range results {
		if r.Succeeded() {
			printInfo("restored  %-24s -> %s", r.Name, r.Path)
		} else {
			printError("%s -> %s: %v", r.Name, r.Path, r.Err)
		}
	}
	if err != nil {
		if len(results) > 0 {
			return fmt.Errorf("restore of %s incomplete", args[0])
		}
		return err
	}
	return nil
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.engine().DeleteSnapshot(args[0]); err != nil {
		return err
	}
	printInfo("Deleted snapshot %s", args[0])
	return nil
}
