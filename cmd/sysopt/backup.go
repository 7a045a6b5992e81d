package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysopt/pkg/sysopt/backup"
	"github.com/jamesainslie/sysopt/pkg/sysopt/output"
	"github.com/jamesainslie/sysopt/pkg/sysopt/targets"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Ad hoc backups of files and directories",
	Long: `Copy files and directories into <backup_location>/custom_backups.

Files are copied as they are; directories are stored as gzip tar archives.
Every artifact is prefixed with its creation time and is never overwritten.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [path...]",
	Short: "Back up paths, or the configured custom paths",
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List custom backups, newest first",
	Args:    cobra.NoArgs,
	RunE:    runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <artifact> <dest-dir>",
	Short: "Restore a custom backup into a directory",
	Long: `Restore an artifact into dest-dir.

The artifact is a name from 'sysopt backup list' or a path. Archives are
extracted into dest-dir/<artifact name>; files keep their original name.`,
	Args: cobra.ExactArgs(2),
	RunE: runBackupRestore,
}

var backupDeleteCmd = &cobra.Command{
	Use:     "delete <artifact>",
	Aliases: []string{"rm"},
	Short:   "Delete a custom backup",
	Args:    cobra.ExactArgs(1),
	RunE:    runBackupDelete,
}

var backupAddPathCmd = &cobra.Command{
	Use:   "add-path <path>",
	Short: "Register a path as a snapshot target",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupAddPath,
}

var backupRemovePathCmd = &cobra.Command{
	Use:   "remove-path <path>",
	Short: "Unregister a custom path",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRemovePath,
}

var backupTargetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the resolved snapshot targets",
	Args:  cobra.NoArgs,
	RunE:  runBackupTargets,
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupAddPathCmd)
	backupCmd.AddCommand(backupRemovePathCmd)
	backupCmd.AddCommand(backupTargetsCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	paths := args
	if len(paths) == 0 {
		paths = s.cfg.Restore.CustomBackup.Paths
	}
	if len(paths) == 0 {
		return errors.New("no paths given and restore_settings.custom_backup.paths is empty")
	}

	artifacts, err := s.engine().CreateCustomBackup(cmd.Context(), paths)
	for _, a := range artifacts {
		printInfo("backed up %s -> %s (%s)", a.Source, a.Name, humanize.IBytes(uint64(a.Size)))
	}
	return err
}

func runBackupList(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	artifacts, err := s.engine().ListCustomBackups()
	if err != nil {
		return err
	}
	if artifacts == nil {
		artifacts = []backup.Artifact{}
	}
	return render(&output.Document{Artifacts: artifacts})
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	dest, err := s.engine().RestoreCustomBackup(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	printInfo("Restored %s to %s", args[0], dest)
	return nil
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.engine().DeleteCustomBackup(args[0]); err != nil {
		return err
	}
	printInfo("Deleted %s", args[0])
	return nil
}

func runBackupAddPath(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.resolver().AddCustomPath(args[0]); err != nil {
		return err
	}
	printInfo("Added %s to %s", args[0], s.cfg.File)
	return nil
}

func runBackupRemovePath(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.resolver().RemoveCustomPath(args[0]); err != nil {
		if errors.Is(err, targets.ErrNotRegistered) {
			return fmt.Errorf("%w; see 'sysopt backup targets'", err)
		}
		return err
	}
	printInfo("Removed %s from %s", args[0], s.cfg.File)
	return nil
}

func runBackupTargets(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	ts := s.resolver().Resolve()
	if ts == nil {
		ts = []targets.Target{}
	}
	return render(&output.Document{Targets: ts})
}
