package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings document",
	Long: `Manage the sysopt settings document.

The document is loaded from:
  1. --config, when given
  2. $XDG_CONFIG_HOME/sysopt/optimizer_settings.json (if set)
  3. ~/.config/sysopt/optimizer_settings.json

Environment variables override single keys using the SYSOPT_ prefix:
  SYSOPT_MEMORY_OPTIMIZATION_DROP_CACHE_MODE=1
  SYSOPT_LOG_MANAGEMENT_LOG_LEVEL=debug`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings document",
	Long:  `Create the settings document with defaults if it doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the settings document in an editor",
	Long: `Open the settings document in $VISUAL, then $EDITOR, falling back to vi.

A default document is written first when none exists.`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the settings document path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// settingsPath is --config or the default location.
func settingsPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.DefaultFileName), nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(cfg.File); err == nil {
		fmt.Fprintf(out, "Settings file: %s\n\n", cfg.File)
	} else {
		fmt.Fprintf(out, "Settings file: (defaults, %s not found)\n\n", cfg.File)
	}

	cpu := cfg.Performance.CPU
	io := cfg.Performance.IO
	rows := []struct {
		key   string
		value any
	}{
		{"cpu.governor", orNone(cpu.Governor)},
		{"cpu.priority_processes", cpu.PriorityProcesses},
		{"cpu.enable_scheduler_tuning", cpu.EnableSchedulerTuning},
		{"io.enable", io.Enable},
		{"io.device", io.Device},
		{"io.scheduler", io.Scheduler},
		{"io.read_ahead_kb", io.ReadAheadKB},
		{"memory.swappiness", intOrNone(cfg.Memory.Swappiness)},
		{"memory.drop_caches_on_schedule", cfg.Memory.DropCachesOnSchedule},
		{"services.disable_services", cfg.Services.DisableServices},
		{"services.zombie_cleanup", cfg.Services.ZombieCleanup.Enable},
		{"firewall.enable", cfg.Security.Firewall.Enable},
		{"ssh.config_path", cfg.Security.SSH.ConfigPath},
		{"disk.enable_defrag", cfg.Disk.EnableDefrag},
		{"disk.unified_cleanup.enable", cfg.Disk.UnifiedCleanup.Enable},
		{"disk.unified_cleanup.target_paths", cfg.Disk.UnifiedCleanup.TargetPaths},
		{"restore.backup_location", cfg.Restore.BackupLocation},
		{"restore.custom_backup.paths", cfg.Restore.CustomBackup.Paths},
		{"log.enable", cfg.Logging.Enable},
		{"log.level", cfg.Logging.LogLevel},
		{"log.file", orNone(cfg.Logging.LogFilePath)},
		{"history.enabled", cfg.History.Enabled},
		{"history.retention_days", cfg.History.RetentionDays},
	}
	for _, r := range rows {
		fmt.Fprintf(out, "%-36s %v\n", r.key+":", r.value)
	}

	fmt.Fprintln(out, "\nEnvironment overrides:")
	found := false
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "SYSOPT_") {
			fmt.Fprintf(out, "  %s\n", kv)
			found = true
		}
	}
	if !found {
		fmt.Fprintln(out, "  (none)")
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func intOrNone(p *int) string {
	if p == nil {
		return "(unset)"
	}
	return fmt.Sprint(*p)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	created, err := config.WriteDefault(path)
	if err != nil {
		return err
	}
	if !created {
		printInfo("Settings file already exists: %s", path)
		printInfo("Use 'sysopt config edit' to modify it.")
		return nil
	}
	printInfo("Created default settings file: %s", path)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	if _, err := config.WriteDefault(path); err != nil {
		return err
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	c := exec.Command(editor, path)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)

	if getVerbose() {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "(does not exist, defaults apply)")
		}
	}
	return nil
}
