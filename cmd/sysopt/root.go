package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sysopt/pkg/sysopt/backup"
	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/history"
	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
	"github.com/jamesainslie/sysopt/pkg/sysopt/output"
	"github.com/jamesainslie/sysopt/pkg/sysopt/targets"
)

// errRunFailed is returned after a report has been printed for a run with
// failed categories. main exits non-zero without printing it again.
var errRunFailed = errors.New("one or more categories failed")

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "sysopt",
		Short: "Tune a Linux host and keep its configuration recoverable",
		Long: `Sysopt applies CPU, I/O, memory, service, security and disk tuning from a
JSON settings document, and snapshots configuration files so they can be
restored later.

Examples:
  sysopt optimize --dry-run      # Show the commands a run would issue
  sysopt optimize                # Apply the settings
  sysopt verify                  # Compare live state with the settings
  sysopt snapshot create         # Back up configuration files
  sysopt snapshot restore <id>   # Put them back
  sysopt backup create ~/notes   # Ad hoc backup of a file or directory
  sysopt config init             # Write the default settings document`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default: ~/.config/sysopt/optimizer_settings.json)")
	rootCmd.PersistentFlags().StringP("format", "f", "pretty", "output format: plain, json, pretty")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output on stderr")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func getVerbose() bool {
	return viper.GetBool("verbose")
}

func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message unless quiet mode is enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// session is the configuration and logging shared by one command.
type session struct {
	cfg  *config.Config
	logs *logging.Logging
}

// openSession loads the settings and opens the log. console mirrors log
// records on stderr, which interactive views turn off.
func openSession(console bool) (*session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	lc := loggingConfig(cfg, console, getVerbose(), getQuiet())

	logs, err := logging.New(lc)
	if err != nil {
		// An unwritable log must not block tuning or restores.
		fmt.Fprintf(os.Stderr, "Warning: logging to file disabled: %v\n", err)
		lc.Disabled = true
		if logs, err = logging.New(lc); err != nil {
			return nil, err
		}
	}
	return &session{cfg: cfg, logs: logs}, nil
}

// loggingConfig maps log_management onto the logger. console mirrors
// records on stderr at debug when verbose, at warn unless quiet.
func loggingConfig(cfg *config.Config, console, verbose, quiet bool) logging.Config {
	lc := logging.Config{
		Level:      cfg.Logging.LogLevel,
		Path:       cfg.Logging.LogFilePath,
		Components: cfg.Logging.Components,
		Disabled:   !cfg.Logging.Enable,
		Rotation: logging.RotationConfig{
			MaxSize:    int64(cfg.Logging.Rotation.MaxSizeMB) * 1024 * 1024,
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			Daily:      cfg.Logging.Rotation.Daily,
		},
	}
	if console {
		switch {
		case verbose:
			lc.ConsoleLevel = "debug"
		case !quiet:
			lc.ConsoleLevel = "warn"
		}
	}
	return lc
}

func (s *session) close() {
	_ = s.logs.Close()
}

func (s *session) engine() *backup.Engine {
	return backup.New(s.cfg.Restore.BackupLocation, backup.WithLogging(s.logs))
}

func (s *session) resolver() *targets.Resolver {
	return targets.NewResolver(s.cfg, s.logs)
}

func (s *session) history() (*history.Store, error) {
	path := s.cfg.History.Path
	if path == "" {
		path = config.DefaultHistoryPath()
	}
	return history.Open(filepath.Clean(path))
}

// render writes d with the --format formatter.
func render(d *output.Document) error {
	f, err := output.Get(viper.GetString("format"))
	if err != nil {
		return fmt.Errorf("%w (available: %v)", err, output.Available())
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, d); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}
