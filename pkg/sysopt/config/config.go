package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// CPUConfig is performance_optimization.cpu.
type CPUConfig struct {
	Governor              string   `mapstructure:"governor"`
	PriorityProcesses     []string `mapstructure:"priority_processes"`
	Nice                  int      `mapstructure:"nice"`
	EnableSchedulerTuning bool     `mapstructure:"enable_scheduler_tuning"`
	SchedulerPolicy       string   `mapstructure:"scheduler_policy"`
	SchedulerPriority     int      `mapstructure:"scheduler_priority"`
	TargetProcesses       []string `mapstructure:"target_processes"`
}

// IOConfig is performance_optimization.io.
type IOConfig struct {
	Enable      bool   `mapstructure:"enable"`
	Device      string `mapstructure:"device"`
	Scheduler   string `mapstructure:"scheduler"`
	ReadAheadKB int    `mapstructure:"read_ahead_kb"`
}

// MemoryConfig is memory_optimization. Swappiness and the threshold are
// pointers because their absence disables the corresponding step.
type MemoryConfig struct {
	Swappiness                *int     `mapstructure:"swappiness"`
	DropCachesOnSchedule      bool     `mapstructure:"drop_caches_on_schedule"`
	DropCacheMode             string   `mapstructure:"drop_cache_mode"`
	LowMemoryThresholdPercent *float64 `mapstructure:"low_memory_threshold_percent"`
}

// ServiceConfig is service_management.
type ServiceConfig struct {
	DisableServices []string `mapstructure:"disable_services"`
	ZombieCleanup   struct {
		Enable bool `mapstructure:"enable"`
	} `mapstructure:"zombie_cleanup"`
}

// FirewallConfig is security_hardening.firewall.
type FirewallConfig struct {
	Enable           bool  `mapstructure:"enable"`
	BlockedPorts     []int `mapstructure:"blocked_ports"`
	AllowedPorts     []int `mapstructure:"allowed_ports"`
	DenyAllByDefault bool  `mapstructure:"deny_all_by_default"`
}

// SSHConfig is security_hardening.ssh. A nil key is left untouched in
// sshd_config.
type SSHConfig struct {
	ConfigPath             string  `mapstructure:"config_path"`
	Service                string  `mapstructure:"service"`
	PermitRootLogin        *string `mapstructure:"permit_root_login"`
	PasswordAuthentication *string `mapstructure:"password_authentication"`
	Protocol               *string `mapstructure:"protocol"`
	MaxAuthTries           *string `mapstructure:"max_auth_tries"`
}

// Configured reports whether at least one sshd key has a value.
func (s SSHConfig) Configured() bool {
	return s.PermitRootLogin != nil || s.PasswordAuthentication != nil ||
		s.Protocol != nil || s.MaxAuthTries != nil
}

// SecurityConfig is security_hardening.
type SecurityConfig struct {
	Firewall FirewallConfig `mapstructure:"firewall"`
	SSH      SSHConfig      `mapstructure:"ssh"`
}

// CleanupConfig is disk_optimization.unified_cleanup.
type CleanupConfig struct {
	Enable            bool     `mapstructure:"enable"`
	TargetPaths       []string `mapstructure:"target_paths"`
	Exclude           []string `mapstructure:"exclude"`
	MinFileAgeMinutes int      `mapstructure:"min_file_age_minutes"`
	RemoveEmptyDirs   bool     `mapstructure:"remove_empty_dirs"`
	LogFilePath       string   `mapstructure:"log_file_path"`
}

// DiskConfig is disk_optimization.
type DiskConfig struct {
	EnableDefrag   bool          `mapstructure:"enable_defrag"`
	DefragPaths    []string      `mapstructure:"defrag_paths"`
	UnifiedCleanup CleanupConfig `mapstructure:"unified_cleanup"`
}

// RestoreConfig is restore_settings.
type RestoreConfig struct {
	BackupLocation string            `mapstructure:"backup_location"`
	RestoreTargets map[string]string `mapstructure:"restore_targets"`
	CustomBackup   struct {
		Paths []string `mapstructure:"paths"`
	} `mapstructure:"custom_backup"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAge     int  `mapstructure:"max_age"`
	MaxBackups int  `mapstructure:"max_backups"`
	Daily      bool `mapstructure:"daily"`
}

// LogConfig is log_management.
type LogConfig struct {
	Enable      bool              `mapstructure:"enable"`
	LogLevel    string            `mapstructure:"log_level"`
	LogFilePath string            `mapstructure:"log_file_path"`
	Rotation    RotationConfig    `mapstructure:"rotation"`
	Components  map[string]string `mapstructure:"components"`
}

// HistoryConfig configures the run report store.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config represents the settings document.
type Config struct {
	Performance struct {
		CPU CPUConfig `mapstructure:"cpu"`
		IO  IOConfig  `mapstructure:"io"`
	} `mapstructure:"performance_optimization"`
	Memory   MemoryConfig   `mapstructure:"memory_optimization"`
	Services ServiceConfig  `mapstructure:"service_management"`
	Security SecurityConfig `mapstructure:"security_hardening"`
	Disk     DiskConfig     `mapstructure:"disk_optimization"`
	Restore  RestoreConfig  `mapstructure:"restore_settings"`
	Logging  LogConfig      `mapstructure:"log_management"`
	History  HistoryConfig  `mapstructure:"history"`

	// File is the settings file the document was read from, or the file
	// it would be written to when none existed.
	File string `mapstructure:"-"`
}

// Load reads the settings document. An explicit path must exist.
// Otherwise the file is looked up in order:
//   - $XDG_CONFIG_HOME/sysopt/optimizer_settings.json
//   - $HOME/.config/sysopt/optimizer_settings.json
//
// and a missing file yields the defaults. Environment variables prefixed
// with SYSOPT_ override individual keys, e.g.
// SYSOPT_MEMORY_OPTIMIZATION_DROP_CACHE_MODE=1.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "sysopt"))
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "sysopt"))
	}

	v.SetEnvPrefix("SYSOPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.File = v.ConfigFileUsed()
	if cfg.File != "" {
		targets, err := readRestoreTargets(cfg.File)
		if err != nil {
			return nil, err
		}
		cfg.Restore.RestoreTargets = targets
	}
	if cfg.File == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.File = filepath.Join(dir, DefaultFileName)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("performance_optimization::cpu::nice", DefaultNice)
	v.SetDefault("performance_optimization::cpu::scheduler_policy", DefaultSchedulerPolicy)
	v.SetDefault("performance_optimization::cpu::scheduler_priority", DefaultSchedulerPriority)
	v.SetDefault("performance_optimization::io::device", DefaultIODevice)
	v.SetDefault("performance_optimization::io::scheduler", DefaultIOScheduler)
	v.SetDefault("performance_optimization::io::read_ahead_kb", DefaultReadAheadKB)

	v.SetDefault("memory_optimization::drop_cache_mode", DefaultDropCacheMode)

	v.SetDefault("security_hardening::ssh::config_path", DefaultSSHConfigPath)
	v.SetDefault("security_hardening::ssh::service", DefaultSSHService)

	v.SetDefault("disk_optimization::unified_cleanup::exclude", DefaultCleanupExclusions)
	v.SetDefault("disk_optimization::unified_cleanup::min_file_age_minutes", DefaultCleanupMinAgeMinutes)
	v.SetDefault("disk_optimization::unified_cleanup::remove_empty_dirs", true)
	v.SetDefault("disk_optimization::unified_cleanup::log_file_path", DefaultCleanupLogPath)

	v.SetDefault("restore_settings::backup_location", DataDir())

	v.SetDefault("log_management::enable", true)
	v.SetDefault("log_management::log_level", "info")
	v.SetDefault("log_management::log_file_path", "") // Empty means $XDG_STATE_HOME/sysopt/sysopt.log
	v.SetDefault("log_management::rotation::max_size_mb", 10)
	v.SetDefault("log_management::rotation::max_age", 30)
	v.SetDefault("log_management::rotation::max_backups", 5)
	v.SetDefault("log_management::rotation::daily", true)

	v.SetDefault("history::enabled", true)
	v.SetDefault("history::path", "")
	v.SetDefault("history::retention_days", DefaultHistoryRetentionDays)
}

func (c *Config) expandPaths() error {
	var err error
	if c.Restore.BackupLocation, err = ExpandPath(c.Restore.BackupLocation); err != nil {
		return err
	}
	if c.Logging.LogFilePath, err = ExpandPath(c.Logging.LogFilePath); err != nil {
		return err
	}
	if c.History.Path, err = ExpandPath(c.History.Path); err != nil {
		return err
	}
	for i, p := range c.Restore.CustomBackup.Paths {
		if c.Restore.CustomBackup.Paths[i], err = ExpandPath(p); err != nil {
			return err
		}
	}
	for name, p := range c.Restore.RestoreTargets {
		expanded, err := ExpandPath(p)
		if err != nil {
			return err
		}
		c.Restore.RestoreTargets[name] = expanded
	}
	return nil
}

// keyDelimiter separates nested viper keys. Target names such as
// "sysctl.conf" contain dots, so the default "." cannot be used.
const keyDelimiter = "::"

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigType("json")
	return v
}

// readRestoreTargets decodes restore_settings.restore_targets from the raw
// document. Viper lowercases map keys, and target names are case sensitive.
func readRestoreTargets(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var doc struct {
		Restore struct {
			Targets map[string]string `json:"restore_targets"`
		} `json:"restore_settings"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode restore_targets: %w", err)
	}
	return doc.Restore.Targets, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "sysopt"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "sysopt"), nil
}

// WriteDefault writes the initial settings document to path. An existing
// file is left alone and reported through the bool result.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := newViper()
	if err := v.MergeConfigMap(sampleDocument(DataDir())); err != nil {
		return false, fmt.Errorf("building default config: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}

	return true, nil
}

// SetCustomPaths replaces restore_settings.custom_backup.paths in the file
// at path, keeping the name and case of every other key. The file
// is created when missing.
func SetCustomPaths(path string, paths []string) error {
	doc := map[string]any{}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if paths == nil {
		paths = []string{}
	}
	restore := section(doc, "restore_settings")
	section(restore, "custom_backup")["paths"] = paths

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// section returns doc[key] as an object, replacing anything else.
func section(doc map[string]any, key string) map[string]any {
	if m, ok := doc[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	doc[key] = m
	return m
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/sysopt/ for backups and run history.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "sysopt")
}

// StateDir returns $XDG_STATE_HOME/sysopt/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "sysopt")
}

// DefaultHistoryPath returns the default badger directory for run reports.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}
