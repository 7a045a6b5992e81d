// Package config loads and persists the sysopt settings document.
package config

// Default configuration values for sysopt.
const (
	// DefaultFileName is the settings file name inside the config directory.
	DefaultFileName = "optimizer_settings.json"

	// DefaultIOScheduler is the block scheduler applied when none is configured.
	DefaultIOScheduler = "deadline"

	// DefaultReadAheadKB is the read-ahead size in KiB.
	DefaultReadAheadKB = 128

	// DefaultIODevice is the block device tuned by the I/O category.
	DefaultIODevice = "sda"

	// DefaultDropCacheMode is the vm.drop_caches value written on demand.
	DefaultDropCacheMode = "3"

	// DefaultNice is the niceness applied to priority processes.
	DefaultNice = -5

	// DefaultSchedulerPriority is the chrt priority for FIFO and RR.
	DefaultSchedulerPriority = 50

	// DefaultSchedulerPolicy is used when scheduler tuning is enabled without a policy.
	DefaultSchedulerPolicy = "SCHED_OTHER"

	// DefaultSSHConfigPath is the sshd configuration rewritten by the security category.
	DefaultSSHConfigPath = "/etc/ssh/sshd_config"

	// DefaultSSHService is the unit restarted after sshd edits.
	DefaultSSHService = "sshd"

	// DefaultCleanupMinAgeMinutes is the minimum age of an empty file before cleanup removes it.
	DefaultCleanupMinAgeMinutes = 30

	// DefaultCleanupLogPath receives one line per cleanup deletion.
	DefaultCleanupLogPath = "/var/log/unified_cleanup.log"

	// DefaultHistoryRetentionDays is how long run reports are kept.
	DefaultHistoryRetentionDays = 90
)

// DefaultCleanupExclusions are glob patterns never touched by cleanup.
var DefaultCleanupExclusions = []string{
	"**/.X11-unix",
	"**/systemd-private-*",
}

// sampleDocument mirrors the settings a fresh installation starts with.
// It is written by WriteDefault and is not used as fallback values; absent
// keys fall back to the constants above.
func sampleDocument(backupLocation string) map[string]any {
	return map[string]any{
		"performance_optimization": map[string]any{
			"cpu": map[string]any{
				"enable_scheduler_tuning": true,
				"governor":                "performance",
				"priority_processes":      []string{"python3", "nginx"},
				"nice":                    DefaultNice,
				"scheduler_policy":        "SCHED_FIFO",
				"scheduler_priority":      DefaultSchedulerPriority,
				"target_processes":        []string{"python3"},
			},
			"io": map[string]any{
				"enable":        true,
				"device":        DefaultIODevice,
				"scheduler":     DefaultIOScheduler,
				"read_ahead_kb": DefaultReadAheadKB,
			},
		},
		"memory_optimization": map[string]any{
			"swappiness":                   10,
			"drop_caches_on_schedule":      true,
			"drop_cache_mode":              DefaultDropCacheMode,
			"low_memory_threshold_percent": 15,
		},
		"service_management": map[string]any{
			"disable_services": []string{"cups", "bluetooth", "avahi-daemon"},
			"zombie_cleanup": map[string]any{
				"enable": true,
			},
		},
		"security_hardening": map[string]any{
			"firewall": map[string]any{
				"enable":              true,
				"blocked_ports":       []int{8888, 9999, 7777},
				"allowed_ports":       []int{},
				"deny_all_by_default": true,
			},
			"ssh": map[string]any{
				"config_path":             DefaultSSHConfigPath,
				"service":                 DefaultSSHService,
				"permit_root_login":       "no",
				"password_authentication": "no",
				"protocol":                2,
				"max_auth_tries":          3,
			},
		},
		"disk_optimization": map[string]any{
			"enable_defrag": true,
			"defrag_paths":  []string{"/home", "/var"},
			"unified_cleanup": map[string]any{
				"enable":               true,
				"target_paths":         []string{"/tmp", "/var/tmp", "/var/cache/apt/archives"},
				"exclude":              DefaultCleanupExclusions,
				"min_file_age_minutes": DefaultCleanupMinAgeMinutes,
				"remove_empty_dirs":    true,
				"log_file_path":        DefaultCleanupLogPath,
			},
		},
		"restore_settings": map[string]any{
			"backup_location": backupLocation,
			"restore_targets": map[string]string{},
			"custom_backup": map[string]any{
				"paths": []string{},
			},
		},
		"log_management": map[string]any{
			"enable":        true,
			"log_level":     "info",
			"log_file_path": "",
			"rotation": map[string]any{
				"max_size_mb": 10,
				"max_age":     30,
				"max_backups": 5,
				"daily":       true,
			},
		},
		"history": map[string]any{
			"enabled":        true,
			"path":           "",
			"retention_days": DefaultHistoryRetentionDays,
		},
	}
}
