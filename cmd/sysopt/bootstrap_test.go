package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
)

func TestLoggingConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging = config.LogConfig{
		Enable:      true,
		LogLevel:    "debug",
		LogFilePath: "/var/log/sysopt.log",
		Components:  map[string]string{"backup": "warn"},
		Rotation: config.RotationConfig{
			MaxSizeMB:  10,
			MaxAge:     30,
			MaxBackups: 5,
			Daily:      true,
		},
	}

	tests := []struct {
		name        string
		console     bool
		verbose     bool
		quiet       bool
		wantConsole string
	}{
		{name: "no console", console: false, wantConsole: ""},
		{name: "console default", console: true, wantConsole: "warn"},
		{name: "console verbose", console: true, verbose: true, wantConsole: "debug"},
		{name: "console quiet", console: true, quiet: true, wantConsole: ""},
		{name: "verbose beats quiet", console: true, verbose: true, quiet: true, wantConsole: "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := loggingConfig(cfg, tt.console, tt.verbose, tt.quiet)

			assert.Equal(t, "debug", lc.Level)
			assert.Equal(t, "/var/log/sysopt.log", lc.Path)
			assert.Equal(t, "warn", lc.Components["backup"])
			assert.False(t, lc.Disabled)
			assert.Equal(t, logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			}, lc.Rotation)
			assert.Equal(t, tt.wantConsole, lc.ConsoleLevel)
		})
	}
}

func TestLoggingConfigDisabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging.Enable = false

	lc := loggingConfig(cfg, true, false, false)
	assert.True(t, lc.Disabled)
}

func TestSettingsPath(t *testing.T) {
	old := cfgFile
	t.Cleanup(func() { cfgFile = old })

	cfgFile = "/etc/sysopt/custom.json"
	got, err := settingsPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/sysopt/custom.json", got)

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	cfgFile = ""
	got, err = settingsPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sysopt", config.DefaultFileName), got)
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"optimize":        nil,
		"verify":          nil,
		"follow":          nil,
		"version":         nil,
		"snapshot":        {"create", "list", "restore", "delete"},
		"backup":          {"create", "list", "restore", "delete", "add-path", "remove-path", "targets"},
		"system-snapshot": {"create", "list"},
		"history":         {"show", "clean"},
		"config":          {"show", "init", "edit", "path"},
	}

	for name, subs := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, cmd.Name())
		for _, sub := range subs {
			c, _, err := rootCmd.Find([]string{name, sub})
			require.NoError(t, err, "%s %s", name, sub)
			assert.Equal(t, sub, c.Name())
		}
	}
}

func TestOptimizeFlags(t *testing.T) {
	for _, name := range []string{"dry-run", "interactive", "snapshot"} {
		assert.NotNil(t, optimizeCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "d", optimizeCmd.Flags().Lookup("dry-run").Shorthand)
}

func TestVersionOutput(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	runVersion(versionCmd, nil)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "sysopt "+version), out)
	assert.Contains(t, out, "commit:")
	assert.Contains(t, out, "os/arch:")
}
