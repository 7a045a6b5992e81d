package targets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{File: filepath.Join(t.TempDir(), config.DefaultFileName)}
	return cfg
}

func names(ts []Target) []string {
	var out []string
	for _, t := range ts {
		out = append(out, t.Name)
	}
	return out
}

func TestResolve_BuiltinOnly(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	got := NewResolver(cfg, nil).Resolve()

	assert.Equal(t, []string{"sshd_config", "sysctl.conf", "crontab", "optimizer_config"}, names(got))
	assert.Equal(t, cfg.File, got[3].Path)
	for _, tg := range got {
		assert.Equal(t, SourceBuiltin, tg.Source)
	}
}

func TestResolve_MergesAndDeduplicates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	notes := filepath.Join(dir, "notes")
	require.NoError(t, os.Mkdir(notes, 0o755))
	otherNotes := filepath.Join(dir, "other", "notes")
	require.NoError(t, os.MkdirAll(otherNotes, 0o755))

	cfg := testConfig(t)
	cfg.Restore.RestoreTargets = map[string]string{
		"hosts":       "/etc/hosts",
		"sshd_copy":   "/etc/ssh/sshd_config",
		"sshd_config": "/etc/ssh/ssh_config",
	}
	cfg.Restore.CustomBackup.Paths = []string{
		notes,
		notes + "/",
		otherNotes,
		"/etc/hosts",
	}

	got := NewResolver(cfg, nil).Resolve()

	assert.Equal(t, []string{
		"sshd_config", "sysctl.conf", "crontab", "optimizer_config",
		"hosts", "sshd_config-2",
		"notes", "notes-2",
	}, names(got))

	byName := make(map[string]Target)
	for _, tg := range got {
		byName[tg.Name] = tg
	}
	assert.Equal(t, KindDirectory, byName["notes"].Kind)
	assert.Equal(t, SourceCustom, byName["notes"].Source)
	assert.Equal(t, otherNotes, byName["notes-2"].Path)
	assert.Equal(t, "/etc/ssh/ssh_config", byName["sshd_config-2"].Path)
	assert.Equal(t, SourceConfigured, byName["hosts"].Source)
}

func TestAddCustomPath(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	dir := t.TempDir()

	r := NewResolver(cfg, nil)
	require.NoError(t, r.AddCustomPath(dir))
	assert.Equal(t, []string{dir}, cfg.Restore.CustomBackup.Paths)

	loaded, err := config.Load(cfg.File)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, loaded.Restore.CustomBackup.Paths, "addition is persisted")

	err = r.AddCustomPath(dir + "/.")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	err = r.AddCustomPath("/etc/ssh/sshd_config")
	assert.ErrorIs(t, err, ErrAlreadyRegistered, "built-in targets count as registered")
}

func TestAddCustomPath_PersistFailureLeavesConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	r := NewResolver(cfg, nil)
	r.persist = func(string, []string) error { return errors.New("read-only filesystem") }

	err := r.AddCustomPath(t.TempDir())
	require.Error(t, err)
	assert.Empty(t, cfg.Restore.CustomBackup.Paths)
}

func TestRemoveCustomPath(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, b := t.TempDir(), t.TempDir()
	cfg.Restore.CustomBackup.Paths = []string{a, b}

	r := NewResolver(cfg, nil)
	require.NoError(t, r.RemoveCustomPath(a))
	assert.Equal(t, []string{b}, cfg.Restore.CustomBackup.Paths)

	assert.ErrorIs(t, r.RemoveCustomPath(a), ErrNotRegistered)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	r := NewResolver(testConfig(t), nil)
	tg, ok := r.Lookup("sysctl.conf")
	require.True(t, ok)
	assert.Equal(t, "/etc/sysctl.conf", tg.Path)

	_, ok = r.Lookup("absent")
	assert.False(t, ok)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "etc_nginx", sanitize("etc/nginx"))
	assert.Equal(t, "target", sanitize(".."))
	assert.Equal(t, "target", sanitize(""))
}
