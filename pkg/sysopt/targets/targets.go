// Package targets resolves the set of paths protected by configuration
// snapshots: a built-in table of well-known files, the restore_targets map
// and the user's custom path list.
package targets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
)

// Sentinel errors.
var (
	// ErrAlreadyRegistered is returned when a custom path resolves to a
	// path that is already a target.
	ErrAlreadyRegistered = errors.New("path already registered")

	// ErrNotRegistered is returned when removing an unknown custom path.
	ErrNotRegistered = errors.New("path not registered")
)

// Kind is the filesystem type of a target.
type Kind int

// Target kinds.
const (
	KindFile Kind = iota
	KindDirectory
)

// String returns "file" or "directory".
func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// MarshalText encodes the kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "file" or "directory".
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "file":
		*k = KindFile
	case "directory":
		*k = KindDirectory
	default:
		return fmt.Errorf("unknown target kind %q", text)
	}
	return nil
}

// Source records where a target came from.
type Source string

// Target sources.
const (
	SourceBuiltin    Source = "builtin"
	SourceConfigured Source = "restore_targets"
	SourceCustom     Source = "custom"
)

// Target is one path protected by snapshots.
type Target struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Kind   Kind   `json:"kind"`
	Source Source `json:"source"`
}

// Builtin returns the well-known configuration files. settingsFile is the
// sysopt settings document itself.
func Builtin(settingsFile string) []Target {
	return []Target{
		{Name: "sshd_config", Path: "/etc/ssh/sshd_config", Source: SourceBuiltin},
		{Name: "sysctl.conf", Path: "/etc/sysctl.conf", Source: SourceBuiltin},
		{Name: "crontab", Path: "/var/spool/cron/crontabs/root", Source: SourceBuiltin},
		{Name: "optimizer_config", Path: settingsFile, Source: SourceBuiltin},
	}
}

// Resolver merges the target sources of one settings document.
type Resolver struct {
	cfg     *config.Config
	log     *logging.Logger
	persist func(file string, paths []string) error
}

// NewResolver creates a Resolver. AddCustomPath writes through to cfg.File.
func NewResolver(cfg *config.Config, l *logging.Logging) *Resolver {
	if l == nil {
		l = logging.Discard()
	}
	return &Resolver{cfg: cfg, log: l.Get("targets"), persist: config.SetCustomPaths}
}

// Resolve returns the targets in order: built-in, restore_targets sorted by
// name, then custom paths. Entries resolving to an already seen path are
// dropped; names are made unique with a numeric suffix.
func (r *Resolver) Resolve() []Target {
	var candidates []Target
	candidates = append(candidates, Builtin(r.cfg.File)...)

	names := make([]string, 0, len(r.cfg.Restore.RestoreTargets))
	for name := range r.cfg.Restore.RestoreTargets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		candidates = append(candidates, Target{
			Name:   name,
			Path:   r.cfg.Restore.RestoreTargets[name],
			Source: SourceConfigured,
		})
	}

	for _, p := range r.cfg.Restore.CustomBackup.Paths {
		candidates = append(candidates, Target{
			Name:   filepath.Base(filepath.Clean(p)),
			Path:   p,
			Source: SourceCustom,
		})
	}

	seenPath := make(map[string]bool, len(candidates))
	seenName := make(map[string]bool, len(candidates))
	resolved := make([]Target, 0, len(candidates))
	for _, t := range candidates {
		if t.Path == "" {
			continue
		}
		abs, err := filepath.Abs(t.Path)
		if err != nil {
			r.log.Warn("skipping unresolvable target", "name", t.Name, "path", t.Path, "error", err)
			continue
		}
		if seenPath[abs] {
			r.log.Debug("duplicate target dropped", "name", t.Name, "path", abs)
			continue
		}
		seenPath[abs] = true

		t.Path = abs
		t.Name = uniqueName(sanitize(t.Name), seenName)
		seenName[t.Name] = true
		t.Kind = kindOf(abs)
		resolved = append(resolved, t)
	}
	return resolved
}

// AddCustomPath registers path as a custom target and persists the list.
func (r *Resolver) AddCustomPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	for _, t := range r.Resolve() {
		if t.Path == abs {
			return fmt.Errorf("%w: %s (%s)", ErrAlreadyRegistered, abs, t.Name)
		}
	}
	if _, err := os.Stat(abs); err != nil {
		r.log.Warn("registering a path that does not exist yet", "path", abs)
	}

	paths := append(append([]string(nil), r.cfg.Restore.CustomBackup.Paths...), abs)
	if err := r.persist(r.cfg.File, paths); err != nil {
		return fmt.Errorf("saving custom paths: %w", err)
	}
	r.cfg.Restore.CustomBackup.Paths = paths
	r.log.Info("custom backup path added", "path", abs)
	return nil
}

// RemoveCustomPath unregisters a custom path and persists the list.
func (r *Resolver) RemoveCustomPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	var kept []string
	found := false
	for _, p := range r.cfg.Restore.CustomBackup.Paths {
		if pa, err := filepath.Abs(p); err == nil && pa == abs {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotRegistered, abs)
	}

	if err := r.persist(r.cfg.File, kept); err != nil {
		return fmt.Errorf("saving custom paths: %w", err)
	}
	r.cfg.Restore.CustomBackup.Paths = kept
	r.log.Info("custom backup path removed", "path", abs)
	return nil
}

// Lookup returns the resolved target called name.
func (r *Resolver) Lookup(name string) (Target, bool) {
	for _, t := range r.Resolve() {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

func kindOf(path string) Kind {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return KindDirectory
	}
	return KindFile
}

// sanitize keeps artifact names inside the snapshot directory.
func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator || r == 0 {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "target"
	}
	return name
}

func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := name + "-" + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}
