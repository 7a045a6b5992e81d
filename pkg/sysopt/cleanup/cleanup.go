// Package cleanup removes stale empty files and directories under a set of
// roots, recording every deletion in an append-only log.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/gobwas/glob"

	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
)

// Options configures a Cleaner.
type Options struct {
	// MinAge is the minimum time since modification before an empty file
	// is removed.
	MinAge time.Duration

	// RemoveEmptyDirs removes directories that are empty after file cleanup.
	RemoveEmptyDirs bool

	// Exclude holds glob patterns (with '/' as separator) for paths left alone.
	Exclude []string

	// LogPath receives one line per deletion. Empty disables the log.
	LogPath string

	// DryRun reports what would be removed without touching the filesystem.
	DryRun bool

	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time
}

// Stats summarizes one root.
type Stats struct {
	Root         string   `json:"root"`
	Missing      bool     `json:"missing,omitempty"`
	FilesRemoved int      `json:"files_removed"`
	DirsRemoved  int      `json:"dirs_removed"`
	Removed      []string `json:"removed,omitempty"`
	Skipped      int      `json:"skipped"`
}

// Cleaner walks roots and removes stale empty entries.
type Cleaner struct {
	opts     Options
	excludes []glob.Glob
	logger   *logging.Logger
}

// New returns a Cleaner. Invalid exclude patterns are logged and ignored.
func New(opts Options, logger *logging.Logger) *Cleaner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = logging.Discard().Get("cleanup")
	}

	c := &Cleaner{opts: opts, logger: logger}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			logger.Warn("ignoring invalid exclude pattern", "pattern", pattern, "error", err)
			continue
		}
		c.excludes = append(c.excludes, g)
	}
	return c
}

type entry struct {
	path  string
	depth int
}

// Clean processes one root. A missing root is not an error. Individual
// entries that cannot be removed are counted in Stats.Skipped; only a
// failed walk or an unwritable deletion log returns an error.
func (c *Cleaner) Clean(ctx context.Context, root string) (Stats, error) {
	stats := Stats{Root: root}

	abs, err := filepath.Abs(root)
	if err != nil {
		return stats, fmt.Errorf("resolving %s: %w", root, err)
	}
	info, err := os.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("cleanup root does not exist", "root", abs)
		stats.Missing = true
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("cleanup root %s is not a directory", abs)
	}

	files, dirs, skipped, err := c.collect(ctx, abs)
	stats.Skipped = skipped
	if err != nil {
		return stats, err
	}

	log := &deletionLog{path: c.opts.LogPath, now: c.opts.Now, dryRun: c.opts.DryRun}
	defer log.close()

	now := c.opts.Now()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fi, err := os.Lstat(f.path)
		if err != nil {
			stats.Skipped++
			continue
		}
		if fi.Size() != 0 || now.Sub(fi.ModTime()) < c.opts.MinAge {
			continue
		}
		if !c.opts.DryRun {
			if err := os.Remove(f.path); err != nil {
				c.logger.Debug("cannot remove file", "path", f.path, "error", err)
				stats.Skipped++
				continue
			}
		}
		stats.FilesRemoved++
		stats.Removed = append(stats.Removed, f.path)
		if err := log.write("Deleted empty file", f.path); err != nil {
			return stats, err
		}
	}

	if !c.opts.RemoveEmptyDirs {
		return stats, nil
	}

	// Deepest first so a parent sees its children already gone.
	sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].depth > dirs[j].depth })
	removed := make(map[string]bool, len(stats.Removed))
	for _, p := range stats.Removed {
		removed[p] = true
	}
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		empty, err := c.isEmpty(d.path, removed)
		if err != nil || !empty {
			continue
		}
		if !c.opts.DryRun {
			if err := os.Remove(d.path); err != nil {
				c.logger.Debug("cannot remove directory", "path", d.path, "error", err)
				stats.Skipped++
				continue
			}
		}
		removed[d.path] = true
		stats.DirsRemoved++
		stats.Removed = append(stats.Removed, d.path)
		if err := log.write("Deleted empty directory", d.path); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// isEmpty reports whether dir has no entries, treating entries removed in
// this pass as gone (they still exist during a dry run).
func (c *Cleaner) isEmpty(dir string, removed map[string]bool) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !removed[filepath.Join(dir, e.Name())] {
			return false, nil
		}
	}
	return true, nil
}

func (c *Cleaner) collect(ctx context.Context, root string) (files, dirs []entry, skipped int, err error) {
	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}

	walkErr := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fastwalk.ErrSkipFiles
		}
		if err != nil {
			mu.Lock()
			skipped++
			mu.Unlock()
			return nil
		}
		if path == root {
			return nil
		}
		if c.isExcluded(path) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		e := entry{path: path, depth: strings.Count(path, string(filepath.Separator))}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case d.IsDir():
			dirs = append(dirs, e)
		case d.Type().IsRegular():
			files = append(files, e)
		}
		return nil
	})

	if err := ctx.Err(); err != nil {
		return nil, nil, skipped, err
	}
	if walkErr != nil && !errors.Is(walkErr, fastwalk.ErrSkipFiles) {
		return nil, nil, skipped, fmt.Errorf("walking %s: %w", root, walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, dirs, skipped, nil
}

func (c *Cleaner) isExcluded(path string) bool {
	for _, g := range c.excludes {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// deletionLog appends "<ctime> - <action>: <path>" lines. The file is
// opened on first use in append mode so concurrent runs never truncate it.
type deletionLog struct {
	path   string
	now    func() time.Time
	dryRun bool
	file   *os.File
}

func (l *deletionLog) write(action, path string) error {
	if l.path == "" || l.dryRun {
		return nil
	}
	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return fmt.Errorf("creating cleanup log directory: %w", err)
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening cleanup log: %w", err)
		}
		l.file = f
	}
	if _, err := fmt.Fprintf(l.file, "%s - %s: %s\n", l.now().Format(time.ANSIC), action, path); err != nil {
		return fmt.Errorf("writing cleanup log: %w", err)
	}
	return nil
}

func (l *deletionLog) close() {
	if l.file != nil {
		_ = l.file.Close()
	}
}
