// Package backup captures configuration snapshots and ad hoc custom backups
// and restores them.
//
// Layout below the backup root:
//
//	backups/<id>/<name>.gz          single file, gzip
//	backups/<id>/<name>.tar.gz      directory, gzip tar
//	backups/<id>/snapshot.json      descriptor
//	custom_backups/<ts>_<name>[.tar.gz]
//	custom_backups/<artifact>.meta.json
//
// Ids and custom prefixes use second resolution (20060102_150405). Two
// snapshots created within the same second share a directory; that
// collision is accepted rather than locked against.
package backup

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
)

// TimestampLayout formats snapshot ids and custom backup prefixes.
const TimestampLayout = "20060102_150405"

// Directory names below the backup root.
const (
	SnapshotsDirName = "backups"
	CustomDirName    = "custom_backups"
	DescriptorName   = "snapshot.json"
	SidecarSuffix    = ".meta.json"
)

// Sentinel errors.
var (
	// ErrTargetMissing marks a snapshot target whose source did not exist.
	ErrTargetMissing = errors.New("target missing")

	// ErrArtifactFormatUnrecognized is returned when restore dispatch finds
	// no rule for an artifact.
	ErrArtifactFormatUnrecognized = errors.New("artifact format unrecognized")

	// ErrSnapshotNotFound is returned for an unknown snapshot id.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrArtifactExists is returned instead of overwriting a custom backup.
	ErrArtifactExists = errors.New("artifact already exists")

	// ErrNoTargetsCaptured is returned when a snapshot captured nothing.
	ErrNoTargetsCaptured = errors.New("no targets captured")

	// ErrUnsafePath is returned for archive entries or names that would
	// escape their directory.
	ErrUnsafePath = errors.New("unsafe path")
)

// Engine creates, lists, restores and deletes backups under one root.
type Engine struct {
	root  string
	fs    afero.Fs
	now   func() time.Time
	log   *logging.Logger
	level int
}

// Option configures an Engine.
type Option func(*Engine)

// WithFs sets the filesystem. Tests use afero.NewMemMapFs().
func WithFs(fs afero.Fs) Option {
	return func(e *Engine) { e.fs = fs }
}

// WithClock sets the time source for ids and prefixes.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogging sets the logging handle.
func WithLogging(l *logging.Logging) Option {
	return func(e *Engine) { e.log = l.Get("backup") }
}

// WithCompressionLevel sets the gzip level (pgzip levels, -1 for default).
func WithCompressionLevel(level int) Option {
	return func(e *Engine) { e.level = level }
}

// New creates an Engine rooted at root (restore_settings.backup_location).
func New(root string, opts ...Option) *Engine {
	e := &Engine{
		root:  root,
		fs:    afero.NewOsFs(),
		now:   time.Now,
		log:   logging.Discard().Get("backup"),
		level: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Root returns the backup root.
func (e *Engine) Root() string {
	return e.root
}

// SnapshotsDir returns the directory holding configuration snapshots.
func (e *Engine) SnapshotsDir() string {
	return filepath.Join(e.root, SnapshotsDirName)
}

// CustomDir returns the directory holding custom backups.
func (e *Engine) CustomDir() string {
	return filepath.Join(e.root, CustomDirName)
}

// validName rejects names that are not a single path element.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return nil
}
