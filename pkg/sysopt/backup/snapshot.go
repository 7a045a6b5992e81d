package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/jamesainslie/sysopt/pkg/sysopt/targets"
)

// Member is one captured target inside a snapshot.
type Member struct {
	Name     string       `json:"name"`
	Source   string       `json:"source"`
	Kind     targets.Kind `json:"kind"`
	Format   Format       `json:"format"`
	Artifact string       `json:"artifact"`
	Size     int64        `json:"size"`
}

// Skipped is a target that was not captured.
type Skipped struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// Snapshot describes one configuration snapshot.
type Snapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Members   []Member  `json:"members"`
	Missing   []Skipped `json:"missing,omitempty"`
	Failed    []Skipped `json:"failed,omitempty"`

	// Dir is the snapshot directory. Not persisted.
	Dir string `json:"-"`
	// Described is false for directories without a descriptor.
	Described bool `json:"-"`
}

// Err aggregates missing and failed targets. Nil when every target was captured.
func (s *Snapshot) Err() error {
	var result *multierror.Error
	for _, m := range s.Missing {
		result = multierror.Append(result, fmt.Errorf("%w: %s (%s)", ErrTargetMissing, m.Name, m.Path))
	}
	for _, f := range s.Failed {
		result = multierror.Append(result, fmt.Errorf("%s (%s): %s", f.Name, f.Path, f.Error))
	}
	return result.ErrorOrNil()
}

// Member returns the member called name.
func (s *Snapshot) Member(name string) (Member, bool) {
	for _, m := range s.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// Size is the total artifact size.
func (s *Snapshot) Size() int64 {
	var total int64
	for _, m := range s.Members {
		total += m.Size
	}
	return total
}

// CreateSnapshot captures every target into a new snapshot directory.
// Missing targets are recorded and skipped. The snapshot is kept when at
// least one target was captured; otherwise the directory is removed and
// ErrNoTargetsCaptured is returned. A non-nil snapshot may still carry
// per-target problems, see Snapshot.Err.
func (e *Engine) CreateSnapshot(ctx context.Context, ts []targets.Target) (*Snapshot, error) {
	created := e.now()
	snap := &Snapshot{
		ID:        created.Format(TimestampLayout),
		CreatedAt: created,
		Described: true,
	}
	snap.Dir = filepath.Join(e.SnapshotsDir(), snap.ID)

	if err := e.fs.MkdirAll(snap.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	for _, t := range ts {
		if err := ctx.Err(); err != nil {
			_ = e.fs.RemoveAll(snap.Dir)
			return nil, err
		}

		info, err := e.fs.Stat(t.Path)
		if errors.Is(err, fs.ErrNotExist) {
			e.log.Warn("snapshot target missing, skipping", "target", t.Name, "path", t.Path)
			snap.Missing = append(snap.Missing, Skipped{Name: t.Name, Path: t.Path})
			continue
		}
		if err == nil {
			err = validName(t.Name)
		}
		if err != nil {
			snap.Failed = append(snap.Failed, Skipped{Name: t.Name, Path: t.Path, Error: err.Error()})
			continue
		}

		m, err := e.capture(t, info, snap.Dir)
		if err != nil {
			e.log.Error("snapshot target failed", "target", t.Name, "path", t.Path, "error", err)
			snap.Failed = append(snap.Failed, Skipped{Name: t.Name, Path: t.Path, Error: err.Error()})
			continue
		}
		e.log.Debug("snapshot target captured", "target", t.Name, "artifact", m.Artifact, "size", m.Size)
		snap.Members = append(snap.Members, m)
	}

	if len(snap.Members) == 0 {
		_ = e.fs.RemoveAll(snap.Dir)
		if err := snap.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoTargetsCaptured, err)
		}
		return nil, ErrNoTargetsCaptured
	}

	if err := e.writeDescriptor(snap); err != nil {
		_ = e.fs.RemoveAll(snap.Dir)
		return nil, err
	}

	e.log.Info("snapshot created",
		"id", snap.ID,
		"members", len(snap.Members),
		"missing", len(snap.Missing),
		"failed", len(snap.Failed),
	)
	return snap, nil
}

func (e *Engine) capture(t targets.Target, info fs.FileInfo, dir string) (Member, error) {
	m := Member{Name: t.Name, Source: t.Path}
	var err error
	switch {
	case info.IsDir():
		m.Kind = targets.KindDirectory
		m.Format = FormatDirectoryArchive
		m.Artifact = t.Name + m.Format.Suffix()
		m.Size, err = e.tarDir(t.Path, filepath.Join(dir, m.Artifact))
	case info.Mode().IsRegular():
		m.Kind = targets.KindFile
		m.Format = FormatSingleCompressed
		m.Artifact = t.Name + m.Format.Suffix()
		m.Size, err = e.gzipFile(t.Path, filepath.Join(dir, m.Artifact))
	default:
		return m, fmt.Errorf("unsupported file type %s", info.Mode().Type())
	}
	if err != nil {
		_ = e.fs.Remove(filepath.Join(dir, m.Artifact))
		return m, err
	}
	return m, nil
}

func (e *Engine) writeDescriptor(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot descriptor: %w", err)
	}
	if err := afero.WriteFile(e.fs, filepath.Join(snap.Dir, DescriptorName), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing snapshot descriptor: %w", err)
	}
	return nil
}

// ListSnapshots returns snapshots newest first. A missing snapshots
// directory yields an empty list.
func (e *Engine) ListSnapshots() ([]*Snapshot, error) {
	entries, err := afero.ReadDir(e.fs, e.SnapshotsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	type dated struct {
		snap  *Snapshot
		mtime time.Time
	}
	var found []dated
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := e.loadSnapshot(entry.Name())
		if err != nil {
			e.log.Warn("unreadable snapshot", "id", entry.Name(), "error", err)
			continue
		}
		found = append(found, dated{snap: snap, mtime: entry.ModTime()})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].mtime.Equal(found[j].mtime) {
			return found[i].mtime.After(found[j].mtime)
		}
		return found[i].snap.ID > found[j].snap.ID
	})

	snaps := make([]*Snapshot, len(found))
	for i, d := range found {
		snaps[i] = d.snap
	}
	return snaps, nil
}

// GetSnapshot loads one snapshot by id.
func (e *Engine) GetSnapshot(id string) (*Snapshot, error) {
	if err := validName(id); err != nil {
		return nil, err
	}
	info, err := e.fs.Stat(filepath.Join(e.SnapshotsDir(), id))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return e.loadSnapshot(id)
}

// loadSnapshot reads the descriptor, or synthesizes one from the artifact
// names for directories written without it.
func (e *Engine) loadSnapshot(id string) (*Snapshot, error) {
	dir := filepath.Join(e.SnapshotsDir(), id)

	data, err := afero.ReadFile(e.fs, filepath.Join(dir, DescriptorName))
	if err == nil {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decoding descriptor: %w", err)
		}
		snap.Dir = dir
		snap.Described = true
		return &snap, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}

	entries, err := afero.ReadDir(e.fs, dir)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{ID: id, Dir: dir}
	if t, err := time.ParseInLocation(TimestampLayout, id, time.Local); err == nil {
		snap.CreatedAt = t
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format := FormatFromName(entry.Name())
		name := strings.TrimSuffix(entry.Name(), format.Suffix())
		kind := targets.KindFile
		if format == FormatDirectoryArchive {
			kind = targets.KindDirectory
		}
		snap.Members = append(snap.Members, Member{
			Name:     name,
			Kind:     kind,
			Format:   format,
			Artifact: entry.Name(),
			Size:     entry.Size(),
		})
	}
	return snap, nil
}

// TargetLookup finds the current destination for a snapshot member.
type TargetLookup interface {
	Lookup(name string) (targets.Target, bool)
}

// RestoreResult is the outcome for one snapshot member.
type RestoreResult struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Succeeded reports whether the member was restored.
func (r RestoreResult) Succeeded() bool {
	return r.Err == nil
}

// RestoreSnapshot writes snapshot members back to their targets. With no
// names every member is restored. The destination is the target's current
// path when lookup knows the name, else the path recorded at capture time.
// The returned error aggregates per-member failures.
func (e *Engine) RestoreSnapshot(ctx context.Context, id string, lookup TargetLookup, names ...string) ([]RestoreResult, error) {
	snap, err := e.GetSnapshot(id)
	if err != nil {
		return nil, err
	}

	members := snap.Members
	if len(names) > 0 {
		members = nil
		for _, name := range names {
			m, ok := snap.Member(name)
			if !ok {
				return nil, fmt.Errorf("snapshot %s has no member %q", id, name)
			}
			members = append(members, m)
		}
	}

	var (
		results []RestoreResult
		merr    *multierror.Error
	)
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := RestoreResult{Name: m.Name, Path: m.Source}
		if lookup != nil {
			if t, ok := lookup.Lookup(m.Name); ok {
				res.Path = t.Path
			}
		}

		switch {
		case res.Path == "":
			res.Err = fmt.Errorf("no destination known for %s", m.Name)
		default:
			res.Err = e.restoreMember(snap.Dir, m, res.Path)
		}

		if res.Err != nil {
			e.log.Error("restore failed", "snapshot", id, "target", m.Name, "path", res.Path, "error", res.Err)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", m.Name, res.Err))
		} else {
			e.log.Info("restored", "snapshot", id, "target", m.Name, "path", res.Path)
		}
		results = append(results, res)
	}
	return results, merr.ErrorOrNil()
}

func (e *Engine) restoreMember(dir string, m Member, dest string) error {
	src := filepath.Join(dir, m.Artifact)
	format := m.Format
	if !format.Valid() {
		format = FormatFromName(m.Artifact)
	}

	switch format {
	case FormatSingleCompressed:
		return e.gunzipFile(src, dest, e.modeOr(dest, 0o644))
	case FormatDirectoryArchive:
		return e.untar(src, dest)
	case FormatRaw:
		return e.copyFile(src, dest, e.modeOr(dest, 0o644))
	default:
		return fmt.Errorf("%w: %s", ErrArtifactFormatUnrecognized, m.Artifact)
	}
}

// modeOr keeps the permissions of an existing destination.
func (e *Engine) modeOr(p string, mode os.FileMode) os.FileMode {
	if info, err := e.fs.Stat(p); err == nil && info.Mode().IsRegular() {
		return info.Mode().Perm()
	}
	return mode
}

// DeleteSnapshot removes a snapshot directory, readable descriptor or not.
func (e *Engine) DeleteSnapshot(id string) error {
	if err := validName(id); err != nil {
		return err
	}
	dir := filepath.Join(e.SnapshotsDir(), id)
	if info, err := e.fs.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err := e.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	e.log.Info("snapshot deleted", "id", id)
	return nil
}
