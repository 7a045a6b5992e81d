package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/jamesainslie/sysopt/pkg/sysopt/targets"
)

// Artifact is one custom backup.
type Artifact struct {
	Name      string       `json:"name"`
	Path      string       `json:"-"`
	Source    string       `json:"source"`
	Original  string       `json:"original"`
	Kind      targets.Kind `json:"kind"`
	Format    Format       `json:"format"`
	CreatedAt time.Time    `json:"created_at"`
	Size      int64        `json:"size"`
}

// CreateCustomBackup copies each path into the custom backup directory as
// <timestamp>_<name>. Files are copied verbatim; directories become a gzip
// tar. An existing artifact is never overwritten. Artifacts for the paths
// that succeeded are returned with an error aggregating the rest.
func (e *Engine) CreateCustomBackup(ctx context.Context, paths []string) ([]Artifact, error) {
	if err := e.fs.MkdirAll(e.CustomDir(), 0o700); err != nil {
		return nil, fmt.Errorf("creating custom backup directory: %w", err)
	}

	created := e.now()
	prefix := created.Format(TimestampLayout)

	var (
		artifacts []Artifact
		merr      *multierror.Error
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}
		a, err := e.customOne(p, prefix, created)
		if err != nil {
			e.log.Error("custom backup failed", "path", p, "error", err)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", p, err))
			continue
		}
		e.log.Info("custom backup created", "path", p, "artifact", a.Name, "size", a.Size)
		artifacts = append(artifacts, a)
	}
	return artifacts, merr.ErrorOrNil()
}

func (e *Engine) customOne(p, prefix string, created time.Time) (Artifact, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return Artifact{}, err
	}
	info, err := e.fs.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return Artifact{}, fmt.Errorf("%w: %s", ErrTargetMissing, abs)
	}
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{
		Source:    abs,
		Original:  filepath.Base(abs),
		CreatedAt: created,
	}
	switch {
	case info.IsDir():
		a.Kind = targets.KindDirectory
		a.Format = FormatDirectoryArchive
	case info.Mode().IsRegular():
		a.Kind = targets.KindFile
		a.Format = FormatRaw
	default:
		return Artifact{}, fmt.Errorf("unsupported file type %s", info.Mode().Type())
	}
	a.Name = prefix + "_" + a.Original + a.Format.Suffix()
	a.Path = filepath.Join(e.CustomDir(), a.Name)

	if _, err := e.fs.Stat(a.Path); err == nil {
		return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactExists, a.Name)
	}

	if a.Format == FormatDirectoryArchive {
		a.Size, err = e.tarDir(abs, a.Path)
	} else {
		err = e.copyFile(abs, a.Path, info.Mode().Perm())
		a.Size = info.Size()
	}
	if err != nil {
		_ = e.fs.Remove(a.Path)
		return Artifact{}, err
	}

	if _, err := e.fs.Stat(a.Path + SidecarSuffix); err == nil {
		e.log.Warn("custom backup has no metadata sidecar", "artifact", a.Name, "reason", "sidecar name is taken by another artifact")
	} else if err := e.writeSidecar(a); err != nil {
		e.log.Warn("custom backup has no metadata sidecar", "artifact", a.Name, "error", err)
	}
	return a, nil
}

func (e *Engine) writeSidecar(a Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(e.fs, a.Path+SidecarSuffix, append(data, '\n'), 0o600)
}

// readSidecar returns the metadata stored next to artifactPath.
func (e *Engine) readSidecar(artifactPath string) (Artifact, bool) {
	a, err := decodeSidecar(e.fs, artifactPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Artifact{}, false
	}
	if err != nil {
		e.log.Warn("ignoring unreadable sidecar", "artifact", artifactPath, "error", err)
		return Artifact{}, false
	}
	return a, true
}

func decodeSidecar(fsys afero.Fs, artifactPath string) (Artifact, error) {
	data, err := afero.ReadFile(fsys, artifactPath+SidecarSuffix)
	if err != nil {
		return Artifact{}, err
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, err
	}
	if a.Name != filepath.Base(artifactPath) {
		return Artifact{}, fmt.Errorf("sidecar describes %q", a.Name)
	}
	a.Path = artifactPath
	a.Name = filepath.Base(artifactPath)
	return a, nil
}

// isSidecar reports whether p is the metadata of an artifact next to it.
// A backed up file that merely ends in SidecarSuffix is an artifact.
func (e *Engine) isSidecar(p string) bool {
	if !strings.HasSuffix(p, SidecarSuffix) {
		return false
	}
	artifact := strings.TrimSuffix(p, SidecarSuffix)
	if _, err := e.fs.Stat(artifact); err != nil {
		return false
	}
	_, err := decodeSidecar(e.fs, artifact)
	return err == nil
}

// ListCustomBackups returns custom backup artifacts newest first.
func (e *Engine) ListCustomBackups() ([]Artifact, error) {
	entries, err := afero.ReadDir(e.fs, e.CustomDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing custom backups: %w", err)
	}

	var artifacts []Artifact
	for _, entry := range entries {
		name := entry.Name()
		p := filepath.Join(e.CustomDir(), name)
		if strings.HasSuffix(name, ".sysopt-tmp") || e.isSidecar(p) {
			continue
		}
		a, ok := e.readSidecar(p)
		if !ok {
			a = Artifact{
				Name:      name,
				Path:      p,
				Original:  strings.TrimSuffix(name, FormatFromName(name).Suffix()),
				Format:    FormatFromName(name),
				CreatedAt: entry.ModTime(),
			}
			if a.Format == FormatDirectoryArchive {
				a.Kind = targets.KindDirectory
			}
		}
		a.Size = entry.Size()
		artifacts = append(artifacts, a)
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
		}
		return artifacts[i].Name > artifacts[j].Name
	})
	return artifacts, nil
}

// resolveArtifact accepts a bare artifact name from the custom directory
// or a path to an artifact anywhere.
func (e *Engine) resolveArtifact(artifact string) string {
	if !strings.ContainsAny(artifact, `/\`) {
		return filepath.Join(e.CustomDir(), artifact)
	}
	return artifact
}

// RestoreCustomBackup restores an artifact into destDir and returns the
// restored path. The format recorded in the sidecar decides the method;
// without one the name decides:
//
//	*.tar.gz  extracted into destDir/<artifact name without .tar.gz>/
//	*.gz      decompressed into destDir with the suffix stripped
//	other     a regular file copied verbatim
//
// Anything else fails with ErrArtifactFormatUnrecognized.
func (e *Engine) RestoreCustomBackup(ctx context.Context, artifact, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src := e.resolveArtifact(artifact)
	info, err := e.fs.Stat(src)
	if err != nil {
		return "", fmt.Errorf("artifact %s: %w", artifact, err)
	}

	name := filepath.Base(src)
	format := FormatFromName(name)
	original := ""
	if meta, ok := e.readSidecar(src); ok {
		format = meta.Format
		original = meta.Original
	}

	var dest string
	switch format {
	case FormatDirectoryArchive:
		dest = filepath.Join(destDir, strings.TrimSuffix(name, ".tar.gz"))
		err = e.untar(src, dest)
	case FormatSingleCompressed:
		dest = filepath.Join(destDir, pick(original, strings.TrimSuffix(name, ".gz")))
		err = e.gunzipFile(src, dest, 0o644)
	case FormatRaw:
		if !info.Mode().IsRegular() {
			return "", fmt.Errorf("%w: %s is not a regular file", ErrArtifactFormatUnrecognized, name)
		}
		dest = filepath.Join(destDir, pick(original, name))
		err = e.copyFile(src, dest, info.Mode().Perm())
	default:
		return "", fmt.Errorf("%w: %s (%q)", ErrArtifactFormatUnrecognized, name, format)
	}
	if err != nil {
		e.log.Error("custom restore failed", "artifact", name, "destination", destDir, "error", err)
		return "", err
	}
	e.log.Info("custom backup restored", "artifact", name, "path", dest)
	return dest, nil
}

func pick(preferred, fallback string) string {
	if preferred != "" && validName(preferred) == nil {
		return preferred
	}
	return fallback
}

// DeleteCustomBackup removes an artifact and its sidecar. Only artifacts
// inside the custom backup directory can be deleted.
func (e *Engine) DeleteCustomBackup(artifact string) error {
	p := e.resolveArtifact(artifact)
	abs, err := filepath.Abs(p)
	if err != nil {
		return err
	}
	dir, err := filepath.Abs(e.CustomDir())
	if err != nil {
		return err
	}
	if filepath.Dir(abs) != dir || e.isSidecar(abs) {
		return fmt.Errorf("%w: %s is not a custom backup", ErrUnsafePath, artifact)
	}
	if _, err := e.fs.Stat(abs); err != nil {
		return fmt.Errorf("artifact %s: %w", artifact, err)
	}

	hasSidecar := e.isSidecar(abs + SidecarSuffix)
	if err := e.fs.RemoveAll(abs); err != nil {
		return fmt.Errorf("deleting %s: %w", artifact, err)
	}
	if hasSidecar {
		if err := e.fs.Remove(abs + SidecarSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.log.Warn("sidecar left behind", "artifact", artifact, "error", err)
		}
	}
	e.log.Info("custom backup deleted", "artifact", filepath.Base(abs))
	return nil
}
