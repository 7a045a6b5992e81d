package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/spf13/afero"
)

// Format is how an artifact was produced, recorded at creation time so
// restore does not depend on the file name alone.
type Format string

// Artifact formats.
const (
	FormatSingleCompressed Format = "single-compressed"
	FormatDirectoryArchive Format = "directory-archive"
	FormatRaw              Format = "raw"
)

// Suffix returns the file name suffix used for the format.
func (f Format) Suffix() string {
	switch f {
	case FormatSingleCompressed:
		return ".gz"
	case FormatDirectoryArchive:
		return ".tar.gz"
	default:
		return ""
	}
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatSingleCompressed || f == FormatDirectoryArchive || f == FormatRaw
}

// FormatFromName derives the format from an artifact name by suffix.
// ".tar.gz" is checked before ".gz"; anything else is raw.
func FormatFromName(name string) Format {
	switch {
	case strings.HasSuffix(name, ".tar.gz"):
		return FormatDirectoryArchive
	case strings.HasSuffix(name, ".gz"):
		return FormatSingleCompressed
	default:
		return FormatRaw
	}
}

// gzipFile compresses the regular file src into dst.
func (e *Engine) gzipFile(src, dst string) (int64, error) {
	in, err := e.fs.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := e.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}

	gz, err := pgzip.NewWriterLevel(out, e.level)
	if err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("creating gzip writer: %w", err)
	}
	gz.Name = filepath.Base(src)
	gz.ModTime = info.ModTime()

	if _, err := io.Copy(gz, in); err != nil {
		_ = gz.Close()
		_ = out.Close()
		return 0, fmt.Errorf("compressing %s: %w", src, err)
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("finishing %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", dst, err)
	}
	return e.size(dst), nil
}

// gunzipFile decompresses src into dst, replacing dst atomically.
func (e *Engine) gunzipFile(src, dst string, mode fs.FileMode) error {
	in, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	gz, err := pgzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("reading gzip header of %s: %w", src, err)
	}
	defer gz.Close()

	return e.writeAtomic(dst, gz, mode)
}

// copyFile copies src to dst verbatim, replacing dst atomically.
func (e *Engine) copyFile(src, dst string, mode fs.FileMode) error {
	in, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()
	return e.writeAtomic(dst, in, mode)
}

func (e *Engine) writeAtomic(dst string, r io.Reader, mode fs.FileMode) error {
	if err := e.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}

	tmp := dst + ".sysopt-tmp"
	out, err := e.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = e.fs.Remove(tmp)
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = e.fs.Remove(tmp)
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	if err := e.fs.Rename(tmp, dst); err != nil {
		_ = e.fs.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	return nil
}

// tarDir archives the contents of srcDir into dst as a gzip tar. Entry
// names are relative to srcDir with a "./" prefix.
func (e *Engine) tarDir(srcDir, dst string) (int64, error) {
	out, err := e.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}

	gz, err := pgzip.NewWriterLevel(out, e.level)
	if err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("creating gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	walkErr := afero.Walk(e.fs, srcDir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			e.log.Warn("skipping unreadable path", "path", p, "error", err)
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return e.addToTar(tw, p, "./"+filepath.ToSlash(rel), info)
	})

	closeErr := errors.Join(tw.Close(), gz.Close(), out.Close())
	if walkErr != nil {
		return 0, fmt.Errorf("archiving %s: %w", srcDir, walkErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("finishing %s: %w", dst, closeErr)
	}
	return e.size(dst), nil
}

func (e *Engine) addToTar(tw *tar.Writer, p, name string, info fs.FileInfo) error {
	// Walk follows symlinks; Lstat, where the filesystem has it, keeps them as links.
	var linkTarget string
	if lst, ok := e.fs.(afero.Lstater); ok {
		if li, _, err := lst.LstatIfPossible(p); err == nil {
			info = li
		}
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		reader, ok := e.fs.(afero.LinkReader)
		if !ok {
			return nil
		}
		target, err := reader.ReadlinkIfPossible(p)
		if err != nil {
			e.log.Warn("skipping unreadable symlink", "path", p, "error", err)
			return nil
		}
		linkTarget = target
	}

	header, err := tar.FileInfoHeader(info, linkTarget)
	if err != nil {
		e.log.Warn("skipping path without tar header", "path", p, "error", err)
		return nil
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	header.Format = tar.FormatPAX

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing header for %s: %w", p, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := e.fs.Open(p)
	if err != nil {
		return fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archiving %s: %w", p, err)
	}
	return nil
}

// untar extracts the gzip tar src below destDir. Entries that would land
// outside destDir fail the extraction.
func (e *Engine) untar(src, destDir string) error {
	in, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	gz, err := pgzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("reading gzip header of %s: %w", src, err)
	}
	defer gz.Close()

	if err := e.fs.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}

		rel, err := entryPath(header.Name)
		if err != nil {
			return err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(destDir, rel)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := e.fs.MkdirAll(target, fs.FileMode(header.Mode).Perm()|0o700); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := e.writeAtomic(target, tr, fs.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
			_ = e.fs.Chtimes(target, header.ModTime, header.ModTime)
		case tar.TypeSymlink:
			e.extractSymlink(destDir, target, header.Linkname)
		default:
			e.log.Debug("skipping unsupported archive entry", "name", header.Name, "type", header.Typeflag)
		}
	}
}

func (e *Engine) extractSymlink(destDir, target, linkname string) {
	linker, ok := e.fs.(afero.Linker)
	if !ok {
		e.log.Warn("filesystem cannot hold symlinks, skipping", "path", target)
		return
	}
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), linkname)
	}
	if !within(destDir, resolved) {
		e.log.Warn("skipping symlink pointing outside the restore directory", "path", target, "target", linkname)
		return
	}
	_ = e.fs.Remove(target)
	if err := linker.SymlinkIfPossible(linkname, target); err != nil {
		e.log.Warn("cannot create symlink", "path", target, "error", err)
	}
}

// entryPath validates a tar entry name and returns it as a relative,
// OS-specific path. The archive root ("./") yields "".
func entryPath(name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "." {
		return "", nil
	}
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: archive entry %q", ErrUnsafePath, name)
	}
	return filepath.FromSlash(cleaned), nil
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e *Engine) size(p string) int64 {
	if info, err := e.fs.Stat(p); err == nil {
		return info.Size()
	}
	return 0
}
