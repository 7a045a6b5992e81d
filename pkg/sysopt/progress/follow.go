package progress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval catches writes whose notifications were coalesced away.
const pollInterval = time.Second

// Follower tails a log file. It survives the file being rotated or created
// after the follower starts.
type Follower struct {
	path      string
	fromStart bool
	watcher   *fsnotify.Watcher
}

// NewFollower watches path. With fromStart false only lines appended
// after Run starts are delivered.
func NewFollower(path string, fromStart bool) (*Follower, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so creation and rotation are seen.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Follower{path: abs, fromStart: fromStart, watcher: w}, nil
}

// Close stops watching.
func (f *Follower) Close() error {
	return f.watcher.Close()
}

// Run calls onLine for every complete line until ctx is done.
func (f *Follower) Run(ctx context.Context, onLine func(string)) error {
	t := &tail{path: f.path}
	if !f.fromStart {
		if info, err := os.Stat(f.path); err == nil {
			t.offset = info.Size()
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	t.drain(onLine)
	for {
		select {
		case <-ctx.Done():
			t.close()
			return nil

		case event, ok := <-f.watcher.Events:
			if !ok {
				t.close()
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				t.reopen()
			}
			t.drain(onLine)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				t.close()
				return nil
			}
			t.close()
			return fmt.Errorf("watching %s: %w", f.path, err)

		case <-ticker.C:
			t.drain(onLine)
		}
	}
}

// Events calls onEvent for every marker line until ctx is done.
func (f *Follower) Events(ctx context.Context, onEvent func(Event)) error {
	return f.Run(ctx, func(line string) {
		if ev, ok := ParseLine(line); ok {
			onEvent(ev)
		}
	})
}

// tail reads appended data from one file, carrying partial lines over.
type tail struct {
	path    string
	file    *os.File
	offset  int64
	partial strings.Builder
}

func (t *tail) close() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
}

// reopen starts over at the beginning of a replaced file.
func (t *tail) reopen() {
	t.close()
	t.offset = 0
	t.partial.Reset()
}

func (t *tail) drain(onLine func(string)) {
	if t.file == nil {
		f, err := os.Open(t.path)
		if err != nil {
			return
		}
		t.file = f
	}

	// Truncated in place.
	if info, err := t.file.Stat(); err == nil && info.Size() < t.offset {
		t.offset = 0
		t.partial.Reset()
	}
	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		return
	}

	r := bufio.NewReader(t.file)
	for {
		chunk, err := r.ReadString('\n')
		t.offset += int64(len(chunk))
		if strings.HasSuffix(chunk, "\n") {
			t.partial.WriteString(strings.TrimSuffix(chunk, "\n"))
			onLine(t.partial.String())
			t.partial.Reset()
		} else {
			t.partial.WriteString(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.close()
			}
			return
		}
	}
}
