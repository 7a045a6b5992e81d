package progress

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want Event
		ok   bool
	}{
		{
			name: "passed command",
			line: "2024-03-01 12:00:00 INFO cpu: [PASS] [CPU] cpupower frequency-set -g performance",
			want: Event{Kind: KindCommand, Status: tuning.StatusPass, Category: tuning.CategoryCPU, Text: "cpupower frequency-set -g performance"},
			ok:   true,
		},
		{
			name: "failed command",
			line: "ERRO memory: [FAIL] [MEMORY] sysctl -w vm.swappiness=10: exit status 255\n",
			want: Event{Kind: KindCommand, Status: tuning.StatusFail, Category: tuning.CategoryMemory, Text: "sysctl -w vm.swappiness=10", Err: "exit status 255"},
			ok:   true,
		},
		{
			name: "category end",
			line: "INFO pipeline: [SKIP] [DISK] category skip",
			want: Event{Kind: KindCategory, Status: tuning.StatusSkip, Category: tuning.CategoryDisk, Text: "skip"},
			ok:   true,
		},
		{
			name: "skip reason",
			line: "WARN pipeline: [SKIP] [IO] running on a virtual machine",
			want: Event{Kind: KindSkip, Status: tuning.StatusSkip, Category: tuning.CategoryIO, Text: "running on a virtual machine"},
			ok:   true,
		},
		{
			name: "verify",
			line: "INFO verify: [PASS] [SECURITY] verify firewall",
			want: Event{Kind: KindVerify, Status: tuning.StatusPass, Category: tuning.CategorySecurity, Text: "firewall"},
			ok:   true,
		},
		{name: "plain line", line: "INFO backup: snapshot created id=20240301_120000"},
		{name: "unknown tag", line: "[PASS] [GPU] nvidia-smi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestTracker(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	_, ok := tr.Current()
	assert.False(t, ok)

	tr.Apply(Event{Kind: KindCommand, Status: tuning.StatusPass, Category: tuning.CategoryMemory, Text: "sync"})
	tr.Apply(Event{Kind: KindCommand, Status: tuning.StatusFail, Category: tuning.CategoryMemory, Text: "sysctl -w vm.drop_caches=3"})
	tr.Apply(Event{Kind: KindCategory, Status: tuning.StatusFail, Category: tuning.CategoryMemory})

	cur, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, tuning.CategoryMemory, cur.Category)
	assert.True(t, cur.Done)
	assert.Equal(t, 2, cur.Commands)
	assert.Equal(t, 1, cur.Failed)
	assert.Equal(t, "sysctl -w vm.drop_caches=3", cur.Last)
	assert.False(t, tr.Finished())

	for _, c := range tuning.Categories {
		tr.Apply(Event{Kind: KindCategory, Status: tuning.StatusPass, Category: c})
	}
	assert.True(t, tr.Finished())
	assert.Len(t, tr.States(), len(tuning.Categories))
}

type lines struct {
	mu  sync.Mutex
	got []string
}

func (l *lines) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, s)
}

func (l *lines) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.got...)
}

func appendTo(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(s)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFollowerDeliversAppendedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sysopt.log")
	appendTo(t, path, "old line\n")

	f, err := NewFollower(path, false)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var got lines
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, got.add) }()

	// Give Run a moment to record the starting offset.
	time.Sleep(100 * time.Millisecond)
	appendTo(t, path, "first\nsec")
	appendTo(t, path, "ond\n")

	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, got.snapshot())

	cancel()
	require.NoError(t, <-done)
}

func TestFollowerEventsAcrossRecreation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sysopt.log")

	f, err := NewFollower(path, true)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []Event
	go func() {
		_ = f.Events(ctx, func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		})
	}()

	appendTo(t, path, "INFO cpu: [PASS] [CPU] renice -n -5 -p 42\nINFO noise\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Rename(path, path+".1"))
	appendTo(t, path, "INFO pipeline: [PASS] [CPU] category pass\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, KindCategory, events[1].Kind)
}
