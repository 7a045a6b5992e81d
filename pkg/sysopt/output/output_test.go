package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysopt/pkg/sysopt/backup"
	"github.com/jamesainslie/sysopt/pkg/sysopt/environment"
	"github.com/jamesainslie/sysopt/pkg/sysopt/targets"
	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

func sampleReport() *tuning.RunReport {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &tuning.RunReport{
		ID:         uuid.MustParse("6f1c2a9e-0000-4000-8000-000000000001"),
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Facts:      environment.Facts{Virtual: true, Hypervisor: "kvm", Hostname: "db01", Kernel: "6.1.0"},
		Results: []tuning.CategoryResult{
			{Category: tuning.CategoryCPU, Status: tuning.StatusSkip, Reason: "running on a virtual machine"},
			{Category: tuning.CategoryMemory, Status: tuning.StatusFail, Detail: []tuning.Outcome{
				{Command: "sync", Succeeded: true},
				{Command: "sysctl -w vm.drop_caches=3", Error: "permission denied"},
			}},
			{Category: tuning.CategoryServices, Status: tuning.StatusPass, Detail: []tuning.Outcome{
				{Command: "systemctl disable cups", Succeeded: true},
			}},
		},
	}
}

func TestAvailable(t *testing.T) {
	assert.Equal(t, []string{"json", "plain", "pretty"}, Available())

	_, err := Get("yaml")
	assert.Error(t, err)
}

func TestPlainFormatter_Report(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, &Document{Report: sampleReport()}))
	out := buf.String()

	assert.Contains(t, out, "run 6f1c2a9e-0000-4000-8000-000000000001")
	assert.Contains(t, out, "[SKIP]  [CPU]")
	assert.Contains(t, out, "running on a virtual machine")
	assert.Contains(t, out, "fail sysctl -w vm.drop_caches=3: permission denied")
	assert.Contains(t, out, "ok   systemctl disable cups")
	assert.True(t, strings.HasSuffix(out, "pass=1 skip=1 fail=1\n"))
}

func TestPlainFormatter_Tables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		doc    *Document
		header string
		want   []string
	}{
		{
			name: "snapshots",
			doc: &Document{Snapshots: []*backup.Snapshot{{
				ID:      "20240301_120000",
				Members: []backup.Member{{Name: "hosts", Size: 1024}, {Name: "sysctl.conf", Size: 1024}},
			}}},
			header: "ID",
			want:   []string{"20240301_120000", "hosts,sysctl.conf", "2.0 KiB"},
		},
		{
			name:   "artifacts",
			doc:    &Document{Artifacts: []backup.Artifact{{Name: "20240301_120000_notes.tar.gz", Format: backup.FormatDirectoryArchive}}},
			header: "NAME",
			want:   []string{"20240301_120000_notes.tar.gz", "directory-archive"},
		},
		{
			name:   "targets",
			doc:    &Document{Targets: []targets.Target{{Name: "sshd_config", Path: "/etc/ssh/sshd_config", Source: targets.SourceBuiltin}}},
			header: "NAME",
			want:   []string{"sshd_config", "file", "builtin", "/etc/ssh/sshd_config"},
		},
		{
			name:   "checks",
			doc:    &Document{Checks: []tuning.Check{{Category: tuning.CategoryMemory, Name: "swappiness", Status: tuning.StatusFail, Expected: "10", Actual: "60"}}},
			header: "STATUS",
			want:   []string{"fail", "MEMORY", "swappiness", "10", "60"},
		},
		{
			name:   "empty runs",
			doc:    &Document{Runs: []*tuning.RunReport{}},
			header: "ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, (&PlainFormatter{}).Format(&buf, tt.doc))
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			assert.True(t, strings.HasPrefix(lines[0], tt.header))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestJSONFormatter_Report(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, &Document{Report: sampleReport()}))

	var got struct {
		ID        string `json:"id"`
		Succeeded bool   `json:"succeeded"`
		Counts    struct {
			Pass, Skip, Fail int
		} `json:"counts"`
		Results []struct {
			Category string `json:"category"`
			Status   string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "6f1c2a9e-0000-4000-8000-000000000001", got.ID)
	assert.False(t, got.Succeeded)
	assert.Equal(t, 1, got.Counts.Fail)
	require.Len(t, got.Results, 3)
	assert.Equal(t, "memory", got.Results[1].Category)
	assert.Equal(t, "fail", got.Results[1].Status)
}

func TestJSONFormatter_EmptyList(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, &Document{Snapshots: []*backup.Snapshot{}}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestPrettyFormatter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := &PrettyFormatter{}
	require.NoError(t, f.Format(&buf, &Document{Report: sampleReport()}))
	out := buf.String()
	assert.Contains(t, out, "Optimization run")
	assert.Contains(t, out, "db01")
	assert.Contains(t, out, "virtual (kvm)")
	assert.Contains(t, out, "sysctl -w vm.drop_caches=3")
	assert.Contains(t, out, "1 failed")

	buf.Reset()
	require.NoError(t, f.Format(&buf, &Document{Artifacts: []backup.Artifact{}}))
	assert.Contains(t, buf.String(), "none")
}
