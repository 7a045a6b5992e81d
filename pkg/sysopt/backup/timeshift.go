package backup

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
)

// SystemSnapshot is one entry of `timeshift --list`.
type SystemSnapshot struct {
	Name        string `json:"name"`
	Tags        string `json:"tags,omitempty"`
	Description string `json:"description,omitempty"`
}

// Timeshift delegates whole-system snapshots to the timeshift tool.
// Restoring and deleting them is left to timeshift itself.
type Timeshift struct {
	exec executor.Executor
	log  *logging.Logger
}

// NewTimeshift creates a Timeshift wrapper.
func NewTimeshift(exec executor.Executor, l *logging.Logging) *Timeshift {
	if l == nil {
		l = logging.Discard()
	}
	return &Timeshift{exec: exec, log: l.Get("timeshift")}
}

// Create runs `timeshift --create --comments <comment>`.
func (t *Timeshift) Create(ctx context.Context, comment string) error {
	if comment == "" {
		comment = "sysopt"
	}
	cmd := executor.New("timeshift", "--create", "--comments", comment)
	res := t.exec.Run(ctx, cmd)
	if !res.Succeeded() {
		t.log.Error("system snapshot failed", "command", cmd.String(), "error", res.Err)
		return fmt.Errorf("%s: %w", cmd, res.Err)
	}
	t.log.Info("system snapshot created", "comment", comment)
	return nil
}

// List runs `timeshift --list` and parses the snapshot table.
func (t *Timeshift) List(ctx context.Context) ([]SystemSnapshot, error) {
	cmd := executor.New("timeshift", "--list")
	res := t.exec.Run(ctx, cmd)
	if !res.Succeeded() {
		return nil, fmt.Errorf("%s: %w", cmd, res.Err)
	}
	return ParseTimeshiftList(res.Output), nil
}

// e.g. "0    >  2024-01-01_12-00-01  O     before upgrade"
var timeshiftRow = regexp.MustCompile(`^\s*\d+\s+>?\s*(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})\s*(\S*)\s*(.*)$`)

// ParseTimeshiftList extracts snapshot rows from `timeshift --list` output.
func ParseTimeshiftList(output string) []SystemSnapshot {
	var snaps []SystemSnapshot
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		m := timeshiftRow.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		s := SystemSnapshot{Name: m[1], Tags: m[2], Description: strings.TrimSpace(m[3])}
		// A row without tags puts the description in the tags column.
		if len(s.Tags) > 4 || strings.ToUpper(s.Tags) != s.Tags {
			s.Description = strings.TrimSpace(s.Tags + " " + s.Description)
			s.Tags = ""
		}
		snaps = append(snaps, s)
	}
	return snaps
}
