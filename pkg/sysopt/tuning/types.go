// Package tuning applies the settings document to the running host.
//
// A Pipeline runs six categories in a fixed order. Each category either
// skips on entry (its guard failed) or issues commands through an
// executor.Executor and derives its status from the recorded outcomes.
package tuning

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/jamesainslie/sysopt/pkg/sysopt/environment"
)

// Sentinel errors.
var (
	// ErrCommandFailed wraps a single failed command outcome.
	ErrCommandFailed = errors.New("command failed")

	// ErrCategoryFailed wraps a category that ended in StatusFail.
	ErrCategoryFailed = errors.New("category failed")

	// ErrNoConfig is returned by Run when no settings were supplied.
	ErrNoConfig = errors.New("no configuration supplied")

	// ErrUnknownPolicy is recorded when scheduler_policy is not recognized.
	ErrUnknownPolicy = errors.New("unknown scheduler policy")

	// ErrProcessNotFound is recorded when a configured process is not running.
	ErrProcessNotFound = errors.New("no matching process")

	// ErrInvalidValue is recorded when a configured value cannot be used
	// as a command argument.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Category identifies one tuning domain.
type Category int

// Categories in pipeline order.
const (
	CategoryCPU Category = iota
	CategoryIO
	CategoryMemory
	CategoryServices
	CategorySecurity
	CategoryDisk
)

// Categories lists every category in the order the pipeline runs them.
var Categories = []Category{
	CategoryCPU,
	CategoryIO,
	CategoryMemory,
	CategoryServices,
	CategorySecurity,
	CategoryDisk,
}

var categoryNames = map[Category]string{
	CategoryCPU:      "CPU",
	CategoryIO:       "IO",
	CategoryMemory:   "Memory",
	CategoryServices: "Services",
	CategorySecurity: "Security",
	CategoryDisk:     "Disk",
}

// String returns the display name, e.g. "Memory".
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Tag returns the upper-case log tag, e.g. "MEMORY".
func (c Category) Tag() string {
	return strings.ToUpper(c.String())
}

// MarshalText encodes the category as its lower-case name.
func (c Category) MarshalText() ([]byte, error) {
	if _, ok := categoryNames[c]; !ok {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(strings.ToLower(c.String())), nil
}

// UnmarshalText decodes a category name case-insensitively.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory parses a category name or tag.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if strings.EqualFold(name, s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Status is the outcome of one category.
type Status int

// Category statuses.
const (
	StatusPass Status = iota
	StatusSkip
	StatusFail
)

// String returns "pass", "skip" or "fail".
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusSkip:
		return "skip"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Marker returns the log marker, e.g. "[PASS]".
func (s Status) Marker() string {
	return "[" + strings.ToUpper(s.String()) + "]"
}

// MarshalText encodes the status as its lower-case name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "pass":
		*s = StatusPass
	case "skip":
		*s = StatusSkip
	case "fail":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Outcome records one command attempt, or one step that failed before a
// command could be issued.
type Outcome struct {
	// Command is the rendered command line or a short step description.
	Command string `json:"command"`

	// Succeeded is true when the command exited cleanly.
	Succeeded bool `json:"succeeded"`

	// Error is the failure detail, empty on success.
	Error string `json:"error,omitempty"`
}

// CommandError is a failed Outcome as an error.
type CommandError struct {
	Command string
	Detail  string
}

func (e *CommandError) Error() string {
	if e.Detail == "" {
		return e.Command
	}
	return e.Command + ": " + e.Detail
}

// Is reports whether target is ErrCommandFailed.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

// CategoryResult is the outcome of one category.
type CategoryResult struct {
	// Category identifies the tuning domain.
	Category Category `json:"category"`

	// Status is Skip when the guard failed, otherwise derived from Detail.
	Status Status `json:"status"`

	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`

	// Detail lists the outcomes in the order they were produced.
	Detail []Outcome `json:"detail"`

	// Elapsed is the time spent in the category.
	Elapsed time.Duration `json:"elapsed"`
}

// Failed returns the outcomes that did not succeed.
func (r CategoryResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Detail {
		if !o.Succeeded {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err returns nil unless the category failed, in which case the error
// wraps ErrCategoryFailed and every failed command.
func (r CategoryResult) Err() error {
	if r.Status != StatusFail {
		return nil
	}

	var merr *multierror.Error
	for _, o := range r.Failed() {
		merr = multierror.Append(merr, &CommandError{Command: o.Command, Detail: o.Error})
	}
	if merr == nil {
		return fmt.Errorf("%w: %s", ErrCategoryFailed, r.Category)
	}
	return fmt.Errorf("%w: %s: %w", ErrCategoryFailed, r.Category, merr)
}

// RunReport is the ordered result of one pipeline run.
type RunReport struct {
	ID         uuid.UUID         `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	DryRun     bool              `json:"dry_run,omitempty"`
	Facts      environment.Facts `json:"facts"`
	Results    []CategoryResult  `json:"results"`
}

// Succeeded reports whether no category failed.
func (r *RunReport) Succeeded() bool {
	for _, res := range r.Results {
		if res.Status == StatusFail {
			return false
		}
	}
	return true
}

// Err aggregates the errors of every failed category.
func (r *RunReport) Err() error {
	var merr *multierror.Error
	for _, res := range r.Results {
		if err := res.Err(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// Result returns the result for c.
func (r *RunReport) Result(c Category) (CategoryResult, bool) {
	for _, res := range r.Results {
		if res.Category == c {
			return res, true
		}
	}
	return CategoryResult{}, false
}

// Counts returns how many categories ended in each status.
func (r *RunReport) Counts() (pass, skip, fail int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusPass:
			pass++
		case StatusSkip:
			skip++
		case StatusFail:
			fail++
		}
	}
	return pass, skip, fail
}

// Elapsed returns the wall time of the run.
func (r *RunReport) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
