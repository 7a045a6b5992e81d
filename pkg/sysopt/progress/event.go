// Package progress follows the shared sysopt log and turns the pipeline's
// marker lines into events for live displays.
package progress

import (
	"regexp"
	"strings"

	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

// Kind distinguishes the marker lines.
type Kind int

// Event kinds.
const (
	KindCommand Kind = iota
	KindCategory
	KindSkip
	KindVerify
)

// Event is one parsed marker line.
type Event struct {
	Kind     Kind
	Status   tuning.Status
	Category tuning.Category
	// Text is the command line, skip reason or check name.
	Text string
	// Err is the failure detail of a failed command.
	Err string
}

var markerRe = regexp.MustCompile(`\[(PASS|SKIP|FAIL)\] \[(CPU|IO|MEMORY|SERVICES|SECURITY|DISK)\] (.*)$`)

// ParseLine extracts an event from a log line. Lines without a marker
// return false.
func ParseLine(line string) (Event, bool) {
	m := markerRe.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return Event{}, false
	}

	var ev Event
	if err := ev.Status.UnmarshalText([]byte(m[1])); err != nil {
		return Event{}, false
	}
	cat, err := tuning.ParseCategory(m[2])
	if err != nil {
		return Event{}, false
	}
	ev.Category = cat
	rest := m[3]

	switch {
	case strings.HasPrefix(rest, "category "):
		ev.Kind = KindCategory
		ev.Text = strings.TrimPrefix(rest, "category ")
	case strings.HasPrefix(rest, "verify "):
		ev.Kind = KindVerify
		ev.Text = strings.TrimPrefix(rest, "verify ")
	case ev.Status == tuning.StatusSkip:
		ev.Kind = KindSkip
		ev.Text = rest
	case ev.Status == tuning.StatusFail:
		ev.Kind = KindCommand
		ev.Text, ev.Err, _ = strings.Cut(rest, ": ")
	default:
		ev.Kind = KindCommand
		ev.Text = rest
	}
	return ev, true
}

// CategoryState is the live view of one category.
type CategoryState struct {
	Category tuning.Category
	Done     bool
	Status   tuning.Status
	Commands int
	Failed   int
	Last     string
}

// Tracker folds events into per-category state.
type Tracker struct {
	states  []CategoryState
	current int
}

// NewTracker returns a Tracker with every category pending.
func NewTracker() *Tracker {
	t := &Tracker{current: -1}
	for _, c := range tuning.Categories {
		t.states = append(t.states, CategoryState{Category: c})
	}
	return t
}

// Apply records ev.
func (t *Tracker) Apply(ev Event) {
	i := int(ev.Category)
	if i < 0 || i >= len(t.states) {
		return
	}
	s := &t.states[i]
	t.current = i

	switch ev.Kind {
	case KindCommand:
		s.Commands++
		if ev.Status == tuning.StatusFail {
			s.Failed++
		}
		s.Last = ev.Text
	case KindSkip:
		s.Last = ev.Text
	case KindCategory:
		s.Done = true
		s.Status = ev.Status
	}
}

// States returns the categories in pipeline order.
func (t *Tracker) States() []CategoryState {
	return append([]CategoryState(nil), t.states...)
}

// Current returns the category that produced the latest event.
func (t *Tracker) Current() (CategoryState, bool) {
	if t.current < 0 {
		return CategoryState{}, false
	}
	return t.states[t.current], true
}

// Finished reports whether every category has ended.
func (t *Tracker) Finished() bool {
	for _, s := range t.states {
		if !s.Done {
			return false
		}
	}
	return true
}
