// Package tui renders the live optimize progress view.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/sysopt/pkg/sysopt/progress"
	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

var (
	primaryColor = lipgloss.Color("39")
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// EventMsg carries one marker line from the log follower.
type EventMsg progress.Event

// DoneMsg is sent when the pipeline returns.
type DoneMsg struct {
	Report *tuning.RunReport
	Err    error
}

// ProgressModel shows one line per category while the pipeline runs.
type ProgressModel struct {
	tracker   *progress.Tracker
	spinner   spinner.Model
	events    <-chan progress.Event
	done      <-chan DoneMsg
	startTime time.Time
	width     int

	finished  bool
	cancelled bool
	report    *tuning.RunReport
	err       error
}

// NewProgressModel creates a model reading from events and done.
func NewProgressModel(events <-chan progress.Event, done <-chan DoneMsg) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return ProgressModel{
		tracker:   progress.NewTracker(),
		spinner:   s,
		events:    events,
		done:      done,
		startTime: time.Now(),
		width:     80,
	}
}

// Init starts the spinner and both listeners.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitEvent(), m.waitDone())
}

func (m ProgressModel) waitEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return EventMsg(ev)
	}
}

func (m ProgressModel) waitDone() tea.Cmd {
	done := m.done
	return func() tea.Msg {
		return <-done
	}
}

// Update handles messages.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
		return m, nil

	case EventMsg:
		m.tracker.Apply(progress.Event(msg))
		return m, m.waitEvent()

	case DoneMsg:
		m.finished = true
		m.report = msg.Report
		m.err = msg.Err
		// Settle on the report; log lines may still be in flight.
		if msg.Report != nil {
			for _, res := range msg.Report.Results {
				m.tracker.Apply(progress.Event{Kind: progress.KindCategory, Category: res.Category, Status: res.Status})
			}
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the category list.
func (m ProgressModel) View() string {
	var b strings.Builder

	title := "Optimizing"
	if m.finished {
		title = "Optimization finished"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s", time.Since(m.startTime).Round(time.Second))))
	b.WriteString("\n\n")

	current, hasCurrent := m.tracker.Current()
	for _, s := range m.tracker.States() {
		icon := mutedStyle.Render("·")
		switch {
		case s.Done:
			icon = statusStyle(s.Status).Render(s.Status.Marker())
		case hasCurrent && current.Category == s.Category:
			icon = m.spinner.View()
		}

		line := fmt.Sprintf("  %-8s %-9s", icon, s.Category.Tag())
		if s.Commands > 0 {
			line += mutedStyle.Render(fmt.Sprintf(" %d commands", s.Commands))
			if s.Failed > 0 {
				line += failStyle.Render(fmt.Sprintf(", %d failed", s.Failed))
			}
		}
		if s.Last != "" && !s.Done {
			line += "  " + mutedStyle.Render(truncate(s.Last, m.width-40))
		}
		b.WriteString(line + "\n")
	}

	if !m.finished {
		b.WriteString("\n" + mutedStyle.Render("  q to stop after the current command") + "\n")
	}
	return b.String()
}

// Report returns the pipeline's report once finished.
func (m ProgressModel) Report() (*tuning.RunReport, error) {
	return m.report, m.err
}

func statusStyle(s tuning.Status) lipgloss.Style {
	switch s {
	case tuning.StatusPass:
		return passStyle
	case tuning.StatusSkip:
		return skipStyle
	default:
		return failStyle
	}
}

func truncate(s string, max int) string {
	if max < 10 {
		max = 10
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// RunProgress runs the pipeline while following logPath for progress.
// Quitting the view cancels ctx for the pipeline and waits for it to
// return its partial report.
func RunProgress(ctx context.Context, logPath string, run func(context.Context) (*tuning.RunReport, error)) (*tuning.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	follower, err := progress.NewFollower(logPath, false)
	if err != nil {
		return nil, fmt.Errorf("following log: %w", err)
	}
	defer follower.Close()

	events := make(chan progress.Event, 64)
	go func() {
		_ = follower.Events(ctx, func(ev progress.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()

	done := make(chan DoneMsg, 1)
	go func() {
		report, err := run(ctx)
		done <- DoneMsg{Report: report, Err: err}
	}()

	final, err := tea.NewProgram(NewProgressModel(events, done)).Run()
	if err != nil {
		cancel()
		res := <-done
		return res.Report, res.Err
	}

	m := final.(ProgressModel)
	if m.finished {
		return m.Report()
	}
	cancel()
	res := <-done
	return res.Report, res.Err
}
