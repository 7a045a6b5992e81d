package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/sysopt/pkg/sysopt/progress"
	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

func TestNewProgressModel(t *testing.T) {
	m := NewProgressModel(nil, nil)

	if m.finished {
		t.Error("expected finished to be false initially")
	}
	view := m.View()
	for _, c := range tuning.Categories {
		if !strings.Contains(view, c.Tag()) {
			t.Errorf("expected view to list %s", c.Tag())
		}
	}
}

func TestProgressModelEvents(t *testing.T) {
	m := NewProgressModel(make(chan progress.Event), make(chan DoneMsg))

	updated, cmd := m.Update(EventMsg{Kind: progress.KindCommand, Status: tuning.StatusFail, Category: tuning.CategoryMemory, Text: "sysctl -w vm.swappiness=10"})
	if cmd == nil {
		t.Error("expected a command to wait for the next event")
	}
	m = updated.(ProgressModel)

	view := m.View()
	if !strings.Contains(view, "1 commands") {
		t.Errorf("expected command count in view, got:\n%s", view)
	}
	if !strings.Contains(view, "1 failed") {
		t.Errorf("expected failure count in view, got:\n%s", view)
	}
	if !strings.Contains(view, "sysctl -w vm.swappiness=10") {
		t.Errorf("expected last command in view, got:\n%s", view)
	}
}

func TestProgressModelDone(t *testing.T) {
	m := NewProgressModel(make(chan progress.Event), make(chan DoneMsg))

	report := &tuning.RunReport{Results: []tuning.CategoryResult{
		{Category: tuning.CategoryCPU, Status: tuning.StatusSkip},
		{Category: tuning.CategoryMemory, Status: tuning.StatusPass},
	}}
	updated, cmd := m.Update(DoneMsg{Report: report})
	m = updated.(ProgressModel)

	if !m.finished {
		t.Error("expected finished after DoneMsg")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit")
	}

	got, err := m.Report()
	if err != nil || got != report {
		t.Errorf("Report() = %v, %v", got, err)
	}
	view := m.View()
	if !strings.Contains(view, "Optimization finished") {
		t.Errorf("expected finished title, got:\n%s", view)
	}
	if !strings.Contains(view, "[SKIP]") || !strings.Contains(view, "[PASS]") {
		t.Errorf("expected final markers, got:\n%s", view)
	}
}

func TestProgressModelQuit(t *testing.T) {
	m := NewProgressModel(nil, nil)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = updated.(ProgressModel)
	if !m.cancelled {
		t.Error("expected cancelled after q")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 20, "short"},
		{"a very long command line indeed", 15, "a very long ..."},
		{"tiny limit applies floor", 2, "tiny li..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
