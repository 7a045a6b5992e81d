package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

// PrettyFormatter renders styled output for interactive terminals.
type PrettyFormatter struct{}

// Format writes the document.
func (f *PrettyFormatter) Format(w *bytes.Buffer, d *Document) error {
	switch {
	case d.Report != nil:
		f.report(w, d.Report)
		return nil
	case d.Checks != nil:
		f.checks(w, d.Checks)
		return nil
	case d.Snapshots != nil:
		rows := make([][]string, 0, len(d.Snapshots))
		for _, s := range d.Snapshots {
			note := ""
			if len(s.Missing) > 0 || len(s.Failed) > 0 {
				note = WarningStyle.Render(fmt.Sprintf("%d skipped", len(s.Missing)+len(s.Failed)))
			}
			rows = append(rows, []string{
				ValueStyle.Render(s.ID),
				MutedStyle.Render(ago(s.CreatedAt)),
				fmt.Sprintf("%d", len(s.Members)),
				humanize.IBytes(uint64(s.Size())),
				note,
			})
		}
		f.table(w, "Snapshots", []string{"ID", "CREATED", "MEMBERS", "SIZE", ""}, rows)
		return nil
	case d.Artifacts != nil:
		rows := make([][]string, 0, len(d.Artifacts))
		for _, a := range d.Artifacts {
			rows = append(rows, []string{
				ValueStyle.Render(a.Name),
				string(a.Format),
				humanize.IBytes(uint64(a.Size)),
				MutedStyle.Render(ago(a.CreatedAt)),
			})
		}
		f.table(w, "Custom backups", []string{"NAME", "FORMAT", "SIZE", "CREATED"}, rows)
		return nil
	case d.Runs != nil:
		rows := make([][]string, 0, len(d.Runs))
		for _, r := range d.Runs {
			pass, skip, fail := r.Counts()
			status := SuccessStyle.Render("ok")
			if fail > 0 {
				status = ErrorStyle.Render("failed")
			}
			if r.DryRun {
				status += MutedStyle.Render(" (dry run)")
			}
			rows = append(rows, []string{
				ValueStyle.Render(r.ID.String()[:8]),
				MutedStyle.Render(ago(r.StartedAt)),
				fmt.Sprintf("%d/%d/%d", pass, skip, fail),
				status,
			})
		}
		f.table(w, "Run history", []string{"ID", "STARTED", "PASS/SKIP/FAIL", "STATUS"}, rows)
		return nil
	case d.Targets != nil:
		rows := make([][]string, 0, len(d.Targets))
		for _, t := range d.Targets {
			rows = append(rows, []string{ValueStyle.Render(t.Name), t.Kind.String(), MutedStyle.Render(string(t.Source)), t.Path})
		}
		f.table(w, "Backup targets", []string{"NAME", "KIND", "SOURCE", "PATH"}, rows)
		return nil
	default:
		return (&PlainFormatter{}).Format(w, d)
	}
}

func (f *PrettyFormatter) report(w *bytes.Buffer, r *tuning.RunReport) {
	var header []string
	title := "Optimization run"
	if r.DryRun {
		title += " (dry run)"
	}
	header = append(header, TitleStyle.Render(title))
	header = append(header, fmt.Sprintf("%s %s", LabelStyle.Render("Run:"), ValueStyle.Render(r.ID.String())))
	host := r.Facts.Hostname
	if host == "" {
		host = "unknown host"
	}
	kind := "physical"
	if r.Facts.Virtual {
		kind = "virtual"
		if r.Facts.Hypervisor != "" {
			kind += " (" + r.Facts.Hypervisor + ")"
		}
	}
	header = append(header, fmt.Sprintf("%s %s, %s, kernel %s",
		LabelStyle.Render("Host:"), ValueStyle.Render(host), kind, dash(r.Facts.Kernel)))
	w.WriteString(HeaderBox.Render(strings.Join(header, "\n")))
	w.WriteString("\n")

	for _, res := range r.Results {
		marker := StatusStyle(res.Status).Render(res.Status.Marker())
		line := fmt.Sprintf("%s %-9s %s", marker, res.Category.Tag(), MutedStyle.Render(res.Elapsed.Round(time.Millisecond).String()))
		if res.Reason != "" {
			line += "  " + MutedStyle.Render(res.Reason)
		} else {
			line += "  " + MutedStyle.Render(fmt.Sprintf("%d commands", len(res.Detail)))
		}
		w.WriteString(line + "\n")
		for _, o := range res.Failed() {
			w.WriteString("    " + ErrorStyle.Render("✗ "+o.Command) + "\n")
			if o.Error != "" {
				w.WriteString("      " + MutedStyle.Render(o.Error) + "\n")
			}
		}
	}

	pass, skip, fail := r.Counts()
	summary := fmt.Sprintf("%s  %s  %s  %s",
		SuccessStyle.Render(fmt.Sprintf("%d passed", pass)),
		WarningStyle.Render(fmt.Sprintf("%d skipped", skip)),
		ErrorStyle.Render(fmt.Sprintf("%d failed", fail)),
		MutedStyle.Render("in "+r.Elapsed().Round(time.Millisecond).String()),
	)
	w.WriteString(FooterBox.Render(summary))
	w.WriteString("\n")
}

func (f *PrettyFormatter) checks(w *bytes.Buffer, checks []tuning.Check) {
	rows := make([][]string, 0, len(checks))
	for _, c := range checks {
		actual := c.Actual
		if actual == "" {
			actual = c.Detail
		}
		rows = append(rows, []string{
			StatusStyle(c.Status).Render(c.Status.Marker()),
			c.Category.Tag(),
			ValueStyle.Render(c.Name),
			dash(c.Expected),
			MutedStyle.Render(dash(actual)),
		})
	}
	f.table(w, "Verification", []string{"", "CATEGORY", "CHECK", "EXPECTED", "ACTUAL"}, rows)

	pass, skip, fail := tuning.Summary(checks)
	w.WriteString(FooterBox.Render(fmt.Sprintf("%s  %s  %s",
		SuccessStyle.Render(fmt.Sprintf("%d passed", pass)),
		WarningStyle.Render(fmt.Sprintf("%d skipped", skip)),
		ErrorStyle.Render(fmt.Sprintf("%d failed", fail)),
	)))
	w.WriteString("\n")
}

// table renders rows with columns padded to their widest rendered cell.
func (f *PrettyFormatter) table(w *bytes.Buffer, title string, headers []string, rows [][]string) {
	w.WriteString(TitleStyle.Render(title) + "\n")
	if len(rows) == 0 {
		w.WriteString(MutedStyle.Render("  none") + "\n")
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := lipgloss.Width(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = TableHeaderStyle.Render(pad(h, widths[i]))
	}
	w.WriteString(strings.TrimRight(strings.Join(cells, ""), " ") + "\n")
	for _, row := range rows {
		for i, cell := range row {
			cells[i] = pad(cell, widths[i]) + "  "
		}
		w.WriteString(strings.TrimRight(strings.Join(cells, ""), " ") + "\n")
	}
}

func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
