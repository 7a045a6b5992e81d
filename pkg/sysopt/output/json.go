package output

import (
	"bytes"
	"encoding/json"
)

// jsonReport adds computed fields to a run report.
type jsonReport struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Elapsed    string `json:"elapsed"`
	DryRun     bool   `json:"dry_run"`
	Succeeded  bool   `json:"succeeded"`
	Facts      any    `json:"facts"`
	Results    any    `json:"results"`
	Counts     struct {
		Pass int `json:"pass"`
		Skip int `json:"skip"`
		Fail int `json:"fail"`
	} `json:"counts"`
}

// JSONFormatter writes one indented JSON document.
type JSONFormatter struct{}

// Format writes the document.
func (f *JSONFormatter) Format(w *bytes.Buffer, d *Document) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(f.payload(d))
}

func (f *JSONFormatter) payload(d *Document) any {
	switch {
	case d.Report != nil:
		r := d.Report
		out := jsonReport{
			ID:         r.ID.String(),
			StartedAt:  r.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			FinishedAt: r.FinishedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			Elapsed:    r.Elapsed().String(),
			DryRun:     r.DryRun,
			Succeeded:  r.Succeeded(),
			Facts:      r.Facts,
			Results:    r.Results,
		}
		out.Counts.Pass, out.Counts.Skip, out.Counts.Fail = r.Counts()
		return out
	case d.Checks != nil:
		return d.Checks
	case d.Snapshots != nil:
		return d.Snapshots
	case d.Artifacts != nil:
		return d.Artifacts
	case d.Runs != nil:
		return d.Runs
	case d.Targets != nil:
		return d.Targets
	case d.System != nil:
		return d.System
	default:
		return []any{}
	}
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
