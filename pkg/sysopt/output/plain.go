package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// PlainFormatter writes aligned, uncolored text suitable for piping.
type PlainFormatter struct{}

// Format writes the document.
func (f *PlainFormatter) Format(w *bytes.Buffer, d *Document) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	switch {
	case d.Report != nil:
		r := d.Report
		fmt.Fprintf(tw, "run %s (%s)\n", r.ID, r.Elapsed().Round(time.Millisecond))
		for _, res := range r.Results {
			fmt.Fprintf(tw, "%s\t[%s]\tcategory %s\n", res.Status.Marker(), res.Category.Tag(), res.Status)
			if res.Reason != "" {
				fmt.Fprintf(tw, "\t\t%s\n", res.Reason)
			}
			for _, o := range res.Detail {
				if o.Succeeded {
					fmt.Fprintf(tw, "\t\tok   %s\n", o.Command)
				} else {
					fmt.Fprintf(tw, "\t\tfail %s: %s\n", o.Command, o.Error)
				}
			}
		}
		pass, skip, fail := r.Counts()
		fmt.Fprintf(tw, "pass=%d skip=%d fail=%d\n", pass, skip, fail)

	case d.Checks != nil:
		fmt.Fprintln(tw, "STATUS\tCATEGORY\tCHECK\tEXPECTED\tACTUAL")
		for _, c := range d.Checks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Status, c.Category.Tag(), c.Name, dash(c.Expected), dash(pick(c.Actual, c.Detail)))
		}

	case d.Snapshots != nil:
		fmt.Fprintln(tw, "ID\tCREATED\tMEMBERS\tSIZE")
		for _, s := range d.Snapshots {
			members := make([]string, 0, len(s.Members))
			for _, m := range s.Members {
				members = append(members, m.Name)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, stamp(s.CreatedAt), strings.Join(members, ","), humanize.IBytes(uint64(s.Size())))
		}

	case d.Artifacts != nil:
		fmt.Fprintln(tw, "NAME\tFORMAT\tSIZE\tSOURCE")
		for _, a := range d.Artifacts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Name, a.Format, humanize.IBytes(uint64(a.Size)), dash(a.Source))
		}

	case d.Runs != nil:
		fmt.Fprintln(tw, "ID\tSTARTED\tPASS\tSKIP\tFAIL\tDRY-RUN")
		for _, r := range d.Runs {
			pass, skip, fail := r.Counts()
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%t\n", r.ID, stamp(r.StartedAt), pass, skip, fail, r.DryRun)
		}

	case d.Targets != nil:
		fmt.Fprintln(tw, "NAME\tKIND\tSOURCE\tPATH")
		for _, t := range d.Targets {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Kind, t.Source, t.Path)
		}

	case d.System != nil:
		fmt.Fprintln(tw, "NAME\tTAGS\tDESCRIPTION")
		for _, s := range d.System {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, dash(s.Tags), dash(s.Description))
		}
	}

	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pick(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
