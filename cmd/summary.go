package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/examwatch/internal/assessment"
	"github.com/abhisek/examwatch/internal/ordering"
	"github.com/abhisek/examwatch/internal/summary"
	"github.com/abhisek/examwatch/internal/tracker"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show upcoming, in-progress and finished assessments",
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")
		order, _ := cmd.Flags().GetString("order")
		module, _ := cmd.Flags().GetString("module")

		now := time.Now()
		if at != "" {
			t, err := time.ParseInLocation(time.DateTime, at, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --at %q: %w", at, err)
			}
			now = t
		}
		var orderings []ordering.Ordering
		if order != "" {
			var err error
			if orderings, err = ordering.Parse(order); err != nil {
				return err
			}
		}

		src, err := openLMS(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		ctx, cancel := withTimeout(cmd)
		defer cancel()
		// The summary never records, so no store is needed.
		tr := tracker.New(src, src, nil, nil, tracker.Options{
			Summary:         summaryOptions(),
			ProctoredModule: assessment.Module(env.cfg.Tracking.ProctoredModule),
			Capabilities:    env.cfg.Tracking.RequiredCapabilities(),
		}, env.log)
		sum, failures, err := tr.Summary(ctx, now)
		if err != nil {
			return err
		}

		if module != "" {
			m := assessment.Module(module)
			if !m.Valid() {
				return fmt.Errorf("unknown module %q", module)
			}
			sum = filterSummary(sum, m)
		}
		if len(orderings) > 0 {
			if err := sortSummary(sum, orderings); err != nil {
				return err
			}
		}

		if ok, err := printJSON(cmd, sum); ok {
			return err
		}
		w := cmd.OutOrStdout()
		for _, b := range sum.Upcoming {
			printWindows(w, fmt.Sprintf("Opening within %s", b.Offset), b.Assessments)
		}
		printWindows(w, "In progress", sum.InProgress)
		printWindows(w, "Finished", sum.Finished)
		printFailures(w, failures)
		return nil
	},
}

func init() {
	summaryCmd.Flags().String("at", "", "Reference time (YYYY-MM-DD HH:MM:SS, local); defaults to now")
	summaryCmd.Flags().String("order", "", `Sort order, e.g. "close desc, name"`)
	summaryCmd.Flags().String("module", "", "Only show one module type (quiz or assign)")
}

func filterSummary(s summary.Summary, m assessment.Module) summary.Summary {
	out := s
	out.Upcoming = nil
	for _, b := range s.Upcoming {
		b.Assessments = summary.Filter(b.Assessments, m)
		if len(b.Assessments) > 0 {
			out.Upcoming = append(out.Upcoming, b)
		}
	}
	out.InProgress = summary.Filter(s.InProgress, m)
	out.Finished = summary.Filter(s.Finished, m)
	return out
}

func sortSummary(s summary.Summary, order []ordering.Ordering) error {
	for _, b := range s.Upcoming {
		if err := summary.Sort(b.Assessments, order); err != nil {
			return err
		}
	}
	if err := summary.Sort(s.InProgress, order); err != nil {
		return err
	}
	return summary.Sort(s.Finished, order)
}

func printWindows(w io.Writer, title string, ws []assessment.Effective) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(ws))
	if len(ws) == 0 {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "  %-8s  %-6s  %-16s  %-16s  %s\n", "ID", "Module", "Opens", "Closes", "Name")
	fmt.Fprintln(w, "  "+strings.Repeat("─", 76))
	for _, e := range ws {
		fmt.Fprintf(w, "  %-8d  %-6s  %-16s  %-16s  %s\n", e.ID, e.Module, formatTime(e.EffectiveOpen), formatTime(e.EffectiveClose), e.Name)
	}
	fmt.Fprintln(w)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
