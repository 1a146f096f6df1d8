package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/examwatch/internal/assessment"
	"github.com/abhisek/examwatch/internal/conflict"
	"github.com/abhisek/examwatch/internal/tracker"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List upcoming assessments that overlap for shared users",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := openLMS(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		ctx, cancel := withTimeout(cmd)
		defer cancel()

		module := assessment.Module(env.cfg.Tracking.ProctoredModule)
		caps := env.cfg.Tracking.RequiredCapabilities()
		tr := tracker.New(src, src, nil, nil, tracker.Options{ProctoredModule: module, Capabilities: caps}, env.log)
		windows, failures, err := tr.Windows(ctx)
		if err != nil {
			return err
		}

		pairs := conflict.NewDetector(src, module, caps, env.log).Detect(ctx, windows, time.Now())
		if ok, err := printJSON(cmd, pairs); ok {
			return err
		}

		w := cmd.OutOrStdout()
		if len(pairs) == 0 {
			fmt.Fprintln(w, "No conflicts found.")
			printFailures(w, failures)
			return nil
		}
		fmt.Fprintf(w, "%-8s  %-8s  %-7s  %s\n", "Event", "Conflict", "Shared", "Users")
		fmt.Fprintln(w, strings.Repeat("─", 60))
		for _, p := range pairs {
			fmt.Fprintf(w, "%-8d  %-8d  %-7d  %s\n", p.EventID, p.ConflictID, len(p.SharedUserIDs), joinIDs(p.SharedUserIDs, 10))
		}
		printFailures(w, failures)
		return nil
	},
}

func joinIDs(ids []int64, max int) string {
	parts := make([]string, 0, max+1)
	for i, id := range ids {
		if i == max {
			parts = append(parts, fmt.Sprintf("… (+%d)", len(ids)-max))
			break
		}
		parts = append(parts, fmt.Sprint(id))
	}
	return strings.Join(parts, ",")
}
