package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/examwatch/internal/tracker"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run a tracking pass and record participant states",
	RunE: func(cmd *cobra.Command, args []string) error {
		loop, _ := cmd.Flags().GetBool("loop")

		src, err := openLMS(cmd)
		if err != nil {
			return err
		}
		defer src.Close()
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		tr := newTracker(src, st)
		if !loop {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			rep, err := tr.Run(ctx, time.Now())
			if err != nil {
				return err
			}
			return printReport(cmd, rep)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		interval := env.cfg.Tracking.Interval
		if interval > env.cfg.Tracking.Horizon {
			env.log.Warn().Dur("interval", interval).Dur("horizon", env.cfg.Tracking.Horizon).
				Msg("interval exceeds the tracking horizon; clamping")
			interval = env.cfg.Tracking.Horizon
		}
		return tr.Loop(ctx, interval, func(rep tracker.Report) {
			if err := printReport(cmd, rep); err != nil {
				env.log.Error().Err(err).Msg("print report")
			}
		})
	},
}

func init() {
	trackCmd.Flags().Bool("loop", false, "Keep running passes every tracking.interval until interrupted")
}

func printReport(cmd *cobra.Command, rep tracker.Report) error {
	if ok, err := printJSON(cmd, rep); ok {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s at %s\n", rep.RunID, rep.At.Local().Format(time.DateTime))
	fmt.Fprintf(w, "%-8s  %-12s  %-9s  %-11s  %s\n", "ID", "Not logged", "Logged in", "In progress", "Finished")
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, r := range rep.Results {
		c := r.Counts
		fmt.Fprintf(w, "%-8d  %-12d  %-9d  %-11d  %d\n", r.AssessmentID, c.NotLoggedIn, c.LoggedIn, c.InProgress, c.Finished)
	}
	printFailures(w, rep.Failures)
	return nil
}

func printFailures(w io.Writer, failures []tracker.Failure) {
	for _, f := range failures {
		fmt.Fprintf(w, "! %s\n", f.Error())
	}
}

// withTimeout bounds one-shot commands.
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 5*time.Minute)
}
