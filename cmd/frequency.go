package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/examwatch/internal/config"
	"github.com/abhisek/examwatch/internal/frequency"
	"github.com/abhisek/examwatch/internal/ordering"
)

var frequencyCmd = &cobra.Command{
	Use:   "frequency",
	Short: "Count assessment due dates per day, month or activity",
	Long: `Count assessment due dates from the due-event index (see "reindex").

--by day|month|activity aggregates one year; --by events lists the events of
the day given with --day. With --watch the query repeats until interrupted,
served from the cache while entries are fresh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		metricName, _ := cmd.Flags().GetString("metric")
		module, _ := cmd.Flags().GetString("module")
		year, _ := cmd.Flags().GetInt("year")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		by, _ := cmd.Flags().GetString("by")
		day, _ := cmd.Flags().GetString("day")
		order, _ := cmd.Flags().GetString("order")
		watch, _ := cmd.Flags().GetDuration("watch")

		metric, err := frequency.ParseMetric(metricName)
		if err != nil {
			return err
		}
		if year == 0 {
			year = time.Now().Year()
		}
		q := frequency.Year(metric, module, year, !noCache)

		var orderings []ordering.Ordering
		if by == "events" {
			if day == "" {
				return fmt.Errorf("--by events requires --day")
			}
			d, err := time.Parse(time.DateOnly, day)
			if err != nil {
				return fmt.Errorf("invalid --day %q: %w", day, err)
			}
			q.From = d
			if orderings, err = ordering.Parse(order); err != nil {
				return err
			}
		} else if !slices.Contains([]string{"day", "month", "activity"}, by) {
			return fmt.Errorf("invalid --by %q", by)
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		svc := newFrequency(st)

		run := func(ctx context.Context) error {
			if by == "events" {
				events, err := svc.DayEvents(ctx, q, orderings)
				if err != nil {
					return err
				}
				return printEvents(cmd, events)
			}
			var counts frequency.Counts
			switch by {
			case "day":
				counts, err = svc.PerDay(ctx, q)
			case "month":
				counts, err = svc.PerMonth(ctx, q)
			case "activity":
				counts, err = svc.PerActivity(ctx, q)
			}
			if err != nil {
				return err
			}
			return printCounts(cmd, metric, counts)
		}

		if watch <= 0 {
			return run(cmd.Context())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		repo := st.DueEventRepo()
		env.loader.Watch(env.log, func(cfg *config.Config) {
			svc.Reconfigure(frequency.Fetchers(repo, cfg.Reporting.ShowHiddenCourses), cfg.Cache.TTL)
		})
		ticker := time.NewTicker(watch)
		defer ticker.Stop()
		for {
			if err := run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				env.log.Error().Err(err).Msg("frequency query failed")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	frequencyCmd.Flags().String("metric", "assessments", "Metric: assessments or students")
	frequencyCmd.Flags().String("module", "", "Only count one module type (quiz or assign)")
	frequencyCmd.Flags().Int("year", 0, "Calendar year (defaults to the current year)")
	frequencyCmd.Flags().Bool("no-cache", false, "Bypass cached event sets")
	frequencyCmd.Flags().String("by", "day", "Aggregate by day, month, activity, or list events")
	frequencyCmd.Flags().String("day", "", "Day for --by events (YYYY-MM-DD)")
	frequencyCmd.Flags().String("order", "time", `Sort order for --by events, e.g. "weight desc, name"`)
	frequencyCmd.Flags().Duration("watch", 0, "Repeat the query at this interval until interrupted")
}

func printCounts(cmd *cobra.Command, metric frequency.Metric, counts frequency.Counts) error {
	if ok, err := printJSON(cmd, counts); ok {
		return err
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-12s  %s\n", "Bucket", metric)
	fmt.Fprintln(w, strings.Repeat("─", 30))
	for _, k := range keys {
		fmt.Fprintf(w, "%-12s  %d\n", k, counts[k])
	}
	fmt.Fprintf(w, "%-12s  %d\n", "total", counts.Total())
	return nil
}

func printEvents(cmd *cobra.Command, events []frequency.Event) error {
	if ok, err := printJSON(cmd, events); ok {
		return err
	}
	w := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return nil
	}
	fmt.Fprintf(w, "%-8s  %-5s  %-6s  %-8s  %-6s  %s\n", "Event", "Time", "Module", "Course", "Weight", "Name")
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, e := range events {
		fmt.Fprintf(w, "%-8d  %-5s  %-6s  %-8d  %-6d  %s\n",
			e.EventID, e.Time.UTC().Format("15:04"), e.Module, e.CourseID, e.Weight, e.Name)
	}
	return nil
}
