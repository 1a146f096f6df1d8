package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/examwatch/internal/trend"
)

var trendCmd = &cobra.Command{
	Use:   "trend <assessment-id>",
	Short: "Show recorded participant states of an assessment over time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid assessment id %q: %w", args[0], err)
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		points, err := trend.NewRecorder(st.TrendRepo(), env.log).Series(cmd.Context(), id, limit)
		if err != nil {
			return err
		}
		if ok, err := printJSON(cmd, points); ok {
			return err
		}

		w := cmd.OutOrStdout()
		if len(points) == 0 {
			fmt.Fprintln(w, "No snapshots recorded.")
			return nil
		}
		fmt.Fprintf(w, "%-19s  %-12s  %-9s  %-11s  %s\n", "Time", "Not logged", "Logged in", "In progress", "Finished")
		fmt.Fprintln(w, strings.Repeat("─", 70))
		for _, p := range points {
			c := p.Counts
			fmt.Fprintf(w, "%-19s  %-12d  %-9d  %-11d  %d\n",
				p.At.Local().Format(time.DateTime), c.NotLoggedIn, c.LoggedIn, c.InProgress, c.Finished)
		}
		return nil
	},
}

func init() {
	trendCmd.Flags().Int("limit", 0, "Downsample to about this many points (0 = all)")
}
