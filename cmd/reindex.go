package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/examwatch/internal/indexer"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the due-event index from the LMS calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		ix := indexer.New(indexer.FromLMS(src), st.DueEventRepo(), env.cfg.Indexer.BatchSize, env.log)
		stats, err := ix.Rebuild(cmd.Context())
		if err != nil {
			return err
		}
		if ok, err := printJSON(cmd, stats); ok {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d events in %d batches, removed %d (generation %d, %s)\n",
			stats.Rows, stats.Batches, stats.Removed, stats.Generation, stats.Elapsed.Round(time.Millisecond))
		return nil
	},
}
