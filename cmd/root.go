package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abhisek/examwatch/internal/config"
	"github.com/abhisek/examwatch/internal/logging"
	"github.com/abhisek/examwatch/internal/store"
)

// env is the state shared by every command, set up before each run.
var env struct {
	loader *config.Loader
	cfg    *config.Config
	log    zerolog.Logger
}

var rootCmd = &cobra.Command{
	Use:   "examwatch",
	Short: "Assessment window tracking for the LMS",
	Long:  "examwatch tracks assessment windows, participant states and due-date load of an LMS site.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")
		loader, err := config.NewLoader(file)
		if err != nil {
			return err
		}
		cfg, err := loader.Load()
		if err != nil {
			return err
		}
		env.loader = loader
		env.cfg = cfg
		env.log = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
		return nil
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db", "", "Path to the SQLite store (overrides store.dsn)")
	rootCmd.PersistentFlags().Bool("json", false, "Print JSON instead of text")

	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(trendCmd)
	rootCmd.AddCommand(frequencyCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDSN returns the store DSN using --db flag (highest priority),
// then store.dsn, then the default XDG path for SQLite.
func resolveDSN(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if env.cfg.Store.DSN != "" {
		return env.cfg.Store.DSN, nil
	}
	if env.cfg.Store.Driver != store.DriverSQLite {
		return "", fmt.Errorf("store.dsn is required for driver %s", env.cfg.Store.Driver)
	}
	return store.DefaultDBPath()
}

func printJSON(cmd *cobra.Command, v any) (bool, error) {
	asJSON, _ := cmd.Flags().GetBool("json")
	if !asJSON {
		return false, nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
