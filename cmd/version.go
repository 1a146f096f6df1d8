package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at build time.
var version = "(devel)"

type buildInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision,omitempty"`
	Platform  string `json:"platform"`
}

func currentBuild() buildInfo {
	b := buildInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				b.Revision = s.Value
			}
		}
	}
	return b
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build details",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := currentBuild()
		if ok, err := printJSON(cmd, b); ok {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "examwatch", b.Version)
		fmt.Fprintf(w, "  go:       %s\n", b.GoVersion)
		fmt.Fprintf(w, "  platform: %s\n", b.Platform)
		if b.Revision != "" {
			fmt.Fprintf(w, "  revision: %s\n", b.Revision)
		}
		return nil
	},
}
