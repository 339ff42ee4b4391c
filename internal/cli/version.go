package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time. Unset values fall back to the VCS stamp
// embedded by the toolchain.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		commit, built := buildStamp()
		fmt.Fprintf(cmd.OutOrStdout(), "rapport %s (commit: %s, built: %s)\n", Version, commit, built)
	},
}

// buildStamp returns the commit and build time, preferring ldflags.
func buildStamp() (commit, built string) {
	commit, built = Commit, BuildDate
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, built
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && commit == "unknown":
			commit = s.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case s.Key == "vcs.time" && built == "unknown":
			built = s.Value
		}
	}
	return commit, built
}

// VersionString is the short form reported by /api/health.
func VersionString() string {
	commit, _ := buildStamp()
	return fmt.Sprintf("%s (%s)", Version, commit)
}
