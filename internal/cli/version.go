package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X .../internal/cli.version=...".
var (
	version   = "0.1.0-dev"
	gitCommit = ""
	buildTime = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display version information for xrplsyncd including build details and Go version.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "xrplsyncd version %s\n", version)
		if gitCommit != "" {
			fmt.Fprintf(out, "Git commit hash: %s\n", gitCommit)
		}
		if buildTime != "" {
			fmt.Fprintf(out, "Build timestamp: %s\n", buildTime)
		}
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
