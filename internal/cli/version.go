package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"skindrop/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skindrop %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
	},
}
