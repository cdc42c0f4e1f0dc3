package commands

import (
	"github.com/spf13/cobra"

	"github.com/nex-archive/nexharvest/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("nexharvest %s (commit: %s, built: %s)\n",
			buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)
	},
}
