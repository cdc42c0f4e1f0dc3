package commands

import (
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <db-prefix> <catalog> [start [stop]]",
	Short: "Harvest leaderboards through the console account flow",
	Long: `Discover every valid ranking category of each title in the catalog window
and drain it into <db-prefix>ranking.db. Categories run in parallel subgroups;
rerunning resumes each category from its highest persisted rank.`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRankingMode(cmd, args, false)
	},
}

var create3DSCmd = &cobra.Command{
	Use:   "create_3ds <db-prefix> <catalog> [start [stop]]",
	Short: "Harvest leaderboards through the handheld flow",
	Args:  cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRankingMode(cmd, args, true)
	},
}
