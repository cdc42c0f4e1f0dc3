// Package commands implements the nexharvest CLI. One subcommand per harvest
// mode; positional arguments name the database prefix, the catalog file and
// the [start, stop) catalog window, the way long archival runs are sharded
// across machines.
package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// tuningFile overrides the built-in worker counts and timeouts.
	tuningFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nexharvest",
	Short: "Bulk harvester for game-server leaderboards and object stores",
	Long: `nexharvest drains the Ranking and DataStore services of every title in a
catalog into SQLite archives: leaderboard rows with their group memberships,
object-store metadata, and the object payloads themselves.

Modes come in pairs: the plain name uses the console account flow, the _3ds
suffix uses the handheld flow. Runs are resumable; rerunning a mode picks up
where the databases left off.

Use "nexharvest [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI under ctx. Called by main.main().
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "YAML tuning file overriding worker counts and timeouts")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(create3DSCmd)
	rootCmd.AddCommand(datastoreCmd)
	rootCmd.AddCommand(datastore3DSCmd)
	rootCmd.AddCommand(samplingCmd)
	rootCmd.AddCommand(sampling3DSCmd)
	rootCmd.AddCommand(useDBCmd)
	rootCmd.AddCommand(useDBSpecificCmd)
	rootCmd.AddCommand(fromRanking3DSCmd)
	rootCmd.AddCommand(getInfoCmd)
	rootCmd.AddCommand(getInfo3DSCmd)
	rootCmd.AddCommand(justMetasCmd)
	rootCmd.AddCommand(justMetas3DSCmd)
	rootCmd.AddCommand(specificCmd)
	rootCmd.AddCommand(persistenceCmd)
	rootCmd.AddCommand(overlapCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
