package commands

import (
	"github.com/spf13/cobra"

	"github.com/nex-archive/nexharvest/internal/harvest"
)

var datastoreCmd = &cobra.Command{
	Use:   "datastore <db-prefix> <catalog> [start [stop]]",
	Short: "Harvest object stores through the console account flow",
	Long: `Scan the object store of each datastore-capable title in the catalog window
into <db-prefix>datastore.db: bracket the live data-id range, walk it with
striped metadata batches, and download every payload-bearing object.
Rerunning resumes past the highest persisted data id.`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStoreMode(cmd, args, false, harvest.StoreOptions{})
	},
}

var datastore3DSCmd = &cobra.Command{
	Use:   "datastore_3ds <db-prefix> <catalog> [start [stop]]",
	Short: "Harvest object stores through the handheld flow",
	Args:  cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStoreMode(cmd, args, true, harvest.StoreOptions{})
	},
}

var samplingCmd = &cobra.Command{
	Use:   "datastore_sampling <db-prefix> <catalog> [start [stop]]",
	Short: "Harvest a bounded sample of each object store",
	Long: `As datastore, but each store's scan is capped to a fixed span past its
first data id. Used to size a full harvest before committing to one.`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStoreMode(cmd, args, false, harvest.StoreOptions{Sampling: true})
	},
}

var sampling3DSCmd = &cobra.Command{
	Use:   "datastore_sampling_3ds <db-prefix> <catalog> [start [stop]]",
	Short: "Harvest a bounded sample of each object store (handheld flow)",
	Args:  cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStoreMode(cmd, args, true, harvest.StoreOptions{Sampling: true})
	},
}

var useDBCmd = &cobra.Command{
	Use:   "datastore_use_db <db-prefix> <catalog> [start [stop]]",
	Short: "Download payloads for metadata already in the database",
	Long: `Drain the downloads a previous run left behind: every persisted metadata
row with a payload but no data row is fed to the larger download pool. No
scanning happens; the store is not searched for new ids.`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStoreMode(cmd, args, false, harvest.StoreOptions{ResumeFromDB: true})
	},
}

var justMetasCmd = &cobra.Command{
	Use:   "datastore_just_metas <db-prefix> <catalog> [start [stop]]",
	Short: "Scan object-store metadata without downloading payloads",
	Args:  cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStoreMode(cmd, args, false, harvest.StoreOptions{MetasOnly: true})
	},
}

var justMetas3DSCmd = &cobra.Command{
	Use:   "datastore_just_metas_3ds <db-prefix> <catalog> [start [stop]]",
	Short: "Scan object-store metadata without downloading payloads (handheld flow)",
	Args:  cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStoreMode(cmd, args, true, harvest.StoreOptions{MetasOnly: true})
	},
}

var fromRanking3DSCmd = &cobra.Command{
	Use:   "datastore_from_ranking_3ds <db-prefix> <catalog> [start [stop]]",
	Short: "Backfill object stores from harvested leaderboard references",
	Long: `Resolve the param references of already-harvested leaderboard rows in
<db-prefix>ranking.db through the object store and archive their metadata and
payloads into <db-prefix>datastore.db. Handheld flow.`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := providers()
		if err != nil {
			return err
		}
		tuning, err := loadTuningFile()
		if err != nil {
			return err
		}
		titles, err := catalogWindow(args[1], args[2:])
		if err != nil {
			return err
		}

		logger, logClose, err := harvest.NewRunLogger(args[0] + "datastore_log.txt")
		if err != nil {
			return err
		}
		defer logClose.Close()

		rankingDB, err := openRankingDB(args[0], tuning)
		if err != nil {
			return err
		}
		defer rankingDB.Close()

		datastoreDB, err := openDataStoreDB(args[0], tuning)
		if err != nil {
			return err
		}
		defer datastoreDB.Close()

		b, err := newBroker(p, true)
		if err != nil {
			return err
		}

		coord := harvest.New(p.Dialer, b, tuning, logger, rankingDB, datastoreDB)
		return coord.RunFromRanking(cmd.Context(), titles)
	},
}
