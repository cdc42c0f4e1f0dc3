package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/nex-archive/nexharvest/internal/harvest"
)

var persistenceFromRanking bool

var persistenceCmd = &cobra.Command{
	Use:   "datastore_persistence <db-prefix> <catalog> [start [stop]]",
	Short: "Archive the persistence slots of every known owner",
	Long: `Resolve all 16 persistence slots of every owner already seen in
<db-prefix>datastore.db and archive the slot assignments, metadata and
payloads. With --owners-from-ranking the owner list comes from
<db-prefix>ranking.db leaderboard principals instead.`,
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

		datastoreDB, err := openDataStoreDB(args[0], tuning)
		if err != nil {
			return err
		}
		defer datastoreDB.Close()

		src := harvest.OwnersFromStore
		var rankingDB *sql.DB
		if persistenceFromRanking {
			src = harvest.OwnersFromRanking
			rankingDB, err = openRankingDB(args[0], tuning)
			if err != nil {
				return err
			}
			defer rankingDB.Close()
		}

		b, err := newBroker(p, false)
		if err != nil {
			return err
		}

		coord := harvest.New(p.Dialer, b, tuning, logger, rankingDB, datastoreDB)
		return coord.RunPersistence(cmd.Context(), titles, src)
	},
}

func init() {
	persistenceCmd.Flags().BoolVar(&persistenceFromRanking, "owners-from-ranking", false, "seed owners from leaderboard principals instead of store rows")
}
