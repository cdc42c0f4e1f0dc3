package commands

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nex-archive/nexharvest/internal/broker"
	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/harvest"
	"github.com/nex-archive/nexharvest/internal/store"
)

func loadTuningFile() (*config.Tuning, error) {
	if tuningFile == "" {
		return config.NewDefaultTuning(), nil
	}
	return config.LoadTuning(tuningFile)
}

// catalogWindow loads a catalog and applies the optional [start, stop)
// window given as trailing positional arguments.
func catalogWindow(path string, window []string) ([]catalog.Title, error) {
	titles, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}

	start, stop := 0, -1
	if len(window) > 0 {
		if start, err = strconv.Atoi(window[0]); err != nil {
			return nil, fmt.Errorf("start index %q: %w", window[0], err)
		}
	}
	if len(window) > 1 {
		if stop, err = strconv.Atoi(window[1]); err != nil {
			return nil, fmt.Errorf("stop index %q: %w", window[1], err)
		}
	}
	return catalog.Slice(titles, start, stop), nil
}

func openRankingDB(prefix string, tuning *config.Tuning) (*sql.DB, error) {
	db, err := store.OpenDB(prefix+"ranking.db", tuning.BusyTimeout.Std())
	if err != nil {
		return nil, err
	}
	if err := store.MigrateRankingDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openDataStoreDB(prefix string, tuning *config.Tuning) (*sql.DB, error) {
	db, err := store.OpenDB(prefix+"datastore.db", tuning.BusyTimeout.Std())
	if err != nil {
		return nil, err
	}
	if err := store.MigrateDataStoreDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newBroker builds the credential broker for the selected platform from the
// process environment.
func newBroker(p *Providers, handheld bool) (broker.Broker, error) {
	if handheld {
		env, err := config.LoadHandheldEnv()
		if err != nil {
			return nil, err
		}
		return broker.NewHandheldBroker(env, p.HandheldToken), nil
	}
	env, err := config.LoadAccountEnv()
	if err != nil {
		return nil, err
	}
	return broker.NewAccountBroker(env, p.AccountToken), nil
}

// runStoreMode is the shared body of the object-store harvest commands:
// args are <db-prefix> <catalog> [start [stop]].
func runStoreMode(cmd *cobra.Command, args []string, handheld bool, opts harvest.StoreOptions) error {
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

	db, err := openDataStoreDB(args[0], tuning)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := newBroker(p, handheld)
	if err != nil {
		return err
	}

	coord := harvest.New(p.Dialer, b, tuning, logger, nil, db)
	return coord.RunDataStore(cmd.Context(), titles, opts)
}

// runRankingMode is the shared body of the leaderboard harvest commands.
func runRankingMode(cmd *cobra.Command, args []string, handheld bool) error {
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

	logger, logClose, err := harvest.NewRunLogger(args[0] + "ranking_log.txt")
	if err != nil {
		return err
	}
	defer logClose.Close()

	db, err := openRankingDB(args[0], tuning)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := newBroker(p, handheld)
	if err != nil {
		return err
	}

	coord := harvest.New(p.Dialer, b, tuning, logger, db, nil)
	return coord.RunRanking(cmd.Context(), titles)
}
