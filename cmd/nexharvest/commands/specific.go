package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nex-archive/nexharvest/internal/broker"
	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/harvest"
)

// specificTarget parses the explicit server coordinates the _specific modes
// take instead of a catalog: the operator already holds a ticket.
func specificTarget(args []string) (broker.StaticBroker, catalog.Title, error) {
	port, err := strconv.Atoi(args[2])
	if err != nil {
		return broker.StaticBroker{}, catalog.Title{}, fmt.Errorf("port %q: %w", args[2], err)
	}
	pid, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return broker.StaticBroker{}, catalog.Title{}, fmt.Errorf("pid %q: %w", args[3], err)
	}
	version, err := strconv.Atoi(args[6])
	if err != nil {
		return broker.StaticBroker{}, catalog.Title{}, fmt.Errorf("version %q: %w", args[6], err)
	}
	aid, err := strconv.ParseUint(args[7], 16, 64)
	if err != nil {
		return broker.StaticBroker{}, catalog.Title{}, fmt.Errorf("game id %q: %w", args[7], err)
	}

	b := broker.StaticBroker{
		Host:     args[1],
		Port:     port,
		PID:      pid,
		Password: args[4],
	}
	title := catalog.Title{
		AID:          aid,
		Name:         args[7],
		Key:          args[5],
		Nex:          [][3]int{{version / 10000, (version / 100) % 100, version % 100}},
		HasDatastore: true,
	}
	return b, title, nil
}

func runSpecificMode(cmd *cobra.Command, args []string, opts harvest.StoreOptions) error {
	p, err := providers()
	if err != nil {
		return err
	}
	tuning, err := loadTuningFile()
	if err != nil {
		return err
	}
	b, title, err := specificTarget(args)
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

	coord := harvest.New(p.Dialer, b, tuning, logger, nil, db)
	return coord.RunDataStore(cmd.Context(), []catalog.Title{title}, opts)
}

var specificCmd = &cobra.Command{
	Use:   "datastore_specific <db-prefix> <host> <port> <pid> <password> <key> <version> <game-id>",
	Short: "Harvest one object store from explicit server coordinates",
	Long: `Run the object-store harvest against a single server named on the command
line, bypassing the catalog and the account exchange. game-id is the 16-digit
hex title id used to key the database rows.`,
	Args: cobra.ExactArgs(8),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpecificMode(cmd, args, harvest.StoreOptions{})
	},
}

var useDBSpecificCmd = &cobra.Command{
	Use:   "datastore_use_db_specific <db-prefix> <host> <port> <pid> <password> <key> <version> <game-id>",
	Short: "Drain pending downloads of one store from explicit server coordinates",
	Args:  cobra.ExactArgs(8),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpecificMode(cmd, args, harvest.StoreOptions{ResumeFromDB: true})
	},
}
