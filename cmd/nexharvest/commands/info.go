package commands

import (
	"github.com/spf13/cobra"

	"github.com/nex-archive/nexharvest/internal/harvest"
)

func runGetInfoMode(cmd *cobra.Command, args []string, handheld bool) error {
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

	b, err := newBroker(p, handheld)
	if err != nil {
		return err
	}

	coord := harvest.New(p.Dialer, b, tuning, logger, nil, nil)
	return coord.RunGetInfo(cmd.Context(), titles)
}

var getInfoCmd = &cobra.Command{
	Use:   "datastore_get_info <db-prefix> <catalog> [start [stop]]",
	Short: "Survey object stores without persisting anything",
	Long: `Log each datastore-capable title's search support, live data-id range
endpoints, and which informational verbs its store answers. Writes only the
run log; no database rows.`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGetInfoMode(cmd, args, false)
	},
}

var getInfo3DSCmd = &cobra.Command{
	Use:   "datastore_get_info_3ds <db-prefix> <catalog> [start [stop]]",
	Short: "Survey object stores without persisting anything (handheld flow)",
	Args:  cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGetInfoMode(cmd, args, true)
	},
}
