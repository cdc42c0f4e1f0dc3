package commands

import (
	"github.com/spf13/cobra"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/harvest"
)

var overlapCmd = &cobra.Command{
	Use:   "check_overlap <catalog-a> <catalog-b>",
	Short: "Print the title ids present in both catalogs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := catalog.Load(args[0])
		if err != nil {
			return err
		}
		b, err := catalog.Load(args[1])
		if err != nil {
			return err
		}

		logger, logClose, err := harvest.NewRunLogger("")
		if err != nil {
			return err
		}
		defer logClose.Close()

		coord := harvest.New(nil, nil, nil, logger, nil, nil)
		coord.CheckOverlap(a, b)
		return nil
	},
}
