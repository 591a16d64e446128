package cmd

import (
	"fmt"

	"github.com/rheldev6-ship-it/integ/internal/app"
	"github.com/rheldev6-ship-it/integ/internal/config"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "evict <version-id>",
	Short: "Remove a cached runtime version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		integ, err := app.NewApp(config.GetConfig())
		if err != nil {
			return err
		}
		defer integ.Close()

		if err := integ.Evict(args[0]); err != nil {
			return err
		}

		fmt.Printf("evicted %s\n", args[0])
		return nil
	},
}
