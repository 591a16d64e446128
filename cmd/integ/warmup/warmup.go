package cmd

import (
	"os"
	"os/signal"

	"github.com/rheldev6-ship-it/integ/internal/app"
	"github.com/rheldev6-ship-it/integ/internal/config"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "warmup",
	Short: "Download all pinned runtime versions ahead of first use",
	RunE: func(cmd *cobra.Command, args []string) error {
		integ, err := app.NewApp(config.GetConfig())
		if err != nil {
			return err
		}
		defer integ.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return integ.Warmup(ctx)
	},
}
