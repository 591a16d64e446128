package cmd

import (
	"fmt"

	"github.com/rheldev6-ship-it/integ/internal/app"
	"github.com/rheldev6-ship-it/integ/internal/config"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "list",
	Short: "List cached runtime versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		integ, err := app.NewApp(config.GetConfig())
		if err != nil {
			return err
		}
		defer integ.Close()

		entries := integ.ListCached()
		if len(entries) == 0 {
			fmt.Println("no runtime versions installed")
			return nil
		}

		for _, e := range entries {
			marker := " "
			if e.IsCurrent {
				marker = "*"
			}
			fmt.Printf("%s %-20s installed %s\n", marker, e.VersionID,
				e.InstalledAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}
