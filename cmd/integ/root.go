package cmd

import (
	"fmt"
	"os"
	"strings"

	// Subcommands
	evict "github.com/rheldev6-ship-it/integ/cmd/integ/evict"
	list "github.com/rheldev6-ship-it/integ/cmd/integ/list"
	resolve "github.com/rheldev6-ship-it/integ/cmd/integ/resolve"
	warmup "github.com/rheldev6-ship-it/integ/cmd/integ/warmup"
	"github.com/rheldev6-ship-it/integ/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const integPrefix = "INTEG"

var Cmd = &cobra.Command{
	Use:   "integ",
	Short: "Integ CLI",
	Long:  "Manages the compatibility runtimes Integ uses to run games on Linux",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(integPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`,
			`.`, `_`,
		))
		viper.AutomaticEnv()

		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		return config.LoadEnvAndConfigFiles()
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("integ-home", "", "Path to the integ home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")

	viper.BindPFlag("integ_home", pflags.Lookup("integ-home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	Cmd.AddCommand(resolve.Cmd, list.Cmd, evict.Cmd, warmup.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
