package main

import (
	"fmt"
	"os"

	"github.com/SpatiumPortae/logportal/cmd/logportal/commands"
	"github.com/SpatiumPortae/logportal/cmd/logportal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X main.version=vX.Y.Z".
var version = "v0.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootCmd is the top level `logportal` command on which the other subcommands are attached to.
func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "logportal",
		Short:        "logportal downloads the latest flight log from a vehicle over MAVLink.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(); err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}
			if err := viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose")); err != nil {
				return fmt.Errorf("binding verbose flag: %w", err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information to a file on the format `.logportal-[command].log` in the current directory")

	cmd.AddCommand(commands.Fetch(version))
	cmd.AddCommand(commands.Simulate())
	cmd.AddCommand(commands.Config())
	cmd.AddCommand(commands.Version(version))
	return cmd
}
