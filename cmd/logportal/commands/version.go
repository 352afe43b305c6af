package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/SpatiumPortae/logportal/internal/semver"
	"github.com/spf13/cobra"
)

func Version(version string) *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Display the installed version of logportal",
		Long: "The version command displays the installed version. With --monitor it also " +
			"reports the version of the logportal serving the monitor on that address.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			addr, _ := cmd.Flags().GetString("monitor")
			if addr == "" {
				return nil
			}
			ver, err := semver.Parse(version)
			if err != nil {
				return fmt.Errorf("parsing version: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			monitorVer, err := semver.FetchVersion(ctx, addr)
			if err != nil {
				return fmt.Errorf("fetching version from monitor: %w", err)
			}
			fmt.Printf("monitor (%s): %s\n", addr, monitorVer)
			switch ver.Compare(monitorVer) {
			case semver.CompareNewMajor, semver.CompareOldMajor:
				return fmt.Errorf("incompatible version %s -> %s", ver, monitorVer)
			}
			return nil
		},
	}
	versionCmd.Flags().String("monitor", "", "Address of a running monitor, e.g. localhost:8080")
	return versionCmd
}
