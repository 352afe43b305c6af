package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/SpatiumPortae/logportal/internal/link"
	"github.com/SpatiumPortae/logportal/internal/logger"
	"github.com/SpatiumPortae/logportal/internal/vehicle"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func Simulate() *cobra.Command {
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a directory of logs as a vehicle",
		Long: "The simulate command answers log requests on the link with the logs of a directory, " +
			"newest last, so that fetch can be tried without hardware.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			linkAddr, _ := flags.GetString("link")
			dir, _ := flags.GetString("dir")
			baud, _ := flags.GetInt("baud")
			systemID, _ := flags.GetUint8("system-id")
			drop, _ := flags.GetFloat64("drop")
			interval, _ := flags.GetDuration("interval")

			if err := link.ValidateAddress(linkAddr); err != nil {
				return fmt.Errorf("%w: (%s) is not a valid link address", err, linkAddr)
			}
			if drop < 0 || drop >= 1 {
				return fmt.Errorf("drop rate must be in [0, 1), got %v", drop)
			}
			return handleSimulateCommand(cmd.Context(), simulateOptions{
				link:     linkAddr,
				dir:      dir,
				baud:     baud,
				systemID: systemID,
				drop:     drop,
				interval: interval,
			})
		},
	}
	simulateCmd.Flags().StringP("link", "l", "udpin:0.0.0.0:14550", linkFlagDesc)
	simulateCmd.Flags().StringP("dir", "d", ".", "Directory of .ulg logs to serve")
	simulateCmd.Flags().IntP("baud", "b", 57600, "Baud rate of serial links")
	simulateCmd.Flags().Uint8("system-id", 1, "MAVLink system id of the simulated vehicle")
	simulateCmd.Flags().Float64("drop", 0, "Fraction of LOG_DATA messages to drop")
	simulateCmd.Flags().Duration("interval", 0, "Delay between LOG_DATA messages")
	return simulateCmd
}

type simulateOptions struct {
	link     string
	dir      string
	baud     int
	systemID uint8
	drop     float64
	interval time.Duration
}

func handleSimulateCommand(ctx context.Context, opts simulateOptions) error {
	lgr := logger.New()
	defer lgr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	catalog, err := vehicle.NewCatalog(opts.dir, lgr)
	if err != nil {
		return fmt.Errorf("reading log directory: %w", err)
	}
	conn, err := link.Dial(opts.link, opts.baud)
	if err != nil {
		return fmt.Errorf("opening link: %w", err)
	}
	l := link.New(conn, link.WithSystemID(opts.systemID), link.WithComponentID(1), link.WithLogger(lgr))
	defer l.Close()

	vehicleOpts := []vehicle.Option{
		vehicle.WithSystemID(opts.systemID),
		vehicle.WithChunkInterval(opts.interval),
		vehicle.WithLogger(lgr),
	}
	if opts.drop > 0 {
		vehicleOpts = append(vehicleOpts, vehicle.WithDropRate(opts.drop, time.Now().UnixNano()))
	}
	v := vehicle.New(catalog, l, vehicleOpts...)
	defer v.Close()

	go func() {
		if err := catalog.Watch(ctx); err != nil {
			lgr.Warn("not watching log directory", zap.Error(err))
		}
	}()

	lgr.Info("serving logs",
		zap.String("link", opts.link),
		zap.String("dir", opts.dir),
		zap.Int("logs", len(catalog.Logs())),
	)
	if err := l.Listen(ctx, v.Handle); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listening on link: %w", err)
	}
	stats := l.Stats()
	lgr.Info("simulator stopped", zap.Int("sent", stats.Sent), zap.Int("received", stats.Received), zap.Int("dropped", stats.Dropped))
	return nil
}
