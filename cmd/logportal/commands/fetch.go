package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/SpatiumPortae/logportal/cmd/logportal/config"
	"github.com/SpatiumPortae/logportal/cmd/logportal/tui/fetcher"
	"github.com/SpatiumPortae/logportal/internal/file"
	"github.com/SpatiumPortae/logportal/internal/link"
	"github.com/SpatiumPortae/logportal/internal/logfetch"
	"github.com/SpatiumPortae/logportal/internal/monitor"
	"github.com/SpatiumPortae/logportal/internal/semver"
	"github.com/SpatiumPortae/logportal/logportal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ------------------------------------------------------- Fetch -------------------------------------------------------

func Fetch(version string) *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the latest flight log",
		Long:  "The fetch command downloads the most recent log of the vehicle on the link into the output directory.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to viper.
			return bindFlags(cmd, map[string]string{
				"link":       "link",
				"baud":       "baud",
				"output_dir": "output",
				"compress":   "compress",
				"monitor":    "monitor",
				"tui_style":  "tui-style",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			file.RemoveTemporaryFiles(file.RECEIVE_TEMP_FILE_NAME_PREFIX)

			linkAddr := viper.GetString("link")
			if err := link.ValidateAddress(linkAddr); err != nil {
				return fmt.Errorf("%w: (%s) is not a valid link address", err, linkAddr)
			}

			lgr, logFile, err := setupLoggingFromViper("fetch")
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}
			defer lgr.Sync() //nolint:errcheck

			switch viper.GetString("tui_style") {
			case config.StyleRich:
				if err := handleFetchCommand(cmd.Context(), version, lgr); err != nil {
					return fmt.Errorf("running rich fetch command: %w", err)
				}
				return nil
			case config.StyleRaw:
				if err := handleFetchCommandRaw(cmd.Context(), version, lgr); err != nil {
					return fmt.Errorf("running raw fetch command: %w", err)
				}
				return nil
			default:
				return errors.New("invalid tui style provided")
			}
		},
	}
	fetchCmd.Flags().StringP("link", "l", "", linkFlagDesc)
	fetchCmd.Flags().IntP("baud", "b", 0, "Baud rate of serial links")
	fetchCmd.Flags().StringP("output", "o", "", "Directory the fetched log is saved to")
	fetchCmd.Flags().Bool("compress", false, "Store the log compressed (.ulg.gz)")
	fetchCmd.Flags().String("monitor", "", "Serve the transfer status over HTTP on this address, e.g. :8080")
	fetchCmd.Flags().StringP("tui-style", "s", "", tuiStyleFlagDesc)
	return fetchCmd
}

// bindFlags binds the flags of cmd to the viper keys. Flags that were not changed fall
// back to the configured value.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding %s flag: %w", flag, err)
		}
	}
	return nil
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleFetchCommand is the fetch application.
func handleFetchCommand(ctx context.Context, version string, lgr *zap.Logger) error {
	sink := fetcher.NewSink()
	client, hub, err := connect(ctx, lgr, sink)
	if err != nil {
		return err
	}
	defer client.Close()
	defer sink.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	startMonitor(ctx, version, client.Session, hub, lgr)

	program := fetcher.New(ctx, client.Session, sink, fetcher.WithLinkAddress(viper.GetString("link")))
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("running fetcher tui: %w", err)
	}
	fmt.Println("")
	res, err := fetcher.Result(final)
	if err != nil {
		return err
	}
	if res.Outcome == logfetch.Completed && res.Path == "" {
		return errors.New("fetch did not finish")
	}
	return nil
}

func handleFetchCommandRaw(ctx context.Context, version string, lgr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	out := &rawSink{out: os.Stdout}
	client, hub, err := connect(ctx, lgr, out)
	if err != nil {
		return err
	}
	defer client.Close()
	startMonitor(ctx, version, client.Session, hub, lgr)

	res, err := client.Session.Fetch(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("fetching log: %w", err)
	case res.Outcome == logfetch.Empty:
		fmt.Println("The vehicle has no log to offer")
	default:
		fmt.Printf("Saved log %d to %s (%.1f kB/s)\n", res.Entry.ID, res.Path, res.Throughput)
	}
	return nil
}

// connect opens the configured link and attaches a session notifying sinks, the
// logger and the returned monitor hub.
func connect(ctx context.Context, lgr *zap.Logger, sinks ...logfetch.ProgressSink) (*logportal.Client, *monitor.Hub, error) {
	hub := monitor.NewHub()
	sinks = append([]logfetch.ProgressSink{logfetch.LogSink(lgr), hub}, sinks...)
	cfg := logportal.Config{
		Link:      viper.GetString("link"),
		Baud:      viper.GetInt("baud"),
		OutputDir: viper.GetString("output_dir"),
		Compress:  viper.GetBool("compress"),
		Logger:    lgr,
	}
	client, err := logportal.Connect(ctx, &cfg,
		logfetch.WithConfig(config.Session()),
		logfetch.WithProgressSink(logfetch.Sinks(sinks...)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to vehicle: %w", err)
	}
	return client, hub, nil
}

// startMonitor serves the session status until ctx is done, when a monitor address
// is configured.
func startMonitor(ctx context.Context, version string, source monitor.StatusSource, hub *monitor.Hub, lgr *zap.Logger) {
	addr := viper.GetString("monitor")
	if addr == "" {
		return
	}
	ver, err := semver.Parse(version)
	if err != nil {
		lgr.Warn("monitor started without a version", zap.Error(err))
	}
	server := monitor.NewServer(addr, ver, source, hub, viper.GetString("output_dir"), lgr)
	go func() {
		if err := server.Start(ctx); err != nil {
			lgr.Error("monitor stopped", zap.Error(err))
		}
	}()
}

// rawSink prints status lines and every tenth of progress.
type rawSink struct {
	mu   sync.Mutex
	out  io.Writer
	last int
}

func (r *rawSink) Progress(p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p < 0 {
		r.last = 0
		return
	}
	if step := int(p * 10); step > r.last {
		r.last = step
		fmt.Fprintf(r.out, "  %3d%%\n", step*10)
	}
}

func (r *rawSink) Status(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, msg)
}

func (*rawSink) Done(logfetch.Result) {}
