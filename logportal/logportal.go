// Package logportal fetches the latest flight log from a vehicle reachable over a
// MAVLink link.
package logportal

import (
	"context"
	"os"
	"sync"

	"github.com/SpatiumPortae/logportal/internal/file"
	"github.com/SpatiumPortae/logportal/internal/link"
	"github.com/SpatiumPortae/logportal/internal/logfetch"
	"github.com/SpatiumPortae/logportal/internal/ulog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client owns the link to a vehicle and the session driving transfers over it.
type Client struct {
	Session *logfetch.Session

	link   *link.Link
	cancel context.CancelFunc
	wg     sync.WaitGroup
	err    error
}

// Connect opens the link described by the config and starts dispatching inbound
// messages to a new session. The provided config is merged with the default config,
// opts are applied after the options derived from it.
func Connect(ctx context.Context, config *Config, opts ...logfetch.Option) (*Client, error) {
	merged := MergeConfig(defaultConfig, config)
	lgr := merged.Logger
	if lgr == nil {
		lgr = zap.NewNop()
	}

	conn, err := link.Dial(merged.Link, merged.Baud)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", merged.Link)
	}
	l := link.New(conn, link.WithLogger(lgr))

	cfg := logfetch.DefaultConfig()
	cfg.TargetSystem = merged.TargetSystem
	cfg.TargetComponent = merged.TargetComponent
	store := file.Store{TempDir: os.TempDir(), OutDir: merged.OutputDir, Compress: merged.Compress}
	sessionOpts := append([]logfetch.Option{
		logfetch.WithConfig(cfg),
		logfetch.WithDecoder(ulog.Validator{}),
		logfetch.WithLogger(lgr),
	}, opts...)

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		Session: logfetch.New(l, store, sessionOpts...),
		link:    l,
		cancel:  cancel,
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := l.Listen(ctx, c.Session.Handle); err != nil && !errors.Is(err, context.Canceled) {
			lgr.Warn("link closed", zap.Error(err))
			c.err = err
		}
	}()
	return c, nil
}

// Close aborts any running transfer and closes the link.
func (c *Client) Close() error {
	c.Session.Abort()
	c.cancel()
	c.wg.Wait()
	if err := c.link.Close(); err != nil {
		return err
	}
	return c.err
}

// FetchLatest downloads the latest log of the vehicle into the configured output
// directory. The provided config is merged with the default config.
func FetchLatest(ctx context.Context, config *Config, opts ...logfetch.Option) (logfetch.Result, error) {
	c, err := Connect(ctx, config, opts...)
	if err != nil {
		return logfetch.Result{}, err
	}
	defer c.Close()
	return c.Session.Fetch(ctx)
}
