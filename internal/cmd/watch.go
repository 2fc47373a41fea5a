package cmd

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/taskscope/internal/config"
	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/realtime"
	"github.com/Iron-Ham/taskscope/internal/realtime/wsconn"
	"github.com/Iron-Ham/taskscope/internal/tracker"
	"github.com/Iron-Ham/taskscope/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [text]",
	Short: "Search tasks interactively with live updates",
	Long: `Open the interactive search view.

Results are cached per query. While the push channel is connected, task
updates from the service are merged into the view and drop the cached
pages they affect, so the next search fetches fresh results.

Keys:
  /         edit the search text
  1-4       toggle the pending, in_progress, blocked, completed filters
  n/p       next/previous page
  o         flip the sort direction
  s/b/c     start, block or complete the selected task
  r         refresh now
  x         reset the query
  q         quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchNoRealtime bool

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchNoRealtime, "no-realtime", false, "Do not connect the push channel")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	if len(args) == 1 {
		rt.store.SetText(args[0])
	}

	if cfg.Metrics.Enabled {
		srv, err := rt.metrics.Serve(cfg.Metrics.Address, rt.logger)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	var wg conc.WaitGroup
	defer wg.Wait()
	defer cancel()

	if cfg.Realtime.Enabled && !watchNoRealtime {
		bridge, err := newBridge(rt)
		if err != nil {
			return err
		}
		defer func() { _ = bridge.Disconnect() }()

		rc := &reconnector{
			bridge:   bridge,
			connType: cfg.Realtime.ConnectionType,
			creds:    realtime.Credentials{Token: cfg.API.Token},
			channels: cfg.Realtime.Channels,
			delay:    cfg.Realtime.ReconnectDelay(),
			logger:   rt.logger.WithComponent("reconnect"),
		}
		// A failed first attempt is retried by run.
		_ = rc.connect(ctx)
		wg.Go(func() { rc.run(ctx) })
	}

	config.Watch(func(next *config.Config, err error) {
		if err != nil {
			rt.logger.Warn("ignoring invalid config change", "error", err.Error())
			return
		}
		rt.ctrl.SetDebounce(next.Search.Debounce())
		rt.logger.Info("config reloaded", "debounce_ms", next.Search.DebounceMs)
	})

	app := tui.New(tui.Deps{
		Controller:   rt.ctrl,
		Tasks:        rt.tasks,
		Transitioner: rt.client,
		Logger:       rt.logger,
	}, rt.bus, tracker.WithLogger(rt.logger), tracker.WithRecorder(rt.metrics))
	return app.Run(ctx)
}

// newBridge builds the push-channel bridge for rt's collection and store.
func newBridge(rt *runtime) (*realtime.Bridge, error) {
	cfg := rt.cfg
	patterns, err := realtime.CompilePatterns(cfg.Realtime.SubscribePatterns)
	if err != nil {
		return nil, err
	}
	dialer, err := wsconn.NewDialer(cfg.Realtime.ResolvedURL(cfg.API.BaseURL), wsconn.WithLogger(rt.logger))
	if err != nil {
		return nil, err
	}
	return realtime.New(dialer, rt.tasks, rt.store, rt.bus,
		realtime.WithLogger(rt.logger),
		realtime.WithRecorder(rt.metrics),
		realtime.WithTrackerRecorder(rt.metrics),
		realtime.WithChannelPatterns(patterns)), nil
}

// reconnector keeps a bridge connected, joining the configured channels
// after every successful connect.
type reconnector struct {
	bridge   *realtime.Bridge
	connType string
	creds    realtime.Credentials
	channels []string
	delay    time.Duration
	logger   *logging.Logger
}

func (r *reconnector) connect(ctx context.Context) error {
	if err := r.bridge.Connect(ctx, r.connType, r.creds); err != nil {
		return err
	}
	for _, ch := range r.channels {
		if err := r.bridge.JoinChannel(ch); err != nil {
			r.logger.Warn("failed to join channel", "channel", ch, "error", err.Error())
		}
	}
	return nil
}

// run reconnects after each retryable failure reported by the bridge until
// ctx is done. A zero delay disables reconnecting.
func (r *reconnector) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-r.bridge.Err():
			if r.delay <= 0 || !errors.IsRetryable(err) {
				r.logger.Warn("not reconnecting", "error", err.Error())
				continue
			}
			timer := time.NewTimer(r.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			r.logger.Info("reconnecting", "connection_type", r.connType)
			// Failures come back through Err.
			_ = r.connect(ctx)
		}
	}
}
