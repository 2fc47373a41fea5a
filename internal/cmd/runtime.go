package cmd

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/taskscope/internal/api"
	"github.com/Iron-Ham/taskscope/internal/config"
	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/metrics"
	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/task"
)

// runtime holds the components shared by the commands that talk to the
// task service.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	client  *api.Client
	bus     *event.Bus
	tasks   *task.Collection
	store   *search.Store
	ctrl    *search.Controller
}

// newRuntime wires the client, task collection, store and controller from
// cfg. Callers must Close the result.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		l, err := logging.NewLogger(cfg.Logging.ResolvedDir(), cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to open log: %w", err)
		}
		logger = l
	}

	client, err := api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.Timeout()),
		api.WithToken(cfg.API.Token),
		api.WithLogger(logger))
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	m := metrics.New(metrics.WithRuntimeCollectors())
	bus := event.NewBus(event.WithLogger(logger))
	tasks := task.NewCollection(task.WithBus(bus), task.WithLogger(logger))
	store := search.NewStore(
		search.WithBus(bus),
		search.WithLogger(logger),
		search.WithPolicy(cfg.Search.Policy()),
		search.WithRecorder(m),
		search.WithDefaults(cfg.Search.DefaultQuery()))
	ctrl := search.NewController(store, client,
		search.WithDebounce(cfg.Search.Debounce()),
		search.WithControllerLogger(logger),
		search.WithControllerRecorder(m),
		search.WithTasks(tasks),
		search.WithBaseContext(ctx))

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		client:  client,
		bus:     bus,
		tasks:   tasks,
		store:   store,
		ctrl:    ctrl,
	}, nil
}

// Close stops pending searches and closes the log file.
func (r *runtime) Close() {
	r.ctrl.Close()
	_ = r.logger.Close()
}
