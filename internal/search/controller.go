package search

import (
	"context"
	"time"

	"github.com/Iron-Ham/taskscope/internal/debounce"
	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

// Fetcher runs a search against the task service.
type Fetcher interface {
	Search(ctx context.Context, q Query) (Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, q Query) (Response, error)

// Search calls f.
func (f FetcherFunc) Search(ctx context.Context, q Query) (Response, error) {
	return f(ctx, q)
}

// Result is the outcome of one debounced search execution.
type Result struct {
	Query     Query
	Key       string
	Response  Response
	FromCache bool
	Seq       uint64
}

// ControllerOption configures a Controller.
type ControllerOption func(*controllerConfig)

type controllerConfig struct {
	wait     time.Duration
	logger   *logging.Logger
	tasks    *task.Collection
	recorder Recorder
	ctx      context.Context
}

// WithDebounce sets the coalescing window for query changes.
func WithDebounce(d time.Duration) ControllerOption {
	return func(c *controllerConfig) {
		c.wait = d
	}
}

// WithControllerLogger sets the controller's logger.
func WithControllerLogger(logger *logging.Logger) ControllerOption {
	return func(c *controllerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTasks seeds every fetched page into the given task collection so
// realtime updates can be validated against the latest known status.
func WithTasks(tasks *task.Collection) ControllerOption {
	return func(c *controllerConfig) {
		c.tasks = tasks
	}
}

// WithControllerRecorder sets the metrics recorder for search executions.
func WithControllerRecorder(r Recorder) ControllerOption {
	return func(c *controllerConfig) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithBaseContext sets the parent context of every fetch.
func WithBaseContext(ctx context.Context) ControllerOption {
	return func(c *controllerConfig) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// Controller drives searches from query changes. Query mutations go to the
// Store; each mutation schedules a debounced execution that serves from the
// cache or fetches and caches on a miss. Results from an execution that was
// overtaken by a newer one are discarded and never applied.
type Controller struct {
	store    *Store
	fetcher  Fetcher
	tasks    *task.Collection
	logger   *logging.Logger
	recorder Recorder
	deb      *debounce.Debouncer[Query, Result]
}

// NewController creates a controller. It panics if store or fetcher is nil.
func NewController(store *Store, fetcher Fetcher, opts ...ControllerOption) *Controller {
	if store == nil {
		panic("search.NewController: store must not be nil")
	}
	if fetcher == nil {
		panic("search.NewController: fetcher must not be nil")
	}
	cfg := controllerConfig{
		wait:     debounce.DefaultWait,
		logger:   logging.NopLogger(),
		recorder: nopRecorder{},
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Controller{
		store:    store,
		fetcher:  fetcher,
		tasks:    cfg.tasks,
		logger:   cfg.logger.WithComponent("search-controller"),
		recorder: cfg.recorder,
	}
	c.deb = debounce.New(c.execute,
		debounce.WithWait(cfg.wait),
		debounce.WithLogger(cfg.logger),
		debounce.WithContext(cfg.ctx))
	return c
}

// Store returns the controller's store.
func (c *Controller) Store() *Store { return c.store }

// SetText changes the free-text term, returns to page 1 and schedules a
// search.
func (c *Controller) SetText(text string) *debounce.Handle[Result] {
	c.store.SetText(text)
	c.store.SetPage(1)
	return c.Trigger()
}

// SetFilter changes the filter, returns to page 1 and schedules a search.
func (c *Controller) SetFilter(f TaskFilter) *debounce.Handle[Result] {
	c.store.SetFilter(f)
	c.store.SetPage(1)
	return c.Trigger()
}

// ToggleStatus adds or removes a status from the filter.
func (c *Controller) ToggleStatus(s taskstate.State) *debounce.Handle[Result] {
	f := c.store.Filter()
	kept := f.Status[:0]
	found := false
	for _, existing := range f.Status {
		if existing == s {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		kept = append(kept, s)
	}
	f.Status = kept
	return c.SetFilter(f)
}

// SetSort changes the sort and schedules a search.
func (c *Controller) SetSort(sc SortConfig) *debounce.Handle[Result] {
	c.store.SetSort(sc)
	return c.Trigger()
}

// SetPage moves to page n and schedules a search.
func (c *Controller) SetPage(n int) *debounce.Handle[Result] {
	c.store.SetPage(n)
	return c.Trigger()
}

// Reset restores the default query and schedules a search.
func (c *Controller) Reset() *debounce.Handle[Result] {
	c.store.Reset()
	return c.Trigger()
}

// Trigger schedules a search for the store's current query.
func (c *Controller) Trigger() *debounce.Handle[Result] {
	return c.deb.Call(c.store.Query())
}

// Refresh runs the pending search now, or schedules and runs one for the
// current query, and waits for its result.
func (c *Controller) Refresh(ctx context.Context) (Result, error) {
	h := c.deb.Call(c.store.Query())
	c.deb.Flush()
	return h.Wait(ctx)
}

// SetDebounce changes the coalescing window for subsequent query changes.
func (c *Controller) SetDebounce(d time.Duration) {
	c.deb.SetWait(d)
}

// Debounce returns the current coalescing window.
func (c *Controller) Debounce() time.Duration {
	return c.deb.Wait()
}

// Close drops a pending search. An in-flight fetch is allowed to finish but
// its result is not applied.
func (c *Controller) Close() {
	c.deb.Cancel()
}

func (c *Controller) execute(ctx context.Context, q Query) (Result, error) {
	seq := debounce.SequenceFrom(ctx)
	key := CacheKey(q)
	res := Result{Query: q, Key: key, Seq: seq}

	if resp, ok := c.store.GetFromCache(q); ok {
		res.Response = resp
		res.FromCache = true
		return c.settle(res, nil)
	}

	gen := c.store.Generation()
	start := time.Now()
	resp, err := c.fetcher.Search(ctx, q)
	c.recorder.SearchCompleted(time.Since(start), err)
	if err != nil {
		// Cached results and task state are left as they were.
		c.logger.Warn("search failed",
			"seq", seq,
			"error", err.Error(),
			"retryable", errors.IsRetryable(err))
		return c.settle(res, err)
	}

	if resp.TotalPages == 0 && resp.TotalItems > 0 {
		resp.TotalPages = CalculateTotalPages(resp.TotalItems, q.Pagination.PageSize)
	}
	if !c.store.setInCacheAt(q, resp, gen) {
		c.logger.Debug("skipped caching result fetched across an invalidation", "seq", seq)
	}
	res.Response = resp
	return c.settle(res, nil)
}

// settle applies res if it is still the latest execution.
func (c *Controller) settle(res Result, err error) (Result, error) {
	if !c.deb.IsLatest(res.Seq) {
		latest := c.deb.Sequence()
		c.recorder.SearchDiscarded()
		c.logger.Debug("discarding stale search result", "seq", res.Seq, "latest", latest)
		c.store.Bus().Publish(event.NewSearchDiscardedEvent(res.Seq, latest))
		return res, errors.ErrStaleResult
	}

	if err != nil {
		c.store.Bus().Publish(event.NewSearchCompletedEvent(res.Key, res.Seq, false, 0, err.Error()))
		return res, err
	}

	if CacheKey(c.store.Query()) == res.Key {
		c.store.applyTotals(res.Response.TotalItems)
	}
	if c.tasks != nil && !res.FromCache {
		c.tasks.Seed(res.Response.Tasks)
	}
	c.store.Bus().Publish(event.NewSearchCompletedEvent(res.Key, res.Seq, res.FromCache, res.Response.TotalItems, ""))
	return res, nil
}
