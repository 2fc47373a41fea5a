package search

import (
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/task"
)

// Slice names a part of the query that can be observed independently.
type Slice string

const (
	SliceText       Slice = "text"
	SliceFilter     Slice = "filter"
	SliceSort       Slice = "sort"
	SlicePagination Slice = "pagination"
)

// InvalidationPolicy selects how an accepted task change invalidates cached
// results.
type InvalidationPolicy string

const (
	// InvalidateAll drops the whole cache on any accepted change.
	InvalidateAll InvalidationPolicy = "all"

	// InvalidateScoped drops only entries whose filter could match the task
	// before or after the change, plus every free-text entry.
	InvalidateScoped InvalidationPolicy = "scoped"
)

// IsValid reports whether p is a known policy.
func (p InvalidationPolicy) IsValid() bool {
	return p == InvalidateAll || p == InvalidateScoped
}

// Invalidation reasons reported in CacheInvalidatedEvent.
const (
	ReasonClear      = "clear"
	ReasonTaskChange = "task_change"
)

// Recorder receives cache and search measurements, typically to feed
// metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	CacheHit()
	CacheMiss()
	CacheInvalidated(reason string, removed int)
	CacheSize(n int)
	SearchCompleted(d time.Duration, err error)
	SearchDiscarded()
}

// CacheStats summarizes cache activity since the store was created.
type CacheStats struct {
	Entries       int
	Hits          uint64
	Misses        uint64
	Invalidations uint64
}

// Option configures a Store.
type Option func(*Store)

// WithBus sets the event bus that receives query and cache events.
func WithBus(bus *event.Bus) Option {
	return func(s *Store) {
		if bus != nil {
			s.bus = bus
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPolicy sets the invalidation policy. Unknown policies are ignored.
func WithPolicy(p InvalidationPolicy) Option {
	return func(s *Store) {
		if p.IsValid() {
			s.policy = p
		}
	}
}

// WithRecorder sets the store's metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithDefaults overrides the query a store starts with and resets to.
func WithDefaults(q Query) Option {
	return func(s *Store) {
		s.defaults = normalizeQuery(q)
	}
}

type cacheEntry struct {
	query    Query
	response Response
	storedAt time.Time
}

// Store is the single source of truth for the active query and its result
// cache. The store performs no I/O. Setters are total: inputs are
// normalized, never rejected.
//
// Every accessor returns a copy. Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	query    Query
	defaults Query
	cache    map[string]cacheEntry
	gen      uint64 // bumped on every invalidation
	stats    CacheStats

	policy   InvalidationPolicy
	bus      *event.Bus
	logger   *logging.Logger
	recorder Recorder
}

// NewStore creates a store holding the default query and an empty cache.
func NewStore(opts ...Option) *Store {
	s := &Store{
		defaults: DefaultQuery(),
		cache:    make(map[string]cacheEntry),
		policy:   InvalidateAll,
		bus:      event.NewBus(),
		logger:   logging.NopLogger(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("search")
	s.query = s.defaults.Clone()
	return s
}

// Bus returns the event bus the store publishes to.
func (s *Store) Bus() *event.Bus { return s.bus }

// Policy returns the invalidation policy.
func (s *Store) Policy() InvalidationPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// -----------------------------------------------------------------------------
// Query state
// -----------------------------------------------------------------------------

// Query returns a copy of the full active query.
func (s *Store) Query() Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query.Clone()
}

// Text returns the active free-text term.
func (s *Store) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query.Text
}

// Filter returns a copy of the active filter.
func (s *Store) Filter() TaskFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query.Filter.Clone()
}

// Sort returns the active sort.
func (s *Store) Sort() SortConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query.Sort
}

// Pagination returns the active pagination.
func (s *Store) Pagination() Pagination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query.Pagination
}

// SetText replaces the free-text term.
func (s *Store) SetText(text string) {
	s.mu.Lock()
	s.query.Text = text
	s.mu.Unlock()
	s.bus.Publish(event.NewQueryChangedEvent(string(SliceText)))
}

// SetFilter replaces the filter. Nil lists are stored as empty lists.
func (s *Store) SetFilter(f TaskFilter) {
	s.mu.Lock()
	s.query.Filter = f.Clone()
	s.mu.Unlock()
	s.bus.Publish(event.NewQueryChangedEvent(string(SliceFilter)))
}

// SetSort replaces the sort. An empty field or unknown direction falls back
// to the default for that part.
func (s *Store) SetSort(sc SortConfig) {
	if sc.Field == "" {
		sc.Field = DefaultSortField
	}
	if !sc.Direction.IsValid() {
		sc.Direction = Desc
	}
	s.mu.Lock()
	s.query.Sort = sc
	s.mu.Unlock()
	s.bus.Publish(event.NewQueryChangedEvent(string(SliceSort)))
}

// SetPagination replaces the pagination. The page is clamped into
// [1, max(TotalPages, 1)] and a non-positive page size becomes the default.
func (s *Store) SetPagination(p Pagination) {
	s.mu.Lock()
	s.query.Pagination = p.normalize()
	s.mu.Unlock()
	s.bus.Publish(event.NewQueryChangedEvent(string(SlicePagination)))
}

// SetPage moves to page n of the current result set, clamped.
func (s *Store) SetPage(n int) {
	s.mu.Lock()
	p := s.query.Pagination
	p.Page = n
	s.query.Pagination = p.normalize()
	s.mu.Unlock()
	s.bus.Publish(event.NewQueryChangedEvent(string(SlicePagination)))
}

// applyTotals records a response's totals against the active pagination.
func (s *Store) applyTotals(totalItems int) {
	s.mu.Lock()
	s.query.Pagination = s.query.Pagination.WithTotals(totalItems)
	s.mu.Unlock()
	s.bus.Publish(event.NewQueryChangedEvent(string(SlicePagination)))
}

// Reset restores every query slice to its default. The cache is left as is;
// use ClearCache to drop it.
func (s *Store) Reset() {
	s.mu.Lock()
	s.query = s.defaults.Clone()
	s.mu.Unlock()
	for _, sl := range []Slice{SliceText, SliceFilter, SliceSort, SlicePagination} {
		s.bus.Publish(event.NewQueryChangedEvent(string(sl)))
	}
}

// OnChange calls fn with the full query whenever the given slice changes.
// It returns a function that removes the subscription.
func (s *Store) OnChange(slice Slice, fn func(Query)) (unsubscribe func()) {
	id := s.bus.Subscribe(event.TypeQueryChanged, func(e event.Event) {
		if qc, ok := e.(event.QueryChangedEvent); ok && qc.Slice == string(slice) {
			fn(s.Query())
		}
	})
	return func() { s.bus.Unsubscribe(id) }
}

// -----------------------------------------------------------------------------
// Cache
// -----------------------------------------------------------------------------

// CacheKey returns the canonical key for q.
func (s *Store) CacheKey(q Query) string {
	return CacheKey(q)
}

// SetInCache stores resp under the canonical key of q.
func (s *Store) SetInCache(q Query, resp Response) {
	s.mu.Lock()
	s.putLocked(q, resp)
	n := len(s.cache)
	s.mu.Unlock()
	s.recorder.CacheSize(n)
}

// Generation returns the invalidation generation. It changes whenever cache
// entries are dropped.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// setInCacheAt stores resp only if no invalidation happened since gen was
// read. It keeps a fetch that raced with a task change from caching a
// pre-change result.
func (s *Store) setInCacheAt(q Query, resp Response, gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.putLocked(q, resp)
	n := len(s.cache)
	s.mu.Unlock()
	s.recorder.CacheSize(n)
	return true
}

func (s *Store) putLocked(q Query, resp Response) {
	s.cache[CacheKey(q)] = cacheEntry{
		query:    q.Clone(),
		response: resp.Clone(),
		storedAt: time.Now(),
	}
	s.stats.Entries = len(s.cache)
}

// GetFromCache returns the cached response for q. A miss is not an error.
func (s *Store) GetFromCache(q Query) (Response, bool) {
	key := CacheKey(q)

	s.mu.Lock()
	entry, ok := s.cache[key]
	if ok {
		s.stats.Hits++
	} else {
		s.stats.Misses++
	}
	s.mu.Unlock()

	if !ok {
		s.recorder.CacheMiss()
		return Response{}, false
	}
	s.recorder.CacheHit()
	return entry.response.Clone(), true
}

// ClearCache drops every entry and returns how many were removed. The query
// state is not touched.
func (s *Store) ClearCache() int {
	return s.clear(ReasonClear, "")
}

// InvalidateTask drops the entries an accepted task change could affect,
// according to the store's policy, and returns how many were removed.
func (s *Store) InvalidateTask(ch task.Change) int {
	if s.Policy() == InvalidateAll {
		return s.clear(ReasonTaskChange, ch.TaskID)
	}

	s.mu.Lock()
	removed := 0
	for key, entry := range s.cache {
		if affects(entry.query, ch) {
			delete(s.cache, key)
			removed++
		}
	}
	s.gen++
	s.stats.Invalidations++
	s.stats.Entries = len(s.cache)
	n := len(s.cache)
	s.mu.Unlock()

	s.afterInvalidation(ReasonTaskChange, ch.TaskID, removed, n)
	return removed
}

func (s *Store) clear(reason, taskID string) int {
	s.mu.Lock()
	removed := len(s.cache)
	s.cache = make(map[string]cacheEntry)
	s.gen++
	s.stats.Invalidations++
	s.stats.Entries = 0
	s.mu.Unlock()

	s.afterInvalidation(reason, taskID, removed, 0)
	return removed
}

func (s *Store) afterInvalidation(reason, taskID string, removed, size int) {
	s.recorder.CacheInvalidated(reason, removed)
	s.recorder.CacheSize(size)
	s.logger.Debug("cache invalidated",
		"reason", reason,
		"task_id", taskID,
		"removed", removed)
	s.bus.Publish(event.NewCacheInvalidatedEvent(reason, taskID, removed))
}

// CacheLen returns the number of cached entries.
func (s *Store) CacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// CacheStats returns a snapshot of the cache counters.
func (s *Store) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// String implements fmt.Stringer for debugging.
func (s *Store) String() string {
	q := s.Query()
	return fmt.Sprintf("search.Store{text=%q page=%d/%d entries=%d}",
		q.Text, q.Pagination.Page, q.Pagination.TotalPages, s.CacheLen())
}

func normalizeQuery(q Query) Query {
	q = q.Clone()
	if q.Sort.Field == "" {
		q.Sort.Field = DefaultSortField
	}
	if !q.Sort.Direction.IsValid() {
		q.Sort.Direction = Desc
	}
	q.Pagination = q.Pagination.normalize()
	return q
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()                            {}
func (nopRecorder) CacheMiss()                           {}
func (nopRecorder) CacheInvalidated(string, int)         {}
func (nopRecorder) CacheSize(int)                        {}
func (nopRecorder) SearchCompleted(time.Duration, error) {}
func (nopRecorder) SearchDiscarded()                     {}
