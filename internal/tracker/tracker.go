package tracker

import (
	"fmt"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/logging"
)

// Common resource kinds.
const (
	KindSubscription = "subscription"
	KindSocket       = "socket"
	KindHandler      = "handler"
	KindCompute      = "compute"
)

// Metadata is free-form observability data attached to a tracked resource.
type Metadata map[string]any

// Recorder receives acquire and release notifications, typically to feed
// metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	ResourceAcquired(kind string)
	ResourceReleased(kind string)
	ComputeRecorded(kind string, d time.Duration)
}

// Option configures a Scope.
type Option func(*Scope)

// WithLogger sets the scope's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scope) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the scope's acquire/release recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scope) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Stats summarizes a scope's activity.
type Stats struct {
	Acquired int
	Released int
	Computes int
}

// Outstanding returns the number of resources acquired but not yet released.
func (s Stats) Outstanding() int {
	return s.Acquired - s.Released
}

// Info is a read-only snapshot of a tracked resource.
type Info struct {
	ID         string
	Kind       string
	Metadata   Metadata
	AcquiredAt time.Time
}

// Resource is a handle to a tracked resource. Release is idempotent.
type Resource struct {
	id         string
	kind       string
	meta       Metadata
	acquiredAt time.Time
	teardown   func()
	scope      *Scope

	once     sync.Once
	released bool
	err      error
}

// ID returns the resource's unique identifier.
func (r *Resource) ID() string { return r.id }

// Kind returns the resource kind.
func (r *Resource) Kind() string { return r.kind }

// Release runs the resource's teardown the first time it is called and is a
// no-op afterwards. It returns the teardown error, if any, on every call.
func (r *Resource) Release() error {
	r.once.Do(func() {
		r.err = safeTeardown(r.teardown)
		r.scope.markReleased(r)
	})
	return r.err
}

// Released reports whether Release has completed.
func (r *Resource) Released() bool {
	r.scope.mu.Lock()
	defer r.scope.mu.Unlock()
	return r.released
}

// Scope owns a set of resources and releases every one of them exactly once
// when it is closed, in reverse acquisition order.
//
// Scope is safe for concurrent use.
type Scope struct {
	name     string
	logger   *logging.Logger
	recorder Recorder

	mu        sync.Mutex
	resources []*Resource // unreleased, in acquisition order
	closed    bool
	stats     Stats
}

// NewScope creates an open scope.
func NewScope(name string, opts ...Option) *Scope {
	s := &Scope{
		name:     name,
		logger:   logging.NopLogger(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("scope", name)
	return s
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// TrackResource registers a resource with no teardown of its own. The
// returned handle only records the release.
func (s *Scope) TrackResource(kind string, meta Metadata) *Resource {
	return s.Track(kind, meta, nil)
}

// Track registers a resource whose teardown runs on release. Tracking on a
// closed scope releases the resource immediately.
func (s *Scope) Track(kind string, meta Metadata, teardown func()) *Resource {
	r := &Resource{
		id:         uuid.NewString(),
		kind:       kind,
		meta:       maps.Clone(meta),
		acquiredAt: time.Now(),
		teardown:   teardown,
		scope:      s,
	}

	s.mu.Lock()
	closed := s.closed
	s.stats.Acquired++
	if !closed {
		s.resources = append(s.resources, r)
	}
	s.mu.Unlock()

	s.recorder.ResourceAcquired(kind)
	s.logger.Debug("resource acquired", "resource_id", r.id, "kind", kind)

	if closed {
		s.logger.Warn("resource tracked on closed scope; releasing", "resource_id", r.id, "kind", kind)
		_ = r.Release()
	}
	return r
}

// TrackSubscription calls subscribe and registers the returned unsubscribe
// function as the resource's teardown. If subscribe fails nothing is tracked.
func (s *Scope) TrackSubscription(subscribe func() (func(), error), meta Metadata) (*Resource, error) {
	unsubscribe, err := subscribe()
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe in scope %s", s.name)
	}
	return s.Track(KindSubscription, meta, unsubscribe), nil
}

// TrackCompute runs fn and returns its result unmodified. The only side
// effect is recording the computation in the scope's stats.
func TrackCompute[T any](s *Scope, fn func() T, meta Metadata) T {
	start := time.Now()
	v := fn()
	elapsed := time.Since(start)

	s.mu.Lock()
	s.stats.Computes++
	s.mu.Unlock()

	s.recorder.ComputeRecorded(KindCompute, elapsed)
	s.logger.Debug("compute recorded", "duration_ms", elapsed.Milliseconds(), "metadata", meta)
	return v
}

// Active returns snapshots of the resources not yet released.
func (s *Scope) Active() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]Info, 0, len(s.resources))
	for _, r := range s.resources {
		infos = append(infos, Info{
			ID:         r.id,
			Kind:       r.kind,
			Metadata:   maps.Clone(r.meta),
			AcquiredAt: r.acquiredAt,
		})
	}
	return infos
}

// Stats returns a snapshot of the scope's counters.
func (s *Scope) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Leaked returns the resources still outstanding on a closed scope. It is
// empty for an open scope and, by construction, after a completed Close.
func (s *Scope) Leaked() []Info {
	if !s.Closed() {
		return nil
	}
	return s.Active()
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases every outstanding resource in reverse acquisition order.
// Teardown errors and panics are collected and returned joined; every
// resource is released regardless. Calling Close more than once is safe.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := make([]*Resource, len(s.resources))
	copy(pending, s.resources)
	s.mu.Unlock()

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].Release(); err != nil {
			errs = append(errs, err)
		}
	}

	stats := s.Stats()
	s.logger.Debug("scope closed",
		"acquired", stats.Acquired,
		"released", stats.Released,
		"computes", stats.Computes)

	if n := stats.Outstanding(); n != 0 {
		s.logger.Error("scope closed with outstanding resources", "outstanding", n)
	}
	return errors.Join(errs...)
}

// Run opens a scope, passes it to fn and closes it on every exit path,
// including a panic in fn, which is re-raised after the scope is closed.
func Run(name string, fn func(*Scope) error, opts ...Option) (err error) {
	s := NewScope(name, opts...)
	defer func() {
		closeErr := s.Close()
		if r := recover(); r != nil {
			panic(r)
		}
		if err == nil {
			err = closeErr
		} else if closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return fn(s)
}

func (s *Scope) markReleased(r *Resource) {
	s.mu.Lock()
	r.released = true
	s.stats.Released++
	for i, res := range s.resources {
		if res == r {
			s.resources = append(s.resources[:i], s.resources[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.recorder.ResourceReleased(r.kind)
	s.logger.Debug("resource released", "resource_id", r.id, "kind", r.kind)
}

func safeTeardown(fn func()) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("teardown panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
	return nil
}

type nopRecorder struct{}

func (nopRecorder) ResourceAcquired(string)               {}
func (nopRecorder) ResourceReleased(string)               {}
func (nopRecorder) ComputeRecorded(string, time.Duration) {}
