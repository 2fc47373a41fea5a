package debounce

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/logging"
)

// DefaultWait is the coalescing window used when no wait is configured.
const DefaultWait = 300 * time.Millisecond

// Func is the operation wrapped by a Debouncer. It must be a fully bound
// callable; the debouncer never supplies a receiver. The context carries the
// execution's sequence number, see [SequenceFrom].
type Func[A, R any] func(ctx context.Context, args A) (R, error)

// Option configures a Debouncer.
type Option func(*options)

type options struct {
	wait    time.Duration
	logger  *logging.Logger
	baseCtx context.Context
}

// WithWait sets the coalescing window. Non-positive values are ignored.
func WithWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.wait = d
		}
	}
}

// WithLogger sets the logger used for execution and panic reports.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithContext sets the parent context passed to every execution.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.baseCtx = ctx
		}
	}
}

// batch is the set of calls coalesced into one execution.
type batch[A, R any] struct {
	args   A
	calls  int
	handle *Handle[R]
}

// Debouncer coalesces bursts of calls into a single execution of the wrapped
// function. Each call resets the countdown; the function runs once wait has
// elapsed with no further calls, using the arguments of the most recent call.
//
// Debouncer is safe for concurrent use.
type Debouncer[A, R any] struct {
	fn      Func[A, R]
	logger  *logging.Logger
	baseCtx context.Context

	mu      sync.Mutex
	wait    time.Duration
	timer   *time.Timer
	gen     uint64 // bumped on every timer reset; stale timer callbacks compare against it
	pending *batch[A, R]

	seq atomic.Uint64
}

// New wraps fn in a Debouncer. It panics if fn is nil.
func New[A, R any](fn Func[A, R], opts ...Option) *Debouncer[A, R] {
	if fn == nil {
		panic("debounce.New: fn must not be nil")
	}
	o := options{
		wait:    DefaultWait,
		logger:  logging.NopLogger(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Debouncer[A, R]{
		fn:      fn,
		logger:  o.logger.WithComponent("debounce"),
		baseCtx: o.baseCtx,
		wait:    o.wait,
	}
}

// Call schedules an execution with args and returns a handle that settles
// with the outcome of the execution this call is coalesced into. Every call
// in the same window returns the same handle.
func (d *Debouncer[A, R]) Call(args A) *Handle[R] {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		d.pending = &batch[A, R]{handle: newHandle[R]()}
	}
	d.pending.args = args
	d.pending.calls++

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.wait, func() { d.fire(gen) })

	return d.pending.handle
}

// Flush starts the pending execution immediately instead of waiting for the
// window to elapse. It returns the pending handle, or nil if nothing is
// pending.
func (d *Debouncer[A, R]) Flush() *Handle[R] {
	d.mu.Lock()
	b := d.takeLocked()
	if b == nil {
		d.mu.Unlock()
		return nil
	}
	seq := d.seq.Add(1)
	d.mu.Unlock()

	go d.run(b, seq)
	return b.handle
}

// Cancel drops the pending batch without executing it. Its handle settles
// with [errors.ErrCanceled]. An execution already in flight is not affected.
// Cancel reports whether a batch was pending.
func (d *Debouncer[A, R]) Cancel() bool {
	d.mu.Lock()
	b := d.takeLocked()
	d.mu.Unlock()

	if b == nil {
		return false
	}
	var zero R
	b.handle.settle(0, zero, errors.ErrCanceled)
	return true
}

// Pending returns the number of calls coalesced into the batch that has not
// started executing yet.
func (d *Debouncer[A, R]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return 0
	}
	return d.pending.calls
}

// Wait returns the current coalescing window.
func (d *Debouncer[A, R]) Wait() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wait
}

// SetWait changes the coalescing window. The new window applies from the next
// call; an already running countdown keeps its original deadline.
func (d *Debouncer[A, R]) SetWait(wait time.Duration) {
	if wait <= 0 {
		return
	}
	d.mu.Lock()
	d.wait = wait
	d.mu.Unlock()
}

// Sequence returns the sequence number of the most recently started
// execution, or 0 if none has started.
func (d *Debouncer[A, R]) Sequence() uint64 {
	return d.seq.Load()
}

// IsLatest reports whether seq belongs to the most recently started
// execution. Results from executions that are no longer the latest are stale.
func (d *Debouncer[A, R]) IsLatest(seq uint64) bool {
	return seq != 0 && d.seq.Load() == seq
}

// fire is the timer callback for generation gen.
func (d *Debouncer[A, R]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		// Reset, flushed or canceled after this timer was armed.
		d.mu.Unlock()
		return
	}
	b := d.takeLocked()
	seq := d.seq.Add(1)
	d.mu.Unlock()

	d.run(b, seq)
}

// takeLocked detaches the pending batch and disarms its timer.
// Caller must hold d.mu.
func (d *Debouncer[A, R]) takeLocked() *batch[A, R] {
	b := d.pending
	if b == nil {
		return nil
	}
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	return b
}

func (d *Debouncer[A, R]) run(b *batch[A, R], seq uint64) {
	d.logger.Debug("executing debounced call",
		"seq", seq,
		"coalesced_calls", b.calls)

	val, err := d.invoke(seq, b.args)
	b.handle.settle(seq, val, err)
}

// invoke calls fn, converting a panic into an error so every waiting handle
// still settles.
func (d *Debouncer[A, R]) invoke(seq uint64, args A) (val R, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("debounced function panicked",
				"seq", seq,
				"panic", r,
				"stack", string(debug.Stack()))
			var zero R
			val = zero
			err = fmt.Errorf("debounced function panicked: %v", r)
		}
	}()
	ctx := context.WithValue(d.baseCtx, seqKey{}, seq)
	return d.fn(ctx, args)
}

type seqKey struct{}

// SequenceFrom returns the execution sequence number carried by a context
// passed to a [Func], or 0 if there is none.
func SequenceFrom(ctx context.Context) uint64 {
	seq, _ := ctx.Value(seqKey{}).(uint64)
	return seq
}
