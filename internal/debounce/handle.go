package debounce

import (
	"context"
	"sync/atomic"
)

// Handle is the pending outcome of a debounced call. All calls coalesced into
// the same execution share one Handle.
type Handle[R any] struct {
	done chan struct{}
	seq  atomic.Uint64
	val  R
	err  error
}

func newHandle[R any]() *Handle[R] {
	return &Handle[R]{done: make(chan struct{})}
}

// settle records the outcome and releases all waiters. It is called exactly
// once per handle.
func (h *Handle[R]) settle(seq uint64, val R, err error) {
	h.seq.Store(seq)
	h.val = val
	h.err = err
	close(h.done)
}

// Done returns a channel that is closed once the handle has settled.
func (h *Handle[R]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle settles or ctx is done. A ctx error is
// returned as-is and does not affect the underlying execution.
func (h *Handle[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Seq returns the sequence number of the execution that settled the handle.
// It is 0 before the handle settles and for canceled batches.
func (h *Handle[R]) Seq() uint64 {
	return h.seq.Load()
}
