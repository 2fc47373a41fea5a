// Package debounce coalesces bursts of calls to an expensive operation into a
// single execution.
//
// A [Debouncer] wraps a [Func]. Every [Debouncer.Call] resets a sliding
// countdown; when the countdown elapses with no further calls, the function
// runs once with the arguments of the most recent call. All calls in that
// window receive the same [Handle], so they observe one shared outcome:
// a value, a returned error, or a recovered panic reported as an error.
//
// Executions are numbered with a monotonically increasing sequence. The
// number is available inside the function through [SequenceFrom] and on the
// settled handle through [Handle.Seq]; [Debouncer.IsLatest] lets a caller
// discard a result whose execution was overtaken by a newer one.
//
// The debouncer never cancels an execution that has already started. A new
// call during an in-flight execution simply opens a new window.
//
// # Basic Usage
//
//	d := debounce.New(func(ctx context.Context, q string) ([]Task, error) {
//	    return client.Search(ctx, q)
//	}, debounce.WithWait(300*time.Millisecond))
//
//	h := d.Call("fo")
//	h = d.Call("foo") // same handle, resets the countdown
//	tasks, err := h.Wait(ctx)
package debounce
