package debounce

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/taskscope/internal/errors"
)

const testWait = 50 * time.Millisecond

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDebouncer_CoalescesBurstWithLastArgs(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var gotArgs []string

	d := New(func(_ context.Context, q string) (string, error) {
		calls.Add(1)
		mu.Lock()
		gotArgs = append(gotArgs, q)
		mu.Unlock()
		return "result:" + q, nil
	}, WithWait(testWait))

	var handles []*Handle[string]
	for _, q := range []string{"f", "fo", "foo", "foob"} {
		handles = append(handles, d.Call(q))
		time.Sleep(5 * time.Millisecond)
	}

	ctx := waitCtx(t)
	for i, h := range handles {
		val, err := h.Wait(ctx)
		if err != nil {
			t.Fatalf("handle %d: Wait() error = %v", i, err)
		}
		if val != "result:foob" {
			t.Errorf("handle %d: value = %q, want %q", i, val, "result:foob")
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("underlying calls = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(gotArgs) != 1 || gotArgs[0] != "foob" {
		t.Errorf("args = %v, want [foob]", gotArgs)
	}
}

func TestDebouncer_AllHandlesShareError(t *testing.T) {
	wantErr := fmt.Errorf("backend unavailable")
	d := New(func(_ context.Context, _ int) (int, error) {
		return 0, wantErr
	}, WithWait(testWait))

	h1 := d.Call(1)
	h2 := d.Call(2)
	h3 := d.Call(3)

	ctx := waitCtx(t)
	for i, h := range []*Handle[int]{h1, h2, h3} {
		if _, err := h.Wait(ctx); err != wantErr {
			t.Errorf("handle %d: err = %v, want %v", i, err, wantErr)
		}
	}
}

func TestDebouncer_PanicSettlesAsError(t *testing.T) {
	d := New(func(_ context.Context, _ int) (int, error) {
		panic("boom")
	}, WithWait(testWait))

	h1 := d.Call(1)
	h2 := d.Call(2)

	ctx := waitCtx(t)
	_, err1 := h1.Wait(ctx)
	_, err2 := h2.Wait(ctx)
	if err1 == nil || !strings.Contains(err1.Error(), "boom") {
		t.Fatalf("err = %v, want panic error mentioning boom", err1)
	}
	if err1 != err2 {
		t.Errorf("handles settled with different errors: %v vs %v", err1, err2)
	}
}

func TestDebouncer_CallResetsCountdown(t *testing.T) {
	var calls atomic.Int32
	d := New(func(_ context.Context, _ int) (int, error) {
		calls.Add(1)
		return 0, nil
	}, WithWait(100*time.Millisecond))

	d.Call(1)
	time.Sleep(70 * time.Millisecond)
	h := d.Call(2)

	// 140ms after the first call but only 70ms after the second: a fixed
	// window would have fired by now.
	time.Sleep(70 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("calls after reset = %d, want 0", got)
	}

	if _, err := h.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDebouncer_SeparateWindowsRunSeparately(t *testing.T) {
	var calls atomic.Int32
	d := New(func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		return n, nil
	}, WithWait(20*time.Millisecond))

	ctx := waitCtx(t)
	h1 := d.Call(1)
	if v, _ := h1.Wait(ctx); v != 1 {
		t.Errorf("first window value = %d, want 1", v)
	}
	h2 := d.Call(2)
	if h1 == h2 {
		t.Fatal("a new window should return a new handle")
	}
	if v, _ := h2.Wait(ctx); v != 2 {
		t.Errorf("second window value = %d, want 2", v)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if h1.Seq() >= h2.Seq() {
		t.Errorf("sequence not increasing: %d then %d", h1.Seq(), h2.Seq())
	}
}

func TestDebouncer_SequenceTagging(t *testing.T) {
	release := make(chan struct{})
	var seen []uint64
	var mu sync.Mutex

	d := New(func(ctx context.Context, n int) (uint64, error) {
		seq := SequenceFrom(ctx)
		mu.Lock()
		seen = append(seen, seq)
		mu.Unlock()
		if n == 1 {
			<-release
		}
		return seq, nil
	}, WithWait(10*time.Millisecond))

	ctx := waitCtx(t)

	// First execution blocks while a second window opens and completes.
	h1 := d.Call(1)
	time.Sleep(40 * time.Millisecond)
	h2 := d.Call(2)
	seq2, err := h2.Wait(ctx)
	if err != nil {
		t.Fatalf("h2.Wait() error = %v", err)
	}
	close(release)
	seq1, err := h1.Wait(ctx)
	if err != nil {
		t.Fatalf("h1.Wait() error = %v", err)
	}

	if seq1 != 1 || seq2 != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", seq1, seq2)
	}
	if d.IsLatest(seq1) {
		t.Error("overtaken execution should not be latest")
	}
	if !d.IsLatest(seq2) {
		t.Error("newest execution should be latest")
	}
	if d.Sequence() != 2 {
		t.Errorf("Sequence() = %d, want 2", d.Sequence())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("executions observed = %v, want 2", seen)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	var calls atomic.Int32
	d := New(func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		return n * 10, nil
	}, WithWait(time.Hour))

	if d.Flush() != nil {
		t.Error("Flush() with nothing pending should return nil")
	}

	d.Call(1)
	d.Call(2)
	if got := d.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}

	h := d.Flush()
	v, err := h.Wait(waitCtx(t))
	if err != nil || v != 20 {
		t.Errorf("flushed result = %d, %v, want 20, nil", v, err)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() after flush = %d, want 0", d.Pending())
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	var calls atomic.Int32
	d := New(func(_ context.Context, _ int) (int, error) {
		calls.Add(1)
		return 0, nil
	}, WithWait(testWait))

	h := d.Call(1)
	if !d.Cancel() {
		t.Fatal("Cancel() = false, want true with a pending batch")
	}
	_, err := h.Wait(waitCtx(t))
	if !errors.Is(err, errors.ErrCanceled) {
		t.Errorf("err = %v, want ErrCanceled", err)
	}

	time.Sleep(2 * testWait)
	if got := calls.Load(); got != 0 {
		t.Errorf("calls after cancel = %d, want 0", got)
	}
	if d.Cancel() {
		t.Error("second Cancel() should report nothing pending")
	}
}

func TestDebouncer_SetWait(t *testing.T) {
	d := New(func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if d.Wait() != DefaultWait {
		t.Errorf("Wait() = %v, want %v", d.Wait(), DefaultWait)
	}

	d.SetWait(10 * time.Millisecond)
	d.SetWait(0)
	if d.Wait() != 10*time.Millisecond {
		t.Errorf("Wait() = %v, want 10ms", d.Wait())
	}

	start := time.Now()
	if _, err := d.Call(1).Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed >= DefaultWait {
		t.Errorf("execution took %v, new window was not applied", elapsed)
	}
}

func TestHandle_WaitHonorsContext(t *testing.T) {
	d := New(func(_ context.Context, n int) (int, error) {
		return n, nil
	}, WithWait(time.Hour))
	defer d.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := d.Call(1).Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestNew_NilFuncPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(nil) should panic")
		}
	}()
	New[int, int](nil)
}
