package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

// fakeConn delivers queued messages and records written frames.
type fakeConn struct {
	in     chan []byte
	fail   chan error
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	frames []Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case raw := <-c.in:
		return raw, nil
	case err := <-c.fail:
		return nil, err
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := v.(Frame); ok {
		c.frames = append(c.frames, f)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	types []string
	err   error
}

func (d *fakeDialer) Dial(_ context.Context, connType string, _ Credentials) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.types = append(d.types, connType)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.types)
}

func taskUpdateJSON(t *testing.T, id string, status taskstate.State, channel string) []byte {
	t.Helper()
	tk := task.Task{
		ID:        id,
		Label:     "Task " + id,
		Type:      "agent",
		Status:    status,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Metadata:  map[string]any{},
	}
	data, err := json.Marshal(map[string]any{"task_id": id, "task": tk})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	env, err := json.Marshal(Envelope{Type: TypeTaskUpdate, Data: data, Timestamp: "2026-03-02T00:00:00Z", Channel: channel})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return env
}

type harness struct {
	dialer *fakeDialer
	tasks  *task.Collection
	store  *search.Store
	bus    *event.Bus
	bridge *Bridge
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	bus := event.NewBus()
	h := &harness{
		dialer: &fakeDialer{},
		tasks:  task.NewCollection(task.WithBus(bus)),
		store:  search.NewStore(search.WithBus(bus)),
		bus:    bus,
	}
	h.bridge = New(h.dialer, h.tasks, h.store, bus, opts...)
	t.Cleanup(func() { _ = h.bridge.Disconnect() })
	return h
}

func TestBridge_ConnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for range 3 {
		if err := h.bridge.Connect(ctx, ConnectionTask, Credentials{Token: "tok"}); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	}
	if got := h.dialer.dials(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}

	// A different type replaces the connection.
	first := h.dialer.last()
	if err := h.bridge.Connect(ctx, ConnectionChat, Credentials{}); err != nil {
		t.Fatalf("Connect(chat) error = %v", err)
	}
	if !first.isClosed() {
		t.Error("previous connection should be closed when switching type")
	}
	if typ, ok := h.bridge.Connected(); !ok || typ != ConnectionChat {
		t.Errorf("Connected() = %q, %v, want chat, true", typ, ok)
	}
}

func TestBridge_DisconnectReleasesEverything(t *testing.T) {
	h := newHarness(t)
	if err := h.bridge.Connect(context.Background(), ConnectionTask, Credentials{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.bridge.AddMessageHandler(TypeTaskUpdate, func(Message) {})
	h.bridge.AddMessageHandler(TypeTaskUpdate, func(Message) {})
	h.bridge.AddMessageHandler(AllMessages, func(Message) {})

	scope := h.bridge.Scope()
	if n := len(scope.Active()); n != 4 {
		t.Fatalf("active resources = %d, want 4 (socket + 3 handlers)", n)
	}

	conn := h.dialer.last()
	if err := h.bridge.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if !conn.isClosed() {
		t.Error("socket not closed")
	}
	if h.bridge.HandlerCount(TypeTaskUpdate) != 0 || h.bridge.HandlerCount(AllMessages) != 0 {
		t.Error("handlers not removed")
	}
	if stats := scope.Stats(); stats.Outstanding() != 0 || stats.Released != 4 {
		t.Errorf("scope stats = %+v, want all 4 released", stats)
	}
	if _, ok := h.bridge.Connected(); ok {
		t.Error("Connected() = true after Disconnect")
	}
	if err := h.bridge.Disconnect(); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}
}

func TestBridge_DisconnectFromHandler(t *testing.T) {
	h := newHarness(t)
	if err := h.bridge.Connect(context.Background(), ConnectionTask, Credentials{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	returned := make(chan error, 1)
	h.bridge.AddMessageHandler(TypeTaskUpdate, func(Message) {
		returned <- h.bridge.Disconnect()
	})

	conn := h.dialer.last()
	conn.in <- taskUpdateJSON(t, "t1", taskstate.Pending, "")

	select {
	case err := <-returned:
		if err != nil {
			t.Errorf("Disconnect() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect() inside a handler did not return")
	}
	if !conn.isClosed() {
		t.Error("socket not closed")
	}
	if _, ok := h.bridge.Connected(); ok {
		t.Error("Connected() = true after Disconnect")
	}

	// The bridge stays usable.
	if err := h.bridge.Connect(context.Background(), ConnectionTask, Credentials{}); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if got := h.dialer.dials(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestBridge_HandlersByIdentity(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var calls []string

	record := func(name string) Handler {
		return func(Message) {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
		}
	}
	first := h.bridge.AddMessageHandler("ping", record("first"))
	h.bridge.AddMessageHandler("ping", record("second"))

	if !h.bridge.RemoveMessageHandler("ping", first) {
		t.Fatal("RemoveMessageHandler() = false for a registered handler")
	}
	if h.bridge.RemoveMessageHandler("ping", first) {
		t.Error("second removal should report false")
	}

	h.bridge.HandleRaw([]byte(`{"type":"ping","data":{},"timestamp":"2026-03-02T00:00:00Z"}`))

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(calls) != "[second]" {
		t.Errorf("calls = %v, want [second]", calls)
	}
}

func TestBridge_MalformedPayloadDiscarded(t *testing.T) {
	h := newHarness(t)
	var discarded []event.MessageDiscardedEvent
	h.bus.Subscribe(event.TypeMessageDiscarded, func(e event.Event) {
		discarded = append(discarded, e.(event.MessageDiscardedEvent))
	})
	delivered := 0
	h.bridge.AddMessageHandler(AllMessages, func(Message) { delivered++ })

	q := search.DefaultQuery()
	h.store.SetInCache(q, search.Response{TotalItems: 1})

	payloads := []string{
		`not json`,
		`{"type":"task_update","data":{"task":{"id":"t1","status":"pending"}}}`,
		`{"type":"task_update","data":{"task_id":"t1","task":{"id":"t1","status":"archived"}}}`,
		`{"type":"task_update","data":{"task_id":"t1","task":{"id":"t2","status":"pending"}}}`,
		`{"type":"task_update","data":"t1"}`,
	}
	for _, p := range payloads {
		h.bridge.HandleRaw([]byte(p))
	}

	if len(discarded) != len(payloads) {
		t.Errorf("discard events = %d, want %d", len(discarded), len(payloads))
	}
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}
	if h.tasks.Len() != 0 {
		t.Errorf("tasks = %d, want 0", h.tasks.Len())
	}
	if _, ok := h.store.GetFromCache(q); !ok {
		t.Error("malformed payload must not invalidate the cache")
	}
}

func TestBridge_RejectedTransitionNotApplied(t *testing.T) {
	h := newHarness(t)
	h.tasks.Seed([]task.Task{{ID: "t1", Status: taskstate.Completed}})
	q := search.DefaultQuery()
	h.store.SetInCache(q, search.Response{TotalItems: 1})

	delivered := 0
	h.bridge.AddMessageHandler(TypeTaskUpdate, func(Message) { delivered++ })

	h.bridge.HandleRaw(taskUpdateJSON(t, "t1", taskstate.Pending, ""))

	if got, _ := h.tasks.Get("t1"); got.Status != taskstate.Completed {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if _, ok := h.store.GetFromCache(q); !ok {
		t.Error("rejected transition must not invalidate the cache")
	}
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}
}

func TestBridge_ChannelScoping(t *testing.T) {
	patterns, err := CompilePatterns([]string{"project-*"})
	if err != nil {
		t.Fatalf("CompilePatterns() error = %v", err)
	}
	h := newHarness(t, WithChannelPatterns(patterns))
	if err := h.bridge.Connect(context.Background(), ConnectionTask, Credentials{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := h.bridge.JoinChannel("ops"); err != nil {
		t.Fatalf("JoinChannel() error = %v", err)
	}
	if err := h.bridge.SubscribeToChannel("room-7"); err != nil {
		t.Fatalf("SubscribeToChannel() error = %v", err)
	}

	frames := h.dialer.last().frames
	if len(frames) != 2 || frames[0].Type != "join_channel" || frames[1].Type != "subscribe" {
		t.Errorf("frames = %+v", frames)
	}

	for _, ch := range []string{"ops", "room-7", "project-x", "", "other", "project-x.sub"} {
		h.bridge.HandleRaw(taskUpdateJSON(t, "task-"+ch, taskstate.Pending, ch))
	}

	for _, ch := range []string{"ops", "room-7", "project-x", ""} {
		if _, ok := h.tasks.Get("task-" + ch); !ok {
			t.Errorf("message on channel %q should be delivered", ch)
		}
	}
	for _, ch := range []string{"other", "project-x.sub"} {
		if _, ok := h.tasks.Get("task-" + ch); ok {
			t.Errorf("message on channel %q should be dropped", ch)
		}
	}
}

func TestBridge_SendRequiresConnection(t *testing.T) {
	h := newHarness(t)
	err := h.bridge.JoinChannel("ops")
	if !errors.Is(err, errors.ErrNotConnected) {
		t.Errorf("JoinChannel() error = %v, want ErrNotConnected", err)
	}
}

func TestBridge_ConnectionFailureIsRetryable(t *testing.T) {
	t.Run("dial", func(t *testing.T) {
		h := newHarness(t)
		h.dialer.err = fmt.Errorf("connection refused")

		err := h.bridge.Connect(context.Background(), ConnectionTask, Credentials{})
		var connErr *errors.ConnectionError
		if !errors.As(err, &connErr) || !connErr.IsRetryable() {
			t.Fatalf("Connect() error = %v, want retryable ConnectionError", err)
		}
		select {
		case got := <-h.bridge.Err():
			if !errors.IsRetryable(got) {
				t.Errorf("Err() value = %v, want retryable", got)
			}
		case <-time.After(time.Second):
			t.Error("no error reported on Err()")
		}
	})

	t.Run("read", func(t *testing.T) {
		h := newHarness(t)
		h.tasks.Seed([]task.Task{{ID: "t1", Status: taskstate.Pending}})
		q := search.DefaultQuery()
		h.store.SetInCache(q, search.Response{TotalItems: 1})

		if err := h.bridge.Connect(context.Background(), ConnectionTask, Credentials{}); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		h.dialer.last().fail <- fmt.Errorf("connection reset")

		select {
		case got := <-h.bridge.Err():
			if !errors.Is(got, errors.ErrConnectionFailed) || !errors.IsRetryable(got) {
				t.Errorf("Err() value = %v, want retryable connection failure", got)
			}
		case <-time.After(time.Second):
			t.Fatal("no error reported on Err()")
		}
		if _, ok := h.bridge.Connected(); ok {
			t.Error("Connected() = true after read failure")
		}
		if _, ok := h.store.GetFromCache(q); !ok {
			t.Error("connection failure must not touch the cache")
		}
		if got, _ := h.tasks.Get("t1"); got.Status != taskstate.Pending {
			t.Error("connection failure must not touch tasks")
		}
	})
}

func TestBridge_ProcessesInDeliveryOrder(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var seen []taskstate.State
	done := make(chan struct{})
	h.bridge.AddMessageHandler(TypeTaskUpdate, func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, m.(*TaskUpdate).Task.Status)
		if len(seen) == 3 {
			close(done)
		}
	})
	if err := h.bridge.Connect(context.Background(), ConnectionTask, Credentials{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	conn := h.dialer.last()
	conn.in <- taskUpdateJSON(t, "t1", taskstate.Pending, "")
	conn.in <- taskUpdateJSON(t, "t1", taskstate.InProgress, "")
	conn.in <- taskUpdateJSON(t, "t1", taskstate.Blocked, "")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updates were not all delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(seen) != "[pending in_progress blocked]" {
		t.Errorf("delivery order = %v", seen)
	}
	if got, _ := h.tasks.Get("t1"); got.Status != taskstate.Blocked {
		t.Errorf("status = %s, want blocked", got.Status)
	}
}

func TestBridge_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	h := newHarness(t)
	h.bridge.AddMessageHandler("ping", func(Message) { panic("boom") })
	got := 0
	h.bridge.AddMessageHandler("ping", func(Message) { got++ })

	h.bridge.HandleRaw([]byte(`{"type":"ping","data":{}}`))
	if got != 1 {
		t.Errorf("second handler calls = %d, want 1", got)
	}
}

// End to end: a cached pending-filter query is invalidated by an accepted
// pending -> in_progress update and the identical query re-fetches.
func TestEndToEnd_AcceptedUpdateForcesRefetch(t *testing.T) {
	bus := event.NewBus()
	tasks := task.NewCollection(task.WithBus(bus))
	store := search.NewStore(search.WithBus(bus))

	var fetches int
	var mu sync.Mutex
	fetcher := search.FetcherFunc(func(_ context.Context, q search.Query) (search.Response, error) {
		mu.Lock()
		fetches++
		mu.Unlock()
		return search.Response{
			Tasks:      []task.Task{{ID: "t1", Label: "Write docs", Status: taskstate.Pending}},
			TotalItems: 1,
			TotalPages: 1,
		}, nil
	})
	ctrl := search.NewController(store, fetcher, search.WithDebounce(200*time.Millisecond), search.WithTasks(tasks))
	defer ctrl.Close()

	dialer := &fakeDialer{}
	bridge := New(dialer, tasks, store, bus)
	defer func() { _ = bridge.Disconnect() }()
	if err := bridge.Connect(context.Background(), ConnectionTask, Credentials{Token: "tok"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// {text: '', filter: {status: [pending]}} -> cached with R.
	ctrl.SetFilter(search.TaskFilter{Status: []taskstate.State{taskstate.Pending}})
	if _, err := ctrl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	q := store.Query()
	if _, ok := store.GetFromCache(q); !ok {
		t.Fatal("query should be cached after the first fetch")
	}

	applied := make(chan struct{}, 1)
	bridge.AddMessageHandler(TypeTaskUpdate, func(Message) { applied <- struct{}{} })
	dialer.last().in <- taskUpdateJSON(t, "t1", taskstate.InProgress, "")
	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("task update not applied")
	}

	if _, ok := store.GetFromCache(q); ok {
		t.Fatal("accepted update must invalidate the cached query")
	}
	res, err := ctrl.Refresh(ctx)
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if res.FromCache {
		t.Error("identical query should miss the cache and re-fetch")
	}
	mu.Lock()
	defer mu.Unlock()
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2", fetches)
	}
}
