package realtime

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/tracker"
)

// AllMessages registers a handler for every message type.
const AllMessages = "*"

// Handler receives validated inbound messages.
type Handler func(Message)

// HandlerID identifies a registered handler for removal.
type HandlerID string

type handlerEntry struct {
	id  HandlerID
	fn  Handler
	res *tracker.Resource
}

// Bridge connects a push channel to the task collection and the search
// cache. Inbound messages are processed one at a time, in delivery order:
// schema validation, then transition validation for task updates, then the
// merge into the collection, then cache invalidation, then handler delivery.
//
// Malformed payloads and rejected transitions are logged and dropped, never
// retried. Connection failures are reported on Err as retryable
// *errors.ConnectionError values and leave tasks and cache untouched.
type Bridge struct {
	dialer      Dialer
	tasks       *task.Collection
	invalidator Invalidator
	bus         *event.Bus
	logger      *logging.Logger
	recorder    Recorder
	patterns    []glob.Glob
	trackerRec  tracker.Recorder

	errs   chan error
	nextID atomic.Uint64

	mu         sync.Mutex
	scope      *tracker.Scope // owns handlers and the live connection
	conn       Conn
	connType   string
	connRes    *tracker.Resource
	readers    *reader
	handlers   map[string][]handlerEntry
	joined     map[string]struct{}
	subscribed map[string]struct{}
}

// New creates a Bridge. dialer, tasks, invalidator and bus must be non-nil;
// passing nil panics to surface wiring bugs immediately.
func New(dialer Dialer, tasks *task.Collection, invalidator Invalidator, bus *event.Bus, opts ...Option) *Bridge {
	if dialer == nil {
		panic("realtime: Dialer must not be nil")
	}
	if tasks == nil {
		panic("realtime: task.Collection must not be nil")
	}
	if invalidator == nil {
		panic("realtime: Invalidator must not be nil")
	}
	if bus == nil {
		panic("realtime: event.Bus must not be nil")
	}

	cfg := &config{
		logger:    logging.NopLogger(),
		recorder:  nopRecorder{},
		errBuffer: 16,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := &Bridge{
		dialer:      dialer,
		tasks:       tasks,
		invalidator: invalidator,
		bus:         bus,
		logger:      cfg.logger.WithComponent("realtime"),
		recorder:    cfg.recorder,
		patterns:    cfg.patterns,
		trackerRec:  cfg.trackerRecorder,
		errs:        make(chan error, cfg.errBuffer),
		handlers:    make(map[string][]handlerEntry),
		joined:      make(map[string]struct{}),
		subscribed:  make(map[string]struct{}),
	}
	b.scope = b.newScope()
	return b
}

func (b *Bridge) newScope() *tracker.Scope {
	return tracker.NewScope("realtime",
		tracker.WithLogger(b.logger),
		tracker.WithRecorder(b.trackerRec))
}

// Err returns a channel of connection-level failures. Each value is a
// retryable *errors.ConnectionError. Failures are dropped if nobody reads
// the channel and its buffer is full.
func (b *Bridge) Err() <-chan error {
	return b.errs
}

// Connected reports whether a connection is open and its type.
func (b *Bridge) Connected() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connType, b.conn != nil
}

// Connect opens the push channel for connectionType. It is a no-op when a
// connection of the same type is already open. A connection of another type
// is closed first; registered handlers are kept.
func (b *Bridge) Connect(ctx context.Context, connectionType string, creds Credentials) error {
	b.mu.Lock()
	if b.conn != nil && b.connType == connectionType {
		b.mu.Unlock()
		return nil
	}
	old, oldRes, oldReaders := b.detachLocked()
	b.mu.Unlock()
	b.stopConnection(old, oldRes, oldReaders)

	conn, err := b.dialer.Dial(ctx, connectionType, creds)
	if err != nil {
		connErr := errors.NewConnectionError("connect", connectionType, err)
		b.reportFailure(connectionType, connErr)
		return connErr
	}

	b.mu.Lock()
	if b.conn != nil {
		// Lost a race with a concurrent Connect.
		b.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	readers := &reader{}
	b.conn = conn
	b.connType = connectionType
	b.readers = readers
	b.connRes = b.scope.Track(tracker.KindSocket, tracker.Metadata{"connection_type": connectionType}, func() {
		_ = conn.Close()
	})
	b.mu.Unlock()

	readers.wg.Go(func() { b.readLoop(conn, connectionType, readers) })

	b.logger.Info("connected", "connection_type", connectionType)
	b.recorder.ConnectionState(connectionType, true)
	b.bus.Publish(event.NewConnectionChangedEvent(connectionType, event.ConnectionConnected, "", false))
	return nil
}

// Disconnect closes the connection and removes every registered handler
// and channel scope. It is safe to call when not connected, and from a
// message handler; in that case it returns without waiting for the read
// loop, which exits once the handler returns.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	connType := b.connType
	wasConnected := b.conn != nil
	_, _, readers := b.detachLocked()
	scope := b.scope
	b.scope = b.newScope()
	b.handlers = make(map[string][]handlerEntry)
	b.joined = make(map[string]struct{})
	b.subscribed = make(map[string]struct{})
	b.mu.Unlock()

	// Releases the socket and every handler registration exactly once.
	err := scope.Close()
	b.waitReaders(readers)

	if wasConnected {
		b.logger.Info("disconnected", "connection_type", connType)
		b.recorder.ConnectionState(connType, false)
		b.bus.Publish(event.NewConnectionChangedEvent(connType, event.ConnectionDisconnected, "", false))
	}
	return err
}

// Scope returns the resource scope that currently owns the connection and
// handler registrations.
func (b *Bridge) Scope() *tracker.Scope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scope
}

// JoinChannel joins a named channel. Once any channel is joined or
// subscribed, channel-scoped messages from other channels are dropped.
func (b *Bridge) JoinChannel(name string) error {
	if err := b.send(Frame{Type: frameJoinChannel, Data: map[string]string{"channel": name}}); err != nil {
		return err
	}
	b.mu.Lock()
	b.joined[name] = struct{}{}
	b.mu.Unlock()
	b.logger.Debug("joined channel", "channel", name)
	return nil
}

// SubscribeToChannel subscribes to a channel by ID.
func (b *Bridge) SubscribeToChannel(channelID string) error {
	if err := b.send(Frame{Type: frameSubscribe, Data: map[string]string{"channel_id": channelID}}); err != nil {
		return err
	}
	b.mu.Lock()
	b.subscribed[channelID] = struct{}{}
	b.mu.Unlock()
	b.logger.Debug("subscribed to channel", "channel_id", channelID)
	return nil
}

// AddMessageHandler registers fn for msgType, or for every type when msgType
// is AllMessages. Several handlers may share a type; they run in
// registration order.
func (b *Bridge) AddMessageHandler(msgType string, fn Handler) HandlerID {
	id := HandlerID("handler-" + strconv.FormatUint(b.nextID.Add(1), 10))

	b.mu.Lock()
	defer b.mu.Unlock()
	res := b.scope.Track(tracker.KindHandler, tracker.Metadata{"type": msgType, "id": string(id)}, func() {
		b.removeHandler(msgType, id)
	})
	b.handlers[msgType] = append(b.handlers[msgType], handlerEntry{id: id, fn: fn, res: res})
	return id
}

// RemoveMessageHandler removes the handler with the given ID. It reports
// whether the handler was registered.
func (b *Bridge) RemoveMessageHandler(msgType string, id HandlerID) bool {
	b.mu.Lock()
	var res *tracker.Resource
	for _, h := range b.handlers[msgType] {
		if h.id == id {
			res = h.res
			break
		}
	}
	b.mu.Unlock()

	if res == nil {
		return false
	}
	_ = res.Release()
	return true
}

// HandlerCount returns the number of handlers registered for msgType.
func (b *Bridge) HandlerCount(msgType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[msgType])
}

// removeHandler is the teardown of a handler registration.
func (b *Bridge) removeHandler(msgType string, id HandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[msgType]
	for i, h := range entries {
		if h.id == id {
			remaining := make([]handlerEntry, 0, len(entries)-1)
			remaining = append(remaining, entries[:i]...)
			remaining = append(remaining, entries[i+1:]...)
			if len(remaining) == 0 {
				delete(b.handlers, msgType)
			} else {
				b.handlers[msgType] = remaining
			}
			return
		}
	}
}

// HandleRaw processes one raw inbound message as if it had arrived on the
// connection.
func (b *Bridge) HandleRaw(raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		b.logger.Warn("discarding malformed message", "error", err.Error())
		b.recorder.MessageDiscarded(ReasonMalformed)
		b.bus.Publish(event.NewMessageDiscardedEvent(peekType(raw), err.Error()))
		return
	}
	b.recorder.MessageReceived(msg.Type())

	if !b.delivers(msg.Channel()) {
		b.logger.Debug("dropping message for unscoped channel", "type", msg.Type(), "channel", msg.Channel())
		b.recorder.MessageDiscarded(ReasonChannel)
		return
	}

	if update, ok := msg.(*TaskUpdate); ok && !b.applyTaskUpdate(update) {
		return
	}
	b.dispatch(msg)
}

// applyTaskUpdate merges an update and invalidates the cache. It reports
// whether the update was accepted.
func (b *Bridge) applyTaskUpdate(u *TaskUpdate) bool {
	change, err := b.tasks.Apply(u.Task, task.SourceRealtime)
	if err != nil {
		b.recorder.UpdateRejected()
		b.recorder.MessageDiscarded(ReasonRejected)
		b.logger.Warn("discarding task update",
			"type", u.Type(),
			"task_id", u.TaskID,
			"to", u.Task.Status,
			"error", err.Error())
		return false
	}

	removed := b.invalidator.InvalidateTask(change)
	b.recorder.UpdateApplied()
	b.logger.Debug("task update applied",
		"task_id", u.TaskID,
		"from", change.From(),
		"to", change.To(),
		"cache_removed", removed)
	return true
}

// dispatch calls the handlers for msg's type, then the catch-all handlers.
func (b *Bridge) dispatch(msg Message) {
	b.mu.Lock()
	specific := append([]handlerEntry(nil), b.handlers[msg.Type()]...)
	all := append([]handlerEntry(nil), b.handlers[AllMessages]...)
	b.mu.Unlock()

	for _, h := range specific {
		b.safeCall(h, msg)
	}
	for _, h := range all {
		b.safeCall(h, msg)
	}
}

func (b *Bridge) safeCall(h handlerEntry, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked",
				"handler", string(h.id),
				"type", msg.Type(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	h.fn(msg)
}

// delivers reports whether messages on channel should be processed.
func (b *Bridge) delivers(channel string) bool {
	if channel == "" {
		return true
	}
	b.mu.Lock()
	_, joined := b.joined[channel]
	_, subscribed := b.subscribed[channel]
	scoped := len(b.joined) > 0 || len(b.subscribed) > 0
	b.mu.Unlock()

	if joined || subscribed {
		return true
	}
	for _, g := range b.patterns {
		if g.Match(channel) {
			return true
		}
	}
	return !scoped && len(b.patterns) == 0
}

// reader is the read loop of one connection.
type reader struct {
	wg conc.WaitGroup

	// dispatching is set while the loop runs message handlers. A handler
	// that disconnects must not wait for its own loop.
	dispatching atomic.Bool
}

func (b *Bridge) readLoop(conn Conn, connType string, r *reader) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			b.handleReadError(conn, connType, err)
			return
		}
		if !b.isLive(conn) {
			return
		}
		r.dispatching.Store(true)
		b.HandleRaw(raw)
		r.dispatching.Store(false)
	}
}

func (b *Bridge) isLive(conn Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn == conn
}

func (b *Bridge) handleReadError(conn Conn, connType string, err error) {
	b.mu.Lock()
	if b.conn != conn {
		// Detached by Connect or Disconnect; closed on purpose.
		b.mu.Unlock()
		return
	}
	res := b.connRes
	b.conn = nil
	b.connRes = nil
	b.readers = nil
	b.connType = ""
	b.mu.Unlock()

	if res != nil {
		_ = res.Release()
	}
	b.reportFailure(connType, errors.NewConnectionError("read", connType, err))
}

func (b *Bridge) reportFailure(connType string, err *errors.ConnectionError) {
	b.logger.Error("connection failed",
		"connection_type", connType,
		"error", err.Error(),
		"retryable", err.IsRetryable())
	b.recorder.ConnectionState(connType, false)
	b.bus.Publish(event.NewConnectionChangedEvent(connType, event.ConnectionFailed, err.Error(), err.IsRetryable()))
	select {
	case b.errs <- err:
	default:
		b.logger.Warn("error channel full; dropping connection error", "connection_type", connType)
	}
}

func (b *Bridge) send(f Frame) error {
	b.mu.Lock()
	conn, connType := b.conn, b.connType
	b.mu.Unlock()

	if conn == nil {
		return errors.NewConnectionError("send "+f.Type, "", errors.ErrNotConnected).WithRetryable(false)
	}
	if err := conn.WriteJSON(f); err != nil {
		return errors.NewConnectionError("send "+f.Type, connType, err)
	}
	return nil
}

// detachLocked clears the live connection and returns it for teardown.
// Caller must hold b.mu.
func (b *Bridge) detachLocked() (Conn, *tracker.Resource, *reader) {
	conn, res, readers := b.conn, b.connRes, b.readers
	b.conn = nil
	b.connRes = nil
	b.readers = nil
	b.connType = ""
	return conn, res, readers
}

// stopConnection releases a detached connection and waits for its reader.
func (b *Bridge) stopConnection(conn Conn, res *tracker.Resource, readers *reader) {
	if conn == nil {
		return
	}
	if res != nil {
		_ = res.Release()
	}
	b.waitReaders(readers)
}

func (b *Bridge) waitReaders(readers *reader) {
	if readers == nil {
		return
	}
	if readers.dispatching.Load() {
		b.logger.Debug("not waiting for read loop inside a message handler")
		return
	}
	if r := readers.wg.WaitAndRecover(); r != nil {
		b.logger.Error("read loop panicked", "panic", r.String())
	}
}

func peekType(raw []byte) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Type
}
