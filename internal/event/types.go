package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.updated", "cache.invalidated")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeQueryChanged      = "query.changed"
	TypeCacheInvalidated  = "cache.invalidated"
	TypeSearchCompleted   = "search.completed"
	TypeSearchDiscarded   = "search.discarded"
	TypeTaskUpdated       = "task.updated"
	TypeTaskRejected      = "task.rejected"
	TypeMessageDiscarded  = "realtime.message_discarded"
	TypeConnectionChanged = "realtime.connection_changed"
)

// -----------------------------------------------------------------------------
// Search Events
// -----------------------------------------------------------------------------

// QueryChangedEvent is emitted when one slice of the active query changes.
type QueryChangedEvent struct {
	baseEvent
	Slice string // "text", "filter", "sort" or "pagination"
}

// NewQueryChangedEvent creates a QueryChangedEvent.
func NewQueryChangedEvent(slice string) QueryChangedEvent {
	return QueryChangedEvent{
		baseEvent: newBaseEvent(TypeQueryChanged),
		Slice:     slice,
	}
}

// CacheInvalidatedEvent is emitted when result cache entries are dropped.
type CacheInvalidatedEvent struct {
	baseEvent
	Reason  string // "clear" or "task_change"
	TaskID  string // Task that triggered the invalidation, if any
	Removed int    // Number of entries dropped
}

// NewCacheInvalidatedEvent creates a CacheInvalidatedEvent.
func NewCacheInvalidatedEvent(reason, taskID string, removed int) CacheInvalidatedEvent {
	return CacheInvalidatedEvent{
		baseEvent: newBaseEvent(TypeCacheInvalidated),
		Reason:    reason,
		TaskID:    taskID,
		Removed:   removed,
	}
}

// SearchCompletedEvent is emitted when a debounced search settles with the
// latest sequence number.
type SearchCompletedEvent struct {
	baseEvent
	Key        string // Canonical cache key of the query
	Seq        uint64 // Sequence number of the execution
	FromCache  bool   // Whether the result was served from cache
	TotalItems int
	Error      string // Error message (if failed)
}

// NewSearchCompletedEvent creates a SearchCompletedEvent.
func NewSearchCompletedEvent(key string, seq uint64, fromCache bool, totalItems int, errMsg string) SearchCompletedEvent {
	return SearchCompletedEvent{
		baseEvent:  newBaseEvent(TypeSearchCompleted),
		Key:        key,
		Seq:        seq,
		FromCache:  fromCache,
		TotalItems: totalItems,
		Error:      errMsg,
	}
}

// SearchDiscardedEvent is emitted when a search result is dropped because a
// newer execution was issued while it was in flight.
type SearchDiscardedEvent struct {
	baseEvent
	Seq    uint64 // Sequence number of the discarded result
	Latest uint64 // Latest issued sequence number
}

// NewSearchDiscardedEvent creates a SearchDiscardedEvent.
func NewSearchDiscardedEvent(seq, latest uint64) SearchDiscardedEvent {
	return SearchDiscardedEvent{
		baseEvent: newBaseEvent(TypeSearchDiscarded),
		Seq:       seq,
		Latest:    latest,
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskUpdatedEvent is emitted when an update is merged into the task collection.
type TaskUpdatedEvent struct {
	baseEvent
	TaskID string
	From   string // Previous status ("" for a newly seen task)
	To     string // New status
	Source string // "realtime" or "local"
}

// NewTaskUpdatedEvent creates a TaskUpdatedEvent.
func NewTaskUpdatedEvent(taskID, from, to, source string) TaskUpdatedEvent {
	return TaskUpdatedEvent{
		baseEvent: newBaseEvent(TypeTaskUpdated),
		TaskID:    taskID,
		From:      from,
		To:        to,
		Source:    source,
	}
}

// TaskRejectedEvent is emitted when a status change fails transition
// validation and is not applied.
type TaskRejectedEvent struct {
	baseEvent
	TaskID string
	From   string
	To     string
	Source string // "realtime" or "local"
}

// NewTaskRejectedEvent creates a TaskRejectedEvent.
func NewTaskRejectedEvent(taskID, from, to, source string) TaskRejectedEvent {
	return TaskRejectedEvent{
		baseEvent: newBaseEvent(TypeTaskRejected),
		TaskID:    taskID,
		From:      from,
		To:        to,
		Source:    source,
	}
}

// -----------------------------------------------------------------------------
// Realtime Events
// -----------------------------------------------------------------------------

// MessageDiscardedEvent is emitted when an inbound message fails schema
// validation.
type MessageDiscardedEvent struct {
	baseEvent
	MessageType string
	Reason      string
}

// NewMessageDiscardedEvent creates a MessageDiscardedEvent.
func NewMessageDiscardedEvent(messageType, reason string) MessageDiscardedEvent {
	return MessageDiscardedEvent{
		baseEvent:   newBaseEvent(TypeMessageDiscarded),
		MessageType: messageType,
		Reason:      reason,
	}
}

// ConnectionState describes the state of a push-channel connection.
type ConnectionState string

const (
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
)

// ConnectionChangedEvent is emitted when a push channel connects, is torn
// down, or fails.
type ConnectionChangedEvent struct {
	baseEvent
	ConnectionType string
	State          ConnectionState
	Error          string // Error message (if failed)
	Retryable      bool
}

// NewConnectionChangedEvent creates a ConnectionChangedEvent.
func NewConnectionChangedEvent(connectionType string, state ConnectionState, errMsg string, retryable bool) ConnectionChangedEvent {
	return ConnectionChangedEvent{
		baseEvent:      newBaseEvent(TypeConnectionChanged),
		ConnectionType: connectionType,
		State:          state,
		Error:          errMsg,
		Retryable:      retryable,
	}
}
