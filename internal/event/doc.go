// Package event provides a pub-sub event bus for decoupled communication
// between the taskscope components.
//
// The search store, the realtime bridge and the task collection publish
// events without knowing who will receive them; the TUI, metrics and tests
// subscribe without knowing who produces them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Search:
//   - [QueryChangedEvent]: one query slice (text, filter, sort, pagination) changed
//   - [CacheInvalidatedEvent]: result cache entries were dropped
//   - [SearchCompletedEvent]: the latest debounced search settled
//   - [SearchDiscardedEvent]: a stale in-flight result was dropped
//
// Tasks:
//   - [TaskUpdatedEvent]: an accepted update was merged into the task collection
//   - [TaskRejectedEvent]: a status change failed transition validation
//
// Realtime:
//   - [MessageDiscardedEvent]: an inbound payload failed schema validation
//   - [ConnectionChangedEvent]: a push channel connected, disconnected or failed
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and protected against panics; a
// panicking handler will not prevent other handlers from being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	id := bus.Subscribe(event.TypeCacheInvalidated, func(e event.Event) {
//	    inv := e.(event.CacheInvalidatedEvent)
//	    log.Printf("dropped %d cache entries (%s)", inv.Removed, inv.Reason)
//	})
//	defer bus.Unsubscribe(id)
//
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("Event: %s at %v", e.EventType(), e.Timestamp())
//	})
package event
