// Package tracker pairs every acquired resource with exactly one release.
//
// A [Scope] owns subscriptions, sockets, handlers and similar resources for
// the lifetime of a component. Resources are registered with
// [Scope.TrackResource], [Scope.Track] or [Scope.TrackSubscription]; each
// returns a [Resource] whose Release is idempotent. [Scope.Close] releases
// everything still outstanding in reverse acquisition order, so a component
// that tears down through its scope cannot leak a registration even on an
// early return or error path. [Run] adds the same guarantee for panics.
//
// [TrackCompute] wraps a pure computation and records only observability
// data; the computed value is returned unmodified.
//
// # Basic Usage
//
//	scope := tracker.NewScope("bridge", tracker.WithLogger(logger))
//	defer scope.Close()
//
//	_, err := scope.TrackSubscription(func() (func(), error) {
//	    id := bus.Subscribe(event.TypeTaskUpdated, onUpdate)
//	    return func() { bus.Unsubscribe(id) }, nil
//	}, tracker.Metadata{"event": event.TypeTaskUpdated})
package tracker
