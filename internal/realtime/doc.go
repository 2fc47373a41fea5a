// Package realtime bridges a push channel to the local task collection and
// the search cache.
//
// A Bridge owns at most one connection at a time. Every inbound message is
// decoded and schema-checked before any field is trusted; task updates are
// then validated against the task state machine, merged into the
// collection, and used to invalidate cached search results before message
// handlers see them. Handlers and the connection itself are registered in a
// tracker.Scope, so Disconnect releases all of them exactly once.
//
// Dial transports implement Dialer; package wsconn provides one over
// WebSocket.
package realtime
