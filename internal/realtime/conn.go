package realtime

import (
	"context"

	"github.com/Iron-Ham/taskscope/internal/task"
)

// Common connection types.
const (
	ConnectionTask = "task"
	ConnectionChat = "chat"
)

// Credentials authenticate a push-channel connection.
type Credentials struct {
	Token string
}

// Conn is one open push-channel connection. ReadMessage blocks until a
// message arrives or the connection fails; Close unblocks it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens push-channel connections.
type Dialer interface {
	Dial(ctx context.Context, connectionType string, creds Credentials) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, connectionType string, creds Credentials) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, connectionType string, creds Credentials) (Conn, error) {
	return f(ctx, connectionType, creds)
}

// Invalidator drops cached results affected by an accepted task change.
type Invalidator interface {
	InvalidateTask(change task.Change) int
}
