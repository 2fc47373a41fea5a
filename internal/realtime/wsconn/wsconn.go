// Package wsconn dials push-channel connections over WebSocket.
package wsconn

import (
	"context"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/realtime"
)

const (
	// ClientIDHeader carries the per-process client identifier.
	ClientIDHeader = "X-Client-ID"

	defaultOrigin     = "http://localhost"
	defaultMaxPayload = 1 << 20
)

// Dialer opens WebSocket connections at {base}/ws/{connection_type}.
type Dialer struct {
	base       *url.URL
	origin     string
	clientID   string
	maxPayload int
	logger     *logging.Logger
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithOrigin sets the Origin header sent during the handshake.
func WithOrigin(origin string) Option {
	return func(d *Dialer) {
		if origin != "" {
			d.origin = origin
		}
	}
}

// WithClientID overrides the generated client identifier.
func WithClientID(id string) Option {
	return func(d *Dialer) {
		if id != "" {
			d.clientID = id
		}
	}
}

// WithMaxPayload limits the size of a single inbound frame in bytes.
func WithMaxPayload(n int) Option {
	return func(d *Dialer) {
		if n > 0 {
			d.maxPayload = n
		}
	}
}

// WithLogger sets the dialer's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDialer parses baseURL and returns a Dialer. http and https base URLs
// are mapped to ws and wss.
func NewDialer(baseURL string, opts ...Option) (*Dialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.NewValidationError("invalid realtime url").
			WithField("realtime.url").
			WithValue(baseURL).
			WithCause(err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, errors.NewValidationError("realtime url must use ws, wss, http or https").
			WithField("realtime.url").
			WithValue(baseURL)
	}
	if u.Host == "" {
		return nil, errors.NewValidationError("realtime url has no host").
			WithField("realtime.url").
			WithValue(baseURL)
	}

	d := &Dialer{
		base:       u,
		origin:     defaultOrigin,
		clientID:   uuid.NewString(),
		maxPayload: defaultMaxPayload,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("wsconn")
	return d, nil
}

// ClientID returns the identifier sent with every connection.
func (d *Dialer) ClientID() string { return d.clientID }

// Endpoint returns the URL dialed for connectionType, including the token.
func (d *Dialer) Endpoint(connectionType string, creds realtime.Credentials) string {
	u := *d.base
	u.Path = path.Join("/", strings.TrimSuffix(u.Path, "/"), "ws", connectionType)
	q := u.Query()
	if creds.Token != "" {
		q.Set("token", creds.Token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial implements realtime.Dialer.
func (d *Dialer) Dial(ctx context.Context, connectionType string, creds realtime.Credentials) (realtime.Conn, error) {
	cfg, err := websocket.NewConfig(d.Endpoint(connectionType, creds), d.origin)
	if err != nil {
		return nil, errors.Wrap(err, "build websocket config")
	}
	cfg.Header.Set(ClientIDHeader, d.clientID)

	d.logger.Debug("dialing", "connection_type", connectionType, "host", d.base.Host)
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	ws.MaxPayloadBytes = d.maxPayload
	return &conn{ws: ws}, nil
}

// conn adapts a websocket.Conn to realtime.Conn. Writes are serialized;
// reads happen on a single goroutine owned by the bridge.
type conn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *conn) ReadMessage() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(c.ws, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return websocket.JSON.Send(c.ws, v)
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.ws.Close() })
	return c.closeErr
}
