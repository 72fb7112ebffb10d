package hmr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConnection exchanges JSON payloads with a plain websocket server.
type WebSocketConnection struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn
	ready   atomic.Bool
	closing atomic.Bool
	slot    handlerSlot
	done    chan struct{}
}

var _ Connection = (*WebSocketConnection)(nil)

// NewWebSocketConnection returns an unconnected websocket connection to url.
func NewWebSocketConnection(url string, logger *slog.Logger) *WebSocketConnection {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketConnection{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With("transport", "websocket", "url", url),
		done:   make(chan struct{}),
	}
}

// Connect dials the server and starts reading payloads in the background.
func (c *WebSocketConnection) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.url, err)
	}
	c.conn = conn
	c.ready.Store(true)
	c.logger.Info("🔌 HMR websocket connected")

	go c.readLoop()
	return nil
}

func (c *WebSocketConnection) readLoop() {
	defer close(c.done)
	defer c.ready.Store(false)

	for {
		var raw map[string]any
		if err := c.conn.ReadJSON(&raw); err != nil {
			if !c.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("HMR websocket read failed.", "error", err)
			}
			return
		}
		p, err := DecodePayload(raw)
		if err != nil {
			c.logger.Warn("Dropping malformed HMR payload.", "error", err)
			continue
		}
		c.slot.deliver(p)
	}
}

// Done is closed when the read loop stops.
func (c *WebSocketConnection) Done() <-chan struct{} { return c.done }

// IsReady implements Connection.
func (c *WebSocketConnection) IsReady() bool { return c.ready.Load() }

// OnUpdate implements Connection.
func (c *WebSocketConnection) OnUpdate(handler func(Payload)) { c.slot.set(handler) }

// Send implements Connection.
func (c *WebSocketConnection) Send(ctx context.Context, p Payload) error {
	if !c.IsReady() {
		return errors.New("websocket connection is not ready")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteJSON(p)
}

// Close sends a close frame and closes the socket.
func (c *WebSocketConnection) Close() error {
	if c.conn == nil {
		return nil
	}
	c.closing.Store(true)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
