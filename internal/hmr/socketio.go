package hmr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultSocketIOEvent is the socket.io event carrying HMR payloads.
const DefaultSocketIOEvent = "modrun:hmr"

// SocketIOOptions configures a SocketIOConnection.
type SocketIOOptions struct {
	// URL is the server url; its path is used as the socket.io path.
	URL       string
	Namespace string
	Event     string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// SocketIOConnection receives payloads from a socket.io server.
type SocketIOConnection struct {
	opts    SocketIOOptions
	baseURL string
	path    string
	logger  *slog.Logger

	io    *socket.Socket
	ready atomic.Bool
	slot  handlerSlot
}

var _ Connection = (*SocketIOConnection)(nil)

// NewSocketIOConnection validates opts and returns an unconnected connection.
func NewSocketIOConnection(opts SocketIOOptions) (*SocketIOConnection, error) {
	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse socket.io URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("socket.io URL %q must be absolute", opts.URL)
	}
	if opts.Namespace == "" {
		opts.Namespace = "/"
	}
	if opts.Event == "" {
		opts.Event = DefaultSocketIOEvent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketIOConnection{
		opts:    opts,
		baseURL: fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host),
		path:    parsed.Path,
		logger:  logger.With("transport", "socketio", "url", opts.URL, "namespace", opts.Namespace),
	}, nil
}

// Connect dials the server and blocks until the socket is connected, the
// connection fails, or the timeout expires.
func (c *SocketIOConnection) Connect(ctx context.Context) error {
	opts := socket.DefaultOptions()
	if c.path != "" && c.path != "/" {
		opts.SetPath(c.path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(c.baseURL, opts)
	io := manager.Socket(c.opts.Namespace, opts)
	c.io = io

	connected := make(chan error, 1)

	io.On(types.EventName("connect"), func(...any) {
		c.ready.Store(true)
		c.logger.Info("🔌 HMR socket connected", "sid", io.Id())
		select {
		case connected <- nil:
		default:
		}
		c.slot.deliver(Payload{Type: TypeConnected})
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		c.ready.Store(false)
		c.logger.Debug("HMR socket disconnected.", "reason", reason)
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("socket.io connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})
	io.On(types.EventName(c.opts.Event), func(data ...any) {
		if len(data) == 0 {
			return
		}
		p, err := DecodePayload(data[0])
		if err != nil {
			c.logger.Warn("Dropping malformed HMR payload.", "error", err)
			return
		}
		c.slot.deliver(p)
	})

	io.Connect()

	opCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return fmt.Errorf("connecting to %s: %w", c.opts.URL, err)
		}
		return nil
	case <-opCtx.Done():
		io.Disconnect()
		return fmt.Errorf("timed out while waiting for initial connection to %s", c.opts.URL)
	}
}

// IsReady implements Connection.
func (c *SocketIOConnection) IsReady() bool { return c.ready.Load() }

// OnUpdate implements Connection.
func (c *SocketIOConnection) OnUpdate(handler func(Payload)) { c.slot.set(handler) }

// Send implements Connection.
func (c *SocketIOConnection) Send(ctx context.Context, p Payload) error {
	if c.io == nil || !c.IsReady() {
		return errors.New("socket.io connection is not ready")
	}
	obj, err := p.asObject()
	if err != nil {
		return fmt.Errorf("encoding hmr payload: %w", err)
	}
	c.io.Emit(c.opts.Event, obj)
	return nil
}

// Close disconnects the socket.
func (c *SocketIOConnection) Close() error {
	if c.io != nil {
		c.logger.Debug("Disconnecting socket client")
		c.io.Disconnect()
	}
	c.ready.Store(false)
	return nil
}
