package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
)

// Options tune a WebSocket connection.
type Options struct {
	Keepalive      KeepaliveConfig
	MaxMessageSize int64
	SendBuffer     int
	Logger         *zap.SugaredLogger
}

// DialOptions configures the client side of a connection.
type DialOptions struct {
	Options

	// Origin is sent as the Origin header of the handshake
	Origin string

	// Header carries extra handshake headers
	Header http.Header

	// Dialer overrides websocket.DefaultDialer
	Dialer *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.Keepalive.PingInterval <= 0 || o.Keepalive.PongTimeout <= 0 {
		enabled := o.Keepalive.Enabled
		o.Keepalive = DefaultKeepaliveConfig()
		o.Keepalive.Enabled = enabled
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// Conn is a Transport over a gorilla WebSocket connection.
// A read pump and a write pump own the socket; Send and Receive only touch channels.
type Conn struct {
	conn   *websocket.Conn
	origin string
	opts   Options
	logger *zap.SugaredLogger

	send chan []byte
	recv chan Frame
	done chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Dial connects to a parent WebSocket endpoint.
// Inbound frames are stamped with the endpoint's origin.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Conn, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = v
	}
	if opts.Origin != "" {
		header.Set("Origin", opts.Origin)
	}

	ws, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "failed to dial %s (status %d)", rawURL, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "failed to dial %s", rawURL)
	}

	c := newConn(ws, OriginFromURL(rawURL), opts.Options)
	c.logger.Debugw("Connected", logger.FieldURL, rawURL, logger.FieldOrigin, c.origin)
	return c, nil
}

// Accept upgrades an HTTP request into a Conn.
// Inbound frames are stamped with the request's Origin header.
func Accept(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, opts Options) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket upgrade failed")
	}
	return newConn(ws, r.Header.Get("Origin"), opts), nil
}

func newConn(ws *websocket.Conn, origin string, opts Options) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		conn:   ws,
		origin: origin,
		opts:   opts,
		logger: opts.Logger,
		send:   make(chan []byte, opts.SendBuffer),
		recv:   make(chan Frame, opts.SendBuffer),
		done:   make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c
}

// PeerOrigin returns the origin stamped on inbound frames.
func (c *Conn) PeerOrigin() string {
	return c.origin
}

// Send queues payload for the write pump.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return c.closedErr()
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next inbound frame. Frames already read are delivered
// before the close error.
func (c *Conn) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-c.recv:
		return f, nil
	default:
	}

	select {
	case f := <-c.recv:
		return f, nil
	case <-c.done:
		select {
		case f := <-c.recv:
			return f, nil
		default:
		}
		return Frame{}, c.closedErr()
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close stops both pumps and closes the socket.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return errors.Wrapf(errors.ErrClosed, "connection lost: %v", c.err)
	}
	return errors.ErrClosed
}

// readPump handles reading messages from the WebSocket connection
func (c *Conn) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	if c.opts.Keepalive.Enabled {
		pongWait := c.opts.Keepalive.PongTimeout
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			c.shutdown(err)
			return
		}
		if c.opts.Keepalive.Enabled {
			c.conn.SetReadDeadline(time.Now().Add(c.opts.Keepalive.PongTimeout))
		}

		select {
		case c.recv <- Frame{Origin: c.origin, Payload: payload}:
		case <-c.done:
			return
		}
	}
}

// handleReadError logs unexpected WebSocket read errors.
// Expected closure codes (going away, abnormal, no status) are silently ignored.
func (c *Conn) handleReadError(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.logger.Warnw("WebSocket read error", logger.FieldError, err, logger.FieldOrigin, c.origin)
	}
}

// writePump writes queued frames and keepalive pings to the WebSocket connection
func (c *Conn) writePump() {
	var tick <-chan time.Time
	if c.opts.Keepalive.Enabled {
		ticker := time.NewTicker(c.opts.Keepalive.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warnw("WebSocket write error", logger.FieldError, err, logger.FieldSize, len(payload))
				c.shutdown(err)
				return
			}

		case <-tick:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}
