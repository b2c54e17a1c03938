// Package host is a development parent for reports. It serves the parent side
// of the message protocol over WebSocket: it answers init with a setup fixture,
// answers correlated requests from a handler table and records every
// fire-and-forget action the report sends.
package host

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/reportlib/am"
	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/version"
	"github.com/teranos/reportlib/wire"
)

// ShutdownTimeout bounds how long Shutdown waits for client loops to exit
const ShutdownTimeout = 5 * time.Second

// Request is one correlated action received from a report.
type Request struct {
	ClientID string
	Action   wire.Action
	Params   wire.Params
	Raw      json.RawMessage
}

// HandlerFunc answers a correlated request. The returned value becomes the
// reply data; a returned error becomes a success=false reply.
type HandlerFunc func(ctx context.Context, req Request) (interface{}, error)

// Failure is an error whose Data is sent to the report unchanged.
type Failure struct {
	Data interface{}
}

func (f *Failure) Error() string {
	raw, _ := json.Marshal(f.Data)
	return "failure: " + string(raw)
}

// Fail returns a handler error that replies with data as the failure payload.
func Fail(data interface{}) error {
	return &Failure{Data: data}
}

// Notification is a fire-and-forget action received from a report.
type Notification struct {
	ClientID   string
	Action     wire.Action
	Params     wire.Params
	ReceivedAt time.Time
}

// Host serves reports over WebSocket.
type Host struct {
	cfg      am.HostConfig
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	connOpts transport.Options
	versions *version.Range

	fixture atomic.Pointer[Fixture]
	watcher *am.ConfigWatcher

	mu            sync.RWMutex
	clients       map[string]*client
	handlers      map[wire.Action]HandlerFunc
	notifications []Notification
	onNotify      []func(Notification)

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	server   *http.Server
	listener net.Listener

	broadcastDrops atomic.Int64
}

type client struct {
	id      string
	conn    *transport.Conn
	origin  string
	baseURL string
	// libVersion is set once init succeeds
	libVersion atomic.Value
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Host) { h.logger = l.Named("host") }
}

// WithFixture serves f instead of loading cfg.Fixture.
func WithFixture(f *Fixture) Option {
	return func(h *Host) { h.fixture.Store(f) }
}

// WithTransportOptions tunes accepted connections.
func WithTransportOptions(opts transport.Options) Option {
	return func(h *Host) { h.connOpts = opts }
}

// New creates a host from cfg. The fixture file, when configured, is loaded now.
func New(cfg am.HostConfig, opts ...Option) (*Host, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		cfg:      cfg,
		logger:   logger.Named("host"),
		clients:  make(map[string]*client),
		handlers: make(map[wire.Action]HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(h)
	}

	if len(h.cfg.AllowedOrigins) == 0 {
		h.cfg.AllowedOrigins = am.DefaultAllowedOrigins
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     h.checkOrigin,
	}
	if h.connOpts.Logger == nil {
		h.connOpts.Logger = h.logger
	}

	if cfg.VersionConstraint != "" {
		r, err := version.ParseRange(cfg.VersionConstraint)
		if err != nil {
			cancel()
			return nil, err
		}
		h.versions = r
	}

	if h.fixture.Load() == nil {
		f := DefaultFixture()
		if cfg.Fixture != "" {
			loaded, err := LoadFixture(cfg.Fixture)
			if err != nil {
				cancel()
				return nil, err
			}
			f = loaded
		}
		h.fixture.Store(f)
	}

	h.Handle(wire.ActionHasPermission, h.hasPermission)
	h.Handle(wire.ActionIsFeatureEnabled, h.isFeatureEnabled)
	return h, nil
}

// Handle registers fn for a correlated action, replacing any previous handler.
func (h *Host) Handle(action wire.Action, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[action] = fn
}

// OnNotify registers a callback for every fire-and-forget action.
func (h *Host) OnNotify(fn func(Notification)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onNotify = append(h.onNotify, fn)
}

// Notifications returns the fire-and-forget actions received so far.
func (h *Host) Notifications() []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Notification, len(h.notifications))
	copy(out, h.notifications)
	return out
}

// Fixture returns the fixture currently served.
func (h *Host) Fixture() *Fixture {
	return h.fixture.Load()
}

// SetFixture replaces the served fixture. Connected reports receive the new setup.
func (h *Host) SetFixture(f *Fixture) {
	h.fixture.Store(f)
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.libVersion.Load() != nil {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.sendSetup(c)
	}
}

// ClientCount returns the number of connected reports.
func (h *Host) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler returns the HTTP handler serving /ws and /healthz.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"clients": h.ClientCount(),
		})
	})
	return mux
}

// Start listens on the configured address and serves until Shutdown.
// When WatchFixture is set, edits to the fixture file are pushed to connected reports.
func (h *Host) Start() error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", h.cfg.Addr)
	}
	h.listener = ln
	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if h.cfg.Fixture != "" && h.cfg.WatchFixture {
		if err := h.watchFixture(); err != nil {
			h.logger.Warnw("Fixture reload disabled", logger.FieldPath, h.cfg.Fixture, logger.FieldError, err)
		}
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Errorw("Host server stopped", logger.FieldError, err)
		}
	}()

	h.logger.Infow("Host ready", logger.FieldAddress, ln.Addr().String())
	return nil
}

// Addr returns the listening address once started.
func (h *Host) Addr() string {
	if h.listener == nil {
		return h.cfg.Addr
	}
	return h.listener.Addr().String()
}

// Shutdown closes every report connection and stops the server.
func (h *Host) Shutdown(ctx context.Context) error {
	h.logger.Infow("Initiating host shutdown")

	// Close clients before cancelling so read loops exit on ErrClosed
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
	h.cancel()

	var err error
	if h.server != nil {
		err = h.server.Shutdown(ctx)
	}
	if h.watcher != nil {
		if werr := h.watcher.Stop(); werr != nil {
			h.logger.Warnw("Failed to stop fixture watcher", logger.FieldError, werr)
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownTimeout):
		h.logger.Warnw("Host shutdown timed out", "timeout", ShutdownTimeout)
	}

	h.logger.Infow("Host shutdown complete",
		logger.FieldCount, len(clients),
		"broadcast_drops", h.broadcastDrops.Load(),
	)
	return err
}

func (h *Host) watchFixture() error {
	w, err := am.NewConfigWatcher(h.cfg.Fixture, am.WithWatcherLogger(h.logger))
	if err != nil {
		return err
	}
	w.OnChange(func(path string) error {
		f, err := LoadFixture(path)
		if err != nil {
			return err
		}
		h.logger.Infow("Fixture reloaded", logger.FieldPath, path)
		h.SetFixture(f)
		return nil
	})
	w.Start()
	h.watcher = w
	return nil
}

// checkOrigin validates the handshake origin against the allow-list.
// Requests without an Origin header (non-browser clients) are accepted.
func (h *Host) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if transport.MatchOrigin(h.cfg.AllowedOrigins, origin) {
		return true
	}
	h.logger.Warnw("Rejected WebSocket origin", logger.FieldOrigin, origin)
	return false
}

// baseURL is the http(s) origin reports should treat as the parent.
func (h *Host) baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
