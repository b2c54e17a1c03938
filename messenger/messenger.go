// Package messenger implements the report side of the parent message bus.
//
// A Messenger owns one Transport. Outbound messages are either fire-and-forget
// or correlated: a correlated request gets a fresh id and blocks until the
// parent answers with a message carrying the same id. Independently, inbound
// messages are routed to listeners registered under a channel id or as
// catch-alls.
//
// Frames are dispatched strictly in arrival order on the goroutine running
// Run. Listeners are invoked on that goroutine without any lock held, so a
// listener may register or deregister freely but must not block on a
// correlated round trip; start a goroutine for that.
package messenger

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/wire"
)

// notifyTimeout bounds the fire-and-forget toast sent by ErrorPolicyNotify.
const notifyTimeout = 5 * time.Second

// Messenger correlates requests to the parent and routes inbound messages to listeners.
type Messenger struct {
	t           transport.Transport
	logger      *zap.SugaredLogger
	origins     *OriginPolicy
	errorPolicy ErrorPolicy
	timeout     time.Duration
	newID       func() string

	mu        sync.Mutex
	listeners []*registration
	nextSeq   uint64
	pending   map[string]*pendingCall

	closed    chan struct{}
	closeOnce sync.Once

	droppedOrigin    atomic.Uint64
	droppedMalformed atomic.Uint64
	unconsumed       atomic.Uint64
}

type pendingCall struct {
	action string
	result chan wire.Inbound
}

// Option configures a Messenger.
type Option func(*Messenger)

// WithLogger sets the logger. The messenger names it "messenger".
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Messenger) {
		if l != nil {
			m.logger = l.Named("messenger")
		}
	}
}

// WithOriginPolicy sets which origins inbound frames may come from.
func WithOriginPolicy(p *OriginPolicy) Option {
	return func(m *Messenger) {
		if p != nil {
			m.origins = p
		}
	}
}

// WithErrorPolicy sets how failed messages nobody consumed are surfaced.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(m *Messenger) { m.errorPolicy = p }
}

// WithRequestTimeout bounds every correlated request. Zero waits indefinitely.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Messenger) { m.timeout = d }
}

// WithIDGenerator overrides correlation id generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Messenger) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// New creates a Messenger on top of t. Run must be started for inbound frames to be dispatched.
func New(t transport.Transport, opts ...Option) *Messenger {
	m := &Messenger{
		t:           t,
		logger:      zap.NewNop().Sugar(),
		errorPolicy: ErrorPolicyLog,
		newID:       NewCorrelationID,
		pending:     make(map[string]*pendingCall),
		closed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.origins == nil {
		m.origins = NewOriginPolicy("")
	}
	if m.origins.ParentOrigin() == "" {
		if po, ok := t.(interface{ PeerOrigin() string }); ok {
			m.origins.SetParentOrigin(po.PeerOrigin())
		}
	}
	if m.origins.Open() {
		m.logger.Warnw("No parent origin configured, accepting frames from any origin")
	}
	return m
}

// NewCorrelationID returns a fresh "rpc-" prefixed random id.
func NewCorrelationID() string {
	return wire.CorrelationPrefix + uuid.NewString()
}

// SetParentOrigin pins the origin inbound frames must come from.
func (m *Messenger) SetParentOrigin(origin string) {
	m.origins.SetParentOrigin(origin)
	m.logger.Infow("Parent origin set", logger.FieldOrigin, origin)
}

// ParentOrigin returns the pinned parent origin, or "" when none is known.
func (m *Messenger) ParentOrigin() string {
	return m.origins.ParentOrigin()
}

// SendToParent sends a fire-and-forget message. Any ID already on out is sent verbatim.
func (m *Messenger) SendToParent(ctx context.Context, out wire.Outbound) error {
	if m.isClosed() {
		return errors.Wrapf(errors.ErrClosed, "send %s", out.Action)
	}
	payload, err := out.Encode()
	if err != nil {
		return err
	}
	if err := m.t.Send(ctx, payload); err != nil {
		return errors.Wrapf(err, "send %s", out.Action)
	}
	m.logger.Debugw("Sent message",
		logger.FieldAction, out.Action,
		logger.FieldCorrelationID, out.ID,
		logger.FieldSize, len(payload),
	)
	return nil
}

// Notify builds an envelope for p and sends it fire-and-forget.
func (m *Messenger) Notify(ctx context.Context, p wire.Params) error {
	out, err := wire.NewOutbound(p, "")
	if err != nil {
		return err
	}
	return m.SendToParent(ctx, out)
}

// Request builds an envelope for p and performs a correlated request.
func (m *Messenger) Request(ctx context.Context, p wire.Params) (json.RawMessage, error) {
	out, err := wire.NewOutbound(p, "")
	if err != nil {
		return nil, err
	}
	return m.RequestFromParent(ctx, out)
}

// RequestFromParent attaches a fresh correlation id to out, sends it and blocks
// until the parent answers. A reply flagged success=false returns a
// *errors.RemoteError carrying the parent's payload unchanged.
//
// Cancelling ctx abandons the call and frees its correlation id.
func (m *Messenger) RequestFromParent(ctx context.Context, out wire.Outbound) (json.RawMessage, error) {
	id := m.newID()
	call := &pendingCall{action: out.Action, result: make(chan wire.Inbound, 1)}

	m.mu.Lock()
	if m.isClosed() {
		m.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrClosed, "request %s", out.Action)
	}
	if _, exists := m.pending[id]; exists {
		m.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "correlation id %q is already pending", id)
	}
	m.pending[id] = call
	m.mu.Unlock()
	defer m.removePending(id, call)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	out.ID = id
	start := time.Now()
	if err := m.SendToParent(ctx, out); err != nil {
		return nil, err
	}

	select {
	case in := <-call.result:
		m.logger.Debugw("Request resolved",
			logger.FieldAction, out.Action,
			logger.FieldCorrelationID, id,
			logger.FieldSuccess, !in.Failed(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
		if in.Failed() {
			return nil, &errors.RemoteError{Action: out.Action, ID: id, Data: in.Data}
		}
		return in.Data, nil

	case <-m.closed:
		return nil, errors.Wrapf(errors.ErrClosed, "request %s", out.Action)

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(errors.ErrTimeout, "request %s after %s", out.Action, time.Since(start).Round(time.Millisecond))
		}
		return nil, errors.Wrapf(ctx.Err(), "request %s", out.Action)
	}
}

// ListenOnce waits for the next message on id ("" for any message).
// The listener is removed after its first match or when ctx is done.
// A failed message returns a *errors.RemoteError, like RequestFromParent.
func (m *Messenger) ListenOnce(ctx context.Context, id string) (json.RawMessage, error) {
	return m.listenOnce(ctx, id, nil)
}

// SendAndListenOnce registers a once-listener on id, then sends out
// fire-and-forget and waits for the listener. The listener exists before the
// message leaves, so an immediate answer cannot be missed.
func (m *Messenger) SendAndListenOnce(ctx context.Context, id string, out wire.Outbound) (json.RawMessage, error) {
	return m.listenOnce(ctx, id, func() error {
		return m.SendToParent(ctx, out)
	})
}

func (m *Messenger) listenOnce(ctx context.Context, id string, after func() error) (json.RawMessage, error) {
	result := make(chan wire.Inbound, 1)
	sub := m.register(id, func(data json.RawMessage, isError bool) {
		success := !isError
		result <- wire.Inbound{ID: id, Data: data, Success: &success}
	}, true, true)
	defer sub.Unsubscribe()

	if after != nil {
		if err := after(); err != nil {
			return nil, err
		}
	}

	select {
	case in := <-result:
		if in.Failed() {
			return nil, &errors.RemoteError{ID: id, Data: in.Data}
		}
		return in.Data, nil
	case <-m.closed:
		return nil, errors.Wrapf(errors.ErrClosed, "listen %q", id)
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "listen %q", id)
	}
}

// Run receives frames and dispatches them until ctx is done or the transport closes.
// On return every pending request fails with errors.ErrClosed.
func (m *Messenger) Run(ctx context.Context) error {
	defer m.shutdown()

	for {
		frame, err := m.t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errors.ErrClosed) {
				m.logger.Debugw("Receive loop stopped", logger.FieldError, err)
				return nil
			}
			return errors.Wrap(err, "receive from parent")
		}
		m.Dispatch(frame)
	}
}

// Close stops the messenger and closes its transport.
func (m *Messenger) Close() error {
	m.shutdown()
	return m.t.Close()
}

// Dispatch routes one inbound frame. Run calls it for every received frame;
// tests and embedders with their own receive loop may call it directly.
func (m *Messenger) Dispatch(frame transport.Frame) {
	if !m.origins.Allows(frame.Origin) {
		m.droppedOrigin.Add(1)
		m.logger.Debugw("Dropped frame from untrusted origin", logger.FieldOrigin, frame.Origin)
		return
	}

	in, err := wire.ParseInbound(frame.Payload)
	if err != nil {
		m.droppedMalformed.Add(1)
		m.logger.Warnw("Dropped malformed frame",
			logger.FieldError, err,
			logger.FieldOrigin, frame.Origin,
			logger.FieldSize, len(frame.Payload),
		)
		return
	}
	failed := in.Failed()

	m.mu.Lock()
	var call *pendingCall
	if in.ID != "" {
		if c, ok := m.pending[in.ID]; ok {
			call = c
			delete(m.pending, in.ID)
		}
	}
	matched := m.matchLocked(in.ID, failed)
	m.mu.Unlock()

	m.logger.Debugw("Dispatching message",
		logger.FieldCorrelationID, in.ID,
		logger.FieldSuccess, !failed,
		logger.FieldListeners, len(matched),
		"correlated", call != nil,
	)

	consumed := false
	if call != nil {
		call.result <- in
		consumed = true
	}
	for _, reg := range matched {
		m.invoke(reg, in.Data, failed)
		consumed = true
	}

	if failed && !consumed {
		m.surfaceUnconsumed(in)
	}
}

func (m *Messenger) invoke(reg *registration, data json.RawMessage, isError bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("Listener panicked",
				logger.FieldChannel, reg.id,
				"panic", r,
			)
		}
	}()
	reg.fn(data, isError)
}

func (m *Messenger) surfaceUnconsumed(in wire.Inbound) {
	m.unconsumed.Add(1)
	remote := &errors.RemoteError{ID: in.ID, Data: in.Data}

	switch m.errorPolicy {
	case ErrorPolicyNone:
		return
	case ErrorPolicyNotify:
		m.logger.Errorw("Unhandled error from parent", logger.FieldCorrelationID, in.ID, logger.FieldError, remote.Message())
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := m.Notify(ctx, wire.ToastrParams{Type: wire.ToastrError, Message: remote.Message()}); err != nil {
			m.logger.Warnw("Failed to show error toastr", logger.FieldError, err)
		}
	default:
		m.logger.Errorw("Unhandled error from parent", logger.FieldCorrelationID, in.ID, logger.FieldError, remote.Message())
	}
}

func (m *Messenger) removePending(id string, call *pendingCall) {
	m.mu.Lock()
	if m.pending[id] == call {
		delete(m.pending, id)
	}
	m.mu.Unlock()
}

func (m *Messenger) shutdown() {
	m.closeOnce.Do(func() { close(m.closed) })
}

func (m *Messenger) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Done is closed once the messenger has stopped.
func (m *Messenger) Done() <-chan struct{} {
	return m.closed
}

// Pending returns the number of in-flight correlated requests.
func (m *Messenger) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stats is a snapshot of messenger counters.
type Stats struct {
	Pending          int
	Listeners        int
	DroppedOrigin    uint64
	DroppedMalformed uint64
	Unconsumed       uint64
}

// Stats returns current counters.
func (m *Messenger) Stats() Stats {
	m.mu.Lock()
	s := Stats{Pending: len(m.pending), Listeners: len(m.listeners)}
	m.mu.Unlock()
	s.DroppedOrigin = m.droppedOrigin.Load()
	s.DroppedMalformed = m.droppedMalformed.Load()
	s.Unconsumed = m.unconsumed.Load()
	return s
}
