package host

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/wire"
)

// replyWait bounds a single reply write
const replyWait = 10 * time.Second

// serveWS upgrades a report connection and runs its read loop.
func (h *Host) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Accept(w, r, &h.upgrader, h.connOpts)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		origin:  r.Header.Get("Origin"),
		baseURL: h.baseURL(r),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Infow("Report connected",
		logger.FieldClientID, c.id,
		logger.FieldOrigin, c.origin,
		"clients", count,
	)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.readLoop(c)
	}()
}

// readLoop handles every message from one report until it disconnects.
func (h *Host) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		c.conn.Close()
		h.logger.Infow("Report disconnected", logger.FieldClientID, c.id)
	}()

	for {
		frame, err := c.conn.Receive(h.ctx)
		if err != nil {
			if !errors.IsClosed(err) && h.ctx.Err() == nil {
				h.logger.Warnw("Report read failed", logger.FieldClientID, c.id, logger.FieldError, err)
			}
			return
		}

		out, err := wire.ParseOutbound(frame.Payload)
		if err != nil {
			h.logger.Warnw("Dropped malformed report message",
				logger.FieldClientID, c.id,
				logger.FieldError, err,
				logger.FieldSize, len(frame.Payload),
			)
			continue
		}
		h.dispatch(c, out)
	}
}

// dispatch routes one report message.
func (h *Host) dispatch(c *client, out wire.Outbound) {
	params, err := wire.DecodeParams(out)
	if err != nil {
		h.logger.Warnw("Undecodable params",
			logger.FieldClientID, c.id,
			logger.FieldAction, out.Action,
			logger.FieldError, err,
		)
		if out.ID != "" {
			h.send(c, wire.FailMessage(out.ID, err.Error()))
		}
		return
	}

	h.logger.Debugw("Report message",
		logger.FieldClientID, c.id,
		logger.FieldAction, out.Action,
		logger.FieldCorrelationID, out.ID,
	)

	switch {
	case out.Action == string(wire.ActionInit):
		h.handleInit(c, params)
	case out.ID != "":
		// Each request gets its own goroutine so slow handlers don't block the loop
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleRequest(c, out, params)
		}()
	default:
		h.record(c, params)
	}
}

// handleInit checks the library version and answers on the setup channel.
func (h *Host) handleInit(c *client, params wire.Params) {
	ip, _ := params.(wire.InitParams)

	if err := h.checkVersion(ip.LibVersion); err != nil {
		h.logger.Warnw("Rejected report library version",
			logger.FieldClientID, c.id,
			"lib_version", ip.LibVersion,
			logger.FieldError, err,
		)
		h.send(c, wire.FailMessage(wire.ChannelSetup.ID(), err.Error()))
		return
	}

	c.libVersion.Store(ip.LibVersion)
	h.sendSetup(c)
}

func (h *Host) checkVersion(libVersion string) error {
	if h.versions == nil {
		return nil
	}
	return h.versions.Check(libVersion)
}

func (h *Host) sendSetup(c *client) {
	setup, err := h.Fixture().setupFor(c.baseURL)
	if err != nil {
		h.send(c, wire.FailMessage(wire.ChannelSetup.ID(), err.Error()))
		return
	}
	in, _ := wire.Reply(wire.ChannelSetup.ID(), setup)
	h.send(c, in)
}

// handleRequest answers one correlated request.
func (h *Host) handleRequest(c *client, out wire.Outbound, params wire.Params) {
	start := time.Now()
	action := wire.Action(out.Action)

	h.mu.RLock()
	handler := h.handlers[action]
	h.mu.RUnlock()

	fixture := h.Fixture()
	var (
		data interface{}
		err  error
	)
	switch {
	case fixture.Failures[out.Action] != nil:
		err = Fail(fixture.Failures[out.Action])
	case handler != nil:
		data, err = handler(h.ctx, Request{ClientID: c.id, Action: action, Params: params, Raw: out.Params})
	case fixture.Responses[out.Action] != nil:
		data = fixture.Responses[out.Action]
	default:
		err = errors.Newf("unsupported action %s", out.Action)
	}

	var in wire.Inbound
	if err != nil {
		in = failureFor(out.ID, err)
	} else {
		in, err = wire.Reply(out.ID, data)
		if err != nil {
			in = wire.FailMessage(out.ID, err.Error())
		}
	}

	h.logger.Debugw("Answered request",
		logger.FieldClientID, c.id,
		logger.FieldAction, out.Action,
		logger.FieldCorrelationID, out.ID,
		logger.FieldSuccess, !in.Failed(),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	h.send(c, in)
}

func failureFor(id string, err error) wire.Inbound {
	var f *Failure
	if errors.As(err, &f) {
		in, encErr := wire.Fail(id, f.Data)
		if encErr == nil {
			return in
		}
	}
	return wire.FailMessage(id, err.Error())
}

// record stores a fire-and-forget action and notifies subscribers.
func (h *Host) record(c *client, params wire.Params) {
	n := Notification{
		ClientID:   c.id,
		Action:     params.Action(),
		Params:     params,
		ReceivedAt: time.Now(),
	}

	h.mu.Lock()
	h.notifications = append(h.notifications, n)
	subscribers := make([]func(Notification), len(h.onNotify))
	copy(subscribers, h.onNotify)
	h.mu.Unlock()

	for _, fn := range subscribers {
		fn(n)
	}
}

// Broadcast pushes data on channel to every connected report.
// Returns the number of reports the message was queued for.
func (h *Host) Broadcast(channel wire.Channel, data interface{}, success bool) (int, error) {
	var (
		in  wire.Inbound
		err error
	)
	if success {
		in, err = wire.Reply(channel.ID(), data)
	} else {
		in, err = wire.Fail(channel.ID(), data)
	}
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if h.send(c, in) {
			sent++
		} else {
			h.broadcastDrops.Add(1)
		}
	}
	return sent, nil
}

// send writes one inbound envelope to a report.
func (h *Host) send(c *client, in wire.Inbound) bool {
	payload, err := in.Encode()
	if err != nil {
		h.logger.Errorw("Failed to encode reply", logger.FieldClientID, c.id, logger.FieldError, err)
		return false
	}

	ctx, cancel := context.WithTimeout(h.ctx, replyWait)
	defer cancel()
	if err := c.conn.Send(ctx, payload); err != nil {
		h.logger.Debugw("Send to report failed", logger.FieldClientID, c.id, logger.FieldError, err)
		return false
	}
	return true
}

// hasPermission answers from the fixture's permissions, in request order.
func (h *Host) hasPermission(_ context.Context, req Request) (interface{}, error) {
	p, ok := req.Params.(wire.PermissionParams)
	if !ok {
		return nil, errors.Newf("unexpected params %T", req.Params)
	}
	fixture := h.Fixture()
	granted := make([]bool, len(p.Permissions))
	for i, perm := range p.Permissions {
		granted[i] = fixture.Permissions[perm]
	}
	return granted, nil
}

func (h *Host) isFeatureEnabled(_ context.Context, req Request) (interface{}, error) {
	p, ok := req.Params.(wire.FeatureParams)
	if !ok {
		return nil, errors.Newf("unexpected params %T", req.Params)
	}
	return h.Fixture().featureEnabled(p.FeatureID), nil
}
