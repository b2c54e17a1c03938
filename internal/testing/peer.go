// Package testing provides helpers that wire a Messenger to an in-memory parent.
package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/teranos/reportlib/messenger"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/wire"
)

// Origins used by the in-memory harness.
const (
	ReportOrigin  = "https://report.test"
	ParentOrigin  = "https://parent.test"
	ForeignOrigin = "https://evil.test"
)

// DefaultWait bounds every blocking helper.
const DefaultWait = 2 * time.Second

// Peer plays the parent for a Messenger under test.
type Peer struct {
	t         testing.TB
	Messenger *messenger.Messenger
	parent    *transport.Endpoint
	flushSeq  atomic.Uint64
}

// NewPeer creates a running Messenger connected to an in-memory parent.
// The messenger trusts ParentOrigin. Everything is torn down with the test.
func NewPeer(t testing.TB, opts ...messenger.Option) *Peer {
	t.Helper()

	report, parent := transport.Pipe(ReportOrigin, ParentOrigin)
	all := append([]messenger.Option{messenger.WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	m := messenger.New(report, all...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		m.Close()
		<-done
	})

	return &Peer{t: t, Messenger: m, parent: parent}
}

// Next returns the next message the report sent, failing the test after DefaultWait.
func (p *Peer) Next() wire.Outbound {
	p.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultWait)
	defer cancel()

	frame, err := p.parent.Receive(ctx)
	if err != nil {
		p.t.Fatalf("parent received nothing: %v", err)
	}
	out, err := wire.ParseOutbound(frame.Payload)
	if err != nil {
		p.t.Fatalf("report sent a malformed message: %v", err)
	}
	return out
}

// Reply answers id successfully with data.
func (p *Peer) Reply(id string, data interface{}) {
	p.t.Helper()
	in, err := wire.Reply(id, data)
	if err != nil {
		p.t.Fatalf("encode reply: %v", err)
	}
	p.Send(in)
}

// Fail answers id with success=false and data as the error payload.
func (p *Peer) Fail(id string, data interface{}) {
	p.t.Helper()
	in, err := wire.Fail(id, data)
	if err != nil {
		p.t.Fatalf("encode failure: %v", err)
	}
	p.Send(in)
}

// Broadcast pushes data on a well-known channel.
func (p *Peer) Broadcast(ch wire.Channel, data interface{}) {
	p.t.Helper()
	p.Reply(ch.ID(), data)
}

// Send delivers an inbound envelope from the parent origin.
func (p *Peer) Send(in wire.Inbound) {
	p.t.Helper()
	payload, err := in.Encode()
	if err != nil {
		p.t.Fatalf("encode inbound: %v", err)
	}
	p.SendRaw(ParentOrigin, payload)
}

// SendRaw delivers a raw frame stamped with origin.
func (p *Peer) SendRaw(origin string, payload []byte) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultWait)
	defer cancel()
	if err := p.parent.SendAs(ctx, origin, payload); err != nil {
		p.t.Fatalf("send frame: %v", err)
	}
}

// Flush returns once every frame sent before it has been dispatched.
// It round-trips a marker frame, so catch-all listeners see one extra message.
func (p *Peer) Flush() {
	p.t.Helper()

	id := fmt.Sprintf("flush-%d", p.flushSeq.Add(1))
	done := make(chan struct{})
	sub := p.Messenger.RegisterListener(id, func(json.RawMessage, bool) { close(done) }, true)
	defer sub.Unsubscribe()

	p.Reply(id, nil)
	select {
	case <-done:
	case <-time.After(DefaultWait):
		p.t.Fatalf("dispatch did not reach flush marker %s", id)
	}
}

// Handler answers one report message. Returning nil sends nothing.
type Handler func(out wire.Outbound) *wire.Inbound

// Serve answers every report message with h until the test ends.
// Next must not be used while Serve is running.
func (p *Peer) Serve(h Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	p.t.Cleanup(cancel)

	go func() {
		for {
			frame, err := p.parent.Receive(ctx)
			if err != nil {
				return
			}
			out, err := wire.ParseOutbound(frame.Payload)
			if err != nil {
				continue
			}
			in := h(out)
			if in == nil {
				continue
			}
			payload, err := in.Encode()
			if err != nil {
				continue
			}
			if err := p.parent.Send(ctx, payload); err != nil {
				return
			}
		}
	}()
}
