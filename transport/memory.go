package transport

import (
	"context"
	"sync"

	"github.com/teranos/reportlib/errors"
)

// pipeBuffer bounds how many frames an endpoint holds before Send blocks.
const pipeBuffer = 64

// Endpoint is one side of an in-memory Pipe.
type Endpoint struct {
	origin string
	inbox  chan Frame
	peer   *Endpoint
	closed *pipeState
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

// Pipe returns two connected endpoints. Frames sent from the report endpoint
// arrive at the parent endpoint stamped with reportOrigin and vice versa.
// Closing either side closes both.
func Pipe(reportOrigin, parentOrigin string) (report *Endpoint, parent *Endpoint) {
	state := &pipeState{done: make(chan struct{})}
	report = &Endpoint{origin: reportOrigin, inbox: make(chan Frame, pipeBuffer), closed: state}
	parent = &Endpoint{origin: parentOrigin, inbox: make(chan Frame, pipeBuffer), closed: state}
	report.peer = parent
	parent.peer = report
	return report, parent
}

// Origin is the origin stamped on frames this endpoint sends.
func (e *Endpoint) Origin() string {
	return e.origin
}

// PeerOrigin is the origin stamped on frames this endpoint receives from its peer.
func (e *Endpoint) PeerOrigin() string {
	return e.peer.origin
}

// Send delivers a copy of payload to the peer.
func (e *Endpoint) Send(ctx context.Context, payload []byte) error {
	return e.SendAs(ctx, e.origin, payload)
}

// SendAs delivers payload stamped with an arbitrary origin.
// Tests use it to impersonate a foreign window.
func (e *Endpoint) SendAs(ctx context.Context, origin string, payload []byte) error {
	select {
	case <-e.closed.done:
		return errors.ErrClosed
	default:
	}

	frame := Frame{Origin: origin, Payload: append([]byte(nil), payload...)}
	select {
	case e.peer.inbox <- frame:
		return nil
	case <-e.closed.done:
		return errors.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next frame sent by the peer.
func (e *Endpoint) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-e.inbox:
		return f, nil
	default:
	}

	select {
	case f := <-e.inbox:
		return f, nil
	case <-e.closed.done:
		return Frame{}, errors.ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close closes both endpoints.
func (e *Endpoint) Close() error {
	e.closed.once.Do(func() { close(e.closed.done) })
	return nil
}
