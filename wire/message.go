// Package wire defines the envelopes exchanged between a report and its parent,
// the well-known action and channel names, and the typed params carried by
// each known action.
//
// Outbound (report -> parent):  {"action": "...", "params": {...}, "id": "..."}
// Inbound  (parent -> report):  {"id": "...", "data": {...}, "success": true}
//
// The single "id" field serves two namespaces that never overlap: correlation
// ids generated for requests always carry the "rpc-" prefix, while broadcast
// channels use the fixed Channel names below.
package wire

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/teranos/reportlib/errors"
)

// CorrelationPrefix starts every generated correlation id.
const CorrelationPrefix = "rpc-"

// Outbound is a message from the report to the parent.
// An empty ID means fire-and-forget.
type Outbound struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     string          `json:"id,omitempty"`
}

// Inbound is a message from the parent to the report.
type Inbound struct {
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Success *bool           `json:"success,omitempty"`
}

// Failed reports whether the parent flagged this message as a failure.
// A missing success field is not a failure.
func (in Inbound) Failed() bool {
	return in.Success != nil && !*in.Success
}

// IsCorrelation reports whether id is a generated correlation id rather than a channel name.
func IsCorrelation(id string) bool {
	return strings.HasPrefix(id, CorrelationPrefix)
}

// Encode marshals the outbound envelope.
func (o Outbound) Encode() ([]byte, error) {
	if o.Action == "" {
		return nil, errors.NewInvalidRequestError("outbound message has no action")
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s message", o.Action)
	}
	return data, nil
}

// Encode marshals the inbound envelope.
func (in Inbound) Encode() ([]byte, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode inbound message")
	}
	return data, nil
}

// ParseInbound decodes a raw frame into an Inbound envelope.
// Anything that is not a JSON object with correctly typed envelope fields
// is rejected with ErrMalformedEnvelope.
func ParseInbound(payload []byte) (Inbound, error) {
	var in Inbound
	if !isObject(payload) {
		return in, errors.Wrap(errors.ErrMalformedEnvelope, "inbound frame is not a JSON object")
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		return in, errors.Wrapf(errors.ErrMalformedEnvelope, "inbound frame: %v", err)
	}
	return in, nil
}

// ParseOutbound decodes a raw frame into an Outbound envelope (parent side).
func ParseOutbound(payload []byte) (Outbound, error) {
	var out Outbound
	if !isObject(payload) {
		return out, errors.Wrap(errors.ErrMalformedEnvelope, "outbound frame is not a JSON object")
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, errors.Wrapf(errors.ErrMalformedEnvelope, "outbound frame: %v", err)
	}
	if out.Action == "" {
		return out, errors.Wrap(errors.ErrMalformedEnvelope, "outbound frame has no action")
	}
	return out, nil
}

// Reply builds a successful response for a correlated request or channel.
func Reply(id string, data interface{}) (Inbound, error) {
	return newInbound(id, data, true)
}

// Fail builds a failure response; data carries the error payload.
func Fail(id string, data interface{}) (Inbound, error) {
	return newInbound(id, data, false)
}

// FailMessage builds a failure response with a {"message": msg} payload.
func FailMessage(id, msg string) Inbound {
	in, _ := newInbound(id, map[string]string{"message": msg}, false)
	return in
}

func newInbound(id string, data interface{}, success bool) (Inbound, error) {
	in := Inbound{ID: id, Success: &success}
	if data == nil {
		return in, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		in.Data = raw
		return in, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return in, errors.Wrapf(err, "failed to encode data for %q", id)
	}
	in.Data = raw
	return in, nil
}

func isObject(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
