// Package errors provides error handling for reportlib.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Wrap with context
//	if err := m.SendToParent(ctx, out); err != nil {
//	    return errors.Wrapf(err, "send %s", out.Action)
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrRemoteFailure) {
//	    // the parent rejected the request
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"encoding/json"
	"fmt"
	"strings"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the messaging layer.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrOriginMismatch marks a frame that arrived from an origin the messenger does not trust
	ErrOriginMismatch = New("origin mismatch")

	// ErrMalformedEnvelope marks an inbound frame that is not a valid message envelope
	ErrMalformedEnvelope = New("malformed envelope")

	// ErrRemoteFailure marks a response the parent flagged with success=false
	ErrRemoteFailure = New("remote failure")

	// ErrClosed indicates the transport or messenger has shut down
	ErrClosed = New("closed")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrInvalidState indicates an operation was called in the wrong session state
	ErrInvalidState = New("invalid state")

	// ErrInvalidConfiguration indicates a report configuration failed validation
	ErrInvalidConfiguration = New("invalid configuration")

	// ErrIncompatibleVersion indicates the report library version is not accepted by the parent
	ErrIncompatibleVersion = New("incompatible version")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// RemoteError carries the payload of a response the parent flagged as failed.
// Data is the parent-supplied error payload, unchanged.
type RemoteError struct {
	Action string
	ID     string
	Data   json.RawMessage
}

func (e *RemoteError) Error() string {
	msg := e.Message()
	if e.Action == "" {
		return fmt.Sprintf("remote failure: %s", msg)
	}
	return fmt.Sprintf("remote failure in %s: %s", e.Action, msg)
}

// Unwrap lets errors.Is(err, ErrRemoteFailure) match.
func (e *RemoteError) Unwrap() error {
	return ErrRemoteFailure
}

// Message extracts a human-readable message from the payload.
// Preference: data.message, then a JSON string payload, then the raw payload.
func (e *RemoteError) Message() string {
	raw := strings.TrimSpace(string(e.Data))
	if raw == "" || raw == "null" {
		return "no details"
	}

	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(e.Data, &obj) == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}

	var s string
	if json.Unmarshal(e.Data, &s) == nil {
		return s
	}
	return raw
}

// IsRemoteFailure reports whether err is or wraps a parent-side failure
func IsRemoteFailure(err error) bool {
	return err != nil && Is(err, ErrRemoteFailure)
}

// IsClosed reports whether err is or wraps ErrClosed
func IsClosed(err error) bool {
	return err != nil && Is(err, ErrClosed)
}

// NewInvalidStateError creates an invalid-state error with a formatted message
func NewInvalidStateError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidState, Newf(format, args...).Error())
}

// NewInvalidConfigurationError creates an invalid-configuration error with a formatted message
func NewInvalidConfigurationError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidConfiguration, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
