// Package transport carries raw report frames between a report and its parent.
//
// A Transport is a single duplex channel. Every inbound Frame is stamped with
// the origin it arrived from so the messenger can validate it before
// dispatching.
package transport

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
)

// Frame is one inbound message with the origin of its sender.
type Frame struct {
	Origin  string
	Payload []byte
}

// Transport sends and receives frames. Implementations must be safe for one
// concurrent sender and one concurrent receiver.
type Transport interface {
	// Send queues payload for the peer. It returns errors.ErrClosed once the transport is closed.
	Send(ctx context.Context, payload []byte) error

	// Receive blocks until the next frame arrives, ctx is done or the transport closes.
	Receive(ctx context.Context) (Frame, error)

	Close() error
}

// OriginFromURL derives the browser-style origin (scheme://host[:port]) for a URL.
// WebSocket schemes map to their HTTP equivalents.
func OriginFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := u.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// MatchOrigin reports whether origin satisfies one of the patterns.
// Patterns are exact origins, filepath.Match wildcards ("http://localhost:*")
// or "*" for any origin.
func MatchOrigin(patterns []string, origin string) bool {
	origin = strings.TrimSuffix(origin, "/")
	for _, allowed := range patterns {
		allowed = strings.TrimSuffix(allowed, "/")
		if allowed == "*" || origin == allowed {
			return true
		}
		if matched, err := filepath.Match(allowed, origin); err == nil && matched {
			return true
		}
	}
	return false
}
