// Package monitor forwards report errors and DOM events to an error-tracking backend.
package monitor

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Reporter receives errors and events observed in a report.
type Reporter interface {
	// CaptureError records err and returns the backend event id ("" when dropped).
	CaptureError(err error, tags map[string]string) string

	// CaptureEvent records a named event with arbitrary data.
	CaptureEvent(name string, data map[string]interface{})
}

type nopReporter struct{}

func (nopReporter) CaptureError(error, map[string]string) string { return "" }
func (nopReporter) CaptureEvent(string, map[string]interface{}) {}

// Nop discards everything.
var Nop Reporter = nopReporter{}

// Limited wraps a Reporter with a token bucket. Captures over the limit are dropped.
type Limited struct {
	next    Reporter
	limiter *rate.Limiter
	dropped atomic.Uint64
}

// RateLimited allows at most perSecond captures per second with the given burst.
// perSecond <= 0 disables limiting.
func RateLimited(next Reporter, perSecond float64, burst int) *Limited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) CaptureError(err error, tags map[string]string) string {
	if !l.limiter.Allow() {
		l.dropped.Add(1)
		return ""
	}
	return l.next.CaptureError(err, tags)
}

func (l *Limited) CaptureEvent(name string, data map[string]interface{}) {
	if !l.limiter.Allow() {
		l.dropped.Add(1)
		return
	}
	l.next.CaptureEvent(name, data)
}

// Dropped returns how many captures the limiter rejected.
func (l *Limited) Dropped() uint64 {
	return l.dropped.Load()
}
