package messenger

import (
	"strings"
	"sync"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/transport"
)

// OriginPolicy decides which origins inbound frames are accepted from.
// A frame is accepted when its origin equals the parent origin or matches
// one of the allowed patterns. A policy with neither accepts everything.
type OriginPolicy struct {
	mu      sync.RWMutex
	parent  string
	allowed []string
}

// NewOriginPolicy creates a policy pinned to parentOrigin plus optional allow-list patterns.
func NewOriginPolicy(parentOrigin string, allowed ...string) *OriginPolicy {
	return &OriginPolicy{
		parent:  normalizeOrigin(parentOrigin),
		allowed: append([]string(nil), allowed...),
	}
}

// Allows reports whether a frame from origin may be dispatched.
func (p *OriginPolicy) Allows(origin string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.parent == "" && len(p.allowed) == 0 {
		return true
	}
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	if p.parent != "" && origin == p.parent {
		return true
	}
	return transport.MatchOrigin(p.allowed, origin)
}

// Open reports whether the policy accepts any origin.
func (p *OriginPolicy) Open() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.parent == "" && len(p.allowed) == 0
}

// SetParentOrigin pins the expected parent origin.
func (p *OriginPolicy) SetParentOrigin(origin string) {
	p.mu.Lock()
	p.parent = normalizeOrigin(origin)
	p.mu.Unlock()
}

// ParentOrigin returns the pinned parent origin.
func (p *OriginPolicy) ParentOrigin() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.parent
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.TrimSpace(origin), "/")
}

// ErrorPolicy controls what happens to a failed message that no pending
// request and no error-aware listener consumed.
type ErrorPolicy int

const (
	// ErrorPolicyLog logs the failure (default)
	ErrorPolicyLog ErrorPolicy = iota
	// ErrorPolicyNone drops it
	ErrorPolicyNone
	// ErrorPolicyNotify logs it and asks the parent to show an error toastr
	ErrorPolicyNotify
)

func (p ErrorPolicy) String() string {
	switch p {
	case ErrorPolicyNone:
		return "none"
	case ErrorPolicyNotify:
		return "notify"
	default:
		return "log"
	}
}

// ParseErrorPolicy maps a config value to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "log":
		return ErrorPolicyLog, nil
	case "none":
		return ErrorPolicyNone, nil
	case "notify":
		return ErrorPolicyNotify, nil
	}
	return ErrorPolicyLog, errors.Newf("unknown error policy %q (expected none, log or notify)", s)
}
