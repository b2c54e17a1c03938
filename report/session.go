// Package report drives one report's session with its parent.
//
// A Session walks through init, ready and any number of configuration
// updates. Each configuration mounts exactly one messenger listener per
// parent channel it has a callback for; a new configuration revokes the
// previous listeners before mounting its own, so stale callbacks never run.
package report

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
	"github.com/teranos/reportlib/messenger"
	"github.com/teranos/reportlib/monitor"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/version"
	"github.com/teranos/reportlib/wire"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Monitor capture limits for forwarded DOM and error events.
const (
	monitorEventsPerSecond = 5
	monitorBurst           = 20
)

// Session is the report side of the parent protocol.
type Session struct {
	m          *messenger.Messenger
	logger     *zap.SugaredLogger
	libVersion string

	// lifecycle serializes Init, Ready and UpdateConfiguration
	lifecycle sync.Mutex

	mu              sync.Mutex
	state           State
	setup           *ReportSetup
	config          *Configuration
	subs            []*messenger.Subscription
	generation      uint64
	monitor         monitor.Reporter
	filterResults   map[string]json.RawMessage
	facetSelections map[string]FacetsSelection
	published       json.RawMessage
	formModal       *formModalHandler
	sidePane        *SidePaneHandlers

	table *Table
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger. The session names it "report".
func WithLogger(l *zap.SugaredLogger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l.Named("report")
		}
	}
}

// WithMonitor forwards DOM and error events to r through a rate limiter.
// An r that is already a *monitor.Limited keeps its own limits.
// A configured Sentry DSN is ignored when a monitor is set.
func WithMonitor(r monitor.Reporter) SessionOption {
	return func(s *Session) {
		switch v := r.(type) {
		case nil:
		case *monitor.Limited:
			s.monitor = v
		default:
			s.monitor = monitor.RateLimited(r, monitorEventsPerSecond, monitorBurst)
		}
	}
}

// WithLibraryVersion overrides the version announced in init.
func WithLibraryVersion(v string) SessionOption {
	return func(s *Session) {
		if v != "" {
			s.libVersion = v
		}
	}
}

// NewSession creates a session talking through m. The messenger must be running.
func NewSession(m *messenger.Messenger, opts ...SessionOption) *Session {
	s := &Session{
		m:               m,
		logger:          zap.NewNop().Sugar(),
		libVersion:      version.Protocol,
		filterResults:   make(map[string]json.RawMessage),
		facetSelections: make(map[string]FacetsSelection),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.table = &Table{s: s}
	return s
}

// Init announces the report to the parent and waits for its setup.
func (s *Session) Init(ctx context.Context) (*ReportSetup, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.State(); st != StateUninitialized {
		return nil, errors.NewInvalidStateError("init called in state %s", st)
	}

	out, err := wire.NewOutbound(wire.InitParams{LibVersion: s.libVersion}, "")
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("Initializing report", "lib_version", s.libVersion)

	data, err := s.m.SendAndListenOnce(ctx, wire.ChannelSetup.ID(), out)
	if err != nil {
		return nil, errors.Wrap(err, "init")
	}
	setup, err := decodeSetup(data)
	if err != nil {
		return nil, err
	}

	if s.m.ParentOrigin() == "" {
		if origin := transport.OriginFromURL(setup.Settings.BaseURL); origin != "" {
			s.m.SetParentOrigin(origin)
		}
	}

	s.mu.Lock()
	s.setup = setup
	s.state = StateInitialized
	s.mu.Unlock()

	s.logger.Infow("Report initialized",
		logger.FieldReportID, setup.ReportID,
		"workspace", setup.Settings.Workspace.Name,
		"language", setup.Settings.Language,
	)
	return setup, nil
}

// Ready mounts cfg's callbacks and tells the parent what the report needs.
func (s *Session) Ready(ctx context.Context, cfg *Configuration) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.State(); st != StateInitialized {
		return errors.NewInvalidStateError("ready called in state %s", st)
	}
	if err := s.apply(ctx, cfg, false); err != nil {
		return errors.Wrap(err, "ready")
	}
	s.setState(StateReady)
	return nil
}

// UpdateConfiguration replaces the active configuration. Callbacks of the
// previous configuration are revoked before the new ones are mounted.
func (s *Session) UpdateConfiguration(ctx context.Context, cfg *Configuration) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.State(); st != StateReady {
		return errors.NewInvalidStateError("updateConfiguration called in state %s", st)
	}
	return errors.Wrap(s.apply(ctx, cfg, true), "update configuration")
}

func (s *Session) apply(ctx context.Context, cfg *Configuration, update bool) error {
	warnings, err := cfg.Validate()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		s.logger.Warnw("Configuration warning", "warning", w)
	}

	raw, err := cfg.requirements()
	if err != nil {
		return err
	}

	s.ensureMonitor(cfg)
	s.revoke()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	subs := s.mount(cfg, gen)

	s.mu.Lock()
	prev := s.config
	s.config = cfg
	s.subs = subs
	s.mu.Unlock()

	if err := s.m.Notify(ctx, wire.Requirements{Update: update, Raw: raw}); err != nil {
		if !update {
			// ready never reached the parent; nothing of cfg stays active
			s.revoke()
			s.mu.Lock()
			s.config = prev
			s.generation++
			s.mu.Unlock()
		}
		return err
	}

	s.logger.Infow("Configuration sent",
		"update", update,
		logger.FieldListeners, len(subs),
		"facets", len(cfg.Facets),
	)
	return nil
}

// revoke unsubscribes every listener mounted for the current configuration.
func (s *Session) revoke() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if len(subs) > 0 {
		s.logger.Debugw("Revoked configuration listeners", logger.FieldCount, len(subs))
	}
}

// ensureMonitor creates a Sentry reporter from cfg when no monitor was injected.
func (s *Session) ensureMonitor(cfg *Configuration) {
	if cfg.Sentry == nil || cfg.Sentry.DSN == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitor != nil {
		return
	}

	opts := monitor.SentryOptions{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     s.libVersion,
		Logger:      s.logger,
	}
	if s.setup != nil {
		opts.ReportID = s.setup.ReportID
		opts.User = s.setup.Settings.CurrentUser
	}
	r, err := monitor.NewSentryReporter(opts)
	if err != nil {
		s.logger.Warnw("Error tracking disabled", logger.FieldError, err)
		return
	}
	s.monitor = monitor.RateLimited(r, monitorEventsPerSecond, monitorBurst)
}

// Close revokes every mounted listener. The messenger is left running.
func (s *Session) Close() {
	s.revoke()
	s.mu.Lock()
	s.generation++
	s.formModal = nil
	s.sidePane = nil
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	s.logger.Debugw("Session state changed", "from", prev, logger.FieldState, st)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentSetup returns the setup received from the parent, or nil before Init.
func (s *Session) CurrentSetup() *ReportSetup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setup
}

// Configuration returns the active configuration, or nil before Ready.
func (s *Session) Configuration() *Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// LatestPublishedState returns the state last sent with PublishState.
func (s *Session) LatestPublishedState() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

// FilterResult returns the latest facets result for facetKey.
func (s *Session) FilterResult(facetKey string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.filterResults[facetKey]
	return data, ok
}

// FacetsSelection returns the latest selection reported for facetKey.
func (s *Session) FacetsSelection(facetKey string) (FacetsSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.facetSelections[facetKey]
	return sel, ok
}

// Table returns the helper for the report's table view.
func (s *Session) Table() *Table {
	return s.table
}

// Messenger returns the underlying messenger.
func (s *Session) Messenger() *messenger.Messenger {
	return s.m
}

// live reports whether listeners mounted for gen may still run. A dispatch
// that snapshotted them before a reconfiguration sees false.
func (s *Session) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

func (s *Session) currentMonitor() monitor.Reporter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor
}

func (s *Session) requireReady(op string) error {
	if st := s.State(); st != StateReady {
		return errors.NewInvalidStateError("%s called in state %s", op, st)
	}
	return nil
}
