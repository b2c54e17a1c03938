package messenger

import (
	"encoding/json"
	"sync"

	"github.com/teranos/reportlib/wire"
)

// Listener receives the data of an inbound message. isError is true when the
// parent flagged the message with success=false.
type Listener func(data json.RawMessage, isError bool)

type registration struct {
	seq         uint64
	id          string
	fn          Listener
	callOnError bool
	once        bool
}

// Subscription is a revocable handle to one registered listener.
type Subscription struct {
	m    *Messenger
	seq  uint64
	id   string
	once sync.Once
}

// ID returns the channel id the listener is registered under ("" for catch-all).
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe removes the listener. Calling it again is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.m.mu.Lock()
		defer s.m.mu.Unlock()
		s.m.removeLocked(func(r *registration) bool { return r.seq == s.seq })
	})
}

// Active reports whether the listener is still registered.
func (s *Subscription) Active() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.listeners {
		if r.seq == s.seq {
			return true
		}
	}
	return false
}

// RegisterListener invokes l for every inbound message whose id equals id,
// or for every message when id is "". Listeners sharing an id run in
// registration order. With callOnError false the listener is skipped for
// failed messages.
func (m *Messenger) RegisterListener(id string, l Listener, callOnError bool) *Subscription {
	return m.register(id, l, callOnError, false)
}

// On registers l on a well-known channel.
func (m *Messenger) On(ch wire.Channel, l Listener, callOnError bool) *Subscription {
	return m.register(ch.ID(), l, callOnError, false)
}

func (m *Messenger) register(id string, l Listener, callOnError, once bool) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	m.listeners = append(m.listeners, &registration{
		seq:         m.nextSeq,
		id:          id,
		fn:          l,
		callOnError: callOnError,
		once:        once,
	})
	return &Subscription{m: m, seq: m.nextSeq, id: id}
}

// DeRegisterListener removes every listener registered under id and returns
// how many were removed. An empty id clears the whole registry, like
// DeRegisterAllListeners.
func (m *Messenger) DeRegisterListener(id string) int {
	if id == "" {
		return m.DeRegisterAllListeners()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(func(r *registration) bool { return r.id == id })
}

// DeRegisterCatchAll removes only the listeners registered without an id.
func (m *Messenger) DeRegisterCatchAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(func(r *registration) bool { return r.id == "" })
}

// DeRegisterAllListeners clears the listener registry and returns how many
// listeners were removed. In-flight correlated requests are unaffected and
// still resolve.
func (m *Messenger) DeRegisterAllListeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := len(m.listeners)
	m.listeners = nil
	return removed
}

// ListenerCount returns how many listeners are registered under id.
func (m *Messenger) ListenerCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.listeners {
		if r.id == id {
			n++
		}
	}
	return n
}

// removeLocked rebuilds the registry without the matching entries so that
// snapshots taken by a running dispatch stay intact.
func (m *Messenger) removeLocked(match func(*registration) bool) int {
	kept := make([]*registration, 0, len(m.listeners))
	for _, r := range m.listeners {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	removed := len(m.listeners) - len(kept)
	m.listeners = kept
	return removed
}

// matchLocked snapshots the listeners to invoke for a message with id.
// Once-listeners that will be invoked are removed in the same critical
// section, so they can never fire twice.
func (m *Messenger) matchLocked(id string, failed bool) []*registration {
	var matched []*registration
	var spent map[uint64]bool
	for _, r := range m.listeners {
		if r.id != "" && r.id != id {
			continue
		}
		if failed && !r.callOnError {
			continue
		}
		matched = append(matched, r)
		if r.once {
			if spent == nil {
				spent = make(map[uint64]bool)
			}
			spent[r.seq] = true
		}
	}
	if spent != nil {
		m.removeLocked(func(r *registration) bool { return spent[r.seq] })
	}
	return matched
}
