// Package session manages per-group interactive sessions such as games.
//
// At most one session is active per group. Start and End are totally ordered
// across the whole manager; reads never wait on them. In-place mutation of a
// live session goes through Update, which serializes per group.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/metrics"
)

var (
	// ErrNoSession is returned by Update when the group has no active session.
	ErrNoSession = errors.New("session: no active session")

	// ErrEnd may be returned from an Update callback to end the session once
	// the callback returns.
	ErrEnd = errors.New("session: end")
)

// State is the common part of every session. Embed it by value in the
// session struct and use pointers to that struct as the session type.
type State struct {
	GroupID   string
	StartedAt time.Time
	Metadata  map[string]any

	active atomic.Bool
	mu     sync.Mutex
}

// Base gives the manager access to the embedded State.
func (s *State) Base() *State { return s }

// IsActive reports whether the session has not been ended.
func (s *State) IsActive() bool { return s.active.Load() }

// Session is implemented by any pointer to a struct embedding State.
type Session interface {
	Base() *State
}

// Args carries feature-specific start parameters to a Factory.
type Args map[string]any

// Factory builds a new session for a group. Returning an error aborts Start.
type Factory[S Session] func(ctx context.Context, groupID string, args Args) (S, error)

// StartError reports a failed Start.
type StartError struct {
	Kind    string
	GroupID string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s session for group %s: %v", e.Kind, e.GroupID, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Manager tracks sessions of type S keyed by group ID.
type Manager[S Session] struct {
	kind    string
	factory Factory[S]

	lifecycle sync.Mutex // orders Start and End

	mu       sync.RWMutex // guards sessions only, held briefly
	sessions map[string]S

	log     *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	log     *log.Logger
	metrics *metrics.Metrics
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// NewManager creates a manager. kind names the session type in logs and
// metrics.
func NewManager[S Session](kind string, factory Factory[S], opts ...Option) *Manager[S] {
	o := options{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager[S]{
		kind:     kind,
		factory:  factory,
		sessions: make(map[string]S),
		log:      o.log,
		metrics:  o.metrics,
	}
}

// Kind returns the manager's session kind.
func (m *Manager[S]) Kind() string { return m.kind }

// Start ends any session the group already has and installs a new one
// built by the factory. A factory error leaves the group without a session.
func (m *Manager[S]) Start(ctx context.Context, groupID string, args Args) (S, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.endLocked(groupID) {
		m.log.Debug("replaced session", "kind", m.kind, "group", groupID)
	}
	return m.startLocked(ctx, groupID, args)
}

// StartIfAbsent starts a session only when the group has none. When one is
// already running it is returned with started false and left untouched.
func (m *Manager[S]) StartIfAbsent(ctx context.Context, groupID string, args Args) (s S, started bool, err error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if cur, ok := m.Get(groupID); ok {
		return cur, false, nil
	}
	s, err = m.startLocked(ctx, groupID, args)
	return s, err == nil, err
}

// startLocked must be called with the lifecycle gate held.
func (m *Manager[S]) startLocked(ctx context.Context, groupID string, args Args) (S, error) {
	s, err := m.factory(ctx, groupID, args)
	if err != nil {
		var zero S
		m.metrics.ObserveSessionStart(m.kind, "error")
		return zero, &StartError{Kind: m.kind, GroupID: groupID, Err: err}
	}

	b := s.Base()
	b.GroupID = groupID
	b.StartedAt = time.Now()
	if b.Metadata == nil {
		b.Metadata = make(map[string]any)
	}
	b.active.Store(true)

	m.mu.Lock()
	m.sessions[groupID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.ObserveSessionStart(m.kind, "ok")
	m.metrics.SetSessionsActive(m.kind, n)
	m.log.Debug("session started", "kind", m.kind, "group", groupID)
	return s, nil
}

// End ends the group's session. It reports false if there was none.
func (m *Manager[S]) End(groupID string) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.endLocked(groupID)
}

// endLocked must be called with the lifecycle gate held.
func (m *Manager[S]) endLocked(groupID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[groupID]
	if ok {
		delete(m.sessions, groupID)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Base().active.Store(false)
	m.metrics.SetSessionsActive(m.kind, n)
	return true
}

// endIfCurrent ends the group's session only if it is still s.
func (m *Manager[S]) endIfCurrent(groupID string, s S) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	cur, ok := m.sessions[groupID]
	m.mu.RUnlock()
	if !ok || cur.Base() != s.Base() {
		return false
	}
	return m.endLocked(groupID)
}

// Get returns a snapshot reference to the group's session.
func (m *Manager[S]) Get(groupID string) (S, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[groupID]
	return s, ok
}

// HasActive reports whether the group has an active session.
func (m *Manager[S]) HasActive(groupID string) bool {
	s, ok := m.Get(groupID)
	return ok && s.Base().IsActive()
}

// ListActive returns a copy of the group to session map.
func (m *Manager[S]) ListActive() map[string]S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]S, len(m.sessions))
	for k, v := range m.sessions {
		out[k] = v
	}
	return out
}

// Count returns the number of active sessions.
func (m *Manager[S]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Update runs fn against the group's live session while holding that
// session's mutation lock. If the session was ended or replaced before the
// lock was acquired, fn is not called and ErrNoSession is returned. When fn
// returns ErrEnd the session is ended and ended is true; any other error is
// passed through.
//
// fn must not call Start or End on the same manager.
func (m *Manager[S]) Update(groupID string, fn func(S) error) (ended bool, err error) {
	s, ok := m.Get(groupID)
	if !ok {
		return false, ErrNoSession
	}

	b := s.Base()
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.IsActive() {
		return false, ErrNoSession
	}

	if err := fn(s); err != nil {
		if errors.Is(err, ErrEnd) {
			return m.endIfCurrent(groupID, s), nil
		}
		return false, err
	}
	return false, nil
}
