package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/streamscribe/internal/observe"
)

// ErrTooManySessions is returned by [Manager.Open] when the concurrency
// limit is reached.
var ErrTooManySessions = errors.New("session: too many concurrent sessions")

// ErrDuplicateID is returned by [Manager.Open] when a live session already
// uses the requested id.
var ErrDuplicateID = errors.New("session: id already in use")

// ManagerOption is a functional option for configuring a [Manager].
type ManagerOption func(*Manager)

// WithMaxConcurrent limits live sessions. Zero or negative means unlimited.
func WithMaxConcurrent(n int) ManagerOption {
	return func(m *Manager) { m.limit = n }
}

// WithManagerMetrics sets the metrics sink. Defaults to
// observe.DefaultMetrics().
func WithManagerMetrics(metrics *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager tracks live sessions. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	limit    int
	metrics  *observe.Metrics
}

// NewManager creates a Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{sessions: make(map[string]*Session)}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// SetMaxConcurrent changes the limit for future Open calls. Live sessions
// are not affected.
func (m *Manager) SetMaxConcurrent(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = n
}

// Open creates and registers a session. An empty cfg.ID is replaced with a
// random UUID.
func (m *Manager) Open(ctx context.Context, cfg Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limit > 0 && len(m.sessions) >= m.limit {
		m.metrics.SessionsRejected.Add(ctx, 1)
		return nil, ErrTooManySessions
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if _, exists := m.sessions[cfg.ID]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateID, cfg.ID)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = m.metrics
	}

	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	m.sessions[cfg.ID] = s
	m.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session opened", "session_id", cfg.ID, "backend", cfg.BackendName, "active", len(m.sessions))
	return s, nil
}

// Close unregisters the session with id and closes its input. Unknown ids
// are ignored.
func (m *Manager) Close(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.CloseInput()
	m.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session closed", "session_id", id, "active", active)
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns snapshots of all live sessions ordered by start time.
func (m *Manager) List() []Info {
	m.mu.Lock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.Unlock()

	slices.SortFunc(infos, func(a, b Info) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes the input of every live session. Their Run loops finish
// their remaining work and return.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(ctx, id)
	}
}
