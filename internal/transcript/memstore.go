package transcript

import (
	"context"
	"slices"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store]. Entries are lost on
// restart. The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]Entry)}
}

// Append implements [Store.Append].
func (s *MemStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[string][]Entry)
	}
	entries := s.sessions[e.SessionID]
	if e.Seq == 0 {
		e.Seq = int64(len(entries)) + 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.sessions[e.SessionID] = append(entries, e)
	return nil
}

// Entries implements [Store.Entries].
func (s *MemStore) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b Entry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out, nil
}
