package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/streamscribe/internal/observe"
	"github.com/MrWong99/streamscribe/internal/transcript"
)

// StoreGuard wraps a [transcript.Store] and makes writes non-fatal. When the
// underlying store fails, Append logs a warning and returns nil so the
// stream keeps transcribing. IsDegraded reports whether the most recent
// operation failed.
//
// All methods are safe for concurrent use.
type StoreGuard struct {
	store    transcript.Store
	metrics  *observe.Metrics
	degraded atomic.Bool
}

// NewStoreGuard creates a [StoreGuard] wrapping store. A nil metrics uses
// observe.DefaultMetrics().
func NewStoreGuard(store transcript.Store, metrics *observe.Metrics) *StoreGuard {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &StoreGuard{store: store, metrics: metrics}
}

// Append writes e to the underlying store. On failure the error is logged
// and swallowed; the store is marked as degraded.
func (g *StoreGuard) Append(ctx context.Context, e transcript.Entry) error {
	if err := g.store.Append(ctx, e); err != nil {
		g.degraded.Store(true)
		g.metrics.StoreErrors.Add(ctx, 1)
		slog.Warn("store guard: append failed, dropping entry",
			"session_id", e.SessionID,
			"err", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// Entries reads from the underlying store. Unlike Append, read errors are
// returned to the caller; failures other than an unknown session mark the
// store as degraded.
func (g *StoreGuard) Entries(ctx context.Context, sessionID string) ([]transcript.Entry, error) {
	entries, err := g.store.Entries(ctx, sessionID)
	switch {
	case err == nil:
		g.degraded.Store(false)
	case errors.Is(err, transcript.ErrSessionNotFound):
	default:
		g.degraded.Store(true)
		g.metrics.StoreErrors.Add(ctx, 1)
	}
	return entries, err
}

// IsDegraded reports whether the most recent store operation failed.
func (g *StoreGuard) IsDegraded() bool {
	return g.degraded.Load()
}

var _ transcript.Store = (*StoreGuard)(nil)
