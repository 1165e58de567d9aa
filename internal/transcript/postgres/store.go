package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/streamscribe/internal/transcript"
)

var _ transcript.Store = (*Store)(nil)

// Store persists transcript entries in PostgreSQL. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append implements [transcript.Store]. A zero Seq is assigned as one past
// the session's highest sequence number; a zero CreatedAt uses now().
func (s *Store) Append(ctx context.Context, e transcript.Entry) error {
	const q = `
		INSERT INTO transcript_entries
		    (session_id, seq, start_sec, end_sec, text, raw_text, final, created_at)
		VALUES (
		    $1,
		    CASE WHEN $2::bigint > 0 THEN $2::bigint
		         ELSE (SELECT COALESCE(MAX(seq), 0) + 1 FROM transcript_entries WHERE session_id = $1)
		    END,
		    $3, $4, $5, $6, $7,
		    COALESCE($8::timestamptz, now())
		)`

	var createdAt any
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}
	_, err := s.pool.Exec(ctx, q,
		e.SessionID,
		e.Seq,
		e.Start,
		e.End,
		e.Text,
		e.RawText,
		e.Final,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: append: %w", err)
	}
	return nil
}

// Entries implements [transcript.Store].
func (s *Store) Entries(ctx context.Context, sessionID string) ([]transcript.Entry, error) {
	const q = `
		SELECT session_id, seq, start_sec, end_sec, text, raw_text, final, created_at
		FROM   transcript_entries
		WHERE  session_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Entry, error) {
		var e transcript.Entry
		err := row.Scan(&e.SessionID, &e.Seq, &e.Start, &e.End, &e.Text, &e.RawText, &e.Final, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if len(entries) == 0 {
		return nil, transcript.ErrSessionNotFound
	}
	return entries, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}
