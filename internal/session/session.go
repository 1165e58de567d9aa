// Package session runs live transcription streams.
//
// A [Session] owns one [stream.Processor] and a worker loop that coalesces
// incoming audio into iterations, corrects and stores confirmed fragments,
// and hands [Event] values to the transport. The [Manager] tracks live
// sessions and enforces the concurrency limit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/streamscribe/internal/observe"
	"github.com/MrWong99/streamscribe/internal/stream"
	"github.com/MrWong99/streamscribe/internal/transcript"
	"github.com/MrWong99/streamscribe/pkg/provider/asr"
	"github.com/MrWong99/streamscribe/pkg/provider/sentence"
)

// ErrClosed is returned by [Session.Feed] after the input was closed.
var ErrClosed = errors.New("session: input closed")

const (
	defaultMinChunkSeconds = 1.0
	defaultQueueSize       = 64
)

// EventType identifies the kind of [Event].
type EventType string

const (
	// EventTranscript carries confirmed text. It is final.
	EventTranscript EventType = "transcript"
	// EventPartial carries the current tentative tail.
	EventPartial EventType = "partial"
	// EventRemainder carries the unconfirmed tail at end of stream.
	EventRemainder EventType = "remainder"
	// EventError reports a failed iteration. The session continues.
	EventError EventType = "error"
)

// Event is one message produced by a session.
type Event struct {
	Type  EventType
	Start float64
	End   float64
	Text  string
	// RawText is the uncorrected text when vocabulary correction changed it.
	RawText string
	Final   bool
	Err     error
}

// Config holds the dependencies and tuning of a [Session].
type Config struct {
	// ID identifies the session. The [Manager] assigns one when empty.
	ID string

	// Backend transcribes the audio window. Required.
	Backend asr.Backend

	// BackendName labels metrics.
	BackendName string

	// Segmenter splits confirmed text into sentences. Required.
	Segmenter sentence.Segmenter

	// Corrector rewrites outgoing text. Optional.
	Corrector *transcript.Corrector

	// Store receives confirmed fragments and the remainder. Optional.
	Store transcript.Store

	// InitialPrompt is used while there is no confirmed history.
	InitialPrompt string

	// MinChunkSeconds is the new audio needed before an iteration runs.
	// Defaults to 1.0.
	MinChunkSeconds float64

	// BufferTrimSeconds and PromptChars tune the processor; zero keeps its
	// defaults and a negative PromptChars disables the history prompt.
	BufferTrimSeconds float64
	PromptChars       int

	// EmitPartials enables [EventPartial] after every iteration.
	EmitPartials bool

	// QueueSize bounds buffered audio chunks before Feed blocks. Defaults
	// to 64.
	QueueSize int

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Info is a snapshot of a session.
type Info struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	Backend         string    `json:"backend"`
	ReceivedSeconds float64   `json:"received_seconds"`
	Offset          float64   `json:"offset"`
	WordsCommitted  int       `json:"words_committed"`
	Iterations      int       `json:"iterations"`
}

// Session is a single live stream. Feed and CloseInput may be called from a
// different goroutine than Run.
type Session struct {
	cfg    Config
	proc   *stream.Processor
	audio  chan []float32
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}

	mu   sync.Mutex
	info Info
}

// New creates a Session and its processor.
func New(cfg Config) (*Session, error) {
	if cfg.MinChunkSeconds <= 0 {
		cfg.MinChunkSeconds = defaultMinChunkSeconds
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.BackendName == "" {
		cfg.BackendName = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	logger := cfg.Logger.With("session_id", cfg.ID)

	opts := []stream.Option{
		stream.WithLogger(logger),
		stream.WithMetrics(cfg.Metrics),
		stream.WithBackendName(cfg.BackendName),
		stream.WithBufferTrimSeconds(cfg.BufferTrimSeconds),
	}
	switch {
	case cfg.PromptChars > 0:
		opts = append(opts, stream.WithPromptChars(cfg.PromptChars))
	case cfg.PromptChars < 0:
		opts = append(opts, stream.WithPromptChars(0))
	}
	proc, err := stream.New(cfg.Backend, cfg.Segmenter, opts...)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	now := time.Now().UTC()
	return &Session{
		cfg:    cfg,
		proc:   proc,
		audio:  make(chan []float32, cfg.QueueSize),
		logger: logger,
		closed: make(chan struct{}),
		info:   Info{ID: cfg.ID, StartedAt: now, Backend: cfg.BackendName},
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.cfg.ID }

// Info returns a snapshot of the session's progress.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Feed queues mono samples at asr.SampleRate. It blocks while the queue is
// full and returns ErrClosed after CloseInput.
func (s *Session) Feed(ctx context.Context, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	select {
	case s.audio <- samples:
		return nil
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseInput marks the end of the audio stream. Run drains queued audio,
// emits the remainder and returns. Safe to call more than once.
func (s *Session) CloseInput() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Run processes audio until the input is closed and drained or ctx is
// cancelled. Events are passed to emit in order; an emit error stops the
// session and is returned.
//
// However Run ends, the unconfirmed tail is written to the store before it
// returns, so a client that drops mid-stream still leaves its remainder in
// the transcript.
//
// Audio arriving while an iteration runs is coalesced into the next one.
// After the input closes, leftover audio shorter than MinChunkSeconds is
// still processed once, then the unconfirmed tail is emitted as
// [EventRemainder] and the processor is reset.
func (s *Session) Run(ctx context.Context, emit func(Event) error) error {
	minSamples := int(s.cfg.MinChunkSeconds * asr.SampleRate)
	var pending []float32

	for {
		closed := false
		select {
		case chunk := <-s.audio:
			pending = append(pending, chunk...)
		case <-s.closed:
			closed = true
		case <-ctx.Done():
			return s.abort(ctx, ctx.Err())
		}
		pending = s.drain(pending)

		if len(pending) < minSamples && !closed {
			continue
		}
		if len(pending) > 0 {
			if err := s.iterate(ctx, pending, emit); err != nil {
				return s.abort(ctx, err)
			}
			pending = nil
		}
		if closed && len(s.audio) == 0 {
			return s.finish(ctx, emit)
		}
	}
}

// drain appends every queued chunk without blocking.
func (s *Session) drain(pending []float32) []float32 {
	for {
		select {
		case chunk := <-s.audio:
			pending = append(pending, chunk...)
		default:
			return pending
		}
	}
}

func (s *Session) iterate(ctx context.Context, samples []float32, emit func(Event) error) error {
	s.proc.InsertAudioChunk(samples)
	s.mu.Lock()
	s.info.ReceivedSeconds += float64(len(samples)) / asr.SampleRate
	s.mu.Unlock()

	ictx, span := observe.StartSpan(ctx, "session.iterate", trace.WithAttributes(observe.SessionIDKey.String(s.cfg.ID)))
	frag, err := s.proc.ProcessIter(ictx, s.cfg.InitialPrompt)
	span.End()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		observe.WithSpan(ictx, s.logger).Warn("iteration failed, continuing", "err", err)
		return emit(Event{Type: EventError, Err: err})
	}

	s.mu.Lock()
	s.info.Iterations++
	s.info.WordsCommitted += len(frag.Words)
	s.info.Offset = s.proc.Offset()
	s.mu.Unlock()

	if !frag.Empty() {
		ev := s.event(EventTranscript, frag, true)
		s.store(ctx, ev)
		if err := emit(ev); err != nil {
			return err
		}
	}
	if s.cfg.EmitPartials {
		if tail := s.proc.Tentative(); !tail.Empty() {
			return emit(s.event(EventPartial, tail, false))
		}
	}
	return nil
}

func (s *Session) finish(ctx context.Context, emit func(Event) error) error {
	rest := s.proc.Finish()
	s.proc.Init()
	s.logger.Info("stream finished", "remainder", rest.Text)
	if rest.Empty() {
		return nil
	}
	ev := s.event(EventRemainder, rest, false)
	s.store(ctx, ev)
	return emit(ev)
}

// abort flushes the remainder to the store without delivering it and
// returns err.
func (s *Session) abort(ctx context.Context, err error) error {
	s.logger.Warn("stream aborted", "err", err)
	_ = s.finish(ctx, func(Event) error { return nil })
	return err
}

// event builds an Event from f, applying vocabulary correction.
func (s *Session) event(typ EventType, f stream.Fragment, final bool) Event {
	ev := Event{Type: typ, Start: f.Start, End: f.End, Text: f.Text, Final: final}
	if s.cfg.Corrector != nil {
		if text, fixes := s.cfg.Corrector.Correct(f.Text); len(fixes) > 0 {
			ev.Text, ev.RawText = text, f.Text
			s.logger.Debug("vocabulary corrected", "raw", f.Text, "text", text, "count", len(fixes))
		}
	}
	return ev
}

func (s *Session) store(ctx context.Context, ev Event) {
	if s.cfg.Store == nil {
		return
	}
	// Append failures are handled by the store itself (see StoreGuard). The
	// write outlives ctx so a cancelled stream still persists its tail.
	_ = s.cfg.Store.Append(context.WithoutCancel(ctx), transcript.Entry{
		SessionID: s.cfg.ID,
		Start:     ev.Start,
		End:       ev.End,
		Text:      ev.Text,
		RawText:   ev.RawText,
		Final:     ev.Final,
	})
}
