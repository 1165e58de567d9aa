// Package server exposes live transcription sessions over WebSocket.
//
// A client opens GET /v1/stream, sends audio as binary frames and receives
// JSON [Message] frames: confirmed transcript fragments as they are
// committed, optional tentative partials, the remainder at end of stream and
// a final "done". A text frame {"type":"end"} (or closing the connection)
// ends the audio stream. Each connection owns exactly one [session.Session].
//
// Stored fragments and live session snapshots are served as plain JSON under
// /v1/sessions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/streamscribe/internal/session"
	"github.com/MrWong99/streamscribe/internal/transcript"
	"github.com/MrWong99/streamscribe/pkg/audio"
	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

const (
	defaultReadLimit    = 1 << 20
	defaultWriteTimeout = 10 * time.Second
)

// Option configures a [Server].
type Option func(*Server)

// WithReadLimit sets the maximum size in bytes of one inbound frame.
func WithReadLimit(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// WithWriteTimeout bounds each outbound frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithDefaultSampleRate sets the input rate assumed when a client omits
// sample_rate.
func WithDefaultSampleRate(hz int) Option {
	return func(s *Server) {
		if hz > 0 {
			s.sampleRate = hz
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithOriginPatterns allows cross-origin WebSocket handshakes from hosts
// matching the given patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// Server handles the streaming and session endpoints.
type Server struct {
	manager   *session.Manager
	store     transcript.Store
	newConfig func() session.Config

	readLimit      int64
	writeTimeout   time.Duration
	sampleRate     int
	originPatterns []string
	logger         *slog.Logger

	streams sync.WaitGroup
}

// New creates a Server. newConfig returns the base configuration for each new
// session; it is called once per connection so that reloaded settings apply
// to new streams. store may be nil, in which case the transcript endpoint
// answers 404.
func New(manager *session.Manager, store transcript.Store, newConfig func() session.Config, opts ...Option) *Server {
	s := &Server{
		manager:      manager,
		store:        store,
		newConfig:    newConfig,
		readLimit:    defaultReadLimit,
		writeTimeout: defaultWriteTimeout,
		sampleRate:   asr.SampleRate,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Register adds the server routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}/transcript", s.handleTranscript)
}

// Drain waits until every open stream has finished or ctx is done. Callers
// close the sessions' input first (see [session.Manager.CloseAll]).
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// streamParams are the query parameters of the stream endpoint.
type streamParams struct {
	id            string
	encoding      audio.Encoding
	format        audio.Format
	initialPrompt *string
	partials      *bool
}

func parseStreamParams(r *http.Request, defaultRate int) (streamParams, error) {
	q := r.URL.Query()
	p := streamParams{
		id:     q.Get("session_id"),
		format: audio.Format{SampleRate: defaultRate, Channels: 1},
	}
	enc, err := audio.ParseEncoding(q.Get("encoding"))
	if err != nil {
		return p, err
	}
	p.encoding = enc
	if v := q.Get("sample_rate"); v != "" {
		if p.format.SampleRate, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid sample_rate %q", v)
		}
	}
	if v := q.Get("channels"); v != "" {
		if p.format.Channels, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid channels %q", v)
		}
	}
	if q.Has("initial_prompt") {
		v := q.Get("initial_prompt")
		p.initialPrompt = &v
	}
	if v := q.Get("partials"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("invalid partials %q", v)
		}
		p.partials = &b
	}
	return p, nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r, s.sampleRate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dec, err := audio.NewDecoder(params.encoding, params.format, asr.SampleRate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := s.newConfig()
	cfg.ID = params.id
	if params.initialPrompt != nil {
		cfg.InitialPrompt = *params.initialPrompt
	}
	if params.partials != nil {
		cfg.EmitPartials = *params.partials
	}

	// The session is opened before the upgrade so that rejections are plain
	// HTTP responses.
	sess, err := s.manager.Open(r.Context(), cfg)
	switch {
	case errors.Is(err, session.ErrTooManySessions):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, session.ErrDuplicateID):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("open session", "err", err)
		http.Error(w, "could not open session", http.StatusInternalServerError)
		return
	}
	defer s.manager.Close(context.WithoutCancel(r.Context()), sess.ID())
	s.streams.Add(1)
	defer s.streams.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.logger.Warn("websocket accept failed", "session_id", sess.ID(), "err", err)
		return
	}
	conn.SetReadLimit(s.readLimit)

	logger := s.logger.With("session_id", sess.ID())
	logger.Info("stream connected",
		"remote", r.RemoteAddr,
		"encoding", string(params.encoding),
		"format", params.format.String(),
	)

	if err := s.serveStream(r.Context(), conn, sess, dec); err != nil {
		logger.Warn("stream ended with error", "err", err)
		conn.Close(websocket.StatusInternalError, "stream failed")
		return
	}
	logger.Info("stream finished")
}

// serveStream runs the read loop and the session worker until the session
// has emitted its remainder or either side fails.
func (s *Server) serveStream(ctx context.Context, conn *websocket.Conn, sess *session.Session, dec *audio.Decoder) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.readLoop(gctx, conn, sess, dec)
	})

	g.Go(func() error {
		err := sess.Run(gctx, func(ev session.Event) error {
			return s.write(gctx, conn, messageFor(ev))
		})
		if err != nil {
			return err
		}
		if err := s.write(gctx, conn, Message{Type: TypeDone, SessionID: sess.ID()}); err != nil {
			return err
		}
		// Closing also ends the read loop.
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			s.logger.Debug("close handshake incomplete", "session_id", sess.ID(), "err", err)
		}
		return nil
	})

	return g.Wait()
}

// readLoop feeds binary frames to the session until the client ends the
// stream. It keeps reading after an end message so that the close handshake
// can complete. Any read failure only ends the input: the worker still drains
// queued audio and stores the remainder, whether or not the client is there
// to receive it.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, dec *audio.Decoder) error {
	ended := false
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			sess.CloseInput()
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !ended && ctx.Err() == nil {
					s.logger.Info("client disconnected without closing", "session_id", sess.ID(), "err", err)
				}
			}
			return nil
		}

		switch typ {
		case websocket.MessageBinary:
			if ended {
				continue
			}
			samples, err := dec.Decode(data)
			if err != nil {
				_ = s.write(ctx, conn, Message{Type: TypeError, Error: err.Error()})
				continue
			}
			if err := sess.Feed(ctx, samples); err != nil {
				if errors.Is(err, session.ErrClosed) {
					continue
				}
				return err
			}
		case websocket.MessageText:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != TypeEnd {
				_ = s.write(ctx, conn, Message{Type: TypeError, Error: fmt.Sprintf("unsupported control message %q", data)})
				continue
			}
			ended = true
			sess.CloseInput()
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.store == nil {
		http.Error(w, transcript.ErrSessionNotFound.Error(), http.StatusNotFound)
		return
	}
	entries, err := s.store.Entries(r.Context(), id)
	switch {
	case errors.Is(err, transcript.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("read transcript failed", "session_id", id, "err", err)
		http.Error(w, "transcript store unavailable", http.StatusServiceUnavailable)
		return
	}

	out := make([]entryJSON, len(entries))
	for i, e := range entries {
		out[i] = entryJSON{
			Seq:       e.Seq,
			Start:     e.Start,
			End:       e.End,
			Text:      e.Text,
			RawText:   e.RawText,
			Final:     e.Final,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "entries": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
