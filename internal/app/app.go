// Package app wires the streamscribe subsystems into a running server.
//
// The App owns the full lifecycle: New builds the backend group, the
// transcript store, the vocabulary corrector, the session manager and the
// HTTP surface; Warmup primes the backend; Run serves until the context is
// cancelled; Shutdown releases stores and models in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/streamscribe/internal/config"
	"github.com/MrWong99/streamscribe/internal/health"
	"github.com/MrWong99/streamscribe/internal/observe"
	"github.com/MrWong99/streamscribe/internal/resilience"
	"github.com/MrWong99/streamscribe/internal/server"
	"github.com/MrWong99/streamscribe/internal/session"
	"github.com/MrWong99/streamscribe/internal/transcript"
	"github.com/MrWong99/streamscribe/internal/transcript/phonetic"
	"github.com/MrWong99/streamscribe/internal/transcript/postgres"
	"github.com/MrWong99/streamscribe/pkg/audio"
	"github.com/MrWong99/streamscribe/pkg/provider/asr"
	"github.com/MrWong99/streamscribe/pkg/provider/sentence"
)

// shutdownTimeout bounds the HTTP server drain after Run's context ends.
const shutdownTimeout = 10 * time.Second

// NamedBackend pairs a recognition backend with its configured name.
type NamedBackend struct {
	Name    string
	Backend asr.Backend
}

// Providers holds the instantiated backends, primary first. Populated by
// main.go via the config registry.
type Providers struct {
	Backends []NamedBackend
}

// App owns all subsystem lifetimes.
type App struct {
	logger   *slog.Logger
	level    *slog.LevelVar
	metrics  *observe.Metrics
	listener net.Listener

	backend   *resilience.ASRFallback
	backendID string
	segmenter sentence.Segmenter
	corrector *transcript.Corrector
	store     transcript.Store
	guard     *session.StoreGuard
	manager   *session.Manager
	ready     health.Flag
	server    *server.Server
	handler   http.Handler

	// mu guards cfg, which is replaced on hot reload.
	mu  sync.RWMutex
	cfg *config.Config

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects a transcript store instead of creating one from config.
func WithStore(s transcript.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metric instruments. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets ApplyConfig change the log level of the handler that
// was built with lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithLogger sets the application logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New creates an App from cfg and providers. It connects the transcript store
// synchronously; the backend is not exercised until [App.Warmup].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || len(providers.Backends) == 0 {
		return nil, errors.New("app: no recognition backend configured")
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}

	a.initBackend(providers)

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.guard = session.NewStoreGuard(a.store, a.metrics)

	seg, err := sentence.New(cfg.Segmenter.Engine, cfg.Segmenter.Language)
	if err != nil {
		return nil, fmt.Errorf("app: init segmenter: %w", err)
	}
	a.segmenter = seg
	a.logger.Info("sentence segmenter ready", "engine", cfg.Segmenter.Engine, "language", cfg.Segmenter.Language, "type", fmt.Sprintf("%T", seg))
	a.corrector = transcript.NewCorrector(cfg.Vocabulary.HotWords,
		transcript.WithPhoneticMatcher(phonetic.New(
			phonetic.WithPhoneticThreshold(cfg.Vocabulary.PhoneticThreshold),
			phonetic.WithFuzzyThreshold(cfg.Vocabulary.FuzzyThreshold),
		)),
	)

	a.manager = session.NewManager(
		session.WithMaxConcurrent(cfg.Sessions.MaxConcurrent),
		session.WithManagerMetrics(a.metrics),
	)
	a.handler = a.buildHandler()
	return a, nil
}

// initBackend puts every configured backend behind a circuit breaker.
func (a *App) initBackend(providers *Providers) {
	primary := providers.Backends[0]
	group := resilience.NewFallbackGroup(primary.Backend, primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Logger: a.logger},
	})
	names := []string{primary.Name}
	for _, fb := range providers.Backends[1:] {
		group.AddFallback(fb.Name, fb.Backend)
		names = append(names, fb.Name)
	}
	a.backend = resilience.NewASRFallback(group)
	a.backendID = primary.Name
	if len(names) > 1 {
		a.backendID = fmt.Sprintf("%s+%d", primary.Name, len(names)-1)
	}

	for _, nb := range providers.Backends {
		if c, ok := nb.Backend.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	a.logger.Info("backends configured", "backends", names, "separator", fmt.Sprintf("%q", a.backend.Separator()))
}

// initStore connects PostgreSQL when a DSN is configured and falls back to
// an in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		a.store = &transcript.MemStore{}
		a.logger.Info("transcript store: in-memory")
		return nil
	}
	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = pg
	a.closers = append(a.closers, func() error { pg.Close(); return nil })
	a.logger.Info("transcript store: postgres")
	return nil
}

func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	checks := []health.Checker{
		health.FlagChecker("warmup", &a.ready, "backend warm-up pending"),
		health.AvailabilityChecker("backend", a.backend),
	}
	if p, ok := a.store.(health.Pinger); ok {
		checks = append(checks, health.PingChecker("store", p))
	}
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/backends", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(a.backend.Status())
	})

	a.server = server.New(a.manager, a.guard, a.sessionConfig,
		server.WithReadLimit(a.cfg.Server.ReadLimitBytes),
		server.WithDefaultSampleRate(a.cfg.Stream.SampleRate),
		server.WithLogger(a.logger),
	)
	a.server.Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

// sessionConfig builds the configuration of a new stream from the current
// settings.
func (a *App) sessionConfig() session.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return session.Config{
		Backend:           a.backend,
		BackendName:       a.backendID,
		Segmenter:         a.segmenter,
		Corrector:         a.corrector,
		Store:             a.guard,
		InitialPrompt:     a.cfg.Stream.InitialPrompt,
		MinChunkSeconds:   a.cfg.Stream.MinChunkSeconds,
		BufferTrimSeconds: a.cfg.Stream.BufferTrimSeconds,
		PromptChars:       a.cfg.Stream.PromptChars,
		EmitPartials:      a.cfg.Stream.EmitPartials,
		QueueSize:         a.cfg.Sessions.QueueSize,
		Logger:            a.logger,
		Metrics:           a.metrics,
	}
}

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler { return a.handler }

// Ready reports whether warm-up has completed.
func (a *App) Ready() bool { return a.ready.Ready() }

// Warmup transcribes cfg.Stream.WarmupFile once so that the first stream does
// not pay for lazy model initialisation. Any failure is returned; the caller
// treats it as fatal. Without a warm-up file the backend is marked ready
// immediately.
func (a *App) Warmup(ctx context.Context) error {
	a.mu.RLock()
	path := a.cfg.Stream.WarmupFile
	a.mu.RUnlock()

	if path == "" {
		a.ready.Set()
		return nil
	}
	samples, err := audio.LoadFile(path, asr.SampleRate)
	if err != nil {
		return fmt.Errorf("app: warm-up: %w", err)
	}
	start := time.Now()
	res, err := a.backend.Transcribe(ctx, samples, "")
	if err != nil {
		return fmt.Errorf("app: warm-up: %w", err)
	}
	a.logger.Info("backend warmed up",
		"file", path,
		"audio_seconds", float64(len(samples))/asr.SampleRate,
		"took", time.Since(start).Round(time.Millisecond),
		"text", asr.JoinWords(a.backend.Words(res), a.backend.Separator()),
	)
	a.ready.Set()
	return nil
}

// Run serves HTTP until ctx is cancelled, then closes the input of every live
// stream and drains the server. It returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	a.mu.RLock()
	addr := a.cfg.Server.ListenAddr
	a.mu.RUnlock()

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
	}
	httpSrv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", "addr", ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		// Live streams emit their remainder and "done" before the server
		// goes away.
		a.manager.CloseAll(shutdownCtx)
		if err := a.server.Drain(shutdownCtx); err != nil {
			a.logger.Warn("streams still open at shutdown", "err", err)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ApplyConfig applies the hot-reloadable part of a config change. It is the
// callback handed to [config.NewWatcher]. Settings affect new streams only.
func (a *App) ApplyConfig(diff config.ConfigDiff, cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if diff.LogLevelChanged {
		a.level.Set(SlogLevel(diff.NewLogLevel))
		a.logger.Info("log level changed", "level", string(diff.NewLogLevel))
	}
	if diff.HotWordsChanged {
		a.corrector.SetHotWords(diff.NewHotWords)
		a.logger.Info("hot words updated", "count", len(diff.NewHotWords))
	}
	if diff.MaxConcurrentChanged {
		a.manager.SetMaxConcurrent(diff.NewMaxConcurrent)
		a.logger.Info("session limit changed", "max_concurrent", diff.NewMaxConcurrent)
	}
	if diff.InitialPromptChanged || diff.EmitPartialsChanged {
		a.logger.Info("stream defaults changed",
			"initial_prompt", diff.NewInitialPrompt,
			"emit_partials", diff.NewEmitPartials,
		)
	}
	if len(diff.RestartRequired) > 0 {
		a.logger.Warn("config changes need a restart", "sections", diff.RestartRequired)
	}

	// Keep everything that needs a restart as it was at startup.
	next := *a.cfg
	next.Server.LogLevel = cfg.Server.LogLevel
	next.Vocabulary.HotWords = slices.Clone(cfg.Vocabulary.HotWords)
	next.Stream.InitialPrompt = cfg.Stream.InitialPrompt
	next.Stream.EmitPartials = cfg.Stream.EmitPartials
	next.Sessions.MaxConcurrent = cfg.Sessions.MaxConcurrent
	a.cfg = &next
}

// Shutdown releases stores and backends. It respects the context deadline:
// remaining closers are skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, err)
				return
			}
			if err := closer(); err != nil {
				errs = append(errs, err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// SlogLevel maps a config level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
