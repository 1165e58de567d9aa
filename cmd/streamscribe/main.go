// Command streamscribe is the entry point of the streaming transcription
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/streamscribe/internal/app"
	"github.com/MrWong99/streamscribe/internal/config"
	"github.com/MrWong99/streamscribe/internal/observe"
	"github.com/MrWong99/streamscribe/pkg/provider/asr"
	"github.com/MrWong99/streamscribe/pkg/provider/asr/openai"
	"github.com/MrWong99/streamscribe/pkg/provider/asr/whisper"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "streamscribe: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "streamscribe: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger := newLogger(level)
	slog.SetDefault(logger)

	slog.Info("streamscribe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build backends", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(level), app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	exit := serve(ctx, application, *configPath, *watch)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// serve warms the backend up and runs the server and the config watcher
// until ctx is cancelled.
func serve(ctx context.Context, application *app.App, configPath string, watch bool) int {
	if err := application.Warmup(ctx); err != nil {
		slog.Error("backend warm-up failed", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	if watch {
		w, err := config.NewWatcher(configPath, application.ApplyConfig, config.WithWatcherLogger(slog.Default()))
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	return 0
}

// registerBuiltinBackends wires the backend factories into reg. Each factory
// maps a config.ProviderEntry onto the implementation's options.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterBackend("whisper-native", func(entry config.ProviderEntry) (asr.Backend, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path", "")
		}
		return whisper.NewNative(modelPath,
			whisper.WithOptions(recognitionOptions(entry)),
			whisper.WithThreads(entry.OptInt("threads", 0)),
		)
	})

	reg.RegisterBackend("whisper", func(entry config.ProviderEntry) (asr.Backend, error) {
		opts := []whisper.Option{whisper.WithServerOptions(recognitionOptions(entry))}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, whisper.WithHTTPClient(&http.Client{Timeout: d}))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterBackend("openai", func(entry config.ProviderEntry) (asr.Backend, error) {
		opts := []openai.Option{
			openai.WithOptions(recognitionOptions(entry)),
			openai.WithMaxRetries(entry.OptInt("max_retries", -1)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range reg.Backends() {
		slog.Debug("registered backend", "name", name)
	}
}

// recognitionOptions extracts the options shared by every backend.
func recognitionOptions(entry config.ProviderEntry) asr.Options {
	return asr.Options{
		Language:  entry.OptString("language", config.DefaultLanguage),
		Translate: entry.OptBool("translate", false),
		BeamSize:  entry.OptInt("beam_size", 0),
		VADFilter: entry.OptBool("vad_filter", false),
	}
}

// buildProviders instantiates the primary backend and every fallback.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	entries := append([]config.ProviderEntry{cfg.Backend}, cfg.Fallbacks...)
	for i, entry := range entries {
		b, err := reg.CreateBackend(entry)
		if err != nil {
			return nil, err
		}
		name := entry.Name
		if i > 0 {
			name = fmt.Sprintf("%s#%d", entry.Name, i)
		}
		ps.Backends = append(ps.Backends, app.NamedBackend{Name: name, Backend: b})
		slog.Info("backend created", "name", name, "model", entry.Model, "fallback", i > 0)
	}
	return ps, nil
}

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
