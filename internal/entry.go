// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/cueflow/internal/api"
	"github.com/starford/cueflow/internal/dmx"
	"github.com/starford/cueflow/internal/engine"
	"github.com/starford/cueflow/internal/library"
	"github.com/starford/cueflow/internal/mcpserver"
	"github.com/starford/cueflow/internal/output"
	"github.com/starford/cueflow/internal/showservice"
	"github.com/starford/cueflow/internal/sse"
	"github.com/starford/cueflow/internal/storage"
	"github.com/starford/cueflow/internal/timeline"
	"github.com/starford/cueflow/internal/transport"
)

// buildAdapters constructs the enabled protocol adapters.
func buildAdapters(cfg *Config, logger *slog.Logger) ([]output.Adapter, *output.ArtNet, error) {
	var adapters []output.Adapter
	var artnet *output.ArtNet

	if cfg.Outputs.ArtNet.Enabled {
		a, err := output.NewArtNet(cfg.Outputs.ArtNet.Target)
		if err != nil {
			return nil, nil, fmt.Errorf("init artnet output: %w", err)
		}
		adapters = append(adapters, a)
		artnet = a
		logger.Info("Art-Net output enabled", slog.String("target", cfg.Outputs.ArtNet.Target))
	}
	if cfg.Outputs.MIDI.Enabled {
		adapters = append(adapters, output.NewMIDI())
		logger.Info("MIDI output enabled")
	}
	if cfg.Outputs.OSC.Enabled {
		adapters = append(adapters, output.NewOSC())
		logger.Info("OSC output enabled")
	}
	return adapters, artnet, nil
}

// buildEngine wires the playback engine from config and hooks its state
// stream into the SSE broker.
func buildEngine(cfg *Config, adapters []output.Adapter, broker *sse.Broker, logger *slog.Logger) *engine.Engine {
	opts := engine.Options{
		TickInterval: cfg.Engine.TickInterval,
		SendTimeout:  cfg.Engine.SendTimeout,
		FadeEnd:      engine.FadeEndPolicy(cfg.Engine.FadeEnd),
		SeekTriggers: engine.TriggerSeekPolicy(cfg.Engine.SeekTriggers),
		SeekMode:     transport.SeekMode(cfg.Engine.SeekMode),
		Logger:       logger,
	}
	if broker != nil {
		opts.OnState = func(snap transport.Snapshot) {
			broker.PublishTransport(snap)
		}
		opts.OnFailure = func(f engine.Failure) {
			broker.Publish(sse.Event{Type: "output.failure", Data: f})
		}
	}
	eng := engine.New(adapters, opts)
	if cfg.Filters.Path != "" {
		if err := eng.ReloadFilters(cfg.Filters.Path); err != nil {
			logger.Warn("initial filter config load failed",
				slog.String("path", cfg.Filters.Path), slog.String("error", err.Error()))
		}
	}
	return eng
}

// watchFilters hot reloads the DMX filter configuration when the file
// changes. Invalid configs disable DMX output until a good one lands.
func watchFilters(ctx context.Context, eng *engine.Engine, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filter watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editor rename-into-place saves are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch filter config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := eng.ReloadFilters(path); err != nil {
				logger.Warn("filter config reload failed",
					slog.String("path", path), slog.String("error", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("filter watcher error", slog.String("error", err.Error()))
		}
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure library directory exists.
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite catalog.
	db, err := library.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}
	defer db.Close()

	// Run initial sync.
	if err := library.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(100 * time.Millisecond)
	defer broker.Close()

	// Protocol adapters and playback engine.
	adapters, artnet, err := buildAdapters(cfg, logger)
	if err != nil {
		return err
	}
	eng := buildEngine(cfg, adapters, broker, logger)

	// Build API service and router.
	svc := showservice.NewService(store, db, eng)
	apiRouter := api.NewRouter(svc, eng, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Filters.Path)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start playback engine.
	g.Go(func() error {
		return eng.Run(gCtx)
	})

	// Start Art-Net keep-alive refresh.
	if artnet != nil && cfg.Outputs.ArtNet.RefreshInterval > 0 {
		g.Go(func() error {
			artnet.Refresh(gCtx, cfg.Outputs.ArtNet.RefreshInterval)
			return nil
		})
	}

	// Start library watcher with SSE callback.
	g.Go(func() error {
		return library.Watch(gCtx, db, store, cfg.Library.Path, logger, func(kind, path string) {
			broker.PublishShowEvent(kind, path)
		})
	})

	// Start filter config hot reload.
	if cfg.Filters.Path != "" {
		g.Go(func() error {
			return watchFilters(gCtx, eng, cfg.Filters.Path, logger)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunRecord captures Art-Net traffic into a new show file. It records
// until ctx is cancelled or maxDuration elapses (zero means unbounded),
// then encodes the capture and writes it into the library.
func RunRecord(ctx context.Context, cfg *Config, listen, outPath string, maxDuration time.Duration) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if !timeline.IsShowFile(outPath) {
		return fmt.Errorf("output path %q is not a show file (.json, .json.gz or .mpk)", outPath)
	}
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Honor the universe filter from the DMX filter config, if any.
	allowed := func(int) bool { return true }
	if cfg.Filters.Path != "" {
		if fc, err := dmx.LoadConfig(cfg.Filters.Path); err == nil {
			eng := dmx.NewEngine(fc)
			allowed = eng.UniverseAllowed
		} else {
			logger.Warn("filter config load failed, capturing all universes",
				slog.String("path", cfg.Filters.Path), slog.String("error", err.Error()))
		}
	}

	rec, err := output.NewRecorder(listen, allowed)
	if err != nil {
		return err
	}
	defer rec.Close()

	recCtx := ctx
	if maxDuration > 0 {
		var cancel context.CancelFunc
		recCtx, cancel = context.WithTimeout(ctx, maxDuration)
		defer cancel()
	}

	logger.Info("recording Art-Net traffic", slog.String("listen", listen), slog.String("output", outPath))
	if err := rec.Run(recCtx); err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
	tl := rec.Timeline(name)
	if len(tl.Tracks) == 0 {
		return fmt.Errorf("no ArtDMX traffic captured")
	}
	data, err := timeline.Encode(outPath, tl)
	if err != nil {
		return err
	}
	if err := store.Write(outPath, data); err != nil {
		return err
	}
	logger.Info("recording saved",
		slog.String("path", outPath),
		slog.Int("tracks", len(tl.Tracks)),
		slog.Float64("duration", tl.Duration()))
	return nil
}

// RunMCP starts the MCP server on stdio. The playback engine runs in the
// background so transport tools drive real output.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Log to stderr; stdout carries the MCP protocol.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	db, err := library.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}
	defer db.Close()

	if err := library.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	adapters, _, err := buildAdapters(cfg, logger)
	if err != nil {
		return err
	}
	eng := buildEngine(cfg, adapters, nil, logger)
	svc := showservice.NewService(store, db, eng)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gCtx)
	})
	g.Go(func() error {
		defer logger.Info("MCP server stopped")
		return mcpserver.New(svc, db, eng).ServeStdio()
	})
	return g.Wait()
}
