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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/keyscan/internal/api"
	"github.com/starford/keyscan/internal/apperr"
	"github.com/starford/keyscan/internal/frames"
	"github.com/starford/keyscan/internal/index"
	"github.com/starford/keyscan/internal/keyservice"
	"github.com/starford/keyscan/internal/mcpserver"
	"github.com/starford/keyscan/internal/midiout"
	"github.com/starford/keyscan/internal/sse"
)

// runtime holds the components shared by every entry point.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *frames.FS
	db     *index.DB
	svc    *keyservice.Service
}

func newRuntime(opts []Option, pub keyservice.Publisher) (*runtime, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("frames_path", cfg.Frames.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("template_path", cfg.Piano.TemplatePath),
		slog.Int("base_octave", cfg.Piano.BaseOctave),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Frames.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	store, err := frames.NewFS(cfg.Frames.Path)
	if err != nil {
		return nil, fmt.Errorf("init frames: %w", err)
	}

	template, err := frames.DecodeFile(cfg.Piano.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	recorder := midiout.NewRecorder(midiout.Options{
		Channel:  uint8(cfg.MIDI.Channel),
		Velocity: uint8(cfg.MIDI.Velocity),
		Tempo:    cfg.MIDI.Tempo,
	})

	svcOpts := []keyservice.Option{
		keyservice.WithConfig(keyservice.Config{
			Anchor:         cfg.Piano.Anchor.point(),
			BaseOctave:     cfg.Piano.BaseOctave,
			PressThreshold: cfg.Piano.PressThreshold,
		}),
		keyservice.WithRecorder(recorder),
		keyservice.WithLogger(logger),
	}
	if pub != nil {
		svcOpts = append(svcOpts, keyservice.WithPublisher(pub))
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		db:     db,
		svc:    keyservice.New(store, db, template, svcOpts...),
	}, nil
}

// prepare installs a calibration and catches up on frames written while stopped.
// A configured calibration frame wins over the stored calibration.
func (rt *runtime) prepare(ctx context.Context) {
	if frame := rt.cfg.Piano.CalibrationFrame; frame != "" {
		if _, err := rt.svc.Calibrate(ctx, frame, nil); err != nil {
			rt.logger.Warn("startup calibration failed", slog.String("frame", frame), slog.String("error", err.Error()))
		}
	} else if _, err := rt.svc.Restore(ctx); err != nil {
		if errors.Is(err, apperr.ErrNotCalibrated) {
			rt.logger.Info("no stored calibration; waiting for POST /api/calibrate")
		} else {
			rt.logger.Warn("restore calibration failed", slog.String("error", err.Error()))
		}
	}

	if err := rt.svc.Sync(ctx); err != nil && !errors.Is(err, apperr.ErrNotCalibrated) {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
}

func (rt *runtime) saveRecording() {
	path := rt.cfg.MIDI.OutputPath
	if path == "" {
		return
	}
	if err := rt.svc.SaveRecording(path); err != nil {
		rt.logger.Error("save recording failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	rt.logger.Info("recording saved", slog.String("path", path))
}

func (rt *runtime) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP server and frames watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	rt, err := newRuntime(opts, broker)
	if err != nil {
		return err
	}
	defer rt.close()
	defer rt.saveRecording()

	cfg, logger := rt.cfg, rt.logger
	rt.prepare(ctx)

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.svc.Octave(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not calibrated"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	var handler http.Handler = r
	if len(cfg.App.HTTP.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.App.HTTP.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler(r)
	}

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: handler,
	}
	// Streaming clients would otherwise hold Shutdown until its timeout.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start frames watcher.
	g.Go(func() error {
		return frames.Watch(gCtx, rt.store.Root(), cfg.Frames.Debounce, logger, func(kind, name string) {
			rt.svc.HandleFrameEvent(gCtx, kind, name)
		})
	})

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
		defer signal.Stop(quit)

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

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := newRuntime(append([]Option{WithLogOutput(os.Stderr)}, opts...), nil)
	if err != nil {
		return err
	}
	defer rt.close()
	defer rt.saveRecording()

	rt.prepare(ctx)
	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}

// Calibrate builds and stores a calibration from a frame in the frames
// directory. Logs go to stderr.
func Calibrate(ctx context.Context, frame string, opts ...Option) (*keyservice.OctaveView, error) {
	rt, err := newRuntime(append([]Option{WithLogOutput(os.Stderr)}, opts...), nil)
	if err != nil {
		return nil, err
	}
	defer rt.close()
	return rt.svc.Calibrate(ctx, frame, nil)
}
