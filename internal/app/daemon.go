// Package app composes the daemon: engine, journal, fold service,
// settlement recorder, event hub and HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"clearline/go-engine/internal/config"
	"clearline/go-engine/internal/events"
	"clearline/go-engine/internal/fold"
	"clearline/go-engine/internal/httpapi"
	"clearline/go-engine/internal/journal"
	"clearline/go-engine/internal/journal/memory"
	"clearline/go-engine/internal/journal/sqlite"
	"clearline/go-engine/internal/metrics"
	"clearline/go-engine/internal/platform/privacylog"
	"clearline/go-engine/internal/platform/ratelimiter"
	"clearline/go-engine/internal/settlement"
	"clearline/go-engine/pkg/engine"
	"clearline/go-engine/pkg/sign"
)

const (
	serviceName     = "clearline-engine"
	eventHistory    = 256
	submitIdleTTL   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Daemon is a fully wired instance ready to serve.
type Daemon struct {
	cfg     config.Config
	logger  *slog.Logger
	store   journal.Store
	service *fold.Service
	hub     *events.Hub
	metrics *metrics.Set
	server  *http.Server
}

// NewLogger builds the daemon logger: JSON to stdout behind the
// sanitizer.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(privacylog.WrapHandler(handler))
}

// Build validates cfg and wires every component. The returned daemon
// owns the journal store until Run returns.
func Build(cfg config.Config, logger *slog.Logger, version string) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewLogger(cfg.LogLevel)
	}

	var engineOpts []engine.Option
	if len(cfg.SupportedVersions) > 0 {
		engineOpts = append(engineOpts, engine.WithSupportedVersions(cfg.SupportedVersions...))
	}
	eng, err := engine.New(sign.NewEcdsaVerifier(), engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	var store journal.Store
	switch cfg.JournalBackend {
	case "sqlite":
		store, err = sqlite.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	default:
		store = memory.New()
	}

	set := metrics.New()
	hub := events.NewHub(eventHistory)
	svc := fold.NewService(store, eng, logger, set, fold.WithNotify(func(n fold.Notification) {
		kind := events.KindActionApplied
		if n.Code != "" {
			kind = events.KindActionRejected
		}
		hub.Publish(kind, n.Channel, n)
	}))

	info := httpapi.Info{
		Service:           serviceName,
		Version:           version,
		ProtocolVersion:   engine.CurrentVersion,
		SupportedVersions: eng.SupportedVersions(),
		Advertise:         cfg.Advertise,
	}
	api := httpapi.NewServer(svc, settlement.NewMemoryRecorder(), logger, info,
		httpapi.WithMetrics(set),
		httpapi.WithSubmitLimiter(ratelimiter.New(cfg.SubmitRate, cfg.SubmitBurst, submitIdleTTL)),
		httpapi.WithEvents(hub),
	)

	return &Daemon{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		service: svc,
		hub:     hub,
		metrics: set,
		server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           api.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler exposes the HTTP surface for in-process callers.
func (d *Daemon) Handler() http.Handler {
	return d.server.Handler
}

// Service exposes the fold service for in-process callers.
func (d *Daemon) Service() *fold.Service {
	return d.service
}

// Run serves until ctx is canceled, then drains connections and
// closes the journal.
func (d *Daemon) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("daemon listening",
			"addr", d.cfg.Listen,
			"journal", d.cfg.JournalBackend,
		)
		errCh <- d.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = d.closeStore()
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := d.server.Shutdown(shutdownCtx)
	if closeErr := d.closeStore(); err == nil {
		err = closeErr
	}
	d.logger.Info("daemon stopped")
	return err
}

func (d *Daemon) closeStore() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}
