// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/api"
	"github.com/JakeFAU/scholar-cites/internal/bibliography"
	"github.com/JakeFAU/scholar-cites/internal/cache"
	"github.com/JakeFAU/scholar-cites/internal/clock/system"
	"github.com/JakeFAU/scholar-cites/internal/config"
	"github.com/JakeFAU/scholar-cites/internal/dispatcher"
	"github.com/JakeFAU/scholar-cites/internal/egress"
	"github.com/JakeFAU/scholar-cites/internal/hash/sha256"
	"github.com/JakeFAU/scholar-cites/internal/id/uuid"
	"github.com/JakeFAU/scholar-cites/internal/logging"
	"github.com/JakeFAU/scholar-cites/internal/metrics"
	"github.com/JakeFAU/scholar-cites/internal/policy/ratelimit"
	"github.com/JakeFAU/scholar-cites/internal/progress"
	progresssinks "github.com/JakeFAU/scholar-cites/internal/progress/sinks"
	"github.com/JakeFAU/scholar-cites/internal/refresh"
	"github.com/JakeFAU/scholar-cites/internal/scholar"
	"github.com/JakeFAU/scholar-cites/internal/worker"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the commands that need it.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       *cache.Store
	source      *bibliography.FileSource
	hub         *progress.Hub
	runStore    *progresssinks.RunStore
	coordinator *refresh.Coordinator
	apiServer   *api.Server
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the effective, normalized configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetStore exposes the citation cache store.
func (a *App) GetStore() *cache.Store {
	return a.store
}

// GetSource exposes the publication list source.
func (a *App) GetSource() *bibliography.FileSource {
	return a.source
}

// Refresh executes one citation refresh pass.
func (a *App) Refresh(ctx context.Context) (*refresh.Summary, error) {
	return a.coordinator.Refresh(ctx)
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logging.Set(logger)

	cfg = cfg.Normalize(logger)
	metrics.Init()

	logger.Info("building application dependencies")

	store, err := cache.NewStore(cfg.Cache.Path, logger.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("cache store init failed: %w", err)
	}

	source, err := bibliography.NewFileSource(cfg.Bibliography.Path, sha256.New(), logger.Named("bibliography"))
	if err != nil {
		return nil, fmt.Errorf("bibliography source init failed: %w", err)
	}

	rotator, err := egress.NewRotator(egress.Config{
		UseProxy:  cfg.Proxy.Enabled,
		ProxyURLs: cfg.Proxy.URLs,
		Rotations: cfg.Proxy.Rotations,
	}, logger.Named("egress"))
	if err != nil {
		return nil, fmt.Errorf("egress rotator init failed: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		MinInterval: cfg.Proxy.PerPathRate,
		Burst:       cfg.Proxy.Burst,
	})

	primary := scholar.NewCollyBackend(scholar.CollyConfig{
		UserAgent:      cfg.Scholar.UserAgent,
		RequestTimeout: cfg.Scholar.RequestTimeout,
		BaseURL:        cfg.Scholar.BaseURL,
	}, logger.Named("scholar"))

	var fallback scholar.Backend
	if cfg.Scholar.HeadlessFallback {
		hb, err := scholar.NewHeadlessBackend(scholar.HeadlessConfig{
			Enabled:   true,
			UserAgent: cfg.Scholar.UserAgent,
			Timeout:   cfg.Scholar.RequestTimeout,
			BaseURL:   cfg.Scholar.BaseURL,
		}, logger.Named("headless"))
		if err != nil {
			logger.Warn("headless fallback init failed, staying on the plain backend", zap.Error(err))
		} else {
			fallback = hb
		}
	}

	wkr := worker.New(rotator, limiter, primary, fallback, logger.Named("worker"))

	runStore := progresssinks.NewRunStore(0)
	promSink, err := progresssinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	hub := progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      logger.Named("progress_hub"),
	},
		progresssinks.NewLogSink(logger.Named("progress_log")),
		promSink,
		runStore,
	)

	disp := dispatcher.New(dispatcher.Config{
		Active:             cfg.Scholar.Active,
		MaxEntriesPerBatch: cfg.Scholar.MaxEntriesPerBatch,
		PauseMin:           cfg.Scholar.PauseMin,
		PauseMax:           cfg.Scholar.PauseMax,
		AuthorPrefetch:     cfg.Scholar.AuthorPrefetch,
	}, wkr, store, hub, system.New(), logger.Named("dispatcher"))

	coordinator := refresh.New(refresh.Budget{
		ScholarActive: cfg.Scholar.Active,
		FetchTimeout:  cfg.Scholar.FetchTimeout,
	}, store, source, disp, hub, uuid.New(), system.New(), logger.Named("refresh"))

	apiServer := api.NewServer(store, runStore, logger.Named("api"))

	logger.Info("application services initialized",
		zap.String("cache_path", cfg.Cache.Path),
		zap.String("bibliography_path", cfg.Bibliography.Path),
		zap.Bool("scholar_active", cfg.Scholar.Active),
		zap.Bool("proxy_enabled", cfg.Proxy.Enabled),
	)

	return &App{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		source:      source,
		hub:         hub,
		runStore:    runStore,
		coordinator: coordinator,
		apiServer:   apiServer,
	}, nil
}

// Run starts the HTTP server and the optional periodic refresh, blocking
// until the context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Server.RefreshInterval > 0 {
		go a.refreshLoop(ctx)
	}

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	// Resource teardown stays with the caller so Run and Close pair the
	// same way in serve mode and in one-shot commands.
	return nil
}

// refreshLoop runs one refresh immediately and then on every tick. The
// coordinator rejects overlapping passes, so a slow run just skips ticks.
func (a *App) refreshLoop(ctx context.Context) {
	a.runRefresh(ctx)

	ticker := time.NewTicker(a.cfg.Server.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runRefresh(ctx)
		}
	}
}

func (a *App) runRefresh(ctx context.Context) {
	if _, err := a.coordinator.Refresh(ctx); err != nil {
		if errors.Is(err, refresh.ErrRunInProgress) {
			a.logger.Debug("previous refresh still running, skipping tick")
			return
		}
		if ctx.Err() != nil {
			return
		}
		a.logger.Error("scheduled refresh failed", zap.Error(err))
	}
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	return nil
}
