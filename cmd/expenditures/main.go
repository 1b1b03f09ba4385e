package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expenditures/internal/backend"
	"expenditures/internal/cache"
	"expenditures/internal/calendar"
	"expenditures/internal/cli"
	apphttp "expenditures/internal/http"
	"expenditures/internal/livesync"
	"expenditures/internal/log"
	"expenditures/internal/middleware/ratelimit"
	"expenditures/internal/view"
)

const (
	shutdownTimeout   = 30 * time.Second
	cacheCleanupEvery = time.Minute
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	live := livesync.New(be.Source, livesync.Options{Collection: cfg.Collection, Logger: logger})
	live.Register(nil, func(ctx context.Context, err error) {
		logger.ErrorContext(ctx, "Live view stopped; restart the service to resubscribe", log.FieldError, err)
	})
	handle := live.Start(ctx, cfg.OrderField, cfg.Direction())

	projections := cache.NewLRUCache[view.Projection](cfg.ProjectionCacheSize, cfg.ProjectionCacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(projections)

	session := view.NewSession(live, view.Options{
		Location: cfg.Location(),
		Cache:    projections,
		Picker:   []calendar.Option{calendar.WithClock(func() time.Time { return time.Now().In(cfg.Location()) })},
		Logger:   logger,
	})

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Session: session,
		Sync:    live,
		Mutator: be.Mutator,
		Ready:   be.Ready,
		Limiter: limiter,
		Logger:  logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting expenditures server", "port", cfg.Port, "backend", cfg.DataBackend, log.FieldCollection, cfg.Collection)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return caches.Run(gctx, cacheCleanupEvery) })
	g.Go(func() error { return limiter.Run(gctx) })

	runErr := g.Wait()

	if err := live.Stop(context.Background(), handle); err != nil {
		logger.Warn("Stopping live view failed", log.FieldError, err)
	}
	if be.Cleanup != nil {
		if err := be.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}
	if runErr != nil {
		logger.Error("Server error", log.FieldError, runErr)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
