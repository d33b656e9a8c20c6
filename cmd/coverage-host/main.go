package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/circleci-coverage/internal/aggregator"
	"github.com/kjstillabower/circleci-coverage/internal/config"
	"github.com/kjstillabower/circleci-coverage/internal/host"
	httphandler "github.com/kjstillabower/circleci-coverage/internal/http"
	"github.com/kjstillabower/circleci-coverage/internal/lifecycle"
	"github.com/kjstillabower/circleci-coverage/internal/observability"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	registry := host.NewRegistry()
	agg, err := aggregator.Activate(cfg.OutputFile, cfg.Enabled, registry, aggregator.Options{
		Root:            cfg.Root,
		ExcludeSegments: cfg.ExcludeSegments,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("aggregator", zap.Error(err))
	}
	if agg == nil {
		logger.Info("coverage collection disabled", zap.String("env", config.CoverageEnvVar))
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		logger.Info("task rate limit enabled", zap.Int("rps", cfg.RateLimitRPS), zap.Int("burst", cfg.RateLimitBurst))
	}
	handler := httphandler.NewHandler(registry, logger)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout + time.Second,
	}

	go func() {
		logger.Info("coverage host starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	select {
	case <-ctx.Done():
		logger.Info("graceful shutdown triggered")
		if !registry.IsComplete() && agg != nil {
			logger.Warn("run aborted before completion; coverage not written", zap.String("session_id", agg.SessionID()))
		}
	case <-registry.Done():
		logger.Info("run complete; shutting down")
	}
	stop()

	lifecycle.Advance(lifecycle.ShuttingDown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if err := handler.CompleteErr(); err != nil {
		logger.Error("coverage write failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
