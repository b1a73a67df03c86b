package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/abakirov/outdialer/config"
	"github.com/abakirov/outdialer/internal/caller"
	"github.com/abakirov/outdialer/internal/health"
	"github.com/abakirov/outdialer/internal/infrastructure/postgres"
	ctxlog "github.com/abakirov/outdialer/internal/log"
	"github.com/abakirov/outdialer/internal/metrics"
	"github.com/abakirov/outdialer/internal/queue"
	"github.com/abakirov/outdialer/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	dispatchQueue, err := queue.NewAMQPQueue(cfg.AMQPURL, logger)
	if err != nil {
		stop()
		log.Fatalf("amqp: %v", err)
	}
	defer dispatchQueue.Close()

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{
		"postgres": pool,
		"amqp":     dispatchQueue,
	}, logger, prometheus.DefaultRegisterer)

	callRepo := postgres.NewScheduledCallRepository(pool)
	configRepo := postgres.NewConfigRepository(pool)
	directory := postgres.NewCustomerDirectory(pool)

	gateway := caller.NewGatewayClient(cfg.CallGatewayURL, time.Duration(cfg.CallTimeoutSec)*time.Second)

	selector := scheduler.NewSelector(directory, callRepo, logger)
	orchestrator := scheduler.NewOrchestrator(selector, callRepo, configRepo, dispatchQueue, logger)

	trigger := scheduler.NewTrigger(orchestrator, configRepo, logger)
	go func() {
		if err := trigger.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("trigger stopped", "error", err)
		}
	}()

	sweeper := scheduler.NewSweeper(
		callRepo,
		cfg.RetentionDays,
		time.Duration(cfg.SweepIntervalMinutes)*time.Minute,
		logger,
	)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper stopped", "error", err)
		}
	}()

	dispatcher := scheduler.NewDispatcher(callRepo, configRepo, gateway, dispatchQueue, dispatchQueue, logger)
	go func() {
		if err := dispatcher.Run(ctx, cfg.WorkerCount); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("dispatcher shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
