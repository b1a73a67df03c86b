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

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/abakirov/outdialer/config"
	"github.com/abakirov/outdialer/internal/health"
	"github.com/abakirov/outdialer/internal/infrastructure/postgres"
	"github.com/abakirov/outdialer/internal/infrastructure/rediscache"
	ctxlog "github.com/abakirov/outdialer/internal/log"
	"github.com/abakirov/outdialer/internal/metrics"
	"github.com/abakirov/outdialer/internal/queue"
	"github.com/abakirov/outdialer/internal/scheduler"
	httptransport "github.com/abakirov/outdialer/internal/transport/http"
	"github.com/abakirov/outdialer/internal/transport/http/handler"
	"github.com/abakirov/outdialer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	dispatchQueue, err := queue.NewAMQPQueue(cfg.AMQPURL, logger)
	if err != nil {
		stop()
		log.Fatalf("amqp: %v", err)
	}
	defer dispatchQueue.Close()

	cache := rediscache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer cache.Close()

	callRepo := postgres.NewScheduledCallRepository(pool)
	configRepo := postgres.NewConfigRepository(pool)
	directory := postgres.NewCustomerDirectory(pool)

	selector := scheduler.NewSelector(directory, callRepo, logger)
	orchestrator := scheduler.NewOrchestrator(selector, callRepo, configRepo, dispatchQueue, logger)

	schedulerUsecase := usecase.NewSchedulerUsecase(
		callRepo, configRepo, selector, orchestrator, dispatchQueue, cache, logger)
	schedulerHandler := handler.NewSchedulerHandler(schedulerUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{
		"postgres": pool,
		"amqp":     dispatchQueue,
		"redis":    cache,
	}, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, schedulerHandler, []byte(cfg.JWTSecret)),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
