package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-procure/internal/app"
	"github.com/odyssey-erp/odyssey-procure/internal/observability"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "odyssey")

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	mailQueue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := mailQueue.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	locker := shared.NewLocker(nil, cfg.ProcureLockTTL)
	if cfg.ProcureLocksEnabled {
		locker = shared.NewLocker(redisClient, cfg.ProcureLockTTL)
	}

	procurementService := procurement.NewService(procurement.Dependencies{
		Repo:      procurement.NewRepository(dbpool),
		Refs:      procurement.NewRegistry(dbpool),
		Approvals: shared.NewApprovalRecorder(dbpool, logger),
		Audit:     shared.NewAuditLogger(dbpool),
		Locker:    locker,
		Notifier:  mailQueue,
		Metrics:   metrics,
		Logger:    logger,
	}, procurement.Config{
		MaxAttempts:  cfg.ProcureMaxAttempts,
		RetryBackoff: cfg.ProcureRetryBackoff,
	})
	procurementHandler := procurement.NewHandler(logger, procurementService, shared.NewIdempotencyStore(dbpool))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurementHandler,
		Metrics:            metrics,
		Ready: func(ctx context.Context) error {
			return errors.Join(dbpool.Ping(ctx), redisClient.Ping(ctx).Err())
		},
	})

	srv := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	if err := app.Serve(ctx, srv, logger, 10*time.Second); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
