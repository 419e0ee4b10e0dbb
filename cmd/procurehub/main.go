package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/procurehub/internal/app"
	"github.com/odyssey-erp/procurehub/internal/budget"
	"github.com/odyssey-erp/procurehub/internal/notify"
	"github.com/odyssey-erp/procurehub/internal/offer"
	"github.com/odyssey-erp/procurehub/internal/order"
	"github.com/odyssey-erp/procurehub/internal/platform/cache"
	"github.com/odyssey-erp/procurehub/internal/platform/db"
	"github.com/odyssey-erp/procurehub/internal/request"
	"github.com/odyssey-erp/procurehub/internal/shared"
	"github.com/odyssey-erp/procurehub/internal/timeline"
	"github.com/odyssey-erp/procurehub/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, notification dedupe disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	notifier := notify.NewDispatcher(asynqClient, redisClient, logger)
	auditLogger := shared.NewAuditLogger(pool, logger)
	approvals := shared.NewApprovalRecorder(pool, logger)
	idempotency := shared.NewIdempotencyStore(pool)
	deadlines := timeline.NewCalculator(cfg.Tiers())

	budgetLedger := budget.NewLedger(budget.NewRepository(pool), logger)

	requestRepo := request.NewRepository(pool)
	requestService := request.NewService(requestRepo, budgetLedger, deadlines, notifier, approvals, auditLogger, logger)

	offerRepo := offer.NewRepository(pool)
	offerService := offer.NewService(offerRepo, auditLogger, logger)

	orderRepo := order.NewRepository(pool)
	orderService := order.NewService(orderRepo, offerService, idempotency, notifier, auditLogger, logger)

	validate := validator.New()
	requestHandler := request.NewHandler(requestService, validate, logger)
	offerHandler := offer.NewHandler(offerService, validate, logger)
	orderHandler := order.NewHandler(orderService, validate, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Pool:           pool,
		RequestHandler: requestHandler,
		OfferHandler:   offerHandler,
		OrderHandler:   orderHandler,
		JobHandler:     jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
