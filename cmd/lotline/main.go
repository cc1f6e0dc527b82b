package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lotline-erp/lotline-erp/internal/app"
	"github.com/lotline-erp/lotline-erp/internal/auth"
	"github.com/lotline-erp/lotline-erp/internal/catalog"
	"github.com/lotline-erp/lotline-erp/internal/draft"
	"github.com/lotline-erp/lotline-erp/internal/fulfillment"
	"github.com/lotline-erp/lotline-erp/internal/ledger"
	"github.com/lotline-erp/lotline-erp/internal/observability"
	"github.com/lotline-erp/lotline-erp/internal/orders"
	"github.com/lotline-erp/lotline-erp/internal/platform/cache"
	"github.com/lotline-erp/lotline-erp/internal/platform/db"
	"github.com/lotline-erp/lotline-erp/internal/shared"
	"github.com/lotline-erp/lotline-erp/internal/stockview"
	"github.com/lotline-erp/lotline-erp/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, logger)
	authMiddleware := auth.Middleware{Service: authService}

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	stockViewService := stockview.NewService(catalogService, ledgerService)
	stockViewHandler := stockview.NewHandler(logger, stockViewService)

	draftStore := draft.NewStore(redisClient, cfg.DraftTTL)
	draftHandler := draft.NewHandler(logger, draftStore)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(logger, ordersRepo, draftStore, jobs.Notifier{Client: jobClient}, auditLogger)
	ordersHandler := orders.NewHandler(logger, ordersService)

	fulfillmentRepo := fulfillment.NewRepository(pool)
	fulfillmentService := fulfillment.NewService(logger, fulfillmentRepo, idempotencyStore, auditLogger)
	fulfillmentHandler := fulfillment.NewHandler(logger, fulfillmentService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authMiddleware,
		CatalogHandler:     catalogHandler,
		LedgerHandler:      ledgerHandler,
		StockViewHandler:   stockViewHandler,
		DraftHandler:       draftHandler,
		OrdersHandler:      ordersHandler,
		FulfillmentHandler: fulfillmentHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
