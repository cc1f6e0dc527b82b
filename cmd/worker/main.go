package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/lotline-erp/lotline-erp/internal/app"
	"github.com/lotline-erp/lotline-erp/internal/catalog"
	"github.com/lotline-erp/lotline-erp/internal/notify"
	"github.com/lotline-erp/lotline-erp/internal/orders"
	"github.com/lotline-erp/lotline-erp/internal/platform/db"
	"github.com/lotline-erp/lotline-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	ordersRepo := orders.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	mailer := notify.NewMailer(cfg.SMTPAddr, cfg.SMTPFrom, logger)

	notifyJob := jobs.NewOrderNotifyJob(ordersRepo, catalogRepo, mailer, logger)
	expiryJob := jobs.NewExpiryScanJob(pool, logger)

	expiryTask, err := jobs.NewExpiryScanTask(cfg.ExpiryWindowDays)
	if err != nil {
		logger.Error("build expiry scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeOrderCreated, Handler: notifyJob.Handle},
			{Type: jobs.TaskExpiryScan, Handler: expiryJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpiryScanCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
