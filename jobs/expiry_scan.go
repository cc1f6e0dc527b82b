package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// TaskExpiryScan flags batches that expire inside the warning window.
	TaskExpiryScan = "stock:expiry_scan"
)

// ExpiryScanPayload carries the warning window in days.
type ExpiryScanPayload struct {
	WindowDays int `json:"window_days"`
}

// NewExpiryScanTask constructs an Asynq task for the nightly expiry scan.
func NewExpiryScanTask(windowDays int) (*asynq.Task, error) {
	body, err := json.Marshal(ExpiryScanPayload{WindowDays: windowDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpiryScan, body, asynq.Queue(QueueDefault)), nil
}

// ExpiryScanJob walks the batch ledger and logs every batch with remaining
// stock that expires inside the window.
type ExpiryScanJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewExpiryScanJob initialises the expiry scan handler.
func NewExpiryScanJob(pool *pgxpool.Pool, logger *slog.Logger) *ExpiryScanJob {
	return &ExpiryScanJob{Pool: pool, Logger: logger}
}

// Handle executes the expiry scan.
func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("expiry scan: handler not configured")
	}
	var payload ExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 30
	}

	logger := j.logger().With(slog.Int("window_days", payload.WindowDays))
	start := time.Now()

	rows, err := j.Pool.Query(ctx, `SELECT b.id, b.product_id, p.name, b.batch_no, b.expiry_date, b.quantity
FROM batches b
JOIN products p ON p.id = b.product_id
WHERE b.quantity > 0 AND b.expiry_date IS NOT NULL
  AND b.expiry_date <= NOW() + make_interval(days => $1)
ORDER BY b.expiry_date ASC, b.id ASC`, payload.WindowDays)
	if err != nil {
		logger.Error("expiry scan query failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	flagged := 0
	for rows.Next() {
		var (
			batchID, productID, quantity int64
			productName, batchNo         string
			expiryDate                   time.Time
		)
		if err := rows.Scan(&batchID, &productID, &productName, &batchNo, &expiryDate, &quantity); err != nil {
			return err
		}
		logger.Warn("batch expiring soon",
			slog.Int64("batch_id", batchID),
			slog.Int64("product_id", productID),
			slog.String("product", productName),
			slog.String("batch_no", batchNo),
			slog.Time("expiry_date", expiryDate),
			slog.Int64("quantity", quantity),
		)
		flagged++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	logger.Info("completed expiry scan",
		slog.Int("flagged", flagged),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ExpiryScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskExpiryScan))
	}
	return slog.Default().With(slog.String("job", TaskExpiryScan))
}
