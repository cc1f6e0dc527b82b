package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lotline-erp/lotline-erp/internal/catalog"
	"github.com/lotline-erp/lotline-erp/internal/notify"
	"github.com/lotline-erp/lotline-erp/internal/orders"
)

// OrdersPort loads the order being notified about.
type OrdersPort interface {
	GetOrder(ctx context.Context, orderID int64) (orders.Order, error)
}

// SuppliersPort resolves supplier contact details.
type SuppliersPort interface {
	GetSupplier(ctx context.Context, supplierID int64) (catalog.Supplier, error)
}

// MailerPort delivers the rendered notification.
type MailerPort interface {
	Send(ctx context.Context, to, subject, body string) error
}

// OrderNotifyJob sends the supplier email for a finalized order.
type OrderNotifyJob struct {
	Orders    OrdersPort
	Suppliers SuppliersPort
	Mailer    MailerPort
	Logger    *slog.Logger
}

// NewOrderNotifyJob initialises the order notification handler.
func NewOrderNotifyJob(ordersPort OrdersPort, suppliers SuppliersPort, mailer MailerPort, logger *slog.Logger) *OrderNotifyJob {
	return &OrderNotifyJob{Orders: ordersPort, Suppliers: suppliers, Mailer: mailer, Logger: logger}
}

// Handle processes TaskTypeOrderCreated tasks.
func (j *OrderNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OrderCreatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger().With(slog.Int64("order_id", payload.OrderID), slog.Int64("supplier_id", payload.SupplierID))

	order, err := j.Orders.GetOrder(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			logger.Warn("order vanished before notification")
			return asynq.SkipRetry
		}
		return err
	}
	supplier, err := j.Suppliers.GetSupplier(ctx, payload.SupplierID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			logger.Warn("supplier vanished before notification")
			return asynq.SkipRetry
		}
		return err
	}
	if supplier.Email == "" {
		logger.Info("supplier has no email address, skipping notification")
		return nil
	}

	subject, body := notify.FormatOrderEmail(order, supplier)
	if err := j.Mailer.Send(ctx, supplier.Email, subject, body); err != nil {
		return err
	}
	logger.Info("order notification sent", slog.String("to", supplier.Email))
	return nil
}

func (j *OrderNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeOrderCreated))
	}
	return slog.Default().With(slog.String("job", TaskTypeOrderCreated))
}
