package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/lotline-erp/lotline-erp/internal/draft"
	"github.com/lotline-erp/lotline-erp/internal/shared"
)

// Order number generation retries a few times on the (unlikely) unique
// index collision before giving up.
const maxNumberRetries = 5

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, orderID int64) (Order, error)
	ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error)
	ListAdjustments(ctx context.Context, orderID int64) ([]Adjustment, error)
}

// DraftPort supplies and clears draft sessions.
type DraftPort interface {
	Get(ctx context.Context, sessionID string) (draft.View, error)
	Clear(ctx context.Context, sessionID string) error
}

// NotifierPort dispatches the order-created notification. Failures never
// roll back the order.
type NotifierPort interface {
	OrderCreated(ctx context.Context, orderID, supplierID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service finalizes drafts into orders and drives the status machine.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	drafts   DraftPort
	notifier NotifierPort
	audit    AuditPort
	now      func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, drafts DraftPort, notifier NotifierPort, audit AuditPort) *Service {
	return &Service{
		logger:   logger,
		repo:     repo,
		drafts:   drafts,
		notifier: notifier,
		audit:    audit,
		now:      time.Now,
	}
}

// Finalize converts a draft into one pending order per supplier group. All
// orders of one call persist in a single transaction; the draft is cleared
// only after commit.
func (s *Service) Finalize(ctx context.Context, sessionID string, supplierMemos map[int64]string) ([]Order, error) {
	if sessionID == "" {
		return nil, ErrValidation
	}
	view, err := s.drafts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, ErrEmptyDraft
	}

	actorID := shared.ActorFromContext(ctx)
	var created []Order

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = created[:0]
		for _, group := range view.GroupedBySupplier {
			order := Order{
				SupplierID:  group.SupplierID,
				OrderedBy:   actorID,
				Status:      StatusPending,
				Memo:        supplierMemos[group.SupplierID],
				TotalAmount: group.Subtotal,
			}
			persisted, err := s.insertWithFreshNumber(ctx, tx, order)
			if err != nil {
				return err
			}
			for _, item := range group.Items {
				line, err := tx.InsertOrderItem(ctx, OrderItem{
					OrderID:     persisted.ID,
					ProductID:   item.ProductID,
					BatchID:     item.BatchID,
					ProductName: item.ProductName,
					Quantity:    item.Quantity,
					UnitPrice:   item.UnitPrice,
					LineTotal:   item.LineTotal(),
				})
				if err != nil {
					return err
				}
				persisted.Items = append(persisted.Items, line)
			}
			created = append(created, persisted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.drafts.Clear(ctx, sessionID); err != nil {
		s.logger.Warn("draft clear after finalize failed",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}
	for _, order := range created {
		if s.notifier == nil {
			break
		}
		if err := s.notifier.OrderCreated(ctx, order.ID, order.SupplierID); err != nil {
			s.logger.Warn("order notification enqueue failed",
				slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	for _, order := range created {
		s.recordAudit(ctx, "ORDER_CREATE", order.ID, actorID, map[string]any{
			"order_number": order.OrderNumber,
			"supplier_id":  order.SupplierID,
			"total_amount": order.TotalAmount.String(),
		})
	}
	return created, nil
}

// GetOrder returns one order with its item snapshots.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	if orderID == 0 {
		return Order{}, ErrValidation
	}
	return s.repo.GetOrder(ctx, orderID)
}

// ListOrders lists orders with pagination.
func (s *Service) ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	return s.repo.ListOrders(ctx, filters)
}

// ListAdjustments returns adjustment deltas recorded for one order.
func (s *Service) ListAdjustments(ctx context.Context, orderID int64) ([]Adjustment, error) {
	if orderID == 0 {
		return nil, ErrValidation
	}
	return s.repo.ListAdjustments(ctx, orderID)
}

// Confirm moves a pending order to confirmed.
func (s *Service) Confirm(ctx context.Context, orderID int64) (Order, error) {
	return s.transition(ctx, orderID, StatusConfirmed, nil, "")
}

// Complete moves a confirmed order to completed.
func (s *Service) Complete(ctx context.Context, orderID int64) (Order, error) {
	return s.transition(ctx, orderID, StatusCompleted, nil, "")
}

// Reject moves a pending order to rejected with a tagged reason. Rejection
// from any other state violates the machine.
func (s *Service) Reject(ctx context.Context, orderID int64, reason ReasonCode, note string) (Order, error) {
	if !reason.Valid() {
		return Order{}, fmt.Errorf("%w: unknown rejection reason %q", ErrValidation, reason)
	}
	return s.transition(ctx, orderID, StatusRejected, &reason, note)
}

// AddAdjustment records a quantity/price delta against one item of a
// confirmed order. The original snapshot is never mutated.
func (s *Service) AddAdjustment(ctx context.Context, orderID int64, adj Adjustment) (Adjustment, error) {
	if orderID == 0 || adj.OrderItemID == 0 {
		return Adjustment{}, ErrValidation
	}
	if !adj.Reason.Valid() {
		return Adjustment{}, fmt.Errorf("%w: unknown adjustment reason %q", ErrValidation, adj.Reason)
	}
	if adj.QtyDelta == 0 && adj.PriceDelta.IsZero() {
		return Adjustment{}, fmt.Errorf("%w: adjustment without any delta", ErrValidation)
	}

	adj.OrderID = orderID
	adj.CreatedBy = shared.ActorFromContext(ctx)

	var recorded Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusConfirmed {
			return fmt.Errorf("%w: adjustments require a confirmed order, got %s", ErrValidation, order.Status)
		}
		itemBelongs := false
		for _, item := range order.Items {
			if item.ID == adj.OrderItemID {
				itemBelongs = true
				break
			}
		}
		if !itemBelongs {
			return fmt.Errorf("%w: item does not belong to order", ErrValidation)
		}
		recorded, err = tx.InsertAdjustment(ctx, adj)
		return err
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordAudit(ctx, "ORDER_ADJUST", orderID, adj.CreatedBy, map[string]any{
		"order_item_id": adj.OrderItemID,
		"qty_delta":     adj.QtyDelta,
		"price_delta":   adj.PriceDelta.String(),
		"reason":        string(adj.Reason),
	})
	return recorded, nil
}

func (s *Service) transition(ctx context.Context, orderID int64, next Status, reason *ReasonCode, note string) (Order, error) {
	if orderID == 0 {
		return Order{}, ErrValidation
	}
	actorID := shared.ActorFromContext(ctx)

	var updated Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(next) {
			return &InvalidTransitionError{From: order.Status, To: next}
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, next, reason, note); err != nil {
			return err
		}
		order.Status = next
		order.RejectionReason = reason
		order.RejectionNote = note
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, fmt.Sprintf("ORDER_%s", next), orderID, actorID, map[string]any{
		"order_number": updated.OrderNumber,
	})
	return updated, nil
}

// insertWithFreshNumber inserts the order, regenerating the number on a
// unique index collision.
func (s *Service) insertWithFreshNumber(ctx context.Context, tx TxRepository, order Order) (Order, error) {
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		number, err := s.generateOrderNumber()
		if err != nil {
			return Order{}, err
		}
		order.OrderNumber = number
		persisted, err := tx.InsertOrder(ctx, order)
		if errors.Is(err, ErrDuplicateNumber) {
			continue
		}
		if err != nil {
			return Order{}, err
		}
		return persisted, nil
	}
	return Order{}, ErrDuplicateNumber
}

// generateOrderNumber builds RO-YYYYMMDD-NNNNNN with a million-wide random
// suffix space per day.
func (s *Service) generateOrderNumber() (string, error) {
	suffix, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RO-%s-%06d", s.now().Format("20060102"), suffix.Int64()), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, actorID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
