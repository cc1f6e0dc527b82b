package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/lotline-erp/lotline-erp/internal/allocation"
	"github.com/lotline-erp/lotline-erp/internal/ledger"
	"github.com/lotline-erp/lotline-erp/internal/shared"
)

// TxRepository exposes transactional fulfillment persistence. Ledger gives
// access to the batch ledger inside the same transaction so stock decrements
// and outbound rows commit or roll back together.
type TxRepository interface {
	Ledger() ledger.TxRepository
	InsertOutbound(ctx context.Context, outbound Outbound) (int64, error)
	InsertOutboundLine(ctx context.Context, line OutboundLine) (OutboundLine, error)
	ListOutboundLinesForUpdate(ctx context.Context, productID, batchID, outboundID int64) ([]OutboundLine, error)
	InsertReturn(ctx context.Context, rec ReturnRecord) (ReturnRecord, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOutbound(ctx context.Context, outboundID int64) (Outbound, error)
	ListReturns(ctx context.Context, outboundID int64) ([]ReturnRecord, error)
}

// IdempotencyPort guards retried items against double processing.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const idempotencyModule = "fulfillment"

// Service consumes allocation plans to move stock out and back in. All
// quantity changes go through the ledger enforcement point.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	idempotency IdempotencyPort
	audit       AuditPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, idempotency IdempotencyPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, idempotency: idempotency, audit: audit}
}

// Outbound allocates stock per product FEFO and decrements the ledger. With
// AllowPartial false any shortfall rejects the whole call and nothing
// commits; with AllowPartial true succeeding products commit and failures
// are reported back for per-item retry.
func (s *Service) Outbound(ctx context.Context, req OutboundRequest) (OutboundResult, error) {
	if err := validateOutboundRequest(req); err != nil {
		return OutboundResult{}, err
	}
	actorID := shared.ActorFromContext(ctx)

	result := OutboundResult{Succeeded: []OutboundLine{}, Failed: []FailedItem{}}
	pending := make([]RequestItem, 0, len(req.Items))
	claimed := map[int64]string{}

	for _, item := range req.Items {
		key := outboundKey(req.Reference, item.ProductID)
		err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			result.Failed = append(result.Failed, FailedItem{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Reason:    "already processed for this reference",
			})
			continue
		}
		if err != nil {
			s.releaseKeys(ctx, claimed)
			return OutboundResult{}, err
		}
		claimed[item.ProductID] = key
		pending = append(pending, item)
	}
	if len(pending) == 0 {
		return result, nil
	}

	var failedInTx []FailedItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		failedInTx = failedInTx[:0]

		type plannedOutbound struct {
			item    RequestItem
			plan    allocation.Plan
			batches map[int64]ledger.Batch
		}
		planned := make([]plannedOutbound, 0, len(pending))

		for _, item := range pending {
			batches, err := tx.Ledger().ListBatchesForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}
			plan := allocation.Allocate(item.Quantity, allocationCandidates(batches))
			if !plan.FullyAllocated() {
				failedInTx = append(failedInTx, FailedItem{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: plan.TotalAllocated(),
					Reason:    "insufficient stock",
				})
				continue
			}
			byID := make(map[int64]ledger.Batch, len(batches))
			for _, b := range batches {
				byID[b.ID] = b
			}
			planned = append(planned, plannedOutbound{item: item, plan: plan, batches: byID})
		}

		if len(failedInTx) > 0 && !req.AllowPartial {
			return &OutboundRejectedError{Failed: failedInTx}
		}
		if len(planned) == 0 {
			return nil
		}

		outboundID, err := tx.InsertOutbound(ctx, Outbound{Reference: req.Reference, CreatedBy: actorID})
		if err != nil {
			return err
		}
		result.OutboundID = outboundID

		for _, p := range planned {
			for _, alloc := range p.plan.Allocations {
				_, err := ledger.Apply(ctx, tx.Ledger(),
					ledger.QuantityChange{BatchID: alloc.BatchID, Delta: -alloc.AllocatedQty},
					ledger.MovementRef{
						Type:      ledger.MovementTypeOut,
						RefModule: "FULFILLMENT",
						RefID:     fmt.Sprintf("outbound:%d", outboundID),
						ActorID:   actorID,
					})
				if err != nil {
					return err
				}
				line, err := tx.InsertOutboundLine(ctx, OutboundLine{
					OutboundID: outboundID,
					ProductID:  p.item.ProductID,
					BatchID:    alloc.BatchID,
					BatchNo:    p.batches[alloc.BatchID].BatchNo,
					Quantity:   alloc.AllocatedQty,
				})
				if err != nil {
					return err
				}
				result.Succeeded = append(result.Succeeded, line)
			}
		}
		return nil
	})
	if err != nil {
		s.releaseKeys(ctx, claimed)
		return OutboundResult{}, err
	}

	// Items that failed allocation keep their retryability: release their
	// keys so a later attempt after restock is not treated as a duplicate.
	for _, f := range failedInTx {
		if key, ok := claimed[f.ProductID]; ok {
			if err := s.idempotency.Delete(ctx, key); err != nil {
				s.logger.Warn("idempotency key release failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		result.Failed = append(result.Failed, f)
	}

	s.recordAudit(ctx, "OUTBOUND", result.OutboundID, actorID, map[string]any{
		"reference": req.Reference,
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	})
	return result, nil
}

// Return flows quantities back into the ledger against prior outbound lines
// of the same (product, batch) pair, oldest outbound first. Refund amount is
// quantity times refund unit price.
func (s *Service) Return(ctx context.Context, req ReturnRequest) (ReturnResult, error) {
	if err := validateReturnRequest(req); err != nil {
		return ReturnResult{}, err
	}
	actorID := shared.ActorFromContext(ctx)

	result := ReturnResult{Succeeded: []ReturnRecord{}, Failed: []FailedItem{}}
	pending := make([]ReturnItem, 0, len(req.Items))
	claimed := map[itemKey]string{}

	for _, item := range req.Items {
		key := returnKey(req.Reference, item.ProductID, item.BatchID)
		err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			result.Failed = append(result.Failed, FailedItem{
				ProductID: item.ProductID,
				BatchID:   item.BatchID,
				Requested: item.Quantity,
				Reason:    "already processed for this reference",
			})
			continue
		}
		if err != nil {
			s.releaseReturnKeys(ctx, claimed)
			return ReturnResult{}, err
		}
		claimed[itemKey{item.ProductID, item.BatchID}] = key
		pending = append(pending, item)
	}
	if len(pending) == 0 {
		return result, nil
	}

	var failedInTx []FailedItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		failedInTx = failedInTx[:0]
		result.Succeeded = result.Succeeded[:0]

		for _, item := range pending {
			lines, err := tx.ListOutboundLinesForUpdate(ctx, item.ProductID, item.BatchID, req.OutboundID)
			if err != nil {
				return err
			}
			var returnable int64
			for _, line := range lines {
				returnable += line.Quantity - line.ReturnedQty
			}
			if item.Quantity > returnable {
				failedInTx = append(failedInTx, FailedItem{
					ProductID: item.ProductID,
					BatchID:   item.BatchID,
					Requested: item.Quantity,
					Available: returnable,
					Reason:    "exceeds returnable quantity",
				})
				continue
			}

			remaining := item.Quantity
			for _, line := range lines {
				take := min(line.Quantity-line.ReturnedQty, remaining)
				if take <= 0 {
					continue
				}
				_, err := ledger.Apply(ctx, tx.Ledger(),
					ledger.QuantityChange{BatchID: line.BatchID, Delta: take},
					ledger.MovementRef{
						Type:      ledger.MovementTypeReturn,
						RefModule: "FULFILLMENT",
						RefID:     fmt.Sprintf("outbound:%d", line.OutboundID),
						ActorID:   actorID,
					})
				if err != nil {
					return err
				}
				rec, err := tx.InsertReturn(ctx, ReturnRecord{
					OutboundLineID: line.ID,
					OutboundID:     line.OutboundID,
					ProductID:      item.ProductID,
					BatchID:        line.BatchID,
					Quantity:       take,
					RefundAmount:   item.RefundUnitPrice.Mul(decimal.NewFromInt(take)),
					CreatedBy:      actorID,
				})
				if err != nil {
					return err
				}
				result.Succeeded = append(result.Succeeded, rec)
				remaining -= take
				if remaining == 0 {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		s.releaseReturnKeys(ctx, claimed)
		return ReturnResult{}, err
	}

	for _, f := range failedInTx {
		if key, ok := claimed[itemKey{f.ProductID, f.BatchID}]; ok {
			if err := s.idempotency.Delete(ctx, key); err != nil {
				s.logger.Warn("idempotency key release failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		result.Failed = append(result.Failed, f)
	}

	s.recordAudit(ctx, "RETURN", 0, actorID, map[string]any{
		"reference": req.Reference,
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	})
	return result, nil
}

// GetOutbound returns one outbound with its lines and returned quantities.
func (s *Service) GetOutbound(ctx context.Context, outboundID int64) (Outbound, error) {
	if outboundID == 0 {
		return Outbound{}, ErrValidation
	}
	return s.repo.GetOutbound(ctx, outboundID)
}

// ListReturns returns the return rows recorded against one outbound.
func (s *Service) ListReturns(ctx context.Context, outboundID int64) ([]ReturnRecord, error) {
	if outboundID == 0 {
		return nil, ErrValidation
	}
	return s.repo.ListReturns(ctx, outboundID)
}

func validateOutboundRequest(req OutboundRequest) error {
	if req.Reference == "" {
		return fmt.Errorf("%w: reference required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrValidation)
	}
	seen := map[int64]bool{}
	for _, item := range req.Items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return fmt.Errorf("%w: item needs product and positive quantity", ErrValidation)
		}
		if seen[item.ProductID] {
			return fmt.Errorf("%w: duplicate product %d", ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = true
	}
	return nil
}

func validateReturnRequest(req ReturnRequest) error {
	if req.Reference == "" {
		return fmt.Errorf("%w: reference required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrValidation)
	}
	seen := map[itemKey]bool{}
	for _, item := range req.Items {
		if item.ProductID == 0 || item.BatchID == 0 || item.Quantity <= 0 {
			return fmt.Errorf("%w: item needs product, batch and positive quantity", ErrValidation)
		}
		if item.RefundUnitPrice.IsNegative() {
			return fmt.Errorf("%w: refund unit price must be >= 0", ErrValidation)
		}
		key := itemKey{item.ProductID, item.BatchID}
		if seen[key] {
			return fmt.Errorf("%w: duplicate batch %d for product %d", ErrValidation, item.BatchID, item.ProductID)
		}
		seen[key] = true
	}
	return nil
}

func allocationCandidates(batches []ledger.Batch) []allocation.Batch {
	out := make([]allocation.Batch, 0, len(batches))
	for _, b := range batches {
		out = append(out, allocation.Batch{
			ID:         b.ID,
			BatchNo:    b.BatchNo,
			ExpiryDate: b.ExpiryDate,
			Quantity:   b.Quantity,
			CreatedAt:  b.CreatedAt,
		})
	}
	return out
}

// itemKey identifies one return item by its (product, batch) pair.
type itemKey struct {
	productID int64
	batchID   int64
}

func (s *Service) releaseKeys(ctx context.Context, claimed map[int64]string) {
	for _, key := range claimed {
		s.releaseKey(ctx, key)
	}
}

func (s *Service) releaseReturnKeys(ctx context.Context, claimed map[itemKey]string) {
	for _, key := range claimed {
		s.releaseKey(ctx, key)
	}
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Warn("idempotency key release failed", slog.String("key", key), slog.Any("error", err))
	}
}

func outboundKey(reference string, productID int64) string {
	return fmt.Sprintf("outbound:%s:product:%d", reference, productID)
}

func returnKey(reference string, productID, batchID int64) string {
	return fmt.Sprintf("return:%s:product:%d:batch:%d", reference, productID, batchID)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, actorID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "outbound",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
