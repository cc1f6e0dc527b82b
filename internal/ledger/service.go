package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/lotline-erp/lotline-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBatches(ctx context.Context, productID int64) ([]Batch, error)
	GetBatch(ctx context.Context, batchID int64) (Batch, error)
	ListMovements(ctx context.Context, batchID int64, limit int) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates batch ledger operations. All quantity changes route
// through Apply, the single enforcement point for the non-negativity
// invariant.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Apply routes one quantity change through the non-negativity check and
// records the movement. Callers must invoke it inside a ledger transaction;
// no other code path may mutate batch quantities.
func Apply(ctx context.Context, tx TxRepository, change QuantityChange, ref MovementRef) (Batch, error) {
	if change.Delta == 0 {
		return Batch{}, ErrInvalidQuantity
	}
	batch, err := tx.GetBatchForUpdate(ctx, change.BatchID)
	if err != nil {
		return Batch{}, err
	}
	newQty := batch.Quantity + change.Delta
	if newQty < 0 {
		return Batch{}, &InsufficientStockError{
			ProductID: batch.ProductID,
			BatchID:   batch.ID,
			Requested: -change.Delta,
			Available: batch.Quantity,
		}
	}
	if err := tx.UpdateBatchQuantity(ctx, batch.ID, newQty); err != nil {
		return Batch{}, err
	}
	if err := tx.InsertMovement(ctx, Movement{
		BatchID:   batch.ID,
		ProductID: batch.ProductID,
		Type:      ref.Type,
		QtyChange: change.Delta,
		RefModule: ref.RefModule,
		RefID:     ref.RefID,
		ActorID:   ref.ActorID,
	}); err != nil {
		return Batch{}, err
	}
	batch.Quantity = newQty
	return batch, nil
}

// ListBatches returns all batches of a product, including empty ones.
func (s *Service) ListBatches(ctx context.Context, productID int64) ([]Batch, error) {
	if productID == 0 {
		return nil, ErrValidation
	}
	return s.repo.ListBatches(ctx, productID)
}

// GetBatch returns a single batch.
func (s *Service) GetBatch(ctx context.Context, batchID int64) (Batch, error) {
	if batchID == 0 {
		return Batch{}, ErrValidation
	}
	return s.repo.GetBatch(ctx, batchID)
}

// ListMovements returns ledger events for one batch, newest first.
func (s *Service) ListMovements(ctx context.Context, batchID int64, limit int) ([]Movement, error) {
	if batchID == 0 {
		return nil, ErrValidation
	}
	return s.repo.ListMovements(ctx, batchID, limit)
}

// CreateBatch registers a new batch and records the intake movement.
func (s *Service) CreateBatch(ctx context.Context, input CreateBatchInput) (Batch, error) {
	if input.ProductID == 0 {
		return Batch{}, ErrValidation
	}
	if strings.TrimSpace(input.BatchNo) == "" {
		return Batch{}, fmt.Errorf("%w: batch number required", ErrValidation)
	}
	if input.Quantity < 0 {
		return Batch{}, ErrInvalidQuantity
	}
	batch := Batch{
		ProductID:  input.ProductID,
		BatchNo:    strings.TrimSpace(input.BatchNo),
		ExpiryDate: input.ExpiryDate,
		Quantity:   input.Quantity,
		Location:   input.Location,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		batch.ID = id
		if batch.Quantity > 0 {
			return tx.InsertMovement(ctx, Movement{
				BatchID:   id,
				ProductID: batch.ProductID,
				Type:      MovementTypeIn,
				QtyChange: batch.Quantity,
				RefModule: "LEDGER",
				ActorID:   input.ActorID,
			})
		}
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "BATCH_CREATE", batch.ID, input.ActorID, map[string]any{
		"product_id": batch.ProductID,
		"batch_no":   batch.BatchNo,
		"quantity":   batch.Quantity,
	})
	return batch, nil
}

// AdjustQuantity applies a single delta to one batch. It fails with
// InsufficientStockError when the resulting quantity would be negative.
func (s *Service) AdjustQuantity(ctx context.Context, batchID, delta int64, ref MovementRef) (Batch, error) {
	if batchID == 0 {
		return Batch{}, ErrValidation
	}
	if ref.Type == "" {
		ref.Type = MovementTypeAdjust
	}
	var adjusted Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adjusted, err = Apply(ctx, tx, QuantityChange{BatchID: batchID, Delta: delta}, ref)
		return err
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, fmt.Sprintf("BATCH_%s", ref.Type), batchID, ref.ActorID, map[string]any{
		"delta":      delta,
		"quantity":   adjusted.Quantity,
		"ref_module": ref.RefModule,
		"ref_id":     ref.RefID,
	})
	return adjusted, nil
}

// ApplyChanges applies several quantity changes in one transaction so a
// multi-batch operation leaves no partial mutation on failure.
func (s *Service) ApplyChanges(ctx context.Context, changes []QuantityChange, ref MovementRef) ([]Batch, error) {
	if len(changes) == 0 {
		return nil, ErrValidation
	}
	adjusted := make([]Batch, 0, len(changes))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, change := range changes {
			batch, err := Apply(ctx, tx, change, ref)
			if err != nil {
				return err
			}
			adjusted = append(adjusted, batch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, actorID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "batch",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
