package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists batches and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error)
	ListBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error)
	UpdateBatchQuantity(ctx context.Context, batchID, quantity int64) error
	InsertMovement(ctx context.Context, movement Movement) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so other modules can route their
// quantity changes through the ledger enforcement point inside their own
// transactional unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListBatches returns all batches of one product ordered by creation.
func (r *Repository) ListBatches(ctx context.Context, productID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, batch_no, expiry_date, quantity, location, created_at
FROM batches WHERE product_id=$1 ORDER BY created_at ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// GetBatch returns one batch by id.
func (r *Repository) GetBatch(ctx context.Context, batchID int64) (Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, product_id, batch_no, expiry_date, quantity, location, created_at
FROM batches WHERE id=$1`, batchID)
	return scanBatch(row)
}

// ListMovements returns ledger events for one batch, newest first.
func (r *Repository) ListMovements(ctx context.Context, batchID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, batch_id, product_id, movement_type, qty_change, ref_module, ref_id, actor_id, occurred_at
FROM stock_movements WHERE batch_id=$1 ORDER BY occurred_at DESC, id DESC LIMIT $2`, batchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var refID, actorID *string
		if err := rows.Scan(&m.ID, &m.BatchID, &m.ProductID, &m.Type, &m.QtyChange, &m.RefModule, &refID, &actorID, &m.OccurredAt); err != nil {
			return nil, err
		}
		if refID != nil {
			m.RefID = *refID
		}
		if actorID != nil {
			m.ActorID = *actorID
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO batches (product_id, batch_no, expiry_date, quantity, location, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		batch.ProductID, batch.BatchNo, batch.ExpiryDate, batch.Quantity, batch.Location).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateBatch
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, product_id, batch_no, expiry_date, quantity, location, created_at
FROM batches WHERE id=$1 FOR UPDATE`, batchID)
	return scanBatch(row)
}

func (r *txRepository) ListBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, batch_no, expiry_date, quantity, location, created_at
FROM batches WHERE product_id=$1 ORDER BY created_at ASC, id ASC FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *txRepository) UpdateBatchQuantity(ctx context.Context, batchID, quantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE batches SET quantity=$2 WHERE id=$1`, batchID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (batch_id, product_id, movement_type, qty_change, ref_module, ref_id, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		movement.BatchID, movement.ProductID, string(movement.Type), movement.QtyChange,
		movement.RefModule, nullString(movement.RefID), nullString(movement.ActorID))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (Batch, error) {
	var b Batch
	var expiry *time.Time
	err := row.Scan(&b.ID, &b.ProductID, &b.BatchNo, &expiry, &b.Quantity, &b.Location, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	b.ExpiryDate = expiry
	return b, nil
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	batches := []Batch{}
	for rows.Next() {
		var b Batch
		var expiry *time.Time
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BatchNo, &expiry, &b.Quantity, &b.Location, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.ExpiryDate = expiry
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
