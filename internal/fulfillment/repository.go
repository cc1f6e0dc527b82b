package fulfillment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotline-erp/lotline-erp/internal/ledger"
	"github.com/lotline-erp/lotline-erp/internal/platform/db"
)

// Repository persists outbounds and returns in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a repeatable-read transaction. The same transaction
// backs both the fulfillment rows and the ledger enforcement point.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
}

// GetOutbound returns one outbound with its lines and returned quantities.
func (r *Repository) GetOutbound(ctx context.Context, outboundID int64) (Outbound, error) {
	var outbound Outbound
	err := r.pool.QueryRow(ctx, `SELECT id, reference, created_by, created_at FROM outbounds WHERE id=$1`, outboundID).
		Scan(&outbound.ID, &outbound.Reference, &outbound.CreatedBy, &outbound.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Outbound{}, ErrNotFound
		}
		return Outbound{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT ol.id, ol.outbound_id, ol.product_id, ol.batch_id, ol.batch_no, ol.quantity,
COALESCE(SUM(rr.quantity), 0), o.created_at
FROM outbound_lines ol
JOIN outbounds o ON o.id = ol.outbound_id
LEFT JOIN returns rr ON rr.outbound_line_id = ol.id
WHERE ol.outbound_id=$1
GROUP BY ol.id, o.created_at
ORDER BY ol.id ASC`, outboundID)
	if err != nil {
		return Outbound{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var line OutboundLine
		if err := rows.Scan(&line.ID, &line.OutboundID, &line.ProductID, &line.BatchID, &line.BatchNo,
			&line.Quantity, &line.ReturnedQty, &line.OutboundAt); err != nil {
			return Outbound{}, err
		}
		outbound.Lines = append(outbound.Lines, line)
	}
	return outbound, rows.Err()
}

// ListReturns returns the return rows recorded against one outbound.
func (r *Repository) ListReturns(ctx context.Context, outboundID int64) ([]ReturnRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, outbound_line_id, outbound_id, product_id, batch_id, quantity, refund_amount, created_by, created_at
FROM returns WHERE outbound_id=$1 ORDER BY created_at ASC, id ASC`, outboundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []ReturnRecord{}
	for rows.Next() {
		var rec ReturnRecord
		if err := rows.Scan(&rec.ID, &rec.OutboundLineID, &rec.OutboundID, &rec.ProductID, &rec.BatchID,
			&rec.Quantity, &rec.RefundAmount, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type txRepository struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return r.ledger
}

func (r *txRepository) InsertOutbound(ctx context.Context, outbound Outbound) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO outbounds (reference, created_by, created_at) VALUES ($1,$2,NOW()) RETURNING id`,
		outbound.Reference, outbound.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertOutboundLine(ctx context.Context, line OutboundLine) (OutboundLine, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO outbound_lines (outbound_id, product_id, batch_id, batch_no, quantity)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		line.OutboundID, line.ProductID, line.BatchID, line.BatchNo, line.Quantity).Scan(&line.ID)
	return line, err
}

// ListOutboundLinesForUpdate locks the outbound lines of one (product, batch)
// pair in outbound order, oldest first, and resolves how much of each line
// has already been returned. outboundID zero spans all shipments of the
// batch. The aggregate runs as a second query because row locks cannot be
// combined with GROUP BY.
func (r *txRepository) ListOutboundLinesForUpdate(ctx context.Context, productID, batchID, outboundID int64) ([]OutboundLine, error) {
	query := `SELECT ol.id, ol.outbound_id, ol.product_id, ol.batch_id, ol.batch_no, ol.quantity, o.created_at
FROM outbound_lines ol
JOIN outbounds o ON o.id = ol.outbound_id
WHERE ol.product_id=$1 AND ol.batch_id=$2`
	args := []any{productID, batchID}
	if outboundID != 0 {
		query += ` AND ol.outbound_id=$3`
		args = append(args, outboundID)
	}
	query += `
ORDER BY o.created_at ASC, ol.id ASC
FOR UPDATE OF ol`

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []OutboundLine{}
	ids := []int64{}
	for rows.Next() {
		var line OutboundLine
		if err := rows.Scan(&line.ID, &line.OutboundID, &line.ProductID, &line.BatchID, &line.BatchNo,
			&line.Quantity, &line.OutboundAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
		ids = append(ids, line.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return lines, nil
	}

	returnedRows, err := r.tx.Query(ctx, `SELECT outbound_line_id, COALESCE(SUM(quantity), 0)
FROM returns WHERE outbound_line_id = ANY($1) GROUP BY outbound_line_id`, ids)
	if err != nil {
		return nil, err
	}
	defer returnedRows.Close()

	returned := map[int64]int64{}
	for returnedRows.Next() {
		var lineID, qty int64
		if err := returnedRows.Scan(&lineID, &qty); err != nil {
			return nil, err
		}
		returned[lineID] = qty
	}
	if err := returnedRows.Err(); err != nil {
		return nil, err
	}

	for i := range lines {
		lines[i].ReturnedQty = returned[lines[i].ID]
	}
	return lines, nil
}

func (r *txRepository) InsertReturn(ctx context.Context, rec ReturnRecord) (ReturnRecord, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO returns (outbound_line_id, outbound_id, product_id, batch_id, quantity, refund_amount, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id, created_at`,
		rec.OutboundLineID, rec.OutboundID, rec.ProductID, rec.BatchID, rec.Quantity, rec.RefundAmount, rec.CreatedBy).
		Scan(&rec.ID, &rec.CreatedAt)
	return rec, err
}
