package orders

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotline-erp/lotline-erp/internal/platform/db"
)

// TxRepository exposes transactional order persistence.
type TxRepository interface {
	InsertOrder(ctx context.Context, order Order) (Order, error)
	InsertOrderItem(ctx context.Context, item OrderItem) (OrderItem, error)
	GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status Status, reason *ReasonCode, note string) error
	InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetOrder returns one order with its item snapshots.
func (r *Repository) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, order_number, supplier_id, ordered_by, status, memo, rejection_reason, rejection_note, total_amount, created_at, updated_at
FROM orders WHERE id=$1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	items, err := r.listItems(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	order.Items = items
	return order, nil
}

// ListOrders returns orders matching the filters, newest first.
func (r *Repository) ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	query := `SELECT id, order_number, supplier_id, ordered_by, status, memo, rejection_reason, rejection_note, total_amount, created_at, updated_at
FROM orders WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Status != "" {
		argCount++
		query += ` AND status=$` + strconv.Itoa(argCount)
		args = append(args, string(filters.Status))
	}
	if filters.SupplierID != 0 {
		argCount++
		query += ` AND supplier_id=$` + strconv.Itoa(argCount)
		args = append(args, filters.SupplierID)
	}

	countQuery := `SELECT COUNT(*) FROM orders WHERE 1=1`
	countArgs := []any{}
	countN := 0
	if filters.Status != "" {
		countN++
		countQuery += ` AND status=$` + strconv.Itoa(countN)
		countArgs = append(countArgs, string(filters.Status))
	}
	if filters.SupplierID != 0 {
		countN++
		countQuery += ` AND supplier_id=$` + strconv.Itoa(countN)
		countArgs = append(countArgs, filters.SupplierID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC, id DESC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// ListAdjustments returns adjustment rows for one order, oldest first.
func (r *Repository) ListAdjustments(ctx context.Context, orderID int64) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, order_item_id, qty_delta, price_delta, reason, note, created_by, created_at
FROM order_adjustments WHERE order_id=$1 ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adjustments := []Adjustment{}
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.OrderID, &a.OrderItemID, &a.QtyDelta, &a.PriceDelta, &a.Reason, &a.Note, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

func (r *Repository) listItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, batch_id, product_name, quantity, unit_price, line_total
FROM order_items WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

type txRepository struct {
	tx pgx.Tx
}

// InsertOrder runs inside a savepoint. A unique violation on the order
// number aborts only the savepoint, so the enclosing transaction stays
// usable and the caller can retry with a fresh number.
func (r *txRepository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return Order{}, err
	}
	err = sp.QueryRow(ctx, `INSERT INTO orders (order_number, supplier_id, ordered_by, status, memo, total_amount, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		order.OrderNumber, order.SupplierID, order.OrderedBy, string(order.Status), order.Memo, order.TotalAmount).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		_ = sp.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_orders_number" {
			return Order{}, ErrDuplicateNumber
		}
		return Order{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (r *txRepository) InsertOrderItem(ctx context.Context, item OrderItem) (OrderItem, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, batch_id, product_name, quantity, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		item.OrderID, item.ProductID, item.BatchID, item.ProductName, item.Quantity, item.UnitPrice, item.LineTotal).
		Scan(&item.ID)
	return item, err
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, order_number, supplier_id, ordered_by, status, memo, rejection_reason, rejection_note, total_amount, created_at, updated_at
FROM orders WHERE id=$1 FOR UPDATE`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}

	rows, err := r.tx.Query(ctx, `SELECT id, order_id, product_id, batch_id, product_name, quantity, unit_price, line_total
FROM order_items WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status Status, reason *ReasonCode, note string) error {
	var reasonValue *string
	if reason != nil {
		v := string(*reason)
		reasonValue = &v
	}
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET status=$2, rejection_reason=$3, rejection_note=$4, updated_at=NOW() WHERE id=$1`,
		orderID, string(status), reasonValue, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO order_adjustments (order_id, order_item_id, qty_delta, price_delta, reason, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id, created_at`,
		adj.OrderID, adj.OrderItemID, adj.QtyDelta, adj.PriceDelta, string(adj.Reason), adj.Note, adj.CreatedBy).
		Scan(&adj.ID, &adj.CreatedAt)
	return adj, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		order  Order
		reason *string
		note   *string
	)
	err := row.Scan(&order.ID, &order.OrderNumber, &order.SupplierID, &order.OrderedBy, &order.Status,
		&order.Memo, &reason, &note, &order.TotalAmount, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if reason != nil {
		code := ReasonCode(*reason)
		order.RejectionReason = &code
	}
	if note != nil {
		order.RejectionNote = *note
	}
	return order, nil
}

func scanItems(rows pgx.Rows) ([]OrderItem, error) {
	items := []OrderItem{}
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.BatchID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
