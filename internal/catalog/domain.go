package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a stocked supply item. Current stock is always derived
// from the batch ledger and never stored on the product row.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Brand         string          `json:"brand"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	MinStock      int64           `json:"min_stock"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	SupplierID    *int64          `json:"supplier_id"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Supplier represents a supplier directory entry. Orders only ever store the
// supplier id; display details are resolved at read time.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters represents standard list filters.
type ListFilters struct {
	Page   int
	Limit  int
	Search string
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("catalog: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
)
