package stockview

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lotline-erp/lotline-erp/internal/catalog"
	"github.com/lotline-erp/lotline-erp/internal/ledger"
)

// CatalogPort supplies product master data.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	ListProducts(ctx context.Context, filters catalog.ListFilters) ([]catalog.Product, int, error)
}

// LedgerPort supplies batch rows per product.
type LedgerPort interface {
	ListBatches(ctx context.Context, productID int64) ([]ledger.Batch, error)
}

// Service recomputes stock views on demand. Concurrent identical lookups are
// collapsed through singleflight since the computation is read-only.
type Service struct {
	catalog CatalogPort
	ledger  LedgerPort
	group   singleflight.Group
	now     func() time.Time
}

// NewService constructs stockview service.
func NewService(catalogPort CatalogPort, ledgerPort LedgerPort) *Service {
	return &Service{
		catalog: catalogPort,
		ledger:  ledgerPort,
		now:     time.Now,
	}
}

// ProductView computes the stock view for one product.
func (s *Service) ProductView(ctx context.Context, productID int64) (ProductView, error) {
	key := fmt.Sprintf("product:%d", productID)
	result, err, _ := s.group.Do(key, func() (any, error) {
		return s.computeOne(ctx, productID)
	})
	if err != nil {
		return ProductView{}, err
	}
	return result.(ProductView), nil
}

// Overview computes views for a product page and sorts them for display.
func (s *Service) Overview(ctx context.Context, filters catalog.ListFilters) ([]ProductView, int, error) {
	products, total, err := s.catalog.ListProducts(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		batches, err := s.ledger.ListBatches(ctx, p.ID)
		if err != nil {
			return nil, 0, err
		}
		views = append(views, ComputeProductView(p, batches, now))
	}
	SortProductViews(views)
	return views, total, nil
}

func (s *Service) computeOne(ctx context.Context, productID int64) (ProductView, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return ProductView{}, err
	}
	batches, err := s.ledger.ListBatches(ctx, product.ID)
	if err != nil {
		return ProductView{}, err
	}
	return ComputeProductView(product, batches, s.now()), nil
}
