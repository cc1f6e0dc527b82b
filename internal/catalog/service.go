package catalog

import (
	"context"
	"fmt"
	"strings"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, p Product) error
	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, s Supplier) (Supplier, error)
}

// Service provides catalog business logic.
type Service struct {
	repo RepositoryPort
}

// NewService constructs catalog service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListProducts lists products with pagination.
func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	return s.repo.ListProducts(ctx, filters)
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id == 0 {
		return Product{}, ErrValidation
	}
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct validates and persists a product.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := s.validateProduct(p); err != nil {
		return Product{}, err
	}
	p.Name = strings.TrimSpace(p.Name)
	return s.repo.CreateProduct(ctx, p)
}

// UpdateProduct validates and updates a product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, p Product) error {
	if id == 0 {
		return ErrValidation
	}
	if err := s.validateProduct(p); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, id, p)
}

// ListSuppliers lists directory entries with pagination.
func (s *Service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	return s.repo.ListSuppliers(ctx, filters)
}

// GetSupplier returns one supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id == 0 {
		return Supplier{}, ErrValidation
	}
	return s.repo.GetSupplier(ctx, id)
}

// CreateSupplier validates and persists a supplier.
func (s *Service) CreateSupplier(ctx context.Context, sup Supplier) (Supplier, error) {
	if strings.TrimSpace(sup.Name) == "" {
		return Supplier{}, fmt.Errorf("%w: supplier name required", ErrValidation)
	}
	sup.Name = strings.TrimSpace(sup.Name)
	return s.repo.CreateSupplier(ctx, sup)
}

func (s *Service) validateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name required", ErrValidation)
	}
	if p.MinStock < 0 {
		return fmt.Errorf("%w: minimum stock must be >= 0", ErrValidation)
	}
	if p.PurchasePrice.IsNegative() || p.SalePrice.IsNegative() {
		return fmt.Errorf("%w: prices must be >= 0", ErrValidation)
	}
	return nil
}
