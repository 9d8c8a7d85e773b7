package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for masterdata.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*Product, error)
	UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (*Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	FindMissingProducts(ctx context.Context, ids []int64) ([]int64, error)

	CreateSupplier(ctx context.Context, input CreateSupplierInput) (*Supplier, error)
	GetSupplier(ctx context.Context, id int64) (*Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)

	CreateStorageLocation(ctx context.Context, input CreateStorageLocationInput) (*StorageLocation, error)
	ListStorageLocations(ctx context.Context) ([]StorageLocation, error)
}

// Service handles masterdata business logic.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	notifier shared.Notifier
	printer  *message.Printer
	cache    *Cache
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger, notifier shared.Notifier) *Service {
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	return &Service{
		repo:     repo,
		logger:   logger,
		notifier: notifier,
		printer:  message.NewPrinter(language.English),
	}
}

// CreateProduct registers a new product.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (*Product, error) {
	if input.MaxQuantity > 0 && input.MaxQuantity < input.MinQuantity {
		return nil, fmt.Errorf("max quantity below min quantity: %w", shared.ErrValidation)
	}
	return s.repo.CreateProduct(ctx, input)
}

// SetCache wires the optional product read cache.
func (s *Service) SetCache(cache *Cache) {
	s.cache = cache
}

// UpdateProduct edits product masterdata. Stock totals are never touched here.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (*Product, error) {
	if input.MaxQuantity > 0 && input.MaxQuantity < input.MinQuantity {
		return nil, fmt.Errorf("max quantity below min quantity: %w", shared.ErrValidation)
	}
	product, err := s.repo.UpdateProduct(ctx, id, input)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	return product, nil
}

// GetProduct returns a single product, served from cache when possible.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.cache.FetchProduct(ctx, id, func(ctx context.Context) (*Product, error) {
		return s.repo.GetProduct(ctx, id)
	})
}

// ListProducts returns all products.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// ValidateProducts returns the subset of ids that do not exist.
func (s *Service) ValidateProducts(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.repo.FindMissingProducts(ctx, ids)
}

// CreateSupplier registers a new supplier.
func (s *Service) CreateSupplier(ctx context.Context, input CreateSupplierInput) (*Supplier, error) {
	return s.repo.CreateSupplier(ctx, input)
}

// GetSupplier returns a single supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (*Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListSuppliers returns all suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// CreateStorageLocation registers a storage location.
func (s *Service) CreateStorageLocation(ctx context.Context, input CreateStorageLocationInput) (*StorageLocation, error) {
	return s.repo.CreateStorageLocation(ctx, input)
}

// ListStorageLocations returns all storage locations.
func (s *Service) ListStorageLocations(ctx context.Context) ([]StorageLocation, error) {
	return s.repo.ListStorageLocations(ctx)
}

// CheckThresholds fires a warning notification when a product's stock
// crosses its configured min or max threshold. Failures never propagate.
func (s *Service) CheckThresholds(ctx context.Context, productID int64) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		s.logger.Warn("threshold check lookup failed", slog.Int64("product_id", productID), slog.Any("error", err))
		return
	}

	var title, body string
	switch {
	case product.MinQuantity > 0 && product.TotalCurrentQuantity < product.MinQuantity:
		title = "Stock below minimum"
		body = s.printer.Sprintf("%s is at %.0f %s, below the minimum of %.0f.",
			product.Name, product.TotalCurrentQuantity, product.Unit, product.MinQuantity)
	case product.MaxQuantity > 0 && product.TotalCurrentQuantity > product.MaxQuantity:
		title = "Stock above maximum"
		body = s.printer.Sprintf("%s is at %.0f %s, above the maximum of %.0f.",
			product.Name, product.TotalCurrentQuantity, product.Unit, product.MaxQuantity)
	default:
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, shared.Notification{
		Target:   "inventory",
		Title:    title,
		Message:  body,
		Severity: shared.SeverityWarning,
	}); err != nil {
		s.logger.Warn("threshold notification failed", slog.Int64("product_id", productID), slog.Any("error", err))
	}
}
