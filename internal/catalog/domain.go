package catalog

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Product masterdata. TotalCurrentQuantity mirrors the sum of lot
// quantities and is only mutated together with the lots themselves.
type Product struct {
	ID                   int64
	SKU                  string
	Name                 string
	Unit                 string
	MinQuantity          float64
	MaxQuantity          float64
	TotalCurrentQuantity float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Supplier masterdata.
type Supplier struct {
	ID        int64
	Code      string
	Name      string
	Phone     string
	Email     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StorageLocation is a physical shelf or cold-chain slot.
type StorageLocation struct {
	ID          int64
	Code        string
	Name        string
	Description string
	CreatedAt   time.Time
}

// CreateProductInput for creating products.
type CreateProductInput struct {
	SKU         string  `json:"sku" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Unit        string  `json:"unit" validate:"required"`
	MinQuantity float64 `json:"min_quantity" validate:"gte=0"`
	MaxQuantity float64 `json:"max_quantity" validate:"gte=0"`
}

// UpdateProductInput for editing product masterdata.
type UpdateProductInput struct {
	Name        string  `json:"name" validate:"required"`
	Unit        string  `json:"unit" validate:"required"`
	MinQuantity float64 `json:"min_quantity" validate:"gte=0"`
	MaxQuantity float64 `json:"max_quantity" validate:"gte=0"`
}

// CreateSupplierInput for creating suppliers.
type CreateSupplierInput struct {
	Code    string `json:"code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
}

// CreateStorageLocationInput for creating storage locations.
type CreateStorageLocationInput struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

var (
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = fmt.Errorf("product %w", shared.ErrNotFound)
	// ErrDuplicateSKU indicates a SKU collision on create.
	ErrDuplicateSKU = fmt.Errorf("duplicate sku: %w", shared.ErrConflict)
)
