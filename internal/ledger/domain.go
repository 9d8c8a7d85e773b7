package ledger

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Lot is a physical batch of a product from one supplier with one expiry
// date. Lots are never hard-deleted; a consumed lot stays at quantity zero
// so its receipt and issue history remains traceable.
type Lot struct {
	ID                int64
	ProductID         int64
	SupplierID        int64
	InputDate         time.Time
	ExpiryDate        time.Time
	Quantity          float64
	UnitCost          float64
	SalePrice         float64
	StorageLocationID int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReceiveLotInput describes one incoming batch.
type ReceiveLotInput struct {
	ProductID         int64     `json:"product_id" validate:"required"`
	SupplierID        int64     `json:"supplier_id" validate:"required"`
	ExpiryDate        time.Time `json:"expiry_date" validate:"required"`
	Quantity          float64   `json:"quantity" validate:"gt=0"`
	UnitCost          float64   `json:"unit_cost" validate:"gte=0"`
	SalePrice         float64   `json:"sale_price" validate:"gte=0"`
	StorageLocationID int64     `json:"storage_location_id"`
	InputDate         time.Time `json:"input_date"`
}

// AdjustmentInput describes a physical stock count for one lot.
type AdjustmentInput struct {
	LotID          int64   `json:"lot_id" validate:"required"`
	ActualQuantity float64 `json:"actual_quantity" validate:"gte=0"`
	Reason         string  `json:"reason"`
}

// StockAdjustment records a correction from a physical count. Difference is
// signed, system minus actual: positive means shrinkage, negative means the
// shelf held more than the ledger said.
type StockAdjustment struct {
	ID             int64
	LotID          int64
	ProductID      int64
	SystemQuantity float64
	ActualQuantity float64
	Difference     float64
	Reason         string
	CreatedAt      time.Time
}

var (
	// ErrLotNotFound indicates an unknown lot id.
	ErrLotNotFound = fmt.Errorf("lot %w", shared.ErrNotFound)
)

// ExpiryKey normalizes an expiry timestamp to its date in UTC. Two receipts
// on the same calendar day merge regardless of time-of-day noise.
func ExpiryKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MergeOutcome tells a receipt writer what to do with an incoming batch.
type MergeOutcome int

const (
	// MergeInsert creates a fresh lot row.
	MergeInsert MergeOutcome = iota
	// MergeReinitialize refreshes a fully consumed lot in place.
	MergeReinitialize
	// MergeAccumulate adds quantity to a live lot, overwriting cost.
	MergeAccumulate
)

// ResolveMerge decides how an incoming batch combines with the existing lot
// sharing its (product, supplier, expiry date) identity. A zero-quantity lot
// is treated as retired and gets reinitialized rather than accumulated, so
// its stale cost and input date never leak into the new batch.
func ResolveMerge(existing *Lot) MergeOutcome {
	switch {
	case existing == nil:
		return MergeInsert
	case existing.Quantity == 0:
		return MergeReinitialize
	default:
		return MergeAccumulate
	}
}

// ApplyReceipt mutates lot in place according to the merge outcome. Unit
// cost follows last-cost policy: the newest receipt wins.
func ApplyReceipt(lot *Lot, input ReceiveLotInput, outcome MergeOutcome) {
	switch outcome {
	case MergeReinitialize:
		lot.Quantity = input.Quantity
		lot.UnitCost = input.UnitCost
		lot.SalePrice = input.SalePrice
		lot.InputDate = input.InputDate
		if input.StorageLocationID != 0 {
			lot.StorageLocationID = input.StorageLocationID
		}
	case MergeAccumulate:
		lot.Quantity += input.Quantity
		lot.UnitCost = input.UnitCost
		lot.SalePrice = input.SalePrice
	}
}
