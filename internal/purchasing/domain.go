package purchasing

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// POStatus enumerates purchasing order statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusSent      POStatus = "SENT"
	POStatusApproved  POStatus = "APPROVED"
	POStatusRejected  POStatus = "REJECTED"
	POStatusDeposited POStatus = "DEPOSITED"
	POStatusPaid      POStatus = "PAID"
	POStatusCompleted POStatus = "COMPLETED"
)

// poTransitions is the full transition table. Every status change, including
// the money-carrying ones, is validated against it before anything mutates.
var poTransitions = map[POStatus][]POStatus{
	POStatusDraft:     {POStatusSent},
	POStatusSent:      {POStatusApproved, POStatusRejected},
	POStatusApproved:  {POStatusDeposited},
	POStatusDeposited: {POStatusPaid, POStatusCompleted},
	POStatusPaid:      {POStatusPaid, POStatusCompleted},
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to POStatus) bool {
	for _, next := range poTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// moneyTransitions lists targets that must go through the deposit/payment
// operations because they move balances together with the status.
var moneyTransitions = map[POStatus]bool{
	POStatusDeposited: true,
	POStatusPaid:      true,
	POStatusCompleted: true,
}

// PurchasingOrder model. Debt is always Total − Deposit − paid amounts and
// never negative.
type PurchasingOrder struct {
	ID           int64
	Number       string
	SupplierID   int64
	Status       POStatus
	Total        float64
	Deposit      float64
	Debt         float64
	PaidBy       string
	PaidAt       *time.Time
	ReceiptCount int
	Lines        []PurchasingOrderLine
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PurchasingOrderLine model.
type PurchasingOrderLine struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  float64
	UnitPrice float64
	LineTotal float64
}

// GoodsReceiptNote is the immutable record of one delivery against a
// purchasing order. Sequence is 1-based per order.
type GoodsReceiptNote struct {
	ID         int64
	OrderID    int64
	Sequence   int
	Reference  string
	ReceivedAt time.Time
	Lines      []GoodsReceiptLine
	CreatedAt  time.Time
}

// GoodsReceiptLine records which lot one received line landed in.
type GoodsReceiptLine struct {
	ID         int64
	NoteID     int64
	ProductID  int64
	LotID      int64
	Quantity   float64
	UnitCost   float64
	ExpiryDate time.Time
}

// POLineInput is one requested line on a new purchasing order.
type POLineInput struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// CreateOrderInput for creating purchasing orders.
type CreateOrderInput struct {
	SupplierID int64         `json:"supplier_id" validate:"required"`
	Lines      []POLineInput `json:"lines" validate:"required,min=1,dive"`
}

// DepositInput records the deposit against an approved order.
type DepositInput struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

// PaymentInput records a debt payment.
type PaymentInput struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	PaidBy string  `json:"paid_by" validate:"required"`
}

// ReceiptLineInput is one line of an incoming delivery.
type ReceiptLineInput struct {
	ProductID         int64     `json:"product_id" validate:"required"`
	Quantity          float64   `json:"quantity" validate:"gt=0"`
	UnitCost          float64   `json:"unit_cost" validate:"gte=0"`
	SalePrice         float64   `json:"sale_price" validate:"gte=0"`
	ExpiryDate        time.Time `json:"expiry_date" validate:"required"`
	StorageLocationID int64     `json:"storage_location_id"`
}

// GoodsReceiptInput for posting a goods receipt.
type GoodsReceiptInput struct {
	OrderID int64              `json:"order_id" validate:"required"`
	Lines   []ReceiptLineInput `json:"lines" validate:"required,min=1,dive"`
}

// ErrOrderNotFound indicates an unknown purchasing order id.
var ErrOrderNotFound = fmt.Errorf("purchasing order %w", shared.ErrNotFound)

// UnknownProductError rejects a goods receipt naming every missing product,
// so one round-trip surfaces the whole problem.
type UnknownProductError struct {
	ProductIDs []int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown products: %v", e.ProductIDs)
}

// Unwrap classifies the failure as a validation error.
func (e *UnknownProductError) Unwrap() error { return shared.ErrValidation }
