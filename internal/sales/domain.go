package sales

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// QuotationStatus enumerates sales quotation statuses.
type QuotationStatus string

const (
	QuotationDraft    QuotationStatus = "DRAFT"
	QuotationSent     QuotationStatus = "SENT"
	QuotationAccepted QuotationStatus = "ACCEPTED"
	QuotationRejected QuotationStatus = "REJECTED"
)

var quotationTransitions = map[QuotationStatus][]QuotationStatus{
	QuotationDraft: {QuotationSent},
	QuotationSent:  {QuotationAccepted, QuotationRejected},
}

// CanTransitionQuotation reports whether from → to is legal.
func CanTransitionQuotation(from, to QuotationStatus) bool {
	for _, next := range quotationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SOStatus enumerates sales order statuses.
type SOStatus string

const (
	SOStatusDraft         SOStatus = "DRAFT"
	SOStatusSent          SOStatus = "SENT"
	SOStatusApproved      SOStatus = "APPROVED"
	SOStatusRejected      SOStatus = "REJECTED"
	SOStatusDeposited     SOStatus = "DEPOSITED"
	SOStatusPartiallyPaid SOStatus = "PARTIALLY_PAID"
	SOStatusPaid          SOStatus = "PAID"
	SOStatusCompleted     SOStatus = "COMPLETED"
	SOStatusNotComplete   SOStatus = "NOT_COMPLETE"
)

// soTransitions is the full sales order transition table. NOT_COMPLETE is
// reachable from every pre-deposit status: the deadline sweep fires no
// matter how far the paperwork got, as long as no deposit landed.
var soTransitions = map[SOStatus][]SOStatus{
	SOStatusDraft:         {SOStatusSent, SOStatusNotComplete},
	SOStatusSent:          {SOStatusApproved, SOStatusRejected, SOStatusNotComplete},
	SOStatusApproved:      {SOStatusDeposited, SOStatusNotComplete},
	SOStatusDeposited:     {SOStatusPartiallyPaid, SOStatusPaid},
	SOStatusPartiallyPaid: {SOStatusPartiallyPaid, SOStatusPaid},
	SOStatusPaid:          {SOStatusCompleted},
}

// CanTransitionOrder reports whether from → to is legal.
func CanTransitionOrder(from, to SOStatus) bool {
	for _, next := range soTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment sub-state shared by sales orders and
// invoices. It is derived by the reconciliation engine, never set directly
// by callers.
type PaymentStatus string

const (
	PaymentNotYet        PaymentStatus = "NOT_PAYMENT_YET"
	PaymentDeposited     PaymentStatus = "DEPOSITED"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
)

// DerivePaymentStatus applies the payment ladder: nothing paid, exactly the
// required deposit, something in between, or fully paid. Overpayment counts
// as paid.
func DerivePaymentStatus(paid, depositRequired, total float64) PaymentStatus {
	switch {
	case paid <= 0:
		return PaymentNotYet
	case paid >= total:
		return PaymentPaid
	case paid == depositRequired:
		return PaymentDeposited
	default:
		return PaymentPartiallyPaid
	}
}

// OrderStatusForPayment maps a derived payment status onto the order status
// machine. NOT_PAYMENT_YET maps to nothing: the order stays where it is.
func OrderStatusForPayment(ps PaymentStatus) (SOStatus, bool) {
	switch ps {
	case PaymentDeposited:
		return SOStatusDeposited, true
	case PaymentPartiallyPaid:
		return SOStatusPartiallyPaid, true
	case PaymentPaid:
		return SOStatusPaid, true
	default:
		return "", false
	}
}

// paymentStatusRank orders the payment-derived statuses so an advance walk
// never overshoots its target.
var paymentStatusRank = map[SOStatus]int{
	SOStatusDeposited:     1,
	SOStatusPartiallyPaid: 2,
	SOStatusPaid:          3,
}

// AdvanceOrderStatus walks the order machine toward the status implied by the
// payment position, stepping through intermediate payment stages where the
// machine requires them: a zero-deposit order paid in full moves
// APPROVED→DEPOSITED→PARTIALLY_PAID→PAID in one call. Orders outside the
// payment leg of the machine (SENT, NOT_COMPLETE, COMPLETED) never move.
// Returns the status to store and whether it differs from the current one.
func AdvanceOrderStatus(current SOStatus, ps PaymentStatus) (SOStatus, bool) {
	target, ok := OrderStatusForPayment(ps)
	if !ok || target == current {
		return current, false
	}
	status := current
	for _, step := range []SOStatus{SOStatusDeposited, SOStatusPartiallyPaid, SOStatusPaid} {
		if status == target {
			break
		}
		if paymentStatusRank[step] > paymentStatusRank[target] {
			break
		}
		if CanTransitionOrder(status, step) {
			status = step
		}
	}
	return status, status != current
}

// Customer masterdata.
type Customer struct {
	ID        int64
	Name      string
	Phone     string
	Email     string
	Address   string
	CreatedAt time.Time
}

// SalesQuotation model. DepositPercent and the line items are frozen the
// moment the quotation leaves DRAFT.
type SalesQuotation struct {
	ID             int64
	Number         string
	CustomerID     int64
	Status         QuotationStatus
	DepositPercent float64
	ExpiredDate    time.Time
	DocumentRef    string
	Total          float64
	Lines          []QuotationLine
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// QuotationLine model.
type QuotationLine struct {
	ID          int64
	QuotationID int64
	ProductID   int64
	Quantity    float64
	UnitPrice   float64
	LineTotal   float64
}

// SalesOrder model. ExpiredDate is the deposit deadline; PaidFullAt is set
// once, the first time full payment is reached.
type SalesOrder struct {
	ID             int64
	Number         string
	QuotationID    int64
	CustomerID     int64
	Status         SOStatus
	PaymentStatus  PaymentStatus
	TotalPrice     float64
	PaidAmount     float64
	IsDeposited    bool
	DepositPercent float64
	ExpiredDate    time.Time
	PaidFullAt     *time.Time
	Lines          []SalesOrderLine
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DepositRequired is the fixed deposit amount derived from the quotation's
// percentage, rounded to whole currency units away from zero.
func (o *SalesOrder) DepositRequired() float64 {
	return shared.Percent(o.TotalPrice, o.DepositPercent)
}

// SalesOrderLine model.
type SalesOrderLine struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  float64
	UnitPrice float64
	LineTotal float64
}

// QuotationLineInput is one requested line on a quotation.
type QuotationLineInput struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// CreateQuotationInput for creating quotations.
type CreateQuotationInput struct {
	CustomerID     int64                `json:"customer_id" validate:"required"`
	DepositPercent float64              `json:"deposit_percent" validate:"gte=0,lte=100"`
	ExpiredDate    time.Time            `json:"expired_date" validate:"required"`
	Lines          []QuotationLineInput `json:"lines" validate:"required,min=1,dive"`
}

// UpdateQuotationInput replaces the editable fields of a draft quotation.
type UpdateQuotationInput struct {
	DepositPercent float64              `json:"deposit_percent" validate:"gte=0,lte=100"`
	ExpiredDate    time.Time            `json:"expired_date" validate:"required"`
	Lines          []QuotationLineInput `json:"lines" validate:"required,min=1,dive"`
}

// CreateOrderInput creates a sales order from an accepted quotation.
// ExpiredDate is the deposit deadline for the new order.
type CreateOrderInput struct {
	QuotationID int64     `json:"quotation_id" validate:"required"`
	ExpiredDate time.Time `json:"expired_date" validate:"required"`
}

// DepositInput records the customer's up-front deposit payment.
type DepositInput struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

// CreateCustomerInput for creating customers.
type CreateCustomerInput struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
}

var (
	// ErrQuotationNotFound indicates an unknown quotation id.
	ErrQuotationNotFound = fmt.Errorf("quotation %w", shared.ErrNotFound)
	// ErrOrderNotFound indicates an unknown sales order id.
	ErrOrderNotFound = fmt.Errorf("sales order %w", shared.ErrNotFound)
	// ErrCustomerNotFound indicates an unknown customer id.
	ErrCustomerNotFound = fmt.Errorf("customer %w", shared.ErrNotFound)
)
