package billing

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// InvoiceStatus enumerates invoice document statuses. PaymentStatus lives
// separately: a SENT invoice can be anywhere on the payment ladder.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "DRAFT"
	InvoiceSent  InvoiceStatus = "SENT"
)

// Invoice bills the goods issued against one sales order. The deposit paid
// up front is apportioned across the covered issues; TotalPaid and the
// payment status are derived by Reconcile, never written directly.
type Invoice struct {
	ID            int64
	Number        string
	OrderID       int64
	CustomerID    int64
	Status        InvoiceStatus
	PaymentStatus sales.PaymentStatus
	TotalAmount   float64
	TotalDeposit  float64
	TotalPaid     float64
	TotalRemain   float64
	Details       []InvoiceDetail
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InvoiceDetail covers one goods issue. AllocatedDeposit is the issue's
// proportional share of the order deposit; PaidRemainder and Balance are
// recomputed from scratch on every reconcile pass.
type InvoiceDetail struct {
	ID               int64
	InvoiceID        int64
	IssueID          int64
	IssueAmount      float64
	AllocatedDeposit float64
	PaidRemainder    float64
	Balance          float64
}

// GatewayStatus mirrors the payment gateway's view of a remainder payment.
type GatewayStatus string

const (
	GatewayPending GatewayStatus = "PENDING"
	GatewaySuccess GatewayStatus = "SUCCESS"
	GatewayFailed  GatewayStatus = "FAILED"
)

// PaymentRemain is one remainder payment against an invoice. Once confirmed
// the record is immutable apart from gateway status flips.
type PaymentRemain struct {
	ID            int64
	InvoiceID     int64
	Amount        float64
	Method        string
	GatewayStatus GatewayStatus
	GatewayRef    string
	RequestedAt   time.Time
	ConfirmedAt   *time.Time
}

// DebtStatus classifies a customer's outstanding balance on one order.
type DebtStatus string

const (
	DebtNone    DebtStatus = "NO_DEBT"
	DebtOnTime  DebtStatus = "ON_TIME"
	DebtOverdue DebtStatus = "OVERDUE"
)

// CustomerDebt tracks the outstanding balance per sales order. Recomputed
// whole on every reconcile pass.
type CustomerDebt struct {
	OrderID    int64
	CustomerID int64
	DebtAmount float64
	Status     DebtStatus
	UpdatedAt  time.Time
}

// GenerateInvoiceInput names the goods issues one invoice should cover.
type GenerateInvoiceInput struct {
	OrderID  int64   `json:"order_id" validate:"required"`
	IssueIDs []int64 `json:"issue_ids" validate:"required,min=1"`
}

// CreatePaymentInput requests a remainder payment against an invoice.
type CreatePaymentInput struct {
	InvoiceID int64   `json:"invoice_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"gt=0"`
	Method    string  `json:"method" validate:"required"`
}

var (
	// ErrInvoiceNotFound indicates an unknown invoice id.
	ErrInvoiceNotFound = fmt.Errorf("invoice %w", shared.ErrNotFound)
	// ErrPaymentNotFound indicates an unknown payment id.
	ErrPaymentNotFound = fmt.Errorf("payment %w", shared.ErrNotFound)
	// ErrPaymentAlreadyConfirmed indicates a second confirmation attempt.
	ErrPaymentAlreadyConfirmed = fmt.Errorf("payment already confirmed: %w", shared.ErrConflict)
	// ErrDebtNotFound indicates no debt record exists for the order.
	ErrDebtNotFound = fmt.Errorf("customer debt %w", shared.ErrNotFound)
)
