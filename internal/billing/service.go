package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/fulfillment"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for billing.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, orderID int64) ([]Invoice, error)
	ListInvoiceIDs(ctx context.Context) ([]int64, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]PaymentRemain, error)
	GetDebt(ctx context.Context, orderID int64) (*CustomerDebt, error)
}

// TxRepository exposes the mutations that must share one transaction.
// Reconciliation rewrites the invoice, its details, the sales order and the
// debt record together; a partial update would leave the ledger lying.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	InsertInvoice(ctx context.Context, inv *Invoice) error
	SaveInvoice(ctx context.Context, inv *Invoice) error
	InsertInvoiceDetail(ctx context.Context, d *InvoiceDetail) error
	SaveInvoiceDetail(ctx context.Context, d *InvoiceDetail) error
	FindInvoicedIssueIDs(ctx context.Context, issueIDs []int64) ([]int64, error)
	ListOrderIssues(ctx context.Context, orderID int64, issueIDs []int64) ([]fulfillment.GoodsIssueNote, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (*PaymentRemain, error)
	InsertPayment(ctx context.Context, p *PaymentRemain) error
	SavePayment(ctx context.Context, p *PaymentRemain) error
	SumConfirmedPayments(ctx context.Context, invoiceID int64) (float64, error)
	SumOrderPaid(ctx context.Context, orderID int64) (float64, error)
	GetSalesOrderForUpdate(ctx context.Context, id int64) (*sales.SalesOrder, error)
	SaveSalesOrder(ctx context.Context, order *sales.SalesOrder) error
	UpsertCustomerDebt(ctx context.Context, debt *CustomerDebt) error
}

// Service handles invoicing and payment reconciliation.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// GetInvoice returns one invoice with details.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns the invoices for a sales order.
func (s *Service) ListInvoices(ctx context.Context, orderID int64) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, orderID)
}

// ListPayments returns the remainder payments for an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]PaymentRemain, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

// GetDebt returns the debt record for a sales order.
func (s *Service) GetDebt(ctx context.Context, orderID int64) (*CustomerDebt, error) {
	return s.repo.GetDebt(ctx, orderID)
}

// GenerateInvoice bills the named goods issues of one sales order. The order
// deposit is apportioned across the covered issues proportionally to their
// amounts, each share rounded to whole units. Per-share rounding is accepted
// as-is, so the deposit column can drift from the fixed deposit by at most
// one unit per issue.
func (s *Service) GenerateInvoice(ctx context.Context, input GenerateInvoiceInput) (*Invoice, error) {
	if len(input.IssueIDs) == 0 {
		return nil, fmt.Errorf("invoice needs at least one goods issue: %w", shared.ErrValidation)
	}

	var invoice *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetSalesOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}

		taken, err := tx.FindInvoicedIssueIDs(ctx, input.IssueIDs)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return fmt.Errorf("goods issues %v already invoiced: %w", taken, shared.ErrConflict)
		}

		issues, err := tx.ListOrderIssues(ctx, input.OrderID, input.IssueIDs)
		if err != nil {
			return err
		}
		if len(issues) != len(input.IssueIDs) {
			return fmt.Errorf("some goods issues do not belong to order %d: %w", input.OrderID, shared.ErrValidation)
		}

		depositFixed := order.DepositRequired()
		invoice = &Invoice{
			Number:     "INV-" + uuid.NewString()[:8],
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Status:     InvoiceDraft,
		}
		for _, issue := range issues {
			allocated := shared.Portion(depositFixed, issue.IssueAmount, order.TotalPrice)
			if !order.IsDeposited {
				allocated = 0
			}
			invoice.TotalAmount += issue.IssueAmount
			invoice.TotalDeposit += allocated
			invoice.Details = append(invoice.Details, InvoiceDetail{
				IssueID:          issue.ID,
				IssueAmount:      issue.IssueAmount,
				AllocatedDeposit: allocated,
				Balance:          issue.IssueAmount - allocated,
			})
		}
		invoice.TotalPaid = invoice.TotalDeposit
		invoice.TotalRemain = invoice.TotalAmount - invoice.TotalPaid
		invoice.PaymentStatus = sales.DerivePaymentStatus(invoice.TotalPaid, invoice.TotalDeposit, invoice.TotalAmount)

		if err := tx.InsertInvoice(ctx, invoice); err != nil {
			return err
		}
		for i := range invoice.Details {
			invoice.Details[i].InvoiceID = invoice.ID
			if err := tx.InsertInvoiceDetail(ctx, &invoice.Details[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// SendInvoice moves a draft invoice to SENT.
func (s *Service) SendInvoice(ctx context.Context, id int64) (*Invoice, error) {
	var result *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceDraft {
			return fmt.Errorf("invoice %d in %s cannot be sent: %w", id, invoice.Status, shared.ErrInvalidTransition)
		}
		invoice.Status = InvoiceSent
		if err := tx.SaveInvoice(ctx, invoice); err != nil {
			return err
		}
		result = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreatePaymentRemain registers a pending remainder payment against an
// invoice. The amount may not exceed what the invoice still owes.
func (s *Service) CreatePaymentRemain(ctx context.Context, input CreatePaymentInput) (*PaymentRemain, error) {
	var payment *PaymentRemain
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if input.Amount <= 0 {
			return fmt.Errorf("payment amount must be positive: %w", shared.ErrValidation)
		}
		if input.Amount > invoice.TotalRemain {
			return fmt.Errorf("payment %.0f exceeds remaining %.0f on invoice %d: %w",
				input.Amount, invoice.TotalRemain, invoice.ID, shared.ErrAmountExceedsLimit)
		}

		payment = &PaymentRemain{
			InvoiceID:     invoice.ID,
			Amount:        input.Amount,
			Method:        input.Method,
			GatewayStatus: GatewayPending,
			GatewayRef:    uuid.NewString(),
			RequestedAt:   s.now(),
		}
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// MarkPaymentSuccess confirms a remainder payment. Confirmation is
// write-once: a second attempt fails with a conflict and changes nothing.
// Reconciliation runs after the commit and is best-effort; a failure there
// is logged and repaired later by the reconcile job.
func (s *Service) MarkPaymentSuccess(ctx context.Context, paymentID int64) (*PaymentRemain, error) {
	var payment *PaymentRemain
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.ConfirmedAt != nil {
			return ErrPaymentAlreadyConfirmed
		}
		confirmedAt := s.now()
		p.GatewayStatus = GatewaySuccess
		p.ConfirmedAt = &confirmedAt
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.Reconcile(ctx, payment.InvoiceID); err != nil {
		s.logger.Error("reconcile after payment confirmation failed",
			slog.Int64("invoice_id", payment.InvoiceID),
			slog.Int64("payment_id", payment.ID),
			slog.Any("error", err),
		)
	}
	return payment, nil
}

// MarkPaymentFailed flips a pending payment's gateway status to FAILED. A
// confirmed payment never flips back.
func (s *Service) MarkPaymentFailed(ctx context.Context, paymentID int64) (*PaymentRemain, error) {
	var payment *PaymentRemain
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.ConfirmedAt != nil {
			return ErrPaymentAlreadyConfirmed
		}
		p.GatewayStatus = GatewayFailed
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Reconcile recomputes everything derived from money movement for one
// invoice: invoice totals and ladder position, per-detail remainder
// allocation, the sales order's payment status and workflow status, and the
// customer debt record. It reads only confirmed payments and recomputes from
// scratch, so re-running it is always safe.
func (s *Service) Reconcile(ctx context.Context, invoiceID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		confirmed, err := tx.SumConfirmedPayments(ctx, invoiceID)
		if err != nil {
			return err
		}

		invoice.TotalPaid = invoice.TotalDeposit + confirmed
		invoice.TotalRemain = invoice.TotalAmount - invoice.TotalPaid
		invoice.PaymentStatus = sales.DerivePaymentStatus(invoice.TotalPaid, invoice.TotalDeposit, invoice.TotalAmount)

		remaining := confirmed
		for i := range invoice.Details {
			detail := &invoice.Details[i]
			due := detail.IssueAmount - detail.AllocatedDeposit
			pay := due
			if pay > remaining {
				pay = remaining
			}
			detail.PaidRemainder = pay
			detail.Balance = due - pay
			remaining -= pay
			if err := tx.SaveInvoiceDetail(ctx, detail); err != nil {
				return err
			}
		}
		if err := tx.SaveInvoice(ctx, invoice); err != nil {
			return err
		}

		order, err := tx.GetSalesOrderForUpdate(ctx, invoice.OrderID)
		if err != nil {
			return err
		}
		// Orders can be billed across several invoices; the order-level
		// position sums them all.
		orderPaid, err := tx.SumOrderPaid(ctx, invoice.OrderID)
		if err != nil {
			return err
		}
		order.PaidAmount = orderPaid
		ps := sales.DerivePaymentStatus(order.PaidAmount, order.DepositRequired(), order.TotalPrice)
		order.PaymentStatus = ps
		if required := order.DepositRequired(); required > 0 && order.PaidAmount >= required {
			order.IsDeposited = true
		}
		if ps == sales.PaymentPaid && order.PaidFullAt == nil {
			paidAt := s.now()
			order.PaidFullAt = &paidAt
		}
		if next, changed := sales.AdvanceOrderStatus(order.Status, ps); changed {
			order.Status = next
		}
		if err := tx.SaveSalesOrder(ctx, order); err != nil {
			return err
		}

		debt := &CustomerDebt{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			DebtAmount: order.TotalPrice - order.PaidAmount,
			UpdatedAt:  s.now(),
		}
		switch {
		case debt.DebtAmount <= 0:
			debt.DebtAmount = 0
			debt.Status = DebtNone
		case s.now().After(order.ExpiredDate):
			debt.Status = DebtOverdue
		default:
			debt.Status = DebtOnTime
		}
		return tx.UpsertCustomerDebt(ctx, debt)
	})
}

// ReconcileAll re-runs Reconcile for every invoice. Used by the repair job
// to converge any invoice whose post-payment reconcile was lost. Per-invoice
// failures are logged and skipped.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.repo.ListInvoiceIDs(ctx)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if err := s.Reconcile(ctx, id); err != nil {
			s.logger.Error("reconcile failed", slog.Int64("invoice_id", id), slog.Any("error", err))
			continue
		}
		done++
	}
	return done, nil
}
