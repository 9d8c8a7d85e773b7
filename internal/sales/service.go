package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for sales.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateQuotation(ctx context.Context, q *SalesQuotation) error
	GetQuotation(ctx context.Context, id int64) (*SalesQuotation, error)
	ListQuotations(ctx context.Context, status QuotationStatus) ([]SalesQuotation, error)
	GetOrder(ctx context.Context, id int64) (*SalesOrder, error)
	ListOrders(ctx context.Context, status SOStatus) ([]SalesOrder, error)
	ListDepositOverdue(ctx context.Context, now time.Time) ([]SalesOrder, error)
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	GetQuotationForUpdate(ctx context.Context, id int64) (*SalesQuotation, error)
	SaveQuotation(ctx context.Context, q *SalesQuotation) error
	ReplaceQuotationLines(ctx context.Context, quotationID int64, lines []QuotationLine) error
	GetOrderForUpdate(ctx context.Context, id int64) (*SalesOrder, error)
	InsertOrder(ctx context.Context, order *SalesOrder) error
	SaveOrder(ctx context.Context, order *SalesOrder) error
}

// Service handles sales business logic.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	notifier shared.Notifier
	printer  *message.Printer
	now      func() time.Time
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
		now:      time.Now,
	}
}

// CreateCustomer registers a customer.
func (s *Service) CreateCustomer(ctx context.Context, input CreateCustomerInput) (*Customer, error) {
	customer := &Customer{Name: input.Name, Phone: input.Phone, Email: input.Email, Address: input.Address}
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// GetCustomer returns one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// CreateQuotation creates a draft quotation.
func (s *Service) CreateQuotation(ctx context.Context, input CreateQuotationInput) (*SalesQuotation, error) {
	lines, total, err := buildQuotationLines(input.Lines)
	if err != nil {
		return nil, err
	}
	quotation := &SalesQuotation{
		Number:         "SQ-" + uuid.NewString()[:8],
		CustomerID:     input.CustomerID,
		Status:         QuotationDraft,
		DepositPercent: input.DepositPercent,
		ExpiredDate:    input.ExpiredDate,
		Total:          total,
		Lines:          lines,
	}
	if err := s.repo.CreateQuotation(ctx, quotation); err != nil {
		return nil, err
	}
	return quotation, nil
}

func buildQuotationLines(inputs []QuotationLineInput) ([]QuotationLine, float64, error) {
	if len(inputs) == 0 {
		return nil, 0, fmt.Errorf("quotation needs at least one line: %w", shared.ErrValidation)
	}
	var lines []QuotationLine
	var total float64
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, 0, fmt.Errorf("line quantity for product %d must be positive: %w", in.ProductID, shared.ErrValidation)
		}
		lineTotal := shared.RoundUnit(in.Quantity * in.UnitPrice)
		lines = append(lines, QuotationLine{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			LineTotal: lineTotal,
		})
		total += lineTotal
	}
	return lines, total, nil
}

// GetQuotation returns one quotation with lines.
func (s *Service) GetQuotation(ctx context.Context, id int64) (*SalesQuotation, error) {
	return s.repo.GetQuotation(ctx, id)
}

// ListQuotations returns quotations, optionally filtered by status.
func (s *Service) ListQuotations(ctx context.Context, status QuotationStatus) ([]SalesQuotation, error) {
	return s.repo.ListQuotations(ctx, status)
}

// UpdateQuotation replaces the lines and terms of a draft quotation. A
// quotation that already left DRAFT is frozen.
func (s *Service) UpdateQuotation(ctx context.Context, id int64, input UpdateQuotationInput) (*SalesQuotation, error) {
	lines, total, err := buildQuotationLines(input.Lines)
	if err != nil {
		return nil, err
	}

	var result *SalesQuotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quotation, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if quotation.Status != QuotationDraft {
			return fmt.Errorf("quotation %d in %s cannot be edited: %w", id, quotation.Status, shared.ErrInvalidTransition)
		}
		quotation.DepositPercent = input.DepositPercent
		quotation.ExpiredDate = input.ExpiredDate
		quotation.Total = total
		quotation.Lines = lines
		if err := tx.ReplaceQuotationLines(ctx, id, lines); err != nil {
			return err
		}
		if err := tx.SaveQuotation(ctx, quotation); err != nil {
			return err
		}
		result = quotation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SendQuotation moves a draft quotation to SENT and fires the customer
// notification and document generation side effects. Both are downstream
// only: their failure never rolls back the status change.
func (s *Service) SendQuotation(ctx context.Context, id int64) (*SalesQuotation, error) {
	var result *SalesQuotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quotation, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransitionQuotation(quotation.Status, QuotationSent) {
			return fmt.Errorf("quotation %d: %s to %s: %w", id, quotation.Status, QuotationSent, shared.ErrInvalidTransition)
		}
		quotation.Status = QuotationSent
		quotation.DocumentRef = uuid.NewString()
		if err := tx.SaveQuotation(ctx, quotation); err != nil {
			return err
		}
		result = quotation
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAfterCommit(ctx, shared.Notification{
		Target:   fmt.Sprintf("customer:%d", result.CustomerID),
		Title:    "Quotation " + result.Number,
		Message:  s.printer.Sprintf("Your quotation for %.0f is ready for review.", result.Total),
		Severity: shared.SeverityInfo,
	})
	return result, nil
}

// AcceptQuotation moves a sent quotation to ACCEPTED.
func (s *Service) AcceptQuotation(ctx context.Context, id int64) (*SalesQuotation, error) {
	return s.changeQuotationStatus(ctx, id, QuotationAccepted)
}

// RejectQuotation moves a sent quotation to REJECTED.
func (s *Service) RejectQuotation(ctx context.Context, id int64) (*SalesQuotation, error) {
	return s.changeQuotationStatus(ctx, id, QuotationRejected)
}

func (s *Service) changeQuotationStatus(ctx context.Context, id int64, next QuotationStatus) (*SalesQuotation, error) {
	var result *SalesQuotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quotation, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransitionQuotation(quotation.Status, next) {
			return fmt.Errorf("quotation %d: %s to %s: %w", id, quotation.Status, next, shared.ErrInvalidTransition)
		}
		quotation.Status = next
		if err := tx.SaveQuotation(ctx, quotation); err != nil {
			return err
		}
		result = quotation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateOrderFromQuotation creates a sales order as a draft copy of an
// accepted quotation's line items and terms.
func (s *Service) CreateOrderFromQuotation(ctx context.Context, input CreateOrderInput) (*SalesOrder, error) {
	quotation, err := s.repo.GetQuotation(ctx, input.QuotationID)
	if err != nil {
		return nil, err
	}
	if quotation.Status != QuotationAccepted {
		return nil, fmt.Errorf("quotation %d in %s cannot back an order: %w", quotation.ID, quotation.Status, shared.ErrInvalidTransition)
	}

	order := &SalesOrder{
		Number:         "SO-" + uuid.NewString()[:8],
		QuotationID:    quotation.ID,
		CustomerID:     quotation.CustomerID,
		Status:         SOStatusDraft,
		PaymentStatus:  PaymentNotYet,
		TotalPrice:     quotation.Total,
		DepositPercent: quotation.DepositPercent,
		ExpiredDate:    input.ExpiredDate,
	}
	for _, line := range quotation.Lines {
		order.Lines = append(order.Lines, SalesOrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns one sales order with lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*SalesOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns sales orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status SOStatus) ([]SalesOrder, error) {
	return s.repo.ListOrders(ctx, status)
}

// ChangeOrderStatus applies a workflow transition. Payment-driven statuses
// are owned by the reconciliation engine and rejected here.
func (s *Service) ChangeOrderStatus(ctx context.Context, id int64, next SOStatus) (*SalesOrder, error) {
	switch next {
	case SOStatusDeposited, SOStatusPartiallyPaid, SOStatusPaid:
		return nil, fmt.Errorf("status %s is derived from payments: %w", next, shared.ErrInvalidTransition)
	}

	var result *SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransitionOrder(order.Status, next) {
			return fmt.Errorf("sales order %d: %s to %s: %w", id, order.Status, next, shared.ErrInvalidTransition)
		}
		order.Status = next
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordDeposit books the customer's up-front deposit against an approved
// order. The deposit is the fixed amount derived from the quotation's
// percentage; anything else is rejected. Recording it moves the order to
// DEPOSITED, which is what unblocks goods issues downstream.
func (s *Service) RecordDeposit(ctx context.Context, id int64, input DepositInput) (*SalesOrder, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive: %w", shared.ErrValidation)
	}

	var result *SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.IsDeposited {
			return fmt.Errorf("sales order %d already has its deposit: %w", id, shared.ErrConflict)
		}
		required := order.DepositRequired()
		if required == 0 {
			return fmt.Errorf("sales order %d requires no deposit: %w", id, shared.ErrValidation)
		}
		if !CanTransitionOrder(order.Status, SOStatusDeposited) {
			return fmt.Errorf("sales order %d: %s to %s: %w", id, order.Status, SOStatusDeposited, shared.ErrInvalidTransition)
		}
		if input.Amount > required {
			return fmt.Errorf("deposit %.0f exceeds required %.0f: %w", input.Amount, required, shared.ErrAmountExceedsLimit)
		}
		if input.Amount < required {
			return fmt.Errorf("deposit %.0f does not cover required %.0f: %w", input.Amount, required, shared.ErrValidation)
		}

		order.PaidAmount += input.Amount
		order.IsDeposited = true
		order.PaymentStatus = DerivePaymentStatus(order.PaidAmount, required, order.TotalPrice)
		if order.PaymentStatus == PaymentPaid && order.PaidFullAt == nil {
			paidAt := s.now()
			order.PaidFullAt = &paidAt
		}
		if next, changed := AdvanceOrderStatus(order.Status, order.PaymentStatus); changed {
			order.Status = next
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAfterCommit(ctx, shared.Notification{
		Target:   fmt.Sprintf("customer:%d", result.CustomerID),
		Title:    "Deposit received for " + result.Number,
		Message:  s.printer.Sprintf("We received your deposit of %.0f for order %s.", input.Amount, result.Number),
		Severity: shared.SeverityInfo,
	})
	return result, nil
}

// SweepDepositDeadlines force-transitions undeposited orders whose deposit
// deadline has elapsed to NOT_COMPLETE. Each order commits in its own
// transaction; the notification goes out after the commit so a delivery
// failure can never undo the status change.
func (s *Service) SweepDepositDeadlines(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.repo.ListDepositOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, candidate := range overdue {
		if ctx.Err() != nil {
			return swept, ctx.Err()
		}
		changed := false
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			order, err := tx.GetOrderForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// Re-check under lock: a deposit may have landed since the scan.
			if order.IsDeposited || !order.ExpiredDate.Before(now) {
				return nil
			}
			if !CanTransitionOrder(order.Status, SOStatusNotComplete) {
				return nil
			}
			order.Status = SOStatusNotComplete
			changed = true
			return tx.SaveOrder(ctx, order)
		})
		if err != nil {
			s.logger.Error("deposit sweep failed for order", slog.Int64("order_id", candidate.ID), slog.Any("error", err))
			continue
		}
		if !changed {
			continue
		}
		swept++

		s.notifyAfterCommit(ctx, shared.Notification{
			Target:   fmt.Sprintf("customer:%d", candidate.CustomerID),
			Title:    "Order " + candidate.Number + " closed",
			Message:  s.printer.Sprintf("Order %s was closed because the deposit of %.0f was not received by the deadline.", candidate.Number, candidate.DepositRequired()),
			Severity: shared.SeverityWarning,
		})
	}
	return swept, nil
}

func (s *Service) notifyAfterCommit(ctx context.Context, n shared.Notification) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, n); err != nil {
		s.logger.Warn("notification dispatch failed", slog.String("title", n.Title), slog.Any("error", err))
	}
}
