package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for purchasing.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateOrder(ctx context.Context, order *PurchasingOrder) error
	GetOrder(ctx context.Context, id int64) (*PurchasingOrder, error)
	ListOrders(ctx context.Context, status POStatus) ([]PurchasingOrder, error)
	ListReceipts(ctx context.Context, orderID int64) ([]GoodsReceiptNote, error)
}

// TxRepository exposes the mutations that must share one transaction. The
// lot operations write the same tables as the ledger repository so a receipt
// line and its stock effect commit or roll back together.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (*PurchasingOrder, error)
	SaveOrder(ctx context.Context, order *PurchasingOrder) error
	FindMissingProducts(ctx context.Context, ids []int64) ([]int64, error)
	InsertReceiptNote(ctx context.Context, note *GoodsReceiptNote) error
	InsertReceiptLine(ctx context.Context, line *GoodsReceiptLine) error

	FindLotByMergeKeyForUpdate(ctx context.Context, productID, supplierID int64, expiryDate time.Time) (*ledger.Lot, error)
	InsertLot(ctx context.Context, lot *ledger.Lot) error
	SaveLot(ctx context.Context, lot *ledger.Lot) error
	AdjustProductTotal(ctx context.Context, productID int64, delta float64) error
}

// ThresholdChecker is the slice of the catalog service purchasing needs
// after a receipt lands.
type ThresholdChecker interface {
	CheckThresholds(ctx context.Context, productID int64)
}

// Service handles purchasing business logic.
type Service struct {
	repo       RepositoryPort
	logger     *slog.Logger
	thresholds ThresholdChecker
	now        func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// SetThresholdChecker wires the post-receipt stock threshold check.
func (s *Service) SetThresholdChecker(tc ThresholdChecker) {
	s.thresholds = tc
}

// CreateOrder creates a draft purchasing order.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*PurchasingOrder, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("order needs at least one line: %w", shared.ErrValidation)
	}

	order := &PurchasingOrder{
		Number:     "PO-" + uuid.NewString()[:8],
		SupplierID: input.SupplierID,
		Status:     POStatusDraft,
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("line quantity for product %d must be positive: %w", line.ProductID, shared.ErrValidation)
		}
		lineTotal := shared.RoundUnit(line.Quantity * line.UnitPrice)
		order.Lines = append(order.Lines, PurchasingOrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		})
		order.Total += lineTotal
	}
	order.Debt = order.Total

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns one order with lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*PurchasingOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status POStatus) ([]PurchasingOrder, error) {
	return s.repo.ListOrders(ctx, status)
}

// ListReceipts returns the goods receipts posted against an order.
func (s *Service) ListReceipts(ctx context.Context, orderID int64) ([]GoodsReceiptNote, error) {
	return s.repo.ListReceipts(ctx, orderID)
}

// ChangeStatus applies a non-monetary status transition. Transitions that
// move money must go through RecordDeposit or RecordPayment instead.
func (s *Service) ChangeStatus(ctx context.Context, id int64, next POStatus) (*PurchasingOrder, error) {
	if moneyTransitions[next] {
		return nil, fmt.Errorf("transition to %s requires a deposit or payment: %w", next, shared.ErrInvalidTransition)
	}

	var result *PurchasingOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, next) {
			return fmt.Errorf("purchasing order %d: %s to %s: %w", id, order.Status, next, shared.ErrInvalidTransition)
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

// RecordDeposit moves an approved order to DEPOSITED together with the
// deposit amount. The deposit can never exceed the order total.
func (s *Service) RecordDeposit(ctx context.Context, id int64, input DepositInput) (*PurchasingOrder, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("deposit must be positive: %w", shared.ErrValidation)
	}

	var result *PurchasingOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, POStatusDeposited) {
			return fmt.Errorf("purchasing order %d: %s to %s: %w", id, order.Status, POStatusDeposited, shared.ErrInvalidTransition)
		}
		if input.Amount > order.Total {
			return fmt.Errorf("deposit %g exceeds order total %g: %w", input.Amount, order.Total, shared.ErrAmountExceedsLimit)
		}
		order.Deposit = input.Amount
		order.Debt = order.Total - input.Amount
		order.Status = POStatusDeposited
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

// RecordPayment pays down the outstanding debt. The payment can never exceed
// the current debt; clearing the debt completes the order.
func (s *Service) RecordPayment(ctx context.Context, id int64, input PaymentInput) (*PurchasingOrder, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("payment must be positive: %w", shared.ErrValidation)
	}

	var result *PurchasingOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, POStatusPaid) {
			return fmt.Errorf("purchasing order %d: %s to %s: %w", id, order.Status, POStatusPaid, shared.ErrInvalidTransition)
		}
		if input.Amount > order.Debt {
			return fmt.Errorf("payment %g exceeds outstanding debt %g: %w", input.Amount, order.Debt, shared.ErrAmountExceedsLimit)
		}
		now := s.now()
		order.Debt -= input.Amount
		order.PaidBy = input.PaidBy
		order.PaidAt = &now
		if order.Debt == 0 {
			order.Status = POStatusCompleted
		} else {
			order.Status = POStatusPaid
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
	return result, nil
}

// PostGoodsReceipt records an incoming delivery against an approved order.
// Every product is validated up front; one unknown product rejects the whole
// receipt. Each line merges into the lot ledger and moves the product total
// inside the same transaction as the receipt rows.
func (s *Service) PostGoodsReceipt(ctx context.Context, input GoodsReceiptInput) (*GoodsReceiptNote, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("receipt needs at least one line: %w", shared.ErrValidation)
	}

	var note *GoodsReceiptNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case POStatusApproved, POStatusDeposited, POStatusPaid, POStatusCompleted:
		default:
			return fmt.Errorf("purchasing order %d in %s cannot receive goods: %w", order.ID, order.Status, shared.ErrInvalidTransition)
		}

		ids := make([]int64, 0, len(input.Lines))
		for _, line := range input.Lines {
			ids = append(ids, line.ProductID)
		}
		missing, err := tx.FindMissingProducts(ctx, ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return &UnknownProductError{ProductIDs: missing}
		}

		order.ReceiptCount++
		note = &GoodsReceiptNote{
			OrderID:    order.ID,
			Sequence:   order.ReceiptCount,
			Reference:  uuid.NewString(),
			ReceivedAt: s.now(),
		}
		if err := tx.InsertReceiptNote(ctx, note); err != nil {
			return err
		}

		for _, line := range input.Lines {
			lot, err := s.mergeReceiptLine(ctx, tx, order.SupplierID, line)
			if err != nil {
				return err
			}
			receiptLine := &GoodsReceiptLine{
				NoteID:     note.ID,
				ProductID:  line.ProductID,
				LotID:      lot.ID,
				Quantity:   line.Quantity,
				UnitCost:   line.UnitCost,
				ExpiryDate: ledger.ExpiryKey(line.ExpiryDate),
			}
			if err := tx.InsertReceiptLine(ctx, receiptLine); err != nil {
				return err
			}
			note.Lines = append(note.Lines, *receiptLine)
		}

		return tx.SaveOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	if s.thresholds != nil {
		for _, line := range note.Lines {
			s.thresholds.CheckThresholds(ctx, line.ProductID)
		}
	}
	return note, nil
}

// mergeReceiptLine applies the lot merge rules for one received line.
func (s *Service) mergeReceiptLine(ctx context.Context, tx TxRepository, supplierID int64, line ReceiptLineInput) (*ledger.Lot, error) {
	receipt := ledger.ReceiveLotInput{
		ProductID:         line.ProductID,
		SupplierID:        supplierID,
		ExpiryDate:        ledger.ExpiryKey(line.ExpiryDate),
		Quantity:          line.Quantity,
		UnitCost:          line.UnitCost,
		SalePrice:         line.SalePrice,
		StorageLocationID: line.StorageLocationID,
		InputDate:         s.now(),
	}

	existing, err := tx.FindLotByMergeKeyForUpdate(ctx, receipt.ProductID, receipt.SupplierID, receipt.ExpiryDate)
	if err != nil {
		return nil, err
	}

	var lot *ledger.Lot
	switch ledger.ResolveMerge(existing) {
	case ledger.MergeInsert:
		lot = &ledger.Lot{
			ProductID:         receipt.ProductID,
			SupplierID:        receipt.SupplierID,
			InputDate:         receipt.InputDate,
			ExpiryDate:        receipt.ExpiryDate,
			Quantity:          receipt.Quantity,
			UnitCost:          receipt.UnitCost,
			SalePrice:         receipt.SalePrice,
			StorageLocationID: receipt.StorageLocationID,
		}
		if err := tx.InsertLot(ctx, lot); err != nil {
			return nil, err
		}
	case ledger.MergeReinitialize:
		ledger.ApplyReceipt(existing, receipt, ledger.MergeReinitialize)
		if err := tx.SaveLot(ctx, existing); err != nil {
			return nil, err
		}
		lot = existing
	case ledger.MergeAccumulate:
		ledger.ApplyReceipt(existing, receipt, ledger.MergeAccumulate)
		if err := tx.SaveLot(ctx, existing); err != nil {
			return nil, err
		}
		lot = existing
	}

	if err := tx.AdjustProductTotal(ctx, receipt.ProductID, receipt.Quantity); err != nil {
		return nil, err
	}
	return lot, nil
}
