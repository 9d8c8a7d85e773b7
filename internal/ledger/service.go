package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for the lot ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, id int64) (*Lot, error)
	ListLotsByProduct(ctx context.Context, productID int64) ([]Lot, error)
	ListAvailableLots(ctx context.Context, productIDs []int64) ([]Lot, error)
	ListAdjustments(ctx context.Context, lotID int64) ([]StockAdjustment, error)
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	GetLotForUpdate(ctx context.Context, id int64) (*Lot, error)
	FindLotByMergeKeyForUpdate(ctx context.Context, productID, supplierID int64, expiryDate time.Time) (*Lot, error)
	InsertLot(ctx context.Context, lot *Lot) error
	SaveLot(ctx context.Context, lot *Lot) error
	AdjustProductTotal(ctx context.Context, productID int64, delta float64) error
	InsertAdjustment(ctx context.Context, adj *StockAdjustment) error
}

// Service handles lot ledger business logic.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateOrMergeLot records an incoming batch. A batch sharing its product,
// supplier and expiry date with an existing lot merges into it; the product
// total moves inside the same transaction as the lot row.
func (s *Service) CreateOrMergeLot(ctx context.Context, input ReceiveLotInput) (*Lot, error) {
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("receipt quantity must be positive: %w", shared.ErrValidation)
	}
	if input.InputDate.IsZero() {
		input.InputDate = s.now()
	}
	input.ExpiryDate = ExpiryKey(input.ExpiryDate)

	var result *Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindLotByMergeKeyForUpdate(ctx, input.ProductID, input.SupplierID, input.ExpiryDate)
		if err != nil {
			return err
		}

		switch ResolveMerge(existing) {
		case MergeInsert:
			lot := &Lot{
				ProductID:         input.ProductID,
				SupplierID:        input.SupplierID,
				InputDate:         input.InputDate,
				ExpiryDate:        input.ExpiryDate,
				Quantity:          input.Quantity,
				UnitCost:          input.UnitCost,
				SalePrice:         input.SalePrice,
				StorageLocationID: input.StorageLocationID,
			}
			if err := tx.InsertLot(ctx, lot); err != nil {
				return err
			}
			result = lot
		case MergeReinitialize:
			ApplyReceipt(existing, input, MergeReinitialize)
			if err := tx.SaveLot(ctx, existing); err != nil {
				return err
			}
			result = existing
		case MergeAccumulate:
			ApplyReceipt(existing, input, MergeAccumulate)
			if err := tx.SaveLot(ctx, existing); err != nil {
				return err
			}
			result = existing
		}

		return tx.AdjustProductTotal(ctx, input.ProductID, input.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeductFromLot removes quantity from one lot. The deduction is all-or-
// nothing: an insufficient lot leaves both the lot and the product total
// untouched.
func (s *Service) DeductFromLot(ctx context.Context, lotID int64, quantity float64) (*Lot, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("deduction quantity must be positive: %w", shared.ErrValidation)
	}

	var result *Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.Quantity < quantity {
			return fmt.Errorf("lot %d holds %g, requested %g: %w", lotID, lot.Quantity, quantity, shared.ErrInsufficientStock)
		}
		lot.Quantity -= quantity
		if err := tx.SaveLot(ctx, lot); err != nil {
			return err
		}
		if err := tx.AdjustProductTotal(ctx, lot.ProductID, -quantity); err != nil {
			return err
		}
		result = lot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdjustFromPhysicalCount corrects a lot to a counted quantity and records
// the signed difference. The correction bypasses merge: it targets one lot
// row directly.
func (s *Service) AdjustFromPhysicalCount(ctx context.Context, input AdjustmentInput) (*StockAdjustment, error) {
	if input.ActualQuantity < 0 {
		return nil, fmt.Errorf("counted quantity cannot be negative: %w", shared.ErrValidation)
	}

	var result *StockAdjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, input.LotID)
		if err != nil {
			return err
		}

		adj := &StockAdjustment{
			LotID:          lot.ID,
			ProductID:      lot.ProductID,
			SystemQuantity: lot.Quantity,
			ActualQuantity: input.ActualQuantity,
			Difference:     lot.Quantity - input.ActualQuantity,
			Reason:         input.Reason,
		}
		delta := input.ActualQuantity - lot.Quantity
		lot.Quantity = input.ActualQuantity
		if err := tx.SaveLot(ctx, lot); err != nil {
			return err
		}
		if delta != 0 {
			if err := tx.AdjustProductTotal(ctx, lot.ProductID, delta); err != nil {
				return err
			}
		}
		if err := tx.InsertAdjustment(ctx, adj); err != nil {
			return err
		}
		result = adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetLot returns one lot.
func (s *Service) GetLot(ctx context.Context, id int64) (*Lot, error) {
	return s.repo.GetLot(ctx, id)
}

// ListLotsByProduct returns all lots of a product, consumed ones included.
func (s *Service) ListLotsByProduct(ctx context.Context, productID int64) ([]Lot, error) {
	return s.repo.ListLotsByProduct(ctx, productID)
}

// ListAdjustments returns the physical-count history of a lot.
func (s *Service) ListAdjustments(ctx context.Context, lotID int64) ([]StockAdjustment, error) {
	return s.repo.ListAdjustments(ctx, lotID)
}

// PlanFulfillment runs a feasibility pass over current stock. It holds no
// locks and reserves nothing; callers that act on the plan must re-verify
// under lock.
func (s *Service) PlanFulfillment(ctx context.Context, requests []PickRequest) (Plan, error) {
	if len(requests) == 0 {
		return Plan{}, nil
	}
	productIDs := make([]int64, 0, len(requests))
	for _, req := range requests {
		if req.Quantity <= 0 {
			return Plan{}, fmt.Errorf("requested quantity for product %d must be positive: %w", req.ProductID, shared.ErrValidation)
		}
		productIDs = append(productIDs, req.ProductID)
	}
	lots, err := s.repo.ListAvailableLots(ctx, productIDs)
	if err != nil {
		return Plan{}, err
	}
	return PlanOutbound(lots, requests, s.now()), nil
}
