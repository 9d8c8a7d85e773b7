package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for fulfillment.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetIssue(ctx context.Context, id int64) (*GoodsIssueNote, error)
	ListIssues(ctx context.Context, orderID int64) ([]GoodsIssueNote, error)
}

// TxRepository exposes the mutations that must share one transaction. The
// sales order and lot tables belong to their own modules; issuing goods
// touches both, so the commit path locks and writes them here.
type TxRepository interface {
	GetSalesOrderForUpdate(ctx context.Context, id int64) (*sales.SalesOrder, error)
	ListLotsForUpdate(ctx context.Context, productIDs []int64) ([]ledger.Lot, error)
	SaveLotQuantity(ctx context.Context, lotID int64, quantity float64) error
	AdjustProductTotal(ctx context.Context, productID int64, delta float64) error
	InsertIssueNote(ctx context.Context, note *GoodsIssueNote) error
	InsertIssueLine(ctx context.Context, line *GoodsIssueLine) error
}

// ThresholdChecker is the slice of the catalog service fulfillment needs
// after an issue ships.
type ThresholdChecker interface {
	CheckThresholds(ctx context.Context, productID int64)
}

// Service handles goods issue business logic.
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

// SetThresholdChecker wires the post-commit stock level review.
func (s *Service) SetThresholdChecker(tc ThresholdChecker) {
	s.thresholds = tc
}

// GetIssue returns one goods issue note with lines.
func (s *Service) GetIssue(ctx context.Context, id int64) (*GoodsIssueNote, error) {
	return s.repo.GetIssue(ctx, id)
}

// ListIssues returns the goods issues for a sales order.
func (s *Service) ListIssues(ctx context.Context, orderID int64) ([]GoodsIssueNote, error) {
	return s.repo.ListIssues(ctx, orderID)
}

// PostGoodsIssue ships goods against a sales order. The FEFO plan must cover
// every requested quantity; a shortfall on any product aborts the whole issue
// and nothing is deducted. Picks, product totals and the issue note commit in
// one transaction.
func (s *Service) PostGoodsIssue(ctx context.Context, orderID int64, input PostGoodsIssueInput) (*GoodsIssueNote, error) {
	if len(input.Requests) == 0 {
		return nil, fmt.Errorf("goods issue needs at least one request: %w", shared.ErrValidation)
	}
	for _, req := range input.Requests {
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("requested quantity for product %d must be positive: %w", req.ProductID, shared.ErrValidation)
		}
	}

	var note *GoodsIssueNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetSalesOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := issueEligible(order); err != nil {
			return err
		}

		priceByProduct := make(map[int64]float64, len(order.Lines))
		for _, line := range order.Lines {
			priceByProduct[line.ProductID] = line.UnitPrice
		}

		productIDs := make([]int64, 0, len(input.Requests))
		for _, req := range input.Requests {
			if _, ok := priceByProduct[req.ProductID]; !ok {
				return fmt.Errorf("product %d is not on sales order %d: %w", req.ProductID, orderID, shared.ErrValidation)
			}
			productIDs = append(productIDs, req.ProductID)
		}

		lots, err := tx.ListLotsForUpdate(ctx, productIDs)
		if err != nil {
			return err
		}
		plan := ledger.PlanOutbound(lots, input.Requests, s.now())
		if !plan.Satisfiable() {
			return &ShortfallError{Shortfalls: plan.Shortfalls}
		}

		quantities := make(map[int64]float64, len(lots))
		for _, lot := range lots {
			quantities[lot.ID] = lot.Quantity
		}

		note = &GoodsIssueNote{
			Number:   "GI-" + uuid.NewString()[:8],
			OrderID:  orderID,
			IssuedAt: s.now(),
		}
		for _, pick := range plan.Picks {
			unitPrice := priceByProduct[pick.ProductID]
			note.IssueAmount += shared.RoundUnit(pick.Quantity * unitPrice)
			note.Lines = append(note.Lines, GoodsIssueLine{
				LotID:     pick.LotID,
				ProductID: pick.ProductID,
				Quantity:  pick.Quantity,
				UnitPrice: unitPrice,
				LineTotal: shared.RoundUnit(pick.Quantity * unitPrice),
			})
		}

		if err := tx.InsertIssueNote(ctx, note); err != nil {
			return err
		}
		for i := range note.Lines {
			line := &note.Lines[i]
			line.NoteID = note.ID

			quantities[line.LotID] -= line.Quantity
			if quantities[line.LotID] < 0 {
				return fmt.Errorf("lot %d drained below zero: %w", line.LotID, shared.ErrInsufficientStock)
			}
			if err := tx.SaveLotQuantity(ctx, line.LotID, quantities[line.LotID]); err != nil {
				return err
			}
			if err := tx.AdjustProductTotal(ctx, line.ProductID, -line.Quantity); err != nil {
				return err
			}
			if err := tx.InsertIssueLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.thresholds != nil {
		for _, req := range input.Requests {
			s.thresholds.CheckThresholds(context.WithoutCancel(ctx), req.ProductID)
		}
	}

	s.logger.Info("goods issue posted",
		slog.Int64("order_id", orderID),
		slog.String("number", note.Number),
		slog.Float64("amount", note.IssueAmount),
	)
	return note, nil
}

// issueEligible gates shipping on the order's lifecycle. Goods leave the
// warehouse only once the order is approved and the deposit has landed; a
// zero-deposit order is shippable straight from APPROVED.
func issueEligible(order *sales.SalesOrder) error {
	switch order.Status {
	case sales.SOStatusApproved, sales.SOStatusDeposited, sales.SOStatusPartiallyPaid, sales.SOStatusPaid:
	default:
		return fmt.Errorf("sales order %d in %s cannot be fulfilled: %w", order.ID, order.Status, shared.ErrInvalidTransition)
	}
	if !order.IsDeposited && order.DepositRequired() > 0 {
		return fmt.Errorf("sales order %d has no deposit on file: %w", order.ID, shared.ErrInvalidTransition)
	}
	return nil
}
