package fulfillment

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// GoodsIssueNote records one outbound shipment against a sales order. Like
// receipt notes it is immutable: the note and its lines are the only
// legitimate trail for lot deductions.
type GoodsIssueNote struct {
	ID          int64
	Number      string
	OrderID     int64
	IssueAmount float64
	IssuedAt    time.Time
	Lines       []GoodsIssueLine
	CreatedAt   time.Time
}

// GoodsIssueLine is one lot deduction within an issue. UnitPrice comes from
// the sales order line, not the lot, so the billed amount matches what the
// customer agreed to.
type GoodsIssueLine struct {
	ID        int64
	NoteID    int64
	LotID     int64
	ProductID int64
	Quantity  float64
	UnitPrice float64
	LineTotal float64
}

// PostGoodsIssueInput requests an outbound shipment. Lots are not named by
// the caller; the planner assigns them first-expired-first-out.
type PostGoodsIssueInput struct {
	Requests []ledger.PickRequest `json:"requests" validate:"required,min=1,dive"`
}

// ShortfallError reports the products a goods issue could not cover.
type ShortfallError struct {
	Shortfalls []ledger.Shortfall
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for %d product(s): %v", len(e.Shortfalls), e.Shortfalls)
}

func (e *ShortfallError) Unwrap() error {
	return shared.ErrInsufficientStock
}

var (
	// ErrIssueNotFound indicates an unknown goods issue id.
	ErrIssueNotFound = fmt.Errorf("goods issue %w", shared.ErrNotFound)
)
