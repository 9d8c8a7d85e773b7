package ledger

import (
	"sort"
	"time"
)

// PickRequest asks for a quantity of one product.
type PickRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
}

// LotPick is one planned deduction from one lot.
type LotPick struct {
	LotID      int64     `json:"lot_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   float64   `json:"quantity"`
	ExpiryDate time.Time `json:"expiry_date"`
	UnitCost   float64   `json:"unit_cost"`
}

// Shortfall reports a product the plan could not fully satisfy.
type Shortfall struct {
	ProductID int64   `json:"product_id"`
	Requested float64 `json:"requested"`
	Available float64 `json:"available"`
}

// Plan is the outcome of a feasibility pass. It carries no reservation:
// stock may change between planning and commit, so the commit path re-checks
// every pick under lock.
type Plan struct {
	Picks      []LotPick   `json:"picks"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

// Satisfiable reports whether every request was fully covered.
func (p Plan) Satisfiable() bool {
	return len(p.Shortfalls) == 0
}

// PicksFor returns the planned picks for one product.
func (p Plan) PicksFor(productID int64) []LotPick {
	var out []LotPick
	for _, pick := range p.Picks {
		if pick.ProductID == productID {
			out = append(out, pick)
		}
	}
	return out
}

// PlanOutbound walks lots first-expired-first-out and greedily assigns
// quantities to each request. Eligible lots have positive quantity and
// expire strictly after now. Ordering is ascending expiry date with lot id
// as the tie-breaker, so two lots expiring the same day drain in receipt
// order. The input slice is not modified.
func PlanOutbound(lots []Lot, requests []PickRequest, now time.Time) Plan {
	byProduct := make(map[int64][]Lot)
	for _, lot := range lots {
		if lot.Quantity <= 0 || !lot.ExpiryDate.After(now) {
			continue
		}
		byProduct[lot.ProductID] = append(byProduct[lot.ProductID], lot)
	}
	for _, productLots := range byProduct {
		sort.Slice(productLots, func(i, j int) bool {
			if !productLots[i].ExpiryDate.Equal(productLots[j].ExpiryDate) {
				return productLots[i].ExpiryDate.Before(productLots[j].ExpiryDate)
			}
			return productLots[i].ID < productLots[j].ID
		})
	}

	var plan Plan
	for _, req := range requests {
		remaining := req.Quantity
		var available float64
		for _, lot := range byProduct[req.ProductID] {
			available += lot.Quantity
			if remaining <= 0 {
				continue
			}
			take := lot.Quantity
			if take > remaining {
				take = remaining
			}
			plan.Picks = append(plan.Picks, LotPick{
				LotID:      lot.ID,
				ProductID:  lot.ProductID,
				Quantity:   take,
				ExpiryDate: lot.ExpiryDate,
				UnitCost:   lot.UnitCost,
			})
			remaining -= take
		}
		if remaining > 0 {
			plan.Shortfalls = append(plan.Shortfalls, Shortfall{
				ProductID: req.ProductID,
				Requested: req.Quantity,
				Available: available,
			})
		}
	}
	return plan
}
