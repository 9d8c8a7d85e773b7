package fulfillment

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryIssueRepo struct {
	orders        map[int64]*sales.SalesOrder
	lots          map[int64]*ledger.Lot
	productTotals map[int64]float64
	notes         map[int64]*GoodsIssueNote
	nextID        int64
}

func newMemoryIssueRepo() *memoryIssueRepo {
	return &memoryIssueRepo{
		orders:        make(map[int64]*sales.SalesOrder),
		lots:          make(map[int64]*ledger.Lot),
		productTotals: make(map[int64]float64),
		notes:         make(map[int64]*GoodsIssueNote),
	}
}

func (r *memoryIssueRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	lotsBackup := make(map[int64]*ledger.Lot, len(r.lots))
	for id, lot := range r.lots {
		copied := *lot
		lotsBackup[id] = &copied
	}
	totalsBackup := make(map[int64]float64, len(r.productTotals))
	for id, total := range r.productTotals {
		totalsBackup[id] = total
	}
	notesBackup := make(map[int64]*GoodsIssueNote, len(r.notes))
	for id, note := range r.notes {
		copied := *note
		notesBackup[id] = &copied
	}

	if err := fn(ctx, r); err != nil {
		r.lots = lotsBackup
		r.productTotals = totalsBackup
		r.notes = notesBackup
		return err
	}
	return nil
}

func (r *memoryIssueRepo) GetIssue(ctx context.Context, id int64) (*GoodsIssueNote, error) {
	note, ok := r.notes[id]
	if !ok {
		return nil, ErrIssueNotFound
	}
	return note, nil
}

func (r *memoryIssueRepo) ListIssues(ctx context.Context, orderID int64) ([]GoodsIssueNote, error) {
	var out []GoodsIssueNote
	for _, note := range r.notes {
		if note.OrderID == orderID {
			out = append(out, *note)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryIssueRepo) GetSalesOrderForUpdate(ctx context.Context, id int64) (*sales.SalesOrder, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, sales.ErrOrderNotFound
	}
	return order, nil
}

func (r *memoryIssueRepo) ListLotsForUpdate(ctx context.Context, productIDs []int64) ([]ledger.Lot, error) {
	wanted := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}
	var out []ledger.Lot
	for _, lot := range r.lots {
		if wanted[lot.ProductID] && lot.Quantity > 0 {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (r *memoryIssueRepo) SaveLotQuantity(ctx context.Context, lotID int64, quantity float64) error {
	lot, ok := r.lots[lotID]
	if !ok {
		return ledger.ErrLotNotFound
	}
	lot.Quantity = quantity
	return nil
}

func (r *memoryIssueRepo) AdjustProductTotal(ctx context.Context, productID int64, delta float64) error {
	r.productTotals[productID] += delta
	return nil
}

func (r *memoryIssueRepo) InsertIssueNote(ctx context.Context, note *GoodsIssueNote) error {
	r.nextID++
	note.ID = r.nextID
	note.CreatedAt = time.Now()
	copied := *note
	r.notes[note.ID] = &copied
	return nil
}

func (r *memoryIssueRepo) InsertIssueLine(ctx context.Context, line *GoodsIssueLine) error {
	r.nextID++
	line.ID = r.nextID
	note := r.notes[line.NoteID]
	note.Lines = append(note.Lines, *line)
	return nil
}

type recordingChecker struct {
	checked []int64
}

func (c *recordingChecker) CheckThresholds(ctx context.Context, productID int64) {
	c.checked = append(c.checked, productID)
}

func (r *memoryIssueRepo) addLot(lot ledger.Lot) {
	r.nextID++
	lot.ID = r.nextID
	r.lots[lot.ID] = &lot
	r.productTotals[lot.ProductID] += lot.Quantity
}

func expiry(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func depositedOrder(r *memoryIssueRepo, lines ...sales.SalesOrderLine) *sales.SalesOrder {
	r.nextID++
	var total float64
	for i := range lines {
		lines[i].OrderID = r.nextID
		total += lines[i].LineTotal
	}
	order := &sales.SalesOrder{
		ID:             r.nextID,
		Number:         "SO-test",
		CustomerID:     1,
		Status:         sales.SOStatusDeposited,
		PaymentStatus:  sales.PaymentDeposited,
		TotalPrice:     total,
		IsDeposited:    true,
		DepositPercent: 30,
		ExpiredDate:    time.Now().Add(24 * time.Hour),
		Lines:          lines,
	}
	r.orders[order.ID] = order
	return order
}

func TestPostGoodsIssueDrainsFEFO(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryIssueRepo()
	checker := &recordingChecker{}
	svc := NewService(repo, slog.Default())
	svc.SetThresholdChecker(checker)

	repo.addLot(ledger.Lot{ProductID: 1, SupplierID: 1, ExpiryDate: expiry(2027, 3, 1), Quantity: 5, UnitCost: 8})
	earliest := repo.nextID
	repo.addLot(ledger.Lot{ProductID: 1, SupplierID: 1, ExpiryDate: expiry(2027, 6, 1), Quantity: 10, UnitCost: 9})
	later := repo.nextID
	order := depositedOrder(repo, sales.SalesOrderLine{ProductID: 1, Quantity: 10, UnitPrice: 20, LineTotal: 200})

	note, err := svc.PostGoodsIssue(ctx, order.ID, PostGoodsIssueInput{
		Requests: []ledger.PickRequest{{ProductID: 1, Quantity: 8}},
	})
	require.NoError(t, err)
	require.Len(t, note.Lines, 2)
	require.Equal(t, earliest, note.Lines[0].LotID)
	require.Equal(t, 5.0, note.Lines[0].Quantity)
	require.Equal(t, later, note.Lines[1].LotID)
	require.Equal(t, 3.0, note.Lines[1].Quantity)
	require.Equal(t, 160.0, note.IssueAmount)

	require.Equal(t, 0.0, repo.lots[earliest].Quantity)
	require.Equal(t, 7.0, repo.lots[later].Quantity)
	require.Equal(t, 7.0, repo.productTotals[1])
	require.Len(t, checker.checked, 1)
}

func TestPostGoodsIssueShortfallLeavesNothingMutated(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryIssueRepo()
	svc := NewService(repo, slog.Default())

	repo.addLot(ledger.Lot{ProductID: 1, SupplierID: 1, ExpiryDate: expiry(2027, 3, 1), Quantity: 5, UnitCost: 8})
	repo.addLot(ledger.Lot{ProductID: 2, SupplierID: 1, ExpiryDate: expiry(2027, 3, 1), Quantity: 50, UnitCost: 4})
	order := depositedOrder(repo,
		sales.SalesOrderLine{ProductID: 1, Quantity: 10, UnitPrice: 20, LineTotal: 200},
		sales.SalesOrderLine{ProductID: 2, Quantity: 10, UnitPrice: 10, LineTotal: 100},
	)

	// Product 2 alone is coverable, but product 1 falls short, so the whole
	// issue aborts.
	_, err := svc.PostGoodsIssue(ctx, order.ID, PostGoodsIssueInput{
		Requests: []ledger.PickRequest{
			{ProductID: 1, Quantity: 8},
			{ProductID: 2, Quantity: 10},
		},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	var shortfall *ShortfallError
	require.ErrorAs(t, err, &shortfall)
	require.Len(t, shortfall.Shortfalls, 1)
	require.Equal(t, int64(1), shortfall.Shortfalls[0].ProductID)
	require.Equal(t, 5.0, shortfall.Shortfalls[0].Available)

	require.Equal(t, 5.0, repo.productTotals[1])
	require.Equal(t, 50.0, repo.productTotals[2])
	require.Empty(t, repo.notes)
}

func TestPostGoodsIssueSkipsExpiredLots(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryIssueRepo()
	svc := NewService(repo, slog.Default())

	repo.addLot(ledger.Lot{ProductID: 1, SupplierID: 1, ExpiryDate: time.Now().Add(-time.Hour), Quantity: 100, UnitCost: 8})
	order := depositedOrder(repo, sales.SalesOrderLine{ProductID: 1, Quantity: 10, UnitPrice: 20, LineTotal: 200})

	_, err := svc.PostGoodsIssue(ctx, order.ID, PostGoodsIssueInput{
		Requests: []ledger.PickRequest{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestPostGoodsIssueRequiresDeposit(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryIssueRepo()
	svc := NewService(repo, slog.Default())

	repo.addLot(ledger.Lot{ProductID: 1, SupplierID: 1, ExpiryDate: expiry(2027, 3, 1), Quantity: 50, UnitCost: 8})
	order := depositedOrder(repo, sales.SalesOrderLine{ProductID: 1, Quantity: 10, UnitPrice: 20, LineTotal: 200})
	order.Status = sales.SOStatusApproved
	order.IsDeposited = false

	_, err := svc.PostGoodsIssue(ctx, order.ID, PostGoodsIssueInput{
		Requests: []ledger.PickRequest{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	// Zero-deposit orders ship straight from APPROVED.
	order.DepositPercent = 0
	note, err := svc.PostGoodsIssue(ctx, order.ID, PostGoodsIssueInput{
		Requests: []ledger.PickRequest{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, 20.0, note.IssueAmount)
}

func TestPostGoodsIssueRejectsOffOrderProduct(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryIssueRepo()
	svc := NewService(repo, slog.Default())

	repo.addLot(ledger.Lot{ProductID: 9, SupplierID: 1, ExpiryDate: expiry(2027, 3, 1), Quantity: 50, UnitCost: 8})
	order := depositedOrder(repo, sales.SalesOrderLine{ProductID: 1, Quantity: 10, UnitPrice: 20, LineTotal: 200})

	_, err := svc.PostGoodsIssue(ctx, order.ID, PostGoodsIssueInput{
		Requests: []ledger.PickRequest{{ProductID: 9, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
