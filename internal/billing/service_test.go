package billing

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/fulfillment"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryBillingRepo struct {
	orders   map[int64]*sales.SalesOrder
	issues   map[int64]*fulfillment.GoodsIssueNote
	invoices map[int64]*Invoice
	payments map[int64]*PaymentRemain
	debts    map[int64]*CustomerDebt
	nextID   int64
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		orders:   make(map[int64]*sales.SalesOrder),
		issues:   make(map[int64]*fulfillment.GoodsIssueNote),
		invoices: make(map[int64]*Invoice),
		payments: make(map[int64]*PaymentRemain),
		debts:    make(map[int64]*CustomerDebt),
	}
}

func copyInvoice(inv *Invoice) *Invoice {
	copied := *inv
	copied.Details = append([]InvoiceDetail(nil), inv.Details...)
	return &copied
}

func (r *memoryBillingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	ordersBackup := make(map[int64]*sales.SalesOrder, len(r.orders))
	for id, o := range r.orders {
		copied := *o
		ordersBackup[id] = &copied
	}
	invoicesBackup := make(map[int64]*Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		invoicesBackup[id] = copyInvoice(inv)
	}
	paymentsBackup := make(map[int64]*PaymentRemain, len(r.payments))
	for id, p := range r.payments {
		copied := *p
		paymentsBackup[id] = &copied
	}
	debtsBackup := make(map[int64]*CustomerDebt, len(r.debts))
	for id, d := range r.debts {
		copied := *d
		debtsBackup[id] = &copied
	}

	if err := fn(ctx, r); err != nil {
		r.orders = ordersBackup
		r.invoices = invoicesBackup
		r.payments = paymentsBackup
		r.debts = debtsBackup
		return err
	}
	return nil
}

func (r *memoryBillingRepo) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return copyInvoice(inv), nil
}

func (r *memoryBillingRepo) ListInvoices(ctx context.Context, orderID int64) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.OrderID == orderID {
			out = append(out, *copyInvoice(inv))
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) ListInvoiceIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id := range r.invoices {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memoryBillingRepo) ListPayments(ctx context.Context, invoiceID int64) ([]PaymentRemain, error) {
	var out []PaymentRemain
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) GetDebt(ctx context.Context, orderID int64) (*CustomerDebt, error) {
	d, ok := r.debts[orderID]
	if !ok {
		return nil, ErrDebtNotFound
	}
	return d, nil
}

func (r *memoryBillingRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return copyInvoice(inv), nil
}

func (r *memoryBillingRepo) InsertInvoice(ctx context.Context, inv *Invoice) error {
	r.nextID++
	inv.ID = r.nextID
	inv.CreatedAt = time.Now()
	// Details arrive through InsertInvoiceDetail, as they would in SQL.
	stored := *inv
	stored.Details = nil
	r.invoices[inv.ID] = &stored
	return nil
}

func (r *memoryBillingRepo) SaveInvoice(ctx context.Context, inv *Invoice) error {
	if _, ok := r.invoices[inv.ID]; !ok {
		return ErrInvoiceNotFound
	}
	r.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (r *memoryBillingRepo) InsertInvoiceDetail(ctx context.Context, d *InvoiceDetail) error {
	r.nextID++
	d.ID = r.nextID
	stored := r.invoices[d.InvoiceID]
	stored.Details = append(stored.Details, *d)
	return nil
}

func (r *memoryBillingRepo) SaveInvoiceDetail(ctx context.Context, d *InvoiceDetail) error {
	stored := r.invoices[d.InvoiceID]
	for i := range stored.Details {
		if stored.Details[i].ID == d.ID {
			stored.Details[i] = *d
			return nil
		}
	}
	return ErrInvoiceNotFound
}

func (r *memoryBillingRepo) FindInvoicedIssueIDs(ctx context.Context, issueIDs []int64) ([]int64, error) {
	wanted := make(map[int64]bool, len(issueIDs))
	for _, id := range issueIDs {
		wanted[id] = true
	}
	var taken []int64
	for _, inv := range r.invoices {
		for _, d := range inv.Details {
			if wanted[d.IssueID] {
				taken = append(taken, d.IssueID)
			}
		}
	}
	return taken, nil
}

func (r *memoryBillingRepo) ListOrderIssues(ctx context.Context, orderID int64, issueIDs []int64) ([]fulfillment.GoodsIssueNote, error) {
	var out []fulfillment.GoodsIssueNote
	for _, id := range issueIDs {
		issue, ok := r.issues[id]
		if !ok || issue.OrderID != orderID {
			continue
		}
		out = append(out, *issue)
	}
	return out, nil
}

func (r *memoryBillingRepo) GetPaymentForUpdate(ctx context.Context, id int64) (*PaymentRemain, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memoryBillingRepo) InsertPayment(ctx context.Context, p *PaymentRemain) error {
	r.nextID++
	p.ID = r.nextID
	copied := *p
	r.payments[p.ID] = &copied
	return nil
}

func (r *memoryBillingRepo) SavePayment(ctx context.Context, p *PaymentRemain) error {
	copied := *p
	r.payments[p.ID] = &copied
	return nil
}

func (r *memoryBillingRepo) SumConfirmedPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID && p.ConfirmedAt != nil {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (r *memoryBillingRepo) SumOrderPaid(ctx context.Context, orderID int64) (float64, error) {
	var sum float64
	for _, inv := range r.invoices {
		if inv.OrderID == orderID {
			sum += inv.TotalPaid
		}
	}
	return sum, nil
}

func (r *memoryBillingRepo) GetSalesOrderForUpdate(ctx context.Context, id int64) (*sales.SalesOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, sales.ErrOrderNotFound
	}
	return o, nil
}

func (r *memoryBillingRepo) SaveSalesOrder(ctx context.Context, order *sales.SalesOrder) error {
	r.orders[order.ID] = order
	return nil
}

func (r *memoryBillingRepo) UpsertCustomerDebt(ctx context.Context, debt *CustomerDebt) error {
	copied := *debt
	r.debts[debt.OrderID] = &copied
	return nil
}

// addOrder seeds an order in the state sales.RecordDeposit leaves it in:
// DEPOSITED with exactly the required deposit on file.
func (r *memoryBillingRepo) addOrder(total, depositPercent float64) *sales.SalesOrder {
	r.nextID++
	order := &sales.SalesOrder{
		ID:             r.nextID,
		Number:         "SO-test",
		CustomerID:     7,
		Status:         sales.SOStatusDeposited,
		PaymentStatus:  sales.PaymentDeposited,
		TotalPrice:     total,
		DepositPercent: depositPercent,
		IsDeposited:    true,
		ExpiredDate:    time.Now().Add(30 * 24 * time.Hour),
	}
	order.PaidAmount = order.DepositRequired()
	r.orders[order.ID] = order
	return order
}

// addApprovedOrder seeds a zero-deposit order that ships straight from
// APPROVED with no payment on file.
func (r *memoryBillingRepo) addApprovedOrder(total float64) *sales.SalesOrder {
	r.nextID++
	order := &sales.SalesOrder{
		ID:            r.nextID,
		Number:        "SO-test",
		CustomerID:    7,
		Status:        sales.SOStatusApproved,
		PaymentStatus: sales.PaymentNotYet,
		TotalPrice:    total,
		ExpiredDate:   time.Now().Add(30 * 24 * time.Hour),
	}
	r.orders[order.ID] = order
	return order
}

func (r *memoryBillingRepo) addIssue(orderID int64, amount float64) *fulfillment.GoodsIssueNote {
	r.nextID++
	issue := &fulfillment.GoodsIssueNote{
		ID:          r.nextID,
		Number:      "GI-test",
		OrderID:     orderID,
		IssueAmount: amount,
		IssuedAt:    time.Now(),
	}
	r.issues[issue.ID] = issue
	return issue
}

func TestGenerateInvoiceApportionsDeposit(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addOrder(1500, 30) // deposit 450
	i1 := repo.addIssue(order.ID, 600)
	i2 := repo.addIssue(order.ID, 900)

	invoice, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{i1.ID, i2.ID}})
	require.NoError(t, err)
	require.Equal(t, 1500.0, invoice.TotalAmount)
	require.Equal(t, 450.0, invoice.TotalDeposit)
	require.Equal(t, 450.0, invoice.TotalPaid)
	require.Equal(t, 1050.0, invoice.TotalRemain)
	require.Equal(t, sales.PaymentDeposited, invoice.PaymentStatus)
	require.Equal(t, InvoiceDraft, invoice.Status)

	require.Len(t, invoice.Details, 2)
	require.Equal(t, 180.0, invoice.Details[0].AllocatedDeposit) // 450 * 600/1500
	require.Equal(t, 270.0, invoice.Details[1].AllocatedDeposit) // 450 * 900/1500
	require.Equal(t, 420.0, invoice.Details[0].Balance)
	require.Equal(t, 630.0, invoice.Details[1].Balance)
}

func TestGenerateInvoiceDriftBoundedByEventCount(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addOrder(1000, 10) // deposit 100
	var ids []int64
	for _, amount := range []float64{333, 333, 334} {
		ids = append(ids, repo.addIssue(order.ID, amount).ID)
	}

	invoice, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: ids})
	require.NoError(t, err)

	// Per-share rounding: 33.3 -> 33, 33.3 -> 33, 33.4 -> 33. The sum drifts
	// from the fixed deposit but never by more than one unit per detail.
	drift := math.Abs(invoice.TotalDeposit - order.DepositRequired())
	require.LessOrEqual(t, drift, float64(len(invoice.Details)))
	require.Equal(t, 99.0, invoice.TotalDeposit)
}

func TestGenerateInvoiceRejectsAlreadyInvoicedIssue(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addOrder(1500, 30)
	issue := repo.addIssue(order.ID, 600)

	_, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{issue.ID}})
	require.NoError(t, err)

	_, err = svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{issue.ID}})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestGenerateInvoiceRejectsForeignIssue(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addOrder(1500, 30)
	other := repo.addOrder(900, 0)
	foreign := repo.addIssue(other.ID, 300)

	_, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{foreign.ID}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.invoices)
}

func TestMarkPaymentSuccessIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addOrder(1500, 30)
	issue := repo.addIssue(order.ID, 1500)
	invoice, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{issue.ID}})
	require.NoError(t, err)

	payment, err := svc.CreatePaymentRemain(ctx, CreatePaymentInput{InvoiceID: invoice.ID, Amount: 500, Method: "bank_transfer"})
	require.NoError(t, err)
	require.Equal(t, GatewayPending, payment.GatewayStatus)
	require.NotEmpty(t, payment.GatewayRef)

	confirmed, err := svc.MarkPaymentSuccess(ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, GatewaySuccess, confirmed.GatewayStatus)
	require.NotNil(t, confirmed.ConfirmedAt)

	_, err = svc.MarkPaymentSuccess(ctx, payment.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	// Totals reflect the single confirmation, not two.
	got, err := svc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, 950.0, got.TotalPaid)
	require.Equal(t, sales.PaymentPartiallyPaid, got.PaymentStatus)
}

func TestCreatePaymentRejectsOverpayment(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addOrder(1500, 30)
	issue := repo.addIssue(order.ID, 1500)
	invoice, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{issue.ID}})
	require.NoError(t, err)

	_, err = svc.CreatePaymentRemain(ctx, CreatePaymentInput{InvoiceID: invoice.ID, Amount: invoice.TotalRemain + 1, Method: "card"})
	require.ErrorIs(t, err, shared.ErrAmountExceedsLimit)
	require.Empty(t, repo.payments)
}

func TestReconcileDrivesOrderToPaid(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addOrder(1500, 30)
	issue := repo.addIssue(order.ID, 1500)
	invoice, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{issue.ID}})
	require.NoError(t, err)

	payment, err := svc.CreatePaymentRemain(ctx, CreatePaymentInput{InvoiceID: invoice.ID, Amount: 1050, Method: "bank_transfer"})
	require.NoError(t, err)
	_, err = svc.MarkPaymentSuccess(ctx, payment.ID)
	require.NoError(t, err)

	got := repo.orders[order.ID]
	require.Equal(t, sales.PaymentPaid, got.PaymentStatus)
	require.Equal(t, sales.SOStatusPaid, got.Status)
	require.Equal(t, 1500.0, got.PaidAmount)
	require.NotNil(t, got.PaidFullAt)
	firstPaidFullAt := *got.PaidFullAt

	debt := repo.debts[order.ID]
	require.NotNil(t, debt)
	require.Equal(t, 0.0, debt.DebtAmount)
	require.Equal(t, DebtNone, debt.Status)

	// Re-running reconcile converges to the same state and keeps the
	// original full-payment timestamp.
	require.NoError(t, svc.Reconcile(ctx, invoice.ID))
	got = repo.orders[order.ID]
	require.Equal(t, sales.SOStatusPaid, got.Status)
	require.Equal(t, firstPaidFullAt, *got.PaidFullAt)

	inv, err := svc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, inv.TotalRemain)
	require.Equal(t, 1050.0, inv.Details[0].PaidRemainder)
	require.Equal(t, 0.0, inv.Details[0].Balance)
}

func TestReconcileAdvancesZeroDepositOrderFromApproved(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addApprovedOrder(1000)
	issue := repo.addIssue(order.ID, 1000)
	invoice, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{issue.ID}})
	require.NoError(t, err)
	require.Equal(t, 0.0, invoice.TotalDeposit)
	require.Equal(t, 1000.0, invoice.TotalRemain)

	// A partial payment moves the order into the payment leg even though it
	// never saw a deposit.
	partial, err := svc.CreatePaymentRemain(ctx, CreatePaymentInput{InvoiceID: invoice.ID, Amount: 400, Method: "bank_transfer"})
	require.NoError(t, err)
	_, err = svc.MarkPaymentSuccess(ctx, partial.ID)
	require.NoError(t, err)

	got := repo.orders[order.ID]
	require.Equal(t, sales.SOStatusPartiallyPaid, got.Status)
	require.Equal(t, sales.PaymentPartiallyPaid, got.PaymentStatus)
	require.False(t, got.IsDeposited)

	rest, err := svc.CreatePaymentRemain(ctx, CreatePaymentInput{InvoiceID: invoice.ID, Amount: 600, Method: "bank_transfer"})
	require.NoError(t, err)
	_, err = svc.MarkPaymentSuccess(ctx, rest.ID)
	require.NoError(t, err)

	got = repo.orders[order.ID]
	require.Equal(t, sales.SOStatusPaid, got.Status)
	require.Equal(t, sales.PaymentPaid, got.PaymentStatus)
	require.Equal(t, 1000.0, got.PaidAmount)
	require.NotNil(t, got.PaidFullAt)

	debt := repo.debts[order.ID]
	require.NotNil(t, debt)
	require.Equal(t, 0.0, debt.DebtAmount)
	require.Equal(t, DebtNone, debt.Status)
}

func TestReconcileMarksOverdueDebt(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	order := repo.addOrder(1500, 30)
	order.ExpiredDate = time.Now().Add(-time.Hour)
	issue := repo.addIssue(order.ID, 1500)
	invoice, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{issue.ID}})
	require.NoError(t, err)

	require.NoError(t, svc.Reconcile(ctx, invoice.ID))

	debt := repo.debts[order.ID]
	require.NotNil(t, debt)
	require.Equal(t, 1050.0, debt.DebtAmount)
	require.Equal(t, DebtOverdue, debt.Status)
}

func TestReconcileAllRepairsEveryInvoice(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, slog.Default())

	for i := 0; i < 3; i++ {
		order := repo.addOrder(1000, 20)
		issue := repo.addIssue(order.ID, 1000)
		_, err := svc.GenerateInvoice(ctx, GenerateInvoiceInput{OrderID: order.ID, IssueIDs: []int64{issue.ID}})
		require.NoError(t, err)
	}

	done, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, done)
}
