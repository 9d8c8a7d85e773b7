package e2e

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/billing"
	"github.com/meridian-erp/meridian-erp/internal/fulfillment"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// store backs every module with one shared in-memory dataset, so goods
// received by purchasing are the same lots fulfillment drains and the same
// order billing reconciles. The happy-path flow never rolls back, so the
// transaction wrappers are pass-through.
type store struct {
	products       map[int64]bool
	purchaseOrders map[int64]*purchasing.PurchasingOrder
	receipts       map[int64]*purchasing.GoodsReceiptNote
	lots           map[int64]*ledger.Lot
	productTotals  map[int64]float64
	customers      map[int64]*sales.Customer
	quotations     map[int64]*sales.SalesQuotation
	salesOrders    map[int64]*sales.SalesOrder
	issues         map[int64]*fulfillment.GoodsIssueNote
	invoices       map[int64]*billing.Invoice
	payments       map[int64]*billing.PaymentRemain
	debts          map[int64]*billing.CustomerDebt
	nextID         int64
}

func newStore() *store {
	return &store{
		products:       make(map[int64]bool),
		purchaseOrders: make(map[int64]*purchasing.PurchasingOrder),
		receipts:       make(map[int64]*purchasing.GoodsReceiptNote),
		lots:           make(map[int64]*ledger.Lot),
		productTotals:  make(map[int64]float64),
		customers:      make(map[int64]*sales.Customer),
		quotations:     make(map[int64]*sales.SalesQuotation),
		salesOrders:    make(map[int64]*sales.SalesOrder),
		issues:         make(map[int64]*fulfillment.GoodsIssueNote),
		invoices:       make(map[int64]*billing.Invoice),
		payments:       make(map[int64]*billing.PaymentRemain),
		debts:          make(map[int64]*billing.CustomerDebt),
	}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

type purchasingStore struct{ *store }

func (s purchasingStore) WithTx(ctx context.Context, fn func(context.Context, purchasing.TxRepository) error) error {
	return fn(ctx, s.store)
}

// salesStore carries the sales port methods itself: GetOrder, SaveOrder and
// friends already exist on store with the purchasing signatures.
type salesStore struct{ *store }

func (s salesStore) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return fn(ctx, s)
}

func (s salesStore) CreateCustomer(ctx context.Context, c *sales.Customer) error {
	c.ID = s.id()
	s.customers[c.ID] = c
	return nil
}

func (s salesStore) GetCustomer(ctx context.Context, id int64) (*sales.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, sales.ErrCustomerNotFound
	}
	return c, nil
}

func (s salesStore) CreateQuotation(ctx context.Context, q *sales.SalesQuotation) error {
	q.ID = s.id()
	for i := range q.Lines {
		q.Lines[i].ID = s.id()
		q.Lines[i].QuotationID = q.ID
	}
	s.quotations[q.ID] = q
	return nil
}

func (s salesStore) GetQuotation(ctx context.Context, id int64) (*sales.SalesQuotation, error) {
	q, ok := s.quotations[id]
	if !ok {
		return nil, sales.ErrQuotationNotFound
	}
	return q, nil
}

func (s salesStore) ListQuotations(ctx context.Context, status sales.QuotationStatus) ([]sales.SalesQuotation, error) {
	var out []sales.SalesQuotation
	for _, q := range s.quotations {
		if status == "" || q.Status == status {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (s salesStore) GetQuotationForUpdate(ctx context.Context, id int64) (*sales.SalesQuotation, error) {
	return s.GetQuotation(ctx, id)
}

func (s salesStore) SaveQuotation(ctx context.Context, q *sales.SalesQuotation) error {
	s.quotations[q.ID] = q
	return nil
}

func (s salesStore) ReplaceQuotationLines(ctx context.Context, quotationID int64, lines []sales.QuotationLine) error {
	return nil
}

func (s salesStore) GetOrder(ctx context.Context, id int64) (*sales.SalesOrder, error) {
	order, ok := s.salesOrders[id]
	if !ok {
		return nil, sales.ErrOrderNotFound
	}
	return order, nil
}

func (s salesStore) ListOrders(ctx context.Context, status sales.SOStatus) ([]sales.SalesOrder, error) {
	var out []sales.SalesOrder
	for _, order := range s.salesOrders {
		if status == "" || order.Status == status {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s salesStore) ListDepositOverdue(ctx context.Context, now time.Time) ([]sales.SalesOrder, error) {
	var out []sales.SalesOrder
	for _, order := range s.salesOrders {
		if order.IsDeposited || !order.ExpiredDate.Before(now) {
			continue
		}
		switch order.Status {
		case sales.SOStatusDraft, sales.SOStatusSent, sales.SOStatusApproved:
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s salesStore) GetOrderForUpdate(ctx context.Context, id int64) (*sales.SalesOrder, error) {
	return s.GetOrder(ctx, id)
}

func (s salesStore) InsertOrder(ctx context.Context, order *sales.SalesOrder) error {
	order.ID = s.id()
	for i := range order.Lines {
		order.Lines[i].ID = s.id()
		order.Lines[i].OrderID = order.ID
	}
	s.salesOrders[order.ID] = order
	return nil
}

func (s salesStore) SaveOrder(ctx context.Context, order *sales.SalesOrder) error {
	s.salesOrders[order.ID] = order
	return nil
}

type fulfillmentStore struct{ *store }

func (s fulfillmentStore) WithTx(ctx context.Context, fn func(context.Context, fulfillment.TxRepository) error) error {
	return fn(ctx, s.store)
}

type billingStore struct{ *store }

func (s billingStore) WithTx(ctx context.Context, fn func(context.Context, billing.TxRepository) error) error {
	return fn(ctx, s.store)
}

func (s *store) CreateOrder(ctx context.Context, order *purchasing.PurchasingOrder) error {
	order.ID = s.id()
	for i := range order.Lines {
		order.Lines[i].ID = s.id()
		order.Lines[i].OrderID = order.ID
	}
	s.purchaseOrders[order.ID] = order
	return nil
}

func (s *store) GetOrder(ctx context.Context, id int64) (*purchasing.PurchasingOrder, error) {
	order, ok := s.purchaseOrders[id]
	if !ok {
		return nil, purchasing.ErrOrderNotFound
	}
	return order, nil
}

func (s *store) ListOrders(ctx context.Context, status purchasing.POStatus) ([]purchasing.PurchasingOrder, error) {
	var out []purchasing.PurchasingOrder
	for _, order := range s.purchaseOrders {
		if status == "" || order.Status == status {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *store) ListReceipts(ctx context.Context, orderID int64) ([]purchasing.GoodsReceiptNote, error) {
	var out []purchasing.GoodsReceiptNote
	for _, note := range s.receipts {
		if note.OrderID == orderID {
			out = append(out, *note)
		}
	}
	return out, nil
}

func (s *store) GetOrderForUpdate(ctx context.Context, id int64) (*purchasing.PurchasingOrder, error) {
	return s.GetOrder(ctx, id)
}

func (s *store) SaveOrder(ctx context.Context, order *purchasing.PurchasingOrder) error {
	s.purchaseOrders[order.ID] = order
	return nil
}

func (s *store) FindMissingProducts(ctx context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if !s.products[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *store) InsertReceiptNote(ctx context.Context, note *purchasing.GoodsReceiptNote) error {
	note.ID = s.id()
	s.receipts[note.ID] = note
	return nil
}

func (s *store) InsertReceiptLine(ctx context.Context, line *purchasing.GoodsReceiptLine) error {
	line.ID = s.id()
	return nil
}

func (s *store) FindLotByMergeKeyForUpdate(ctx context.Context, productID, supplierID int64, expiryDate time.Time) (*ledger.Lot, error) {
	for _, lot := range s.lots {
		if lot.ProductID == productID && lot.SupplierID == supplierID && lot.ExpiryDate.Equal(expiryDate) {
			return lot, nil
		}
	}
	return nil, nil
}

func (s *store) InsertLot(ctx context.Context, lot *ledger.Lot) error {
	lot.ID = s.id()
	s.lots[lot.ID] = lot
	return nil
}

func (s *store) SaveLot(ctx context.Context, lot *ledger.Lot) error {
	s.lots[lot.ID] = lot
	return nil
}

func (s *store) AdjustProductTotal(ctx context.Context, productID int64, delta float64) error {
	s.productTotals[productID] += delta
	return nil
}

func (s *store) GetIssue(ctx context.Context, id int64) (*fulfillment.GoodsIssueNote, error) {
	issue, ok := s.issues[id]
	if !ok {
		return nil, fulfillment.ErrIssueNotFound
	}
	return issue, nil
}

func (s *store) ListIssues(ctx context.Context, orderID int64) ([]fulfillment.GoodsIssueNote, error) {
	var out []fulfillment.GoodsIssueNote
	for _, issue := range s.issues {
		if issue.OrderID == orderID {
			out = append(out, *issue)
		}
	}
	return out, nil
}

func (s *store) GetSalesOrderForUpdate(ctx context.Context, id int64) (*sales.SalesOrder, error) {
	order, ok := s.salesOrders[id]
	if !ok {
		return nil, sales.ErrOrderNotFound
	}
	return order, nil
}

func (s *store) ListLotsForUpdate(ctx context.Context, productIDs []int64) ([]ledger.Lot, error) {
	wanted := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}
	var out []ledger.Lot
	for _, lot := range s.lots {
		if wanted[lot.ProductID] && lot.Quantity > 0 {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (s *store) SaveLotQuantity(ctx context.Context, lotID int64, quantity float64) error {
	lot, ok := s.lots[lotID]
	if !ok {
		return ledger.ErrLotNotFound
	}
	lot.Quantity = quantity
	return nil
}

func (s *store) InsertIssueNote(ctx context.Context, note *fulfillment.GoodsIssueNote) error {
	note.ID = s.id()
	s.issues[note.ID] = note
	return nil
}

func (s *store) InsertIssueLine(ctx context.Context, line *fulfillment.GoodsIssueLine) error {
	line.ID = s.id()
	return nil
}

func (s *store) GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *store) ListInvoices(ctx context.Context, orderID int64) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range s.invoices {
		if inv.OrderID == orderID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s *store) ListInvoiceIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id := range s.invoices {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *store) ListPayments(ctx context.Context, invoiceID int64) ([]billing.PaymentRemain, error) {
	var out []billing.PaymentRemain
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *store) GetDebt(ctx context.Context, orderID int64) (*billing.CustomerDebt, error) {
	debt, ok := s.debts[orderID]
	if !ok {
		return nil, billing.ErrDebtNotFound
	}
	return debt, nil
}

func (s *store) GetInvoiceForUpdate(ctx context.Context, id int64) (*billing.Invoice, error) {
	return s.GetInvoice(ctx, id)
}

func (s *store) InsertInvoice(ctx context.Context, inv *billing.Invoice) error {
	inv.ID = s.id()
	stored := *inv
	stored.Details = nil
	s.invoices[inv.ID] = &stored
	return nil
}

func (s *store) SaveInvoice(ctx context.Context, inv *billing.Invoice) error {
	copied := *inv
	copied.Details = append([]billing.InvoiceDetail(nil), inv.Details...)
	s.invoices[inv.ID] = &copied
	return nil
}

func (s *store) InsertInvoiceDetail(ctx context.Context, d *billing.InvoiceDetail) error {
	d.ID = s.id()
	stored := s.invoices[d.InvoiceID]
	stored.Details = append(stored.Details, *d)
	return nil
}

func (s *store) SaveInvoiceDetail(ctx context.Context, d *billing.InvoiceDetail) error {
	stored := s.invoices[d.InvoiceID]
	for i := range stored.Details {
		if stored.Details[i].ID == d.ID {
			stored.Details[i] = *d
			return nil
		}
	}
	return billing.ErrInvoiceNotFound
}

func (s *store) FindInvoicedIssueIDs(ctx context.Context, issueIDs []int64) ([]int64, error) {
	wanted := make(map[int64]bool, len(issueIDs))
	for _, id := range issueIDs {
		wanted[id] = true
	}
	var taken []int64
	for _, inv := range s.invoices {
		for _, d := range inv.Details {
			if wanted[d.IssueID] {
				taken = append(taken, d.IssueID)
			}
		}
	}
	return taken, nil
}

func (s *store) ListOrderIssues(ctx context.Context, orderID int64, issueIDs []int64) ([]fulfillment.GoodsIssueNote, error) {
	var out []fulfillment.GoodsIssueNote
	for _, id := range issueIDs {
		issue, ok := s.issues[id]
		if !ok || issue.OrderID != orderID {
			continue
		}
		out = append(out, *issue)
	}
	return out, nil
}

func (s *store) GetPaymentForUpdate(ctx context.Context, id int64) (*billing.PaymentRemain, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, billing.ErrPaymentNotFound
	}
	return p, nil
}

func (s *store) InsertPayment(ctx context.Context, p *billing.PaymentRemain) error {
	p.ID = s.id()
	s.payments[p.ID] = p
	return nil
}

func (s *store) SavePayment(ctx context.Context, p *billing.PaymentRemain) error {
	s.payments[p.ID] = p
	return nil
}

func (s *store) SumConfirmedPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID && p.ConfirmedAt != nil {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (s *store) SumOrderPaid(ctx context.Context, orderID int64) (float64, error) {
	var sum float64
	for _, inv := range s.invoices {
		if inv.OrderID == orderID {
			sum += inv.TotalPaid
		}
	}
	return sum, nil
}

func (s *store) SaveSalesOrder(ctx context.Context, order *sales.SalesOrder) error {
	s.salesOrders[order.ID] = order
	return nil
}

func (s *store) UpsertCustomerDebt(ctx context.Context, debt *billing.CustomerDebt) error {
	s.debts[debt.OrderID] = debt
	return nil
}

// approvedOrder runs the full pre-shipping paperwork: customer, quotation
// sent and accepted, sales order raised from it and approved.
func approvedOrder(t *testing.T, svc *sales.Service, productID int64, quantity, unitPrice, depositPercent float64) *sales.SalesOrder {
	t.Helper()
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, sales.CreateCustomerInput{Name: "Westbrook Pharmacy"})
	require.NoError(t, err)

	q, err := svc.CreateQuotation(ctx, sales.CreateQuotationInput{
		CustomerID:     customer.ID,
		DepositPercent: depositPercent,
		ExpiredDate:    time.Now().Add(30 * 24 * time.Hour),
		Lines:          []sales.QuotationLineInput{{ProductID: productID, Quantity: quantity, UnitPrice: unitPrice}},
	})
	require.NoError(t, err)
	_, err = svc.SendQuotation(ctx, q.ID)
	require.NoError(t, err)
	_, err = svc.AcceptQuotation(ctx, q.ID)
	require.NoError(t, err)

	order, err := svc.CreateOrderFromQuotation(ctx, sales.CreateOrderInput{
		QuotationID: q.ID,
		ExpiredDate: time.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = svc.ChangeOrderStatus(ctx, order.ID, sales.SOStatusSent)
	require.NoError(t, err)
	order, err = svc.ChangeOrderStatus(ctx, order.ID, sales.SOStatusApproved)
	require.NoError(t, err)
	return order
}

// TestReceiptToPaidOrderFlow walks one product through the whole pipeline:
// purchased and received into a lot, sold via quotation and order with the
// deposit recorded, issued, invoiced, and paid off until the order reaches
// PAID with no debt left.
func TestReceiptToPaidOrderFlow(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	st.products[1] = true
	logger := slog.Default()

	purchasingSvc := purchasing.NewService(purchasingStore{st}, logger)
	salesSvc := sales.NewService(salesStore{st}, logger, nil)
	fulfillmentSvc := fulfillment.NewService(fulfillmentStore{st}, logger)
	billingSvc := billing.NewService(billingStore{st}, logger)

	po, err := purchasingSvc.CreateOrder(ctx, purchasing.CreateOrderInput{
		SupplierID: 7,
		Lines:      []purchasing.POLineInput{{ProductID: 1, Quantity: 100, UnitPrice: 6}},
	})
	require.NoError(t, err)
	for _, next := range []purchasing.POStatus{purchasing.POStatusSent, purchasing.POStatusApproved} {
		_, err = purchasingSvc.ChangeStatus(ctx, po.ID, next)
		require.NoError(t, err)
	}

	expiryDate := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	receipt, err := purchasingSvc.PostGoodsReceipt(ctx, purchasing.GoodsReceiptInput{
		OrderID: po.ID,
		Lines: []purchasing.ReceiptLineInput{
			{ProductID: 1, Quantity: 100, UnitCost: 6, SalePrice: 35, ExpiryDate: expiryDate},
		},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Lines, 1)
	require.Equal(t, 100.0, st.productTotals[1])
	require.Equal(t, 100.0, st.lots[receipt.Lines[0].LotID].Quantity)

	// 30 units at 35 = 1050, 30% deposit = 315.
	order := approvedOrder(t, salesSvc, 1, 30, 35, 30)
	require.Equal(t, 315.0, order.DepositRequired())

	// No shipping before the deposit lands.
	_, err = fulfillmentSvc.PostGoodsIssue(ctx, order.ID, fulfillment.PostGoodsIssueInput{
		Requests: []ledger.PickRequest{{ProductID: 1, Quantity: 30}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	order, err = salesSvc.RecordDeposit(ctx, order.ID, sales.DepositInput{Amount: 315})
	require.NoError(t, err)
	require.Equal(t, sales.SOStatusDeposited, order.Status)
	require.Equal(t, 315.0, order.PaidAmount)
	require.True(t, order.IsDeposited)

	issue, err := fulfillmentSvc.PostGoodsIssue(ctx, order.ID, fulfillment.PostGoodsIssueInput{
		Requests: []ledger.PickRequest{{ProductID: 1, Quantity: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, 1050.0, issue.IssueAmount)
	require.Equal(t, 70.0, st.lots[receipt.Lines[0].LotID].Quantity)
	require.Equal(t, 70.0, st.productTotals[1])

	invoice, err := billingSvc.GenerateInvoice(ctx, billing.GenerateInvoiceInput{
		OrderID:  order.ID,
		IssueIDs: []int64{issue.ID},
	})
	require.NoError(t, err)
	require.Equal(t, 1050.0, invoice.TotalAmount)
	require.Equal(t, 315.0, invoice.TotalDeposit)
	require.Equal(t, 735.0, invoice.TotalRemain)
	require.Equal(t, sales.PaymentDeposited, invoice.PaymentStatus)

	_, err = billingSvc.SendInvoice(ctx, invoice.ID)
	require.NoError(t, err)

	payment, err := billingSvc.CreatePaymentRemain(ctx, billing.CreatePaymentInput{
		InvoiceID: invoice.ID,
		Amount:    735,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)
	_, err = billingSvc.MarkPaymentSuccess(ctx, payment.ID)
	require.NoError(t, err)

	final := st.salesOrders[order.ID]
	require.Equal(t, sales.SOStatusPaid, final.Status)
	require.Equal(t, sales.PaymentPaid, final.PaymentStatus)
	require.Equal(t, 1050.0, final.PaidAmount)
	require.NotNil(t, final.PaidFullAt)

	settled, err := billingSvc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, settled.TotalRemain)
	require.Equal(t, sales.PaymentPaid, settled.PaymentStatus)

	debt, err := billingSvc.GetDebt(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, debt.DebtAmount)
	require.Equal(t, billing.DebtNone, debt.Status)
}

// TestZeroDepositOrderShipsFromApproved covers the other payment path: with
// no deposit required the order ships straight from APPROVED and the
// remainder payments alone walk it to PAID.
func TestZeroDepositOrderShipsFromApproved(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	st.products[1] = true
	logger := slog.Default()

	purchasingSvc := purchasing.NewService(purchasingStore{st}, logger)
	salesSvc := sales.NewService(salesStore{st}, logger, nil)
	fulfillmentSvc := fulfillment.NewService(fulfillmentStore{st}, logger)
	billingSvc := billing.NewService(billingStore{st}, logger)

	po, err := purchasingSvc.CreateOrder(ctx, purchasing.CreateOrderInput{
		SupplierID: 7,
		Lines:      []purchasing.POLineInput{{ProductID: 1, Quantity: 50, UnitPrice: 6}},
	})
	require.NoError(t, err)
	for _, next := range []purchasing.POStatus{purchasing.POStatusSent, purchasing.POStatusApproved} {
		_, err = purchasingSvc.ChangeStatus(ctx, po.ID, next)
		require.NoError(t, err)
	}
	_, err = purchasingSvc.PostGoodsReceipt(ctx, purchasing.GoodsReceiptInput{
		OrderID: po.ID,
		Lines: []purchasing.ReceiptLineInput{
			{ProductID: 1, Quantity: 50, UnitCost: 6, SalePrice: 20, ExpiryDate: time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
	})
	require.NoError(t, err)

	// 10 units at 20 = 200, no deposit.
	order := approvedOrder(t, salesSvc, 1, 10, 20, 0)
	require.Equal(t, 0.0, order.DepositRequired())

	issue, err := fulfillmentSvc.PostGoodsIssue(ctx, order.ID, fulfillment.PostGoodsIssueInput{
		Requests: []ledger.PickRequest{{ProductID: 1, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, 200.0, issue.IssueAmount)

	invoice, err := billingSvc.GenerateInvoice(ctx, billing.GenerateInvoiceInput{
		OrderID:  order.ID,
		IssueIDs: []int64{issue.ID},
	})
	require.NoError(t, err)
	require.Equal(t, 0.0, invoice.TotalDeposit)
	require.Equal(t, 200.0, invoice.TotalRemain)

	payment, err := billingSvc.CreatePaymentRemain(ctx, billing.CreatePaymentInput{
		InvoiceID: invoice.ID,
		Amount:    200,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)
	_, err = billingSvc.MarkPaymentSuccess(ctx, payment.ID)
	require.NoError(t, err)

	final := st.salesOrders[order.ID]
	require.Equal(t, sales.SOStatusPaid, final.Status)
	require.Equal(t, sales.PaymentPaid, final.PaymentStatus)
	require.Equal(t, 200.0, final.PaidAmount)
	require.False(t, final.IsDeposited)
	require.NotNil(t, final.PaidFullAt)

	debt, err := billingSvc.GetDebt(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, debt.DebtAmount)
}
