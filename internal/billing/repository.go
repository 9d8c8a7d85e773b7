package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/fulfillment"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

// Repository provides PostgreSQL backed persistence for billing.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, order_id, customer_id, status, payment_status, total_amount, total_deposit, total_paid, total_remain, created_at, updated_at`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadInvoice(ctx context.Context, q rowQuerier, query string, id int64) (*Invoice, error) {
	var inv Invoice
	err := q.QueryRow(ctx, query, id).Scan(
		&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerID, &inv.Status, &inv.PaymentStatus,
		&inv.TotalAmount, &inv.TotalDeposit, &inv.TotalPaid, &inv.TotalRemain,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, issue_id, issue_amount, allocated_deposit, paid_remainder, balance
		FROM invoice_details
		WHERE invoice_id = $1
		ORDER BY id`, inv.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d InvoiceDetail
		if err := rows.Scan(&d.ID, &d.InvoiceID, &d.IssueID, &d.IssueAmount, &d.AllocatedDeposit, &d.PaidRemainder, &d.Balance); err != nil {
			return nil, err
		}
		inv.Details = append(inv.Details, d)
	}
	return &inv, rows.Err()
}

// GetInvoice retrieves an invoice with its details.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return loadInvoice(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

// ListInvoices returns the invoices for a sales order, oldest first.
func (r *Repository) ListInvoices(ctx context.Context, orderID int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerID, &inv.Status, &inv.PaymentStatus,
			&inv.TotalAmount, &inv.TotalDeposit, &inv.TotalPaid, &inv.TotalRemain,
			&inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListInvoiceIDs returns every invoice id, oldest first.
func (r *Repository) ListInvoiceIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM invoices ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const paymentColumns = `id, invoice_id, amount, method, gateway_status, gateway_ref, requested_at, confirmed_at`

// ListPayments returns the remainder payments for an invoice, oldest first.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]PaymentRemain, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payment_remains WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []PaymentRemain
	for rows.Next() {
		var p PaymentRemain
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.GatewayStatus, &p.GatewayRef, &p.RequestedAt, &p.ConfirmedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetDebt returns the debt record for a sales order.
func (r *Repository) GetDebt(ctx context.Context, orderID int64) (*CustomerDebt, error) {
	var d CustomerDebt
	err := r.pool.QueryRow(ctx, `
		SELECT order_id, customer_id, debt_amount, status, updated_at
		FROM customer_debts WHERE order_id = $1`, orderID,
	).Scan(&d.OrderID, &d.CustomerID, &d.DebtAmount, &d.Status, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDebtNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return loadInvoice(ctx, t.tx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv *Invoice) error {
	query := `
		INSERT INTO invoices (number, order_id, customer_id, status, payment_status, total_amount, total_deposit, total_paid, total_remain, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	return t.tx.QueryRow(ctx, query,
		inv.Number, inv.OrderID, inv.CustomerID, inv.Status, inv.PaymentStatus,
		inv.TotalAmount, inv.TotalDeposit, inv.TotalPaid, inv.TotalRemain,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
}

func (t *txRepo) SaveInvoice(ctx context.Context, inv *Invoice) error {
	query := `
		UPDATE invoices
		SET status = $2, payment_status = $3, total_amount = $4, total_deposit = $5, total_paid = $6, total_remain = $7, updated_at = NOW()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		inv.ID, inv.Status, inv.PaymentStatus,
		inv.TotalAmount, inv.TotalDeposit, inv.TotalPaid, inv.TotalRemain,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *txRepo) InsertInvoiceDetail(ctx context.Context, d *InvoiceDetail) error {
	query := `
		INSERT INTO invoice_details (invoice_id, issue_id, issue_amount, allocated_deposit, paid_remainder, balance)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	return t.tx.QueryRow(ctx, query,
		d.InvoiceID, d.IssueID, d.IssueAmount, d.AllocatedDeposit, d.PaidRemainder, d.Balance,
	).Scan(&d.ID)
}

func (t *txRepo) SaveInvoiceDetail(ctx context.Context, d *InvoiceDetail) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE invoice_details
		SET paid_remainder = $2, balance = $3
		WHERE id = $1`, d.ID, d.PaidRemainder, d.Balance)
	return err
}

func (t *txRepo) FindInvoicedIssueIDs(ctx context.Context, issueIDs []int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT issue_id FROM invoice_details
		WHERE issue_id = ANY($1::bigint[])
		ORDER BY issue_id`, issueIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}

func (t *txRepo) ListOrderIssues(ctx context.Context, orderID int64, issueIDs []int64) ([]fulfillment.GoodsIssueNote, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, number, order_id, issue_amount, issued_at, created_at
		FROM goods_issue_notes
		WHERE order_id = $1 AND id = ANY($2::bigint[])
		ORDER BY id`, orderID, issueIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []fulfillment.GoodsIssueNote
	for rows.Next() {
		var note fulfillment.GoodsIssueNote
		if err := rows.Scan(&note.ID, &note.Number, &note.OrderID, &note.IssueAmount, &note.IssuedAt, &note.CreatedAt); err != nil {
			return nil, err
		}
		issues = append(issues, note)
	}
	return issues, rows.Err()
}

func (t *txRepo) GetPaymentForUpdate(ctx context.Context, id int64) (*PaymentRemain, error) {
	var p PaymentRemain
	err := t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_remains WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.GatewayStatus, &p.GatewayRef, &p.RequestedAt, &p.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p *PaymentRemain) error {
	query := `
		INSERT INTO payment_remains (invoice_id, amount, method, gateway_status, gateway_ref, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	return t.tx.QueryRow(ctx, query,
		p.InvoiceID, p.Amount, p.Method, p.GatewayStatus, p.GatewayRef, p.RequestedAt,
	).Scan(&p.ID)
}

func (t *txRepo) SavePayment(ctx context.Context, p *PaymentRemain) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE payment_remains
		SET gateway_status = $2, confirmed_at = $3
		WHERE id = $1`, p.ID, p.GatewayStatus, p.ConfirmedAt)
	return err
}

func (t *txRepo) SumConfirmedPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payment_remains
		WHERE invoice_id = $1 AND confirmed_at IS NOT NULL`, invoiceID,
	).Scan(&sum)
	return sum, err
}

func (t *txRepo) SumOrderPaid(ctx context.Context, orderID int64) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_paid), 0)
		FROM invoices
		WHERE order_id = $1`, orderID,
	).Scan(&sum)
	return sum, err
}

func (t *txRepo) GetSalesOrderForUpdate(ctx context.Context, id int64) (*sales.SalesOrder, error) {
	var o sales.SalesOrder
	err := t.tx.QueryRow(ctx, `
		SELECT id, number, quotation_id, customer_id, status, payment_status, total_price, paid_amount, is_deposited, deposit_percent, expired_date, paid_full_at, created_at, updated_at
		FROM sales_orders
		WHERE id = $1
		FOR UPDATE`, id,
	).Scan(
		&o.ID, &o.Number, &o.QuotationID, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.TotalPrice, &o.PaidAmount, &o.IsDeposited, &o.DepositPercent,
		&o.ExpiredDate, &o.PaidFullAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sales.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *txRepo) SaveSalesOrder(ctx context.Context, order *sales.SalesOrder) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales_orders
		SET status = $2, payment_status = $3, paid_amount = $4, is_deposited = $5, paid_full_at = $6, updated_at = NOW()
		WHERE id = $1`,
		order.ID, order.Status, order.PaymentStatus, order.PaidAmount, order.IsDeposited, order.PaidFullAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sales.ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) UpsertCustomerDebt(ctx context.Context, debt *CustomerDebt) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO customer_debts (order_id, customer_id, debt_amount, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id)
		DO UPDATE SET debt_amount = EXCLUDED.debt_amount, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		debt.OrderID, debt.CustomerID, debt.DebtAmount, debt.Status, debt.UpdatedAt,
	)
	return err
}
