package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const quotationColumns = `id, number, customer_id, status, deposit_percent, expired_date, document_ref, total, created_at, updated_at`

const orderColumns = `id, number, quotation_id, customer_id, status, payment_status, total_price, paid_amount, is_deposited, deposit_percent, expired_date, paid_full_at, created_at, updated_at`

func scanQuotation(row pgx.Row) (*SalesQuotation, error) {
	var q SalesQuotation
	err := row.Scan(
		&q.ID, &q.Number, &q.CustomerID, &q.Status, &q.DepositPercent,
		&q.ExpiredDate, &q.DocumentRef, &q.Total, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuotationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanOrder(row pgx.Row) (*SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(
		&o.ID, &o.Number, &o.QuotationID, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.TotalPrice, &o.PaidAmount, &o.IsDeposited, &o.DepositPercent,
		&o.ExpiredDate, &o.PaidFullAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateCustomer inserts a customer.
func (r *Repository) CreateCustomer(ctx context.Context, c *Customer) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO customers (name, phone, email, address, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		c.Name, c.Phone, c.Email, c.Address,
	).Scan(&c.ID, &c.CreatedAt)
}

// GetCustomer retrieves a customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, address, created_at
		FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateQuotation inserts a quotation with its lines.
func (r *Repository) CreateQuotation(ctx context.Context, q *SalesQuotation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `
		INSERT INTO sales_quotations (number, customer_id, status, deposit_percent, expired_date, document_ref, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		q.Number, q.CustomerID, q.Status, q.DepositPercent, q.ExpiredDate, q.Total,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return err
	}

	for i := range q.Lines {
		line := &q.Lines[i]
		line.QuotationID = q.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO quotation_lines (quotation_id, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			line.QuotationID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal,
		).Scan(&line.ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetQuotation retrieves a quotation with its lines.
func (r *Repository) GetQuotation(ctx context.Context, id int64) (*SalesQuotation, error) {
	q, err := scanQuotation(r.pool.QueryRow(ctx, `SELECT `+quotationColumns+` FROM sales_quotations WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, quotation_id, product_id, quantity, unit_price, line_total
		FROM quotation_lines WHERE quotation_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line QuotationLine
		if err := rows.Scan(&line.ID, &line.QuotationID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		q.Lines = append(q.Lines, line)
	}
	return q, rows.Err()
}

// ListQuotations returns quotations, optionally filtered by status.
func (r *Repository) ListQuotations(ctx context.Context, status QuotationStatus) ([]SalesQuotation, error) {
	query := `SELECT ` + quotationColumns + ` FROM sales_quotations`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotations []SalesQuotation
	for rows.Next() {
		var q SalesQuotation
		if err := rows.Scan(
			&q.ID, &q.Number, &q.CustomerID, &q.Status, &q.DepositPercent,
			&q.ExpiredDate, &q.DocumentRef, &q.Total, &q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, err
		}
		quotations = append(quotations, q)
	}
	return quotations, rows.Err()
}

// GetOrder retrieves a sales order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (*SalesOrder, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, line_total
		FROM sales_order_lines WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line SalesOrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

// ListOrders returns sales orders, optionally filtered by status.
func (r *Repository) ListOrders(ctx context.Context, status SOStatus) ([]SalesOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListDepositOverdue returns undeposited orders whose deposit deadline has
// passed and that can still be swept.
func (r *Repository) ListDepositOverdue(ctx context.Context, now time.Time) ([]SalesOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM sales_orders
		WHERE is_deposited = FALSE
		  AND expired_date < $1
		  AND status IN ('DRAFT', 'SENT', 'APPROVED')
		ORDER BY expired_date`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]SalesOrder, error) {
	var orders []SalesOrder
	for rows.Next() {
		var o SalesOrder
		if err := rows.Scan(
			&o.ID, &o.Number, &o.QuotationID, &o.CustomerID, &o.Status, &o.PaymentStatus,
			&o.TotalPrice, &o.PaidAmount, &o.IsDeposited, &o.DepositPercent,
			&o.ExpiredDate, &o.PaidFullAt, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
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

func (t *txRepo) GetQuotationForUpdate(ctx context.Context, id int64) (*SalesQuotation, error) {
	return scanQuotation(t.tx.QueryRow(ctx, `SELECT `+quotationColumns+` FROM sales_quotations WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) SaveQuotation(ctx context.Context, q *SalesQuotation) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales_quotations
		SET status = $2, deposit_percent = $3, expired_date = $4, document_ref = $5, total = $6, updated_at = NOW()
		WHERE id = $1`,
		q.ID, q.Status, q.DepositPercent, q.ExpiredDate, q.DocumentRef, q.Total,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotationNotFound
	}
	return nil
}

func (t *txRepo) ReplaceQuotationLines(ctx context.Context, quotationID int64, lines []QuotationLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM quotation_lines WHERE quotation_id = $1`, quotationID); err != nil {
		return err
	}
	for i := range lines {
		line := &lines[i]
		line.QuotationID = quotationID
		if err := t.tx.QueryRow(ctx, `
			INSERT INTO quotation_lines (quotation_id, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			line.QuotationID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal,
		).Scan(&line.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (*SalesOrder, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) InsertOrder(ctx context.Context, order *SalesOrder) error {
	if err := t.tx.QueryRow(ctx, `
		INSERT INTO sales_orders (number, quotation_id, customer_id, status, payment_status, total_price, paid_amount, is_deposited, deposit_percent, expired_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, FALSE, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		order.Number, order.QuotationID, order.CustomerID, order.Status, order.PaymentStatus,
		order.TotalPrice, order.DepositPercent, order.ExpiredDate,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return err
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := t.tx.QueryRow(ctx, `
			INSERT INTO sales_order_lines (order_id, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal,
		).Scan(&line.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) SaveOrder(ctx context.Context, order *SalesOrder) error {
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
		return ErrOrderNotFound
	}
	return nil
}
