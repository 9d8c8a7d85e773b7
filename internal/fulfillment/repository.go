package fulfillment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

// Repository provides PostgreSQL backed persistence for fulfillment.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const noteColumns = `id, number, order_id, issue_amount, issued_at, created_at`

func scanNote(row pgx.Row) (*GoodsIssueNote, error) {
	var note GoodsIssueNote
	err := row.Scan(&note.ID, &note.Number, &note.OrderID, &note.IssueAmount, &note.IssuedAt, &note.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// GetIssue retrieves an issue note with its lines.
func (r *Repository) GetIssue(ctx context.Context, id int64) (*GoodsIssueNote, error) {
	note, err := scanNote(r.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM goods_issue_notes WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// ListIssues returns the issue notes for a sales order, oldest first.
func (r *Repository) ListIssues(ctx context.Context, orderID int64) ([]GoodsIssueNote, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+noteColumns+` FROM goods_issue_notes WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []GoodsIssueNote
	for rows.Next() {
		var note GoodsIssueNote
		if err := rows.Scan(&note.ID, &note.Number, &note.OrderID, &note.IssueAmount, &note.IssuedAt, &note.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range notes {
		if err := r.loadLines(ctx, &notes[i]); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

func (r *Repository) loadLines(ctx context.Context, note *GoodsIssueNote) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, note_id, lot_id, product_id, quantity, unit_price, line_total
		FROM goods_issue_lines
		WHERE note_id = $1
		ORDER BY id`, note.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var line GoodsIssueLine
		if err := rows.Scan(&line.ID, &line.NoteID, &line.LotID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return err
		}
		note.Lines = append(note.Lines, line)
	}
	return rows.Err()
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

	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, line_total
		FROM sales_order_lines
		WHERE order_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line sales.SalesOrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}
	return &o, rows.Err()
}

func (t *txRepo) ListLotsForUpdate(ctx context.Context, productIDs []int64) ([]ledger.Lot, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, product_id, supplier_id, input_date, expiry_date, quantity, unit_cost, sale_price, storage_location_id, created_at, updated_at
		FROM lots
		WHERE product_id = ANY($1::bigint[]) AND quantity > 0
		ORDER BY expiry_date, id
		FOR UPDATE`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []ledger.Lot
	for rows.Next() {
		var lot ledger.Lot
		if err := rows.Scan(
			&lot.ID, &lot.ProductID, &lot.SupplierID, &lot.InputDate, &lot.ExpiryDate,
			&lot.Quantity, &lot.UnitCost, &lot.SalePrice, &lot.StorageLocationID,
			&lot.CreatedAt, &lot.UpdatedAt,
		); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (t *txRepo) SaveLotQuantity(ctx context.Context, lotID int64, quantity float64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE lots SET quantity = $2, updated_at = NOW() WHERE id = $1`, lotID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrLotNotFound
	}
	return nil
}

func (t *txRepo) AdjustProductTotal(ctx context.Context, productID int64, delta float64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE products
		SET total_current_quantity = total_current_quantity + $2, updated_at = NOW()
		WHERE id = $1`, productID, delta)
	return err
}

func (t *txRepo) InsertIssueNote(ctx context.Context, note *GoodsIssueNote) error {
	query := `
		INSERT INTO goods_issue_notes (number, order_id, issue_amount, issued_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`
	return t.tx.QueryRow(ctx, query, note.Number, note.OrderID, note.IssueAmount, note.IssuedAt).
		Scan(&note.ID, &note.CreatedAt)
}

func (t *txRepo) InsertIssueLine(ctx context.Context, line *GoodsIssueLine) error {
	query := `
		INSERT INTO goods_issue_lines (note_id, lot_id, product_id, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	return t.tx.QueryRow(ctx, query,
		line.NoteID, line.LotID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal,
	).Scan(&line.ID)
}
