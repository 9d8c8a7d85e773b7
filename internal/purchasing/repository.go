package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Repository provides PostgreSQL backed persistence for purchasing.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, number, supplier_id, status, total, deposit, debt, paid_by, paid_at, receipt_count, created_at, updated_at`

func scanOrder(row pgx.Row) (*PurchasingOrder, error) {
	var order PurchasingOrder
	err := row.Scan(
		&order.ID, &order.Number, &order.SupplierID, &order.Status,
		&order.Total, &order.Deposit, &order.Debt,
		&order.PaidBy, &order.PaidAt, &order.ReceiptCount,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrder inserts an order with its lines.
func (r *Repository) CreateOrder(ctx context.Context, order *PurchasingOrder) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO purchasing_orders (number, supplier_id, status, total, deposit, debt, receipt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		order.Number, order.SupplierID, order.Status, order.Total, order.Deposit, order.Debt,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return err
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO purchasing_order_lines (order_id, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal,
		).Scan(&line.ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetOrder retrieves an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (*PurchasingOrder, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchasing_orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, line_total
		FROM purchasing_order_lines
		WHERE order_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line PurchasingOrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

// ListOrders returns orders, newest first, optionally filtered by status.
func (r *Repository) ListOrders(ctx context.Context, status POStatus) ([]PurchasingOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchasing_orders`
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

	var orders []PurchasingOrder
	for rows.Next() {
		var order PurchasingOrder
		if err := rows.Scan(
			&order.ID, &order.Number, &order.SupplierID, &order.Status,
			&order.Total, &order.Deposit, &order.Debt,
			&order.PaidBy, &order.PaidAt, &order.ReceiptCount,
			&order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// ListReceipts returns the goods receipts for an order with their lines.
func (r *Repository) ListReceipts(ctx context.Context, orderID int64) ([]GoodsReceiptNote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, sequence, reference, received_at, created_at
		FROM goods_receipt_notes
		WHERE order_id = $1
		ORDER BY sequence`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []GoodsReceiptNote
	for rows.Next() {
		var note GoodsReceiptNote
		if err := rows.Scan(&note.ID, &note.OrderID, &note.Sequence, &note.Reference, &note.ReceivedAt, &note.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range notes {
		lineRows, err := r.pool.Query(ctx, `
			SELECT id, note_id, product_id, lot_id, quantity, unit_cost, expiry_date
			FROM goods_receipt_lines
			WHERE note_id = $1
			ORDER BY id`, notes[i].ID)
		if err != nil {
			return nil, err
		}
		for lineRows.Next() {
			var line GoodsReceiptLine
			if err := lineRows.Scan(&line.ID, &line.NoteID, &line.ProductID, &line.LotID, &line.Quantity, &line.UnitCost, &line.ExpiryDate); err != nil {
				lineRows.Close()
				return nil, err
			}
			notes[i].Lines = append(notes[i].Lines, line)
		}
		lineRows.Close()
		if err := lineRows.Err(); err != nil {
			return nil, err
		}
	}
	return notes, nil
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

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (*PurchasingOrder, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchasing_orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) SaveOrder(ctx context.Context, order *PurchasingOrder) error {
	query := `
		UPDATE purchasing_orders
		SET status = $2, total = $3, deposit = $4, debt = $5, paid_by = $6, paid_at = $7, receipt_count = $8, updated_at = NOW()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		order.ID, order.Status, order.Total, order.Deposit, order.Debt,
		order.PaidBy, order.PaidAt, order.ReceiptCount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) FindMissingProducts(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT wanted.id
		FROM unnest($1::bigint[]) AS wanted(id)
		LEFT JOIN products p ON p.id = wanted.id
		WHERE p.id IS NULL
		ORDER BY wanted.id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (t *txRepo) InsertReceiptNote(ctx context.Context, note *GoodsReceiptNote) error {
	query := `
		INSERT INTO goods_receipt_notes (order_id, sequence, reference, received_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`
	return t.tx.QueryRow(ctx, query, note.OrderID, note.Sequence, note.Reference, note.ReceivedAt).
		Scan(&note.ID, &note.CreatedAt)
}

func (t *txRepo) InsertReceiptLine(ctx context.Context, line *GoodsReceiptLine) error {
	query := `
		INSERT INTO goods_receipt_lines (note_id, product_id, lot_id, quantity, unit_cost, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	return t.tx.QueryRow(ctx, query,
		line.NoteID, line.ProductID, line.LotID, line.Quantity, line.UnitCost, line.ExpiryDate,
	).Scan(&line.ID)
}

func (t *txRepo) FindLotByMergeKeyForUpdate(ctx context.Context, productID, supplierID int64, expiryDate time.Time) (*ledger.Lot, error) {
	query := `
		SELECT id, product_id, supplier_id, input_date, expiry_date, quantity, unit_cost, sale_price, storage_location_id, created_at, updated_at
		FROM lots
		WHERE product_id = $1 AND supplier_id = $2 AND expiry_date = $3
		FOR UPDATE`
	var lot ledger.Lot
	err := t.tx.QueryRow(ctx, query, productID, supplierID, expiryDate).Scan(
		&lot.ID, &lot.ProductID, &lot.SupplierID, &lot.InputDate, &lot.ExpiryDate,
		&lot.Quantity, &lot.UnitCost, &lot.SalePrice, &lot.StorageLocationID,
		&lot.CreatedAt, &lot.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (t *txRepo) InsertLot(ctx context.Context, lot *ledger.Lot) error {
	query := `
		INSERT INTO lots (product_id, supplier_id, input_date, expiry_date, quantity, unit_cost, sale_price, storage_location_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	return t.tx.QueryRow(ctx, query,
		lot.ProductID, lot.SupplierID, lot.InputDate, lot.ExpiryDate,
		lot.Quantity, lot.UnitCost, lot.SalePrice, lot.StorageLocationID,
	).Scan(&lot.ID, &lot.CreatedAt, &lot.UpdatedAt)
}

func (t *txRepo) SaveLot(ctx context.Context, lot *ledger.Lot) error {
	query := `
		UPDATE lots
		SET quantity = $2, unit_cost = $3, sale_price = $4, input_date = $5, storage_location_id = $6, updated_at = NOW()
		WHERE id = $1`
	_, err := t.tx.Exec(ctx, query,
		lot.ID, lot.Quantity, lot.UnitCost, lot.SalePrice, lot.InputDate, lot.StorageLocationID,
	)
	return err
}

func (t *txRepo) AdjustProductTotal(ctx context.Context, productID int64, delta float64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE products
		SET total_current_quantity = total_current_quantity + $2, updated_at = NOW()
		WHERE id = $1`, productID, delta)
	return err
}
