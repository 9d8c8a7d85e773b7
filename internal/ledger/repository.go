package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the lot ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const lotColumns = `id, product_id, supplier_id, input_date, expiry_date, quantity, unit_cost, sale_price, storage_location_id, created_at, updated_at`

func scanLot(row pgx.Row) (*Lot, error) {
	var lot Lot
	err := row.Scan(
		&lot.ID, &lot.ProductID, &lot.SupplierID, &lot.InputDate, &lot.ExpiryDate,
		&lot.Quantity, &lot.UnitCost, &lot.SalePrice, &lot.StorageLocationID,
		&lot.CreatedAt, &lot.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// GetLot retrieves a lot by id.
func (r *Repository) GetLot(ctx context.Context, id int64) (*Lot, error) {
	return scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id))
}

// ListLotsByProduct returns every lot of a product ordered by expiry.
func (r *Repository) ListLotsByProduct(ctx context.Context, productID int64) ([]Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE product_id = $1 ORDER BY expiry_date, id`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// ListAvailableLots returns lots with stock for the given products.
func (r *Repository) ListAvailableLots(ctx context.Context, productIDs []int64) ([]Lot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE product_id = ANY($1) AND quantity > 0
		ORDER BY expiry_date, id`
	rows, err := r.pool.Query(ctx, query, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

func collectLots(rows pgx.Rows) ([]Lot, error) {
	var lots []Lot
	for rows.Next() {
		var lot Lot
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

// ListAdjustments returns physical-count adjustments for a lot.
func (r *Repository) ListAdjustments(ctx context.Context, lotID int64) ([]StockAdjustment, error) {
	query := `
		SELECT id, lot_id, product_id, system_quantity, actual_quantity, difference, reason, created_at
		FROM stock_adjustments
		WHERE lot_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []StockAdjustment
	for rows.Next() {
		var adj StockAdjustment
		if err := rows.Scan(
			&adj.ID, &adj.LotID, &adj.ProductID, &adj.SystemQuantity,
			&adj.ActualQuantity, &adj.Difference, &adj.Reason, &adj.CreatedAt,
		); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
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

func (t *txRepo) GetLotForUpdate(ctx context.Context, id int64) (*Lot, error) {
	return scanLot(t.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) FindLotByMergeKeyForUpdate(ctx context.Context, productID, supplierID int64, expiryDate time.Time) (*Lot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE product_id = $1 AND supplier_id = $2 AND expiry_date = $3
		FOR UPDATE`
	lot, err := scanLot(t.tx.QueryRow(ctx, query, productID, supplierID, expiryDate))
	if errors.Is(err, ErrLotNotFound) {
		return nil, nil
	}
	return lot, err
}

func (t *txRepo) InsertLot(ctx context.Context, lot *Lot) error {
	query := `
		INSERT INTO lots (product_id, supplier_id, input_date, expiry_date, quantity, unit_cost, sale_price, storage_location_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	return t.tx.QueryRow(ctx, query,
		lot.ProductID, lot.SupplierID, lot.InputDate, lot.ExpiryDate,
		lot.Quantity, lot.UnitCost, lot.SalePrice, lot.StorageLocationID,
	).Scan(&lot.ID, &lot.CreatedAt, &lot.UpdatedAt)
}

func (t *txRepo) SaveLot(ctx context.Context, lot *Lot) error {
	query := `
		UPDATE lots
		SET quantity = $2, unit_cost = $3, sale_price = $4, input_date = $5, storage_location_id = $6, updated_at = NOW()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		lot.ID, lot.Quantity, lot.UnitCost, lot.SalePrice, lot.InputDate, lot.StorageLocationID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (t *txRepo) AdjustProductTotal(ctx context.Context, productID int64, delta float64) error {
	query := `
		UPDATE products
		SET total_current_quantity = total_current_quantity + $2, updated_at = NOW()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query, productID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d %w", productID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) InsertAdjustment(ctx context.Context, adj *StockAdjustment) error {
	query := `
		INSERT INTO stock_adjustments (lot_id, product_id, system_quantity, actual_quantity, difference, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`
	return t.tx.QueryRow(ctx, query,
		adj.LotID, adj.ProductID, adj.SystemQuantity, adj.ActualQuantity, adj.Difference, adj.Reason,
	).Scan(&adj.ID, &adj.CreatedAt)
}
