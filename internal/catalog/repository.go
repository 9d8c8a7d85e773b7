package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for masterdata.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateProduct inserts a product.
func (r *Repository) CreateProduct(ctx context.Context, input CreateProductInput) (*Product, error) {
	query := `
		INSERT INTO products (sku, name, unit, min_quantity, max_quantity, total_current_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var p Product
	err := r.pool.QueryRow(ctx, query,
		input.SKU, input.Name, input.Unit, input.MinQuantity, input.MaxQuantity,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateSKU
		}
		return nil, err
	}

	p.SKU = input.SKU
	p.Name = input.Name
	p.Unit = input.Unit
	p.MinQuantity = input.MinQuantity
	p.MaxQuantity = input.MaxQuantity
	return &p, nil
}

// UpdateProduct edits mutable product fields.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (*Product, error) {
	query := `
		UPDATE products
		SET name = $2, unit = $3, min_quantity = $4, max_quantity = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING id, sku, name, unit, min_quantity, max_quantity, total_current_quantity, created_at, updated_at`

	var p Product
	err := r.pool.QueryRow(ctx, query, id, input.Name, input.Unit, input.MinQuantity, input.MaxQuantity).Scan(
		&p.ID, &p.SKU, &p.Name, &p.Unit, &p.MinQuantity, &p.MaxQuantity, &p.TotalCurrentQuantity, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProduct retrieves a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	query := `
		SELECT id, sku, name, unit, min_quantity, max_quantity, total_current_quantity, created_at, updated_at
		FROM products
		WHERE id = $1`

	var p Product
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.SKU, &p.Name, &p.Unit, &p.MinQuantity, &p.MaxQuantity, &p.TotalCurrentQuantity, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns products ordered by name.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	query := `
		SELECT id, sku, name, unit, min_quantity, max_quantity, total_current_quantity, created_at, updated_at
		FROM products
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.SKU, &p.Name, &p.Unit, &p.MinQuantity, &p.MaxQuantity, &p.TotalCurrentQuantity, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// FindMissingProducts returns the ids in the input that have no product row.
func (r *Repository) FindMissingProducts(ctx context.Context, ids []int64) ([]int64, error) {
	query := `
		SELECT wanted.id
		FROM unnest($1::bigint[]) AS wanted(id)
		LEFT JOIN products p ON p.id = wanted.id
		WHERE p.id IS NULL
		ORDER BY wanted.id`

	rows, err := r.pool.Query(ctx, query, ids)
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

// CreateSupplier inserts a supplier.
func (r *Repository) CreateSupplier(ctx context.Context, input CreateSupplierInput) (*Supplier, error) {
	query := `
		INSERT INTO suppliers (code, name, phone, email, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var s Supplier
	err := r.pool.QueryRow(ctx, query, input.Code, input.Name, input.Phone, input.Email, input.Address).Scan(
		&s.ID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("supplier code %q already exists: %w", input.Code, shared.ErrConflict)
		}
		return nil, err
	}

	s.Code = input.Code
	s.Name = input.Name
	s.Phone = input.Phone
	s.Email = input.Email
	s.Address = input.Address
	return &s, nil
}

// GetSupplier retrieves a supplier by id.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (*Supplier, error) {
	query := `
		SELECT id, code, name, phone, email, address, created_at, updated_at
		FROM suppliers
		WHERE id = $1`

	var s Supplier
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Code, &s.Name, &s.Phone, &s.Email, &s.Address, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("supplier %d %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSuppliers returns suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	query := `
		SELECT id, code, name, phone, email, address, created_at, updated_at
		FROM suppliers
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Phone, &s.Email, &s.Address, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// CreateStorageLocation inserts a storage location.
func (r *Repository) CreateStorageLocation(ctx context.Context, input CreateStorageLocationInput) (*StorageLocation, error) {
	query := `
		INSERT INTO storage_locations (code, name, description, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`

	var loc StorageLocation
	err := r.pool.QueryRow(ctx, query, input.Code, input.Name, input.Description).Scan(&loc.ID, &loc.CreatedAt)
	if err != nil {
		return nil, err
	}
	loc.Code = input.Code
	loc.Name = input.Name
	loc.Description = input.Description
	return &loc, nil
}

// ListStorageLocations returns all storage locations.
func (r *Repository) ListStorageLocations(ctx context.Context) ([]StorageLocation, error) {
	query := `
		SELECT id, code, name, description, created_at
		FROM storage_locations
		ORDER BY code`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []StorageLocation
	for rows.Next() {
		var loc StorageLocation
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Description, &loc.CreatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}
