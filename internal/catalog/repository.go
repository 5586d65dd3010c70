package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assefaz/stockledger/internal/shared"
)

// Repository persists catalog entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id::text, name, category, unit, stock, initial_stock, location, archived_at, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var location string
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Stock, &p.InitialStock, &location, &p.ArchivedAt, &p.CreatedAt, &p.UpdatedAt)
	p.Location = shared.Location(location)
	return p, err
}

// ListProducts returns products matching filter. Ordering is left to the
// service, which sorts with pt-BR collation.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE location = $1`
	args := []any{string(filter.Location)}

	if !filter.IncludeArchived {
		query += ` AND archived_at IS NULL`
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		query += ` AND name ILIKE $` + strconv.Itoa(len(args))
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		args = append(args, category)
		query += ` AND category = $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct loads one product, archived or not.
func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// CreateProduct inserts a product with its opening stock.
func (r *Repository) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx,
		`INSERT INTO products (name, category, unit, stock, initial_stock, location)
		 VALUES ($1, $2, $3, $4, $4, $5)
		 RETURNING `+productColumns,
		input.Name, input.Category, input.Unit, input.InitialStock, string(input.Location)))
}

// UpdateProduct edits name, category and unit.
func (r *Repository) UpdateProduct(ctx context.Context, id string, update ProductUpdate) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`UPDATE products SET name = $2, category = $3, unit = $4, updated_at = NOW()
		 WHERE id::text = $1
		 RETURNING `+productColumns,
		id, update.Name, update.Category, update.Unit))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// SetProductArchived archives or restores a product.
func (r *Repository) SetProductArchived(ctx context.Context, id string, archived bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET archived_at = CASE WHEN $2 THEN COALESCE(archived_at, NOW()) ELSE NULL END, updated_at = NOW()
		 WHERE id::text = $1`, id, archived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Categories lists distinct categories of active products.
func (r *Repository) Categories(ctx context.Context, location shared.Location) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT category FROM products WHERE location = $1 AND archived_at IS NULL`, string(location))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListSectors returns sectors, optionally including archived ones.
func (r *Repository) ListSectors(ctx context.Context, includeArchived bool) ([]Sector, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, name, department, archived_at, created_at FROM sectors
		 WHERE $1 OR archived_at IS NULL`, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sectors []Sector
	for rows.Next() {
		var s Sector
		if err := rows.Scan(&s.ID, &s.Name, &s.Department, &s.ArchivedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		sectors = append(sectors, s)
	}
	return sectors, rows.Err()
}

// CreateSector inserts a sector.
func (r *Repository) CreateSector(ctx context.Context, input SectorInput) (Sector, error) {
	var s Sector
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sectors (name, department) VALUES ($1, $2)
		 RETURNING id::text, name, department, archived_at, created_at`,
		input.Name, input.Department).Scan(&s.ID, &s.Name, &s.Department, &s.ArchivedAt, &s.CreatedAt)
	return s, err
}

// SetSectorArchived archives or restores a sector.
func (r *Repository) SetSectorArchived(ctx context.Context, id string, archived bool) error {
	return r.setArchived(ctx, "sectors", id, archived, ErrSectorNotFound)
}

// ListOperators returns operators, optionally including archived ones.
func (r *Repository) ListOperators(ctx context.Context, includeArchived bool) ([]Operator, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, name, archived_at, created_at FROM operators
		 WHERE $1 OR archived_at IS NULL`, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var operators []Operator
	for rows.Next() {
		var o Operator
		if err := rows.Scan(&o.ID, &o.Name, &o.ArchivedAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		operators = append(operators, o)
	}
	return operators, rows.Err()
}

// CreateOperator inserts an operator.
func (r *Repository) CreateOperator(ctx context.Context, input OperatorInput) (Operator, error) {
	var o Operator
	err := r.pool.QueryRow(ctx,
		`INSERT INTO operators (name) VALUES ($1)
		 RETURNING id::text, name, archived_at, created_at`,
		input.Name).Scan(&o.ID, &o.Name, &o.ArchivedAt, &o.CreatedAt)
	return o, err
}

// SetOperatorArchived archives or restores an operator.
func (r *Repository) SetOperatorArchived(ctx context.Context, id string, archived bool) error {
	return r.setArchived(ctx, "operators", id, archived, ErrOperatorNotFound)
}

func (r *Repository) setArchived(ctx context.Context, table, id string, archived bool, notFound error) error {
	// table is one of two constants above, never user input.
	tag, err := r.pool.Exec(ctx,
		`UPDATE `+table+` SET archived_at = CASE WHEN $2 THEN COALESCE(archived_at, NOW()) ELSE NULL END
		 WHERE id::text = $1`, id, archived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
