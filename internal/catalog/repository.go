package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing or inactive product.
var ErrNotFound = errors.New("product not found")

// Repository exposes read access to the product catalog.
type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	ListActive(ctx context.Context) ([]Product, error)
	ListOptionable(ctx context.Context) ([]Product, error)
	ListUpsell(ctx context.Context) ([]Product, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `
	id, reference, name, category, description_short, description_long,
	price_ht, default_vat_rate, is_active, optionable, upsell, erp_reference,
	created_at, updated_at`

func (r *repository) Get(ctx context.Context, id string) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *repository) ListActive(ctx context.Context) ([]Product, error) {
	return r.list(ctx, `SELECT `+productColumns+` FROM products WHERE is_active ORDER BY category, name`)
}

func (r *repository) ListOptionable(ctx context.Context) ([]Product, error) {
	return r.list(ctx, `SELECT `+productColumns+` FROM products WHERE is_active AND optionable ORDER BY category, name`)
}

func (r *repository) ListUpsell(ctx context.Context) ([]Product, error) {
	return r.list(ctx, `SELECT `+productColumns+` FROM products WHERE is_active AND upsell ORDER BY category, name`)
}

func (r *repository) list(ctx context.Context, query string) ([]Product, error) {
	rows, err := r.pool.Query(ctx, query)
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
		products = append(products, *p)
	}
	return products, rows.Err()
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Reference, &p.Name, &p.Category, &p.DescriptionShort, &p.DescriptionLong,
		&p.PriceHT, &p.DefaultVATRate, &p.IsActive, &p.Optionable, &p.Upsell, &p.ERPReference,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
