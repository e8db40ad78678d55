package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wavethanapon/shop/internal/domain"
)

// ProductRepository serves the catalog and the stock ledger.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const productColumns = `id, name, price::text, stock, created_at, updated_at`

func (r *ProductRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	if !validID(p.ID) {
		return domain.ErrInvalidID
	}
	const stmt = `
INSERT INTO products (id, name, price, stock, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6)`

	_, err := conn(ctx, r.pool).Exec(ctx, stmt, p.ID, p.Name, p.Price.String(), p.Stock, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrInvalidStock
		}
		return dbError("create product", err)
	}
	return nil
}

func (r *ProductRepository) UpdateProductDetails(ctx context.Context, p domain.Product) error {
	if !validID(p.ID) {
		return domain.ErrInvalidID
	}
	const stmt = `UPDATE products SET name = $2, price = $3::numeric, updated_at = $4 WHERE id = $1`

	tag, err := conn(ctx, r.pool).Exec(ctx, stmt, p.ID, p.Name, p.Price.String(), p.UpdatedAt)
	if err != nil {
		return dbError("update product", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrInvalidID
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return dbError("delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return r.getProduct(ctx, id, `SELECT `+productColumns+` FROM products WHERE id = $1`)
}

// GetProductForUpdate row-locks the product until the transaction ends.
func (r *ProductRepository) GetProductForUpdate(ctx context.Context, id string) (domain.Product, error) {
	return r.getProduct(ctx, id, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`)
}

func (r *ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, dbError("list products", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, dbError("scan product", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list products", err)
	}
	return out, nil
}

func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int, at time.Time) error {
	if !validID(id) {
		return domain.ErrInvalidID
	}
	if stock < 0 {
		return domain.ErrInvalidStock
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, `UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1`, id, stock, at)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrInvalidStock
		}
		return dbError("set stock", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) getProduct(ctx context.Context, id, query string) (domain.Product, error) {
	if !validID(id) {
		return domain.Product{}, domain.ErrInvalidID
	}
	p, err := scanProduct(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, dbError("get product", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	var price string
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, err
	}
	p.Price = d
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
