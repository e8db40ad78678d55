package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wavethanapon/shop/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const orderColumns = `o.id, o.customer_id, o.channel, o.status, o.total_amount::text,
	COALESCE(o.payment_proof_ref, ''), o.idempotency_key, o.created_at, o.updated_at`

// CreateOrder stores the order and its lines atomically. A taken idempotency
// key is reported as domain.ErrIdempotencyConflict.
func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	if !validID(order.ID) {
		return domain.ErrInvalidID
	}
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		tx := txFromContext(txCtx)

		const stmt = `
INSERT INTO orders (id, customer_id, channel, status, total_amount, payment_proof_ref, idempotency_key, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, NULLIF($6, ''), $7, $8, $9)`
		_, err := tx.Exec(txCtx, stmt,
			order.ID,
			order.CustomerID,
			string(order.Channel),
			string(order.Status),
			order.TotalAmount.String(),
			order.PaymentProofRef,
			order.IdempotencyKey,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrIdempotencyConflict
			}
			return dbError("create order", err)
		}

		batch := &pgx.Batch{}
		for i, l := range order.Lines {
			batch.Queue(`
INSERT INTO order_lines (order_id, line_no, product_id, name, unit_price, quantity)
VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
				order.ID, i+1, l.ProductID, l.Name, l.UnitPrice.String(), l.Quantity)
		}
		if err := tx.SendBatch(txCtx, batch).Close(); err != nil {
			return dbError("create order lines", err)
		}
		return nil
	})
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return r.getOrder(ctx, id, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`)
}

// GetOrderForUpdate row-locks the order until the transaction ends.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.getOrder(ctx, id, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`)
}

func (r *OrderRepository) FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	q := conn(ctx, r.pool)
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError("find order by idempotency key", err)
	}
	if o.Lines, err = r.lines(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, at time.Time) error {
	if !validID(id) {
		return domain.ErrInvalidID
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return dbError("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// ListOrders returns matching orders newest first, lines included.
func (r *OrderRepository) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("o.status = $%d", string(filter.Status))
	}
	if filter.CustomerID != "" {
		add("o.customer_id = $%d", filter.CustomerID)
	}
	if filter.Channel != "" {
		add("o.channel = $%d", string(filter.Channel))
	}
	if !filter.CreatedFrom.IsZero() {
		add("o.created_at >= $%d", filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		add("o.created_at < $%d", filter.CreatedTo)
	}

	query := `
SELECT ` + orderColumns + `, l.product_id, l.name, l.unit_price::text, l.quantity
FROM orders o
JOIN order_lines l ON l.order_id = o.id`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY o.created_at DESC, o.id DESC, l.line_no"

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, dbError("list orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var channel, status, total, unitPrice string
		var line domain.OrderLine
		if err := rows.Scan(
			&o.ID, &o.CustomerID, &channel, &status, &total,
			&o.PaymentProofRef, &o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt,
			&line.ProductID, &line.Name, &unitPrice, &line.Quantity,
		); err != nil {
			return nil, dbError("scan order", err)
		}
		if line.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("scan order line price: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].ID == o.ID {
			out[n-1].Lines = append(out[n-1].Lines, line)
			continue
		}
		if err := fillOrder(&o, channel, status, total); err != nil {
			return nil, err
		}
		o.Lines = []domain.OrderLine{line}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list orders", err)
	}
	return out, nil
}

func (r *OrderRepository) getOrder(ctx context.Context, id, query string) (domain.Order, error) {
	if !validID(id) {
		return domain.Order{}, domain.ErrInvalidID
	}
	o, err := scanOrder(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, dbError("get order", err)
	}
	if o.Lines, err = r.lines(ctx, o.ID); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *OrderRepository) lines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	const query = `
SELECT product_id, name, unit_price::text, quantity
FROM order_lines
WHERE order_id = $1
ORDER BY line_no`

	rows, err := conn(ctx, r.pool).Query(ctx, query, orderID)
	if err != nil {
		return nil, dbError("get order lines", err)
	}
	defer rows.Close()

	var out []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		var unitPrice string
		if err := rows.Scan(&l.ProductID, &l.Name, &unitPrice, &l.Quantity); err != nil {
			return nil, dbError("scan order line", err)
		}
		if l.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("scan order line price: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("get order lines", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var channel, status, total string
	if err := row.Scan(
		&o.ID, &o.CustomerID, &channel, &status, &total,
		&o.PaymentProofRef, &o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	if err := fillOrder(&o, channel, status, total); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func fillOrder(o *domain.Order, channel, status, total string) error {
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return fmt.Errorf("scan order total: %w", err)
	}
	o.Channel = domain.Channel(channel)
	o.Status = domain.OrderStatus(status)
	o.TotalAmount = amount
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return nil
}
