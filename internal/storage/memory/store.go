// Package memory is an in-process store used when no database is configured
// and by tests. Transactions are serialised and roll back on error.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wavethanapon/shop/internal/domain"
)

type txKey struct{}

type Store struct {
	sem chan struct{}

	products map[string]domain.Product
	orders   map[string]domain.Order
	keys     map[string]string
}

func NewStore() *Store {
	return &Store{
		sem:      make(chan struct{}, 1),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		keys:     make(map[string]string),
	}
}

// WithTx runs fn with exclusive access to the store. Any error restores the
// state seen when the transaction began. Nested calls join the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) error {
	return s.do(ctx, func() error {
		if _, ok := s.products[p.ID]; ok {
			return fmt.Errorf("create product %s: duplicate id", p.ID)
		}
		s.products[p.ID] = p
		return nil
	})
}

func (s *Store) UpdateProductDetails(ctx context.Context, p domain.Product) error {
	return s.do(ctx, func() error {
		cur, ok := s.products[p.ID]
		if !ok {
			return domain.ErrProductNotFound
		}
		cur.Name = p.Name
		cur.Price = p.Price
		cur.UpdatedAt = p.UpdatedAt
		s.products[p.ID] = cur
		return nil
	})
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		if _, ok := s.products[id]; !ok {
			return domain.ErrProductNotFound
		}
		delete(s.products, id)
		return nil
	})
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := s.do(ctx, func() error {
		var ok bool
		if p, ok = s.products[id]; !ok {
			return domain.ErrProductNotFound
		}
		return nil
	})
	return p, err
}

// GetProductForUpdate is GetProduct; the transaction already holds the store.
func (s *Store) GetProductForUpdate(ctx context.Context, id string) (domain.Product, error) {
	return s.GetProduct(ctx, id)
}

// ListProducts returns products oldest first.
func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := s.do(ctx, func() error {
		out = make([]domain.Product, 0, len(s.products))
		for _, p := range s.products {
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].ID < out[j].ID
		})
		return nil
	})
	return out, err
}

func (s *Store) SetStock(ctx context.Context, id string, stock int, at time.Time) error {
	if stock < 0 {
		return domain.ErrInvalidStock
	}
	return s.do(ctx, func() error {
		p, ok := s.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		p.Stock = stock
		p.UpdatedAt = at
		s.products[id] = p
		return nil
	})
}

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	return s.do(ctx, func() error {
		if _, ok := s.orders[o.ID]; ok {
			return fmt.Errorf("create order %s: duplicate id", o.ID)
		}
		if o.IdempotencyKey != "" {
			if _, ok := s.keys[o.IdempotencyKey]; ok {
				return domain.ErrIdempotencyConflict
			}
			s.keys[o.IdempotencyKey] = o.ID
		}
		s.orders[o.ID] = copyOrder(o)
		return nil
	})
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := s.do(ctx, func() error {
		cur, ok := s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		o = copyOrder(cur)
		return nil
	})
	return o, err
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *Store) FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	var found *domain.Order
	err := s.do(ctx, func() error {
		id, ok := s.keys[key]
		if !ok {
			return nil
		}
		o := copyOrder(s.orders[id])
		found = &o
		return nil
	})
	return found, err
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, at time.Time) error {
	return s.do(ctx, func() error {
		o, ok := s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		o.Status = status
		o.UpdatedAt = at
		s.orders[id] = o
		return nil
	})
}

// ListOrders returns matching orders newest first.
func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var out []domain.Order
	err := s.do(ctx, func() error {
		for _, o := range s.orders {
			if filter.Match(o) {
				out = append(out, copyOrder(o))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return out[i].ID > out[j].ID
		})
		return nil
	})
	return out, err
}

// do runs a single operation, taking the store unless ctx is already inside
// a transaction.
func (s *Store) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if inTx(ctx) {
		return fn()
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn()
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() { <-s.sem }

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

type snapshot struct {
	products map[string]domain.Product
	orders   map[string]domain.Order
	keys     map[string]string
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		products: make(map[string]domain.Product, len(s.products)),
		orders:   make(map[string]domain.Order, len(s.orders)),
		keys:     make(map[string]string, len(s.keys)),
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.keys {
		snap.keys[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.products = snap.products
	s.orders = snap.orders
	s.keys = snap.keys
}

func copyOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return o
}
