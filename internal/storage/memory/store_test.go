package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wavethanapon/shop/internal/domain"
)

func seed(t *testing.T, s *Store, id string, stock int) {
	t.Helper()
	require.NoError(t, s.CreateProduct(context.Background(), domain.Product{
		ID:    id,
		Name:  "product " + id,
		Price: decimal.NewFromInt(10),
		Stock: stock,
	}))
}

func TestStore_WithTx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rolls back every write on error", func(t *testing.T) {
		s := NewStore()
		seed(t, s, "p1", 5)

		boom := errors.New("boom")
		err := s.WithTx(ctx, func(txCtx context.Context) error {
			require.NoError(t, s.SetStock(txCtx, "p1", 1, time.Now()))
			require.NoError(t, s.CreateOrder(txCtx, domain.Order{ID: "o1", IdempotencyKey: "k1"}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		p, err := s.GetProduct(ctx, "p1")
		require.NoError(t, err)
		require.Equal(t, 5, p.Stock)
		_, err = s.GetOrder(ctx, "o1")
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
		found, err := s.FindOrderByIdempotencyKey(ctx, "k1")
		require.NoError(t, err)
		require.Nil(t, found)
	})

	t.Run("nested call joins outer transaction", func(t *testing.T) {
		s := NewStore()
		seed(t, s, "p1", 5)

		err := s.WithTx(ctx, func(txCtx context.Context) error {
			return s.WithTx(txCtx, func(inner context.Context) error {
				return s.SetStock(inner, "p1", 2, time.Now())
			})
		})
		require.NoError(t, err)
		p, err := s.GetProduct(ctx, "p1")
		require.NoError(t, err)
		require.Equal(t, 2, p.Stock)
	})

	t.Run("waiting for the store honours the deadline", func(t *testing.T) {
		s := NewStore()
		held := make(chan struct{})
		done := make(chan struct{})
		go func() {
			_ = s.WithTx(ctx, func(context.Context) error {
				close(held)
				<-done
				return nil
			})
		}()
		<-held
		defer close(done)

		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := s.GetProduct(tctx, "p1")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestStore_Orders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	s := NewStore()
	require.NoError(t, s.CreateOrder(ctx, domain.Order{ID: "o1", CustomerID: "c1", Status: domain.OrderStatusPaymentPending, IdempotencyKey: "k1", CreatedAt: base}))
	require.NoError(t, s.CreateOrder(ctx, domain.Order{ID: "o2", CustomerID: "c2", Status: domain.OrderStatusCompleted, Channel: domain.ChannelPOS, IdempotencyKey: "k2", CreatedAt: base.Add(time.Hour)}))

	t.Run("duplicate idempotency key conflicts", func(t *testing.T) {
		err := s.CreateOrder(ctx, domain.Order{ID: "o3", IdempotencyKey: "k1"})
		require.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	})

	t.Run("lists newest first with filters", func(t *testing.T) {
		all, err := s.ListOrders(ctx, domain.OrderFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, "o2", all[0].ID)

		mine, err := s.ListOrders(ctx, domain.OrderFilter{CustomerID: "c1"})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		require.Equal(t, "o1", mine[0].ID)

		windowed, err := s.ListOrders(ctx, domain.OrderFilter{CreatedFrom: base, CreatedTo: base.Add(time.Hour)})
		require.NoError(t, err)
		require.Len(t, windowed, 1)
		require.Equal(t, "o1", windowed[0].ID)
	})

	t.Run("status update on missing order", func(t *testing.T) {
		err := s.UpdateOrderStatus(ctx, "missing", domain.OrderStatusCancelled, base)
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("negative stock rejected", func(t *testing.T) {
		seed(t, s, "p9", 1)
		require.ErrorIs(t, s.SetStock(ctx, "p9", -1, base), domain.ErrInvalidStock)
	})
}
