package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavethanapon/shop/internal/clock"
	"github.com/wavethanapon/shop/internal/domain"
	"github.com/wavethanapon/shop/internal/storage/memory"
)

func TestCatalogService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newService := func() (*memory.Store, *clock.Manual, *CatalogService) {
		store := memory.NewStore()
		clk := clock.NewManual(testNow)
		return store, clk, NewCatalogService(store, clk, WithCatalogIDs(seqIDs("prod")))
	}

	t.Run("create validates and stores", func(t *testing.T) {
		_, _, svc := newService()
		p, err := svc.CreateProduct(ctx, CreateProductInput{Name: "  Mug ", Price: price("12.00"), Stock: 4})
		require.NoError(t, err)
		require.Equal(t, "prod-1", p.ID)
		require.Equal(t, "Mug", p.Name)

		got, err := svc.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 4, got.Stock)

		_, err = svc.CreateProduct(ctx, CreateProductInput{Name: " ", Price: price("1"), Stock: 1})
		require.ErrorIs(t, err, domain.ErrProductNameRequired)
		_, err = svc.CreateProduct(ctx, CreateProductInput{Name: "x", Price: price("-1"), Stock: 1})
		require.ErrorIs(t, err, domain.ErrInvalidPrice)
		_, err = svc.CreateProduct(ctx, CreateProductInput{Name: "x", Price: price("1"), Stock: -1})
		require.ErrorIs(t, err, domain.ErrInvalidStock)
	})

	t.Run("update changes details but never stock", func(t *testing.T) {
		store, clk, svc := newService()
		p, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Mug", Price: price("12"), Stock: 4})
		require.NoError(t, err)
		require.NoError(t, store.SetStock(ctx, p.ID, 2, testNow))

		at := clk.Advance(time.Minute)
		newPrice := price("15")
		updated, err := svc.UpdateProduct(ctx, UpdateProductInput{ID: p.ID, Price: &newPrice})
		require.NoError(t, err)
		requireDecimal(t, "15", updated.Price)
		require.Equal(t, at, updated.UpdatedAt)
		require.Equal(t, 2, stockOf(t, store, p.ID))
	})

	t.Run("delete and missing", func(t *testing.T) {
		_, _, svc := newService()
		p, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Mug", Price: price("12"), Stock: 4})
		require.NoError(t, err)
		require.NoError(t, svc.DeleteProduct(ctx, p.ID))
		require.ErrorIs(t, svc.DeleteProduct(ctx, p.ID), domain.ErrProductNotFound)
		_, err = svc.GetProduct(ctx, "")
		require.ErrorIs(t, err, domain.ErrInvalidID)
	})

	t.Run("low stock and available listings", func(t *testing.T) {
		store, _, svc := newService()
		addProduct(t, store, "a", "1", 7)
		addProduct(t, store, "b", "1", 0)
		addProduct(t, store, "c", "1", 2)

		low, err := svc.ListLowStock(ctx, 5)
		require.NoError(t, err)
		require.Len(t, low, 2)
		require.Equal(t, "b", low[0].ID)
		require.Equal(t, "c", low[1].ID)

		available, err := svc.ListAvailable(ctx)
		require.NoError(t, err)
		require.Len(t, available, 2)
	})
}
