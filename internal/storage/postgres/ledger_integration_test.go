package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wavethanapon/shop/internal/app"
	"github.com/wavethanapon/shop/internal/clock"
	"github.com/wavethanapon/shop/internal/domain"
	"github.com/wavethanapon/shop/internal/testutil"
)

func TestLedgerAndLifecycle_Postgres(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)

	products := NewProductRepository(pool)
	orders := NewOrderRepository(pool)
	clk := clock.NewSystem()
	ledger := app.NewLedgerService(products, clk)
	factory := app.NewOrderFactory(clk)
	orderSvc := app.NewOrderService(orders, factory)
	lifecycle := app.NewOrderLifecycle(orders, ledger, clk)

	t.Run("concurrent commits never oversell", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		p := testutil.InsertProduct(t, ctx, pool, "Last mug", "10", 3)

		const callers = 6
		var wg sync.WaitGroup
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = ledger.ReserveAndCommit(ctx, []domain.StockLine{{ProductID: p.ID, Quantity: 1}})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, domain.ErrInsufficientStock)
		}
		require.Equal(t, 3, succeeded)
		require.Equal(t, 0, testutil.StockOf(t, ctx, pool, p.ID))
	})

	t.Run("confirm shortage keeps order pending and stock intact", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		p1 := testutil.InsertProduct(t, ctx, pool, "Mug", "10", 3)
		p2 := testutil.InsertProduct(t, ctx, pool, "Tea", "5", 5)

		cart := app.NewCartEngine(products)
		require.NoError(t, cart.AddToCart(ctx, p1.ID, 1))
		require.NoError(t, cart.AddToCart(ctx, p2.ID, 5))
		res, err := orderSvc.PlaceOrder(ctx, app.PlaceOrderInput{
			CustomerID:      "cust-1",
			PaymentProofRef: "slip-1",
			IdempotencyKey:  "idem-1",
			Lines:           cart.Lines(),
		})
		require.NoError(t, err)
		_, err = ledger.SetStock(ctx, p2.ID, 2)
		require.NoError(t, err)

		_, err = lifecycle.ConfirmPayment(ctx, res.Order.ID)
		var short *domain.InsufficientStockError
		require.ErrorAs(t, err, &short)
		require.Len(t, short.Shortages, 1)
		require.Equal(t, p2.ID, short.Shortages[0].ProductID)

		stored, err := orderSvc.GetOrder(ctx, res.Order.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusPaymentPending, stored.Status)
		require.Equal(t, 3, testutil.StockOf(t, ctx, pool, p1.ID))
		require.Equal(t, 2, testutil.StockOf(t, ctx, pool, p2.ID))
	})

	t.Run("confirm then cancel restores stock", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		p := testutil.InsertProduct(t, ctx, pool, "Mug", "10", 5)

		res, err := orderSvc.PlaceOrder(ctx, app.PlaceOrderInput{
			CustomerID:      "cust-1",
			PaymentProofRef: "slip-1",
			IdempotencyKey:  "idem-1",
			Lines:           []domain.CartLine{{ProductID: p.ID, Name: p.Name, Quantity: 2, UnitPrice: p.Price, StockCeiling: p.Stock}},
		})
		require.NoError(t, err)

		_, err = lifecycle.ConfirmPayment(ctx, res.Order.ID)
		require.NoError(t, err)
		require.Equal(t, 3, testutil.StockOf(t, ctx, pool, p.ID))

		cancelled, err := lifecycle.Cancel(ctx, app.CancelOrderInput{OrderID: res.Order.ID, Actor: domain.Owner("owner")})
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
		require.Equal(t, 5, testutil.StockOf(t, ctx, pool, p.ID))

		_, err = lifecycle.MarkDone(ctx, res.Order.ID)
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("pos checkout commits in one transaction", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		p := testutil.InsertProduct(t, ctx, pool, "Mug", "10", 2)

		pos := app.NewPOSEngine(products, orders, ledger, factory)
		require.NoError(t, pos.AddToCart(ctx, p.ID, 2))
		order, err := pos.Checkout(ctx, app.POSCheckoutInput{IdempotencyKey: "sale-1"})
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusCompleted, order.Status)
		require.Equal(t, 0, testutil.StockOf(t, ctx, pool, p.ID))

		stored, err := orderSvc.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, domain.ChannelPOS, stored.Channel)
	})
}
