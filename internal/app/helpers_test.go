package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wavethanapon/shop/internal/clock"
	"github.com/wavethanapon/shop/internal/domain"
	"github.com/wavethanapon/shop/internal/storage/memory"
)

var testNow = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

var keySeq atomic.Int64

func seqIDs(prefix string) IDFunc {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func addProduct(t *testing.T, s *memory.Store, id, unitPrice string, stock int) domain.Product {
	t.Helper()
	p := domain.Product{
		ID:        id,
		Name:      "product " + id,
		Price:     price(unitPrice),
		Stock:     stock,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func stockOf(t *testing.T, s *memory.Store, id string) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

// holdStore keeps a transaction open on s until the returned func is called.
func holdStore(t *testing.T, s *memory.Store) func() {
	t.Helper()
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.WithTx(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	return func() {
		close(release)
		<-done
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, price(want).Equal(got), "expected %s, got %s", want, got)
}

type harness struct {
	store     *memory.Store
	clock     *clock.Manual
	ledger    *LedgerService
	factory   *OrderFactory
	orders    *OrderService
	lifecycle *OrderLifecycle
}

func newHarness() *harness {
	store := memory.NewStore()
	clk := clock.NewManual(testNow)
	ledger := NewLedgerService(store, clk)
	factory := NewOrderFactory(clk, WithIDGenerator(seqIDs("order")))
	return &harness{
		store:     store,
		clock:     clk,
		ledger:    ledger,
		factory:   factory,
		orders:    NewOrderService(store, factory),
		lifecycle: NewOrderLifecycle(store, ledger, clk),
	}
}

// place stores a pending order for the given product quantities.
func (h *harness) place(t *testing.T, customerID string, qty map[string]int) domain.Order {
	t.Helper()
	ctx := context.Background()
	cart := NewCartEngine(h.store)
	for id, q := range qty {
		require.NoError(t, cart.AddToCart(ctx, id, q))
	}
	res, err := h.orders.PlaceOrder(ctx, PlaceOrderInput{
		CustomerID:      customerID,
		PaymentProofRef: "slip-" + customerID,
		IdempotencyKey:  fmt.Sprintf("key-%s-%d", customerID, keySeq.Add(1)),
		Lines:           cart.Lines(),
	})
	require.NoError(t, err)
	return res.Order
}
