package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wavethanapon/shop/internal/domain"
)

// POSEngine is the owner's in-person sale. It shares the cart rules and
// commits stock immediately at checkout.
type POSEngine struct {
	*CartEngine

	orders  OrderRepository
	ledger  InventoryLedger
	factory *OrderFactory
	timeout time.Duration
	logger  *zap.Logger
}

type POSOption func(*POSEngine)

func WithPOSLogger(l *zap.Logger) POSOption {
	return func(e *POSEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPOSTimeout bounds Checkout, including the wait for the store.
func WithPOSTimeout(d time.Duration) POSOption {
	return func(e *POSEngine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func NewPOSEngine(catalog CatalogReader, orders OrderRepository, ledger InventoryLedger, factory *OrderFactory, opts ...POSOption) *POSEngine {
	e := &POSEngine{
		CartEngine: NewCartEngine(catalog),
		orders:     orders,
		ledger:     ledger,
		factory:    factory,
		timeout:    defaultOpTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// POSCheckoutInput identifies one sale. CustomerID defaults to
// domain.WalkInCustomer.
type POSCheckoutInput struct {
	IdempotencyKey string
	CustomerID     string
}

// Checkout commits stock for the POS cart and records a COMPLETED order in one
// transaction. On success the cart is cleared; on failure it is left as is.
func (e *POSEngine) Checkout(ctx context.Context, in POSCheckoutInput) (domain.Order, error) {
	if in.IdempotencyKey == "" {
		return domain.Order{}, domain.ErrIdempotencyKeyRequired
	}
	lines := e.Lines()
	order, err := e.factory.NewPOSOrder(lines, in.CustomerID)
	if err != nil {
		return domain.Order{}, err
	}
	order.IdempotencyKey = in.IdempotencyKey

	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	var result domain.Order
	err = e.orders.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := e.orders.FindOrderByIdempotencyKey(txCtx, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if !sameCheckout(*existing, order) {
				return domain.ErrIdempotencyConflict
			}
			result = *existing
			return nil
		}
		if err := e.ledger.ReserveAndCommit(txCtx, domain.StockLinesFromCart(lines)); err != nil {
			return err
		}
		if err := e.orders.CreateOrder(txCtx, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if errors.Is(err, domain.ErrIdempotencyConflict) {
		// A concurrent checkout with the same key may have won the insert.
		existing, findErr := e.orders.FindOrderByIdempotencyKey(ctx, in.IdempotencyKey)
		if findErr != nil {
			return domain.Order{}, classify("pos checkout", findErr)
		}
		if existing == nil || !sameCheckout(*existing, order) {
			return domain.Order{}, err
		}
		result, err = *existing, nil
	}
	if err != nil {
		return domain.Order{}, classify("pos checkout", err)
	}
	e.ClearCart()
	e.logger.Info("pos sale recorded",
		zap.String("order_id", result.ID),
		zap.Int("items", result.ItemCount()),
		zap.String("total", result.TotalAmount.String()),
	)
	return result, nil
}
