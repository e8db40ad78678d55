package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wavethanapon/shop/internal/domain"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error)
	// FindOrderByIdempotencyKey returns nil when no order carries key.
	FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, at time.Time) error
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
}

// OrderService persists online checkouts and serves order queries.
type OrderService struct {
	repo    OrderRepository
	factory *OrderFactory
	timeout time.Duration
	logger  *zap.Logger
}

type OrderServiceOption func(*OrderService)

func WithOrderLogger(l *zap.Logger) OrderServiceOption {
	return func(s *OrderService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOrderTimeout bounds PlaceOrder, including the wait for the store.
func WithOrderTimeout(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewOrderService(repo OrderRepository, factory *OrderFactory, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		repo:    repo,
		factory: factory,
		timeout: defaultOpTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PlaceOrderInput struct {
	CustomerID      string
	PaymentProofRef string
	IdempotencyKey  string
	Lines           []domain.CartLine
}

type PlaceOrderResult struct {
	Order   domain.Order
	Created bool
}

// PlaceOrder stores a PAYMENT_PENDING order for the cart lines. Stock is not
// touched until the owner confirms payment. Replaying the same key with the
// same cart returns the stored order.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	if in.IdempotencyKey == "" {
		return PlaceOrderResult{}, domain.ErrIdempotencyKeyRequired
	}
	order, err := s.factory.CreateOrder(in.Lines, in.PaymentProofRef, in.CustomerID)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	order.IdempotencyKey = in.IdempotencyKey

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var result PlaceOrderResult
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindOrderByIdempotencyKey(txCtx, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if !sameCheckout(*existing, order) {
				return domain.ErrIdempotencyConflict
			}
			result = PlaceOrderResult{Order: *existing, Created: false}
			return nil
		}
		if err := s.repo.CreateOrder(txCtx, order); err != nil {
			return err
		}
		result = PlaceOrderResult{Order: order, Created: true}
		return nil
	})
	if errors.Is(err, domain.ErrIdempotencyConflict) {
		// A concurrent checkout with the same key may have won the insert.
		existing, findErr := s.repo.FindOrderByIdempotencyKey(ctx, in.IdempotencyKey)
		if findErr != nil {
			return PlaceOrderResult{}, classify("place order", findErr)
		}
		if existing != nil && sameCheckout(*existing, order) {
			return PlaceOrderResult{Order: *existing, Created: false}, nil
		}
		return PlaceOrderResult{}, err
	}
	if err != nil {
		return PlaceOrderResult{}, classify("place order", err)
	}
	if result.Created {
		s.logger.Info("order placed",
			zap.String("order_id", result.Order.ID),
			zap.String("customer_id", result.Order.CustomerID),
			zap.String("total", result.Order.TotalAmount.String()),
		)
	}
	return result, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, domain.ErrInvalidID
	}
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns matching orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

func sameCheckout(a, b domain.Order) bool {
	if a.CustomerID != b.CustomerID || a.PaymentProofRef != b.PaymentProofRef {
		return false
	}
	if len(a.Lines) != len(b.Lines) {
		return false
	}
	for i := range a.Lines {
		if a.Lines[i].ProductID != b.Lines[i].ProductID || a.Lines[i].Quantity != b.Lines[i].Quantity {
			return false
		}
	}
	return true
}
