package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wavethanapon/shop/internal/clock"
	"github.com/wavethanapon/shop/internal/domain"
)

// Lifecycle advances orders through the fulfilment states.
type Lifecycle interface {
	ConfirmPayment(ctx context.Context, orderID string) (domain.Order, error)
	MarkDone(ctx context.Context, orderID string) (domain.Order, error)
	Cancel(ctx context.Context, in CancelOrderInput) (domain.Order, error)
	TransitionTo(ctx context.Context, orderID string, target domain.OrderStatus, actor domain.Actor) (domain.Order, error)
}

type OrderLifecycle struct {
	repo    OrderRepository
	ledger  InventoryLedger
	clock   clock.Clock
	timeout time.Duration
	logger  *zap.Logger
}

type LifecycleOption func(*OrderLifecycle)

func WithLifecycleTimeout(d time.Duration) LifecycleOption {
	return func(l *OrderLifecycle) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithLifecycleLogger(lg *zap.Logger) LifecycleOption {
	return func(l *OrderLifecycle) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewOrderLifecycle needs a ledger that joins the transaction opened by repo.
func NewOrderLifecycle(repo OrderRepository, ledger InventoryLedger, clk clock.Clock, opts ...LifecycleOption) *OrderLifecycle {
	l := &OrderLifecycle{
		repo:    repo,
		ledger:  ledger,
		clock:   clk,
		timeout: defaultOpTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type CancelOrderInput struct {
	OrderID string
	Actor   domain.Actor
}

// ConfirmPayment commits the order's stock and moves it to PROCESSING. When
// stock is short the order stays PAYMENT_PENDING and the
// *domain.InsufficientStockError is returned.
func (l *OrderLifecycle) ConfirmPayment(ctx context.Context, orderID string) (domain.Order, error) {
	return l.apply(ctx, orderID, domain.EventConfirmPayment, domain.Owner(""))
}

func (l *OrderLifecycle) MarkDone(ctx context.Context, orderID string) (domain.Order, error) {
	return l.apply(ctx, orderID, domain.EventMarkDone, domain.Owner(""))
}

// Cancel moves the order to CANCELLED, restocking when stock was already
// committed. Customers may cancel only their own orders.
func (l *OrderLifecycle) Cancel(ctx context.Context, in CancelOrderInput) (domain.Order, error) {
	return l.apply(ctx, in.OrderID, domain.EventCancel, in.Actor)
}

// TransitionTo requests a target status. Only single legal steps succeed;
// a status no event leads to is an *domain.InvalidTransitionError.
func (l *OrderLifecycle) TransitionTo(ctx context.Context, orderID string, target domain.OrderStatus, actor domain.Actor) (domain.Order, error) {
	if !target.Valid() {
		return domain.Order{}, domain.ErrUnknownEvent
	}
	event, ok := domain.EventFor(target)
	if !ok {
		return domain.Order{}, l.unreachable(ctx, orderID, target, actor)
	}
	return l.apply(ctx, orderID, event, actor)
}

func (l *OrderLifecycle) unreachable(ctx context.Context, orderID string, target domain.OrderStatus, actor domain.Actor) error {
	if orderID == "" {
		return domain.ErrInvalidID
	}
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	order, err := l.repo.GetOrder(ctx, orderID)
	if err != nil {
		return classify("order transition", err)
	}
	if !actor.CanAct(order) {
		return domain.ErrOrderNotOwned
	}
	return &domain.InvalidTransitionError{OrderID: order.ID, From: order.Status, To: target}
}

func (l *OrderLifecycle) apply(ctx context.Context, orderID string, event domain.OrderEvent, actor domain.Actor) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}

	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	var updated domain.Order
	var from domain.OrderStatus
	err := l.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := l.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if !actor.CanAct(order) {
			return domain.ErrOrderNotOwned
		}
		if actor.Role != domain.RoleOwner && event != domain.EventCancel {
			return domain.ErrOwnerOnly
		}
		rule, err := domain.Transition(order.Status, event)
		if err != nil {
			var invalid *domain.InvalidTransitionError
			if errors.As(err, &invalid) {
				invalid.OrderID = order.ID
			}
			return err
		}

		switch rule.Effect {
		case domain.StockCommit:
			if err := l.ledger.ReserveAndCommit(txCtx, order.StockLines()); err != nil {
				return err
			}
		case domain.StockRelease:
			if err := l.ledger.Restock(txCtx, order.StockLines()); err != nil {
				return err
			}
		}

		now := l.clock.Now()
		if err := l.repo.UpdateOrderStatus(txCtx, order.ID, rule.To, now); err != nil {
			return err
		}
		from = order.Status
		order.Status = rule.To
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, classify("order "+string(event), err)
	}
	l.logger.Info("order transitioned",
		zap.String("order_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(updated.Status)),
	)
	return updated, nil
}
