package app

import (
	"github.com/wavethanapon/shop/internal/clock"
	"github.com/wavethanapon/shop/internal/domain"
)

// OrderFactory turns cart lines into orders. It touches neither stock nor the
// cart.
type OrderFactory struct {
	clock clock.Clock
	newID IDFunc
}

type FactoryOption func(*OrderFactory)

func WithIDGenerator(fn IDFunc) FactoryOption {
	return func(f *OrderFactory) {
		if fn != nil {
			f.newID = fn
		}
	}
}

func NewOrderFactory(clk clock.Clock, opts ...FactoryOption) *OrderFactory {
	f := &OrderFactory{clock: clk, newID: newID}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateOrder snapshots lines into a PAYMENT_PENDING online order. The total
// is computed from the snapshot and never recomputed.
func (f *OrderFactory) CreateOrder(lines []domain.CartLine, paymentProofRef, customerID string) (domain.Order, error) {
	if len(lines) == 0 {
		return domain.Order{}, domain.ErrEmptyCart
	}
	if paymentProofRef == "" {
		return domain.Order{}, domain.ErrMissingPaymentProof
	}
	if customerID == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	return f.build(lines, customerID, domain.ChannelOnline, domain.OrderStatusPaymentPending, paymentProofRef), nil
}

// NewPOSOrder builds a completed in-person sale. Walk-in sales pass
// domain.WalkInCustomer.
func (f *OrderFactory) NewPOSOrder(lines []domain.CartLine, customerID string) (domain.Order, error) {
	if len(lines) == 0 {
		return domain.Order{}, domain.ErrEmptyCart
	}
	if customerID == "" {
		customerID = domain.WalkInCustomer
	}
	return f.build(lines, customerID, domain.ChannelPOS, domain.OrderStatusCompleted, ""), nil
}

func (f *OrderFactory) build(lines []domain.CartLine, customerID string, ch domain.Channel, status domain.OrderStatus, proof string) domain.Order {
	snapshot := domain.SnapshotLines(lines)
	now := f.clock.Now()
	return domain.Order{
		ID:              f.newID(),
		CustomerID:      customerID,
		Channel:         ch,
		Lines:           snapshot,
		TotalAmount:     domain.OrderLinesTotal(snapshot),
		Status:          status,
		PaymentProofRef: proof,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
