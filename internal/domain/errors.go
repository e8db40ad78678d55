package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrProductNameRequired    = errors.New("product name required")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrInvalidStock           = errors.New("invalid stock")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidID              = errors.New("invalid id")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrMissingPaymentProof    = errors.New("payment proof required")
	ErrCustomerRequired       = errors.New("customer id required")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict    = errors.New("idempotency conflict")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderNotOwned          = errors.New("order belongs to another customer")
	ErrOwnerOnly              = errors.New("owner action required")
	ErrUnknownEvent           = errors.New("unknown order event")

	// Kinds matched by the typed errors below through errors.Is.
	ErrStockExceeded     = errors.New("stock exceeded")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTransient         = errors.New("transient failure")
)

// StockExceededError reports a cart mutation that asked for more than the
// product currently has. Available is the largest quantity the line may hold.
type StockExceededError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("stock exceeded for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockExceededError) Is(target error) bool { return target == ErrStockExceeded }

// Shortage is one line that could not be satisfied at commit time.
type Shortage struct {
	ProductID string
	Requested int
	Available int
}

// InsufficientStockError is returned by the ledger when at least one line of a
// commit cannot be satisfied. No stock was written.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidTransitionError carries the order's current status and the status the
// caller tried to reach.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid transition for order %s: %s -> %s", e.OrderID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// TransientError wraps an I/O failure. Nothing was committed, so the operation
// can be retried as is.
type TransientError struct {
	Op  string
	Err error
}

func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// IsRetryable reports whether err is safe to retry without changing the input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
