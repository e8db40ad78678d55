package app

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wavethanapon/shop/internal/domain"
)

// CartEngine owns the cart of one shopping session. Every mutation re-reads
// the product so the stock check uses current availability. The check is
// advisory: the ledger validates again at commit time.
type CartEngine struct {
	catalog CatalogReader

	mu   sync.Mutex
	cart domain.Cart
}

func NewCartEngine(catalog CatalogReader) *CartEngine {
	return &CartEngine{catalog: catalog}
}

// StockAdjustment records a line that Refresh had to shrink or drop.
type StockAdjustment struct {
	ProductID string
	Name      string
	Previous  int
	Current   int
}

// AddToCart adds qty units (1 when qty is 0). A merged quantity above the
// product's stock is rejected with *domain.StockExceededError.
func (e *CartEngine) AddToCart(ctx context.Context, productID string, qty int) error {
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return domain.ErrInvalidQuantity
	}
	p, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Add(p, qty)
}

// UpdateQuantity replaces a line's quantity. newQty <= 0 removes the line and
// an absent line is a no-op.
func (e *CartEngine) UpdateQuantity(ctx context.Context, productID string, newQty int) error {
	if newQty <= 0 {
		e.RemoveItem(productID)
		return nil
	}
	if _, ok := e.line(productID); !ok {
		return nil
	}
	p, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			e.RemoveItem(productID)
		}
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.cart.SetQuantity(p, newQty)
	return err
}

// Decrement lowers a line by one unit, removing it at zero.
func (e *CartEngine) Decrement(ctx context.Context, productID string) error {
	line, ok := e.line(productID)
	if !ok {
		return nil
	}
	return e.UpdateQuantity(ctx, productID, line.Quantity-1)
}

// RemoveItem drops the line unconditionally. Asking the user to confirm is
// the caller's job.
func (e *CartEngine) RemoveItem(productID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cart.Remove(productID)
}

func (e *CartEngine) ClearCart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cart.Clear()
}

// Refresh re-reads every line's product and clamps quantities to current
// stock. Lines whose product is gone or sold out are removed.
func (e *CartEngine) Refresh(ctx context.Context) ([]StockAdjustment, error) {
	lines := e.Lines()
	current := make(map[string]domain.Product, len(lines))
	gone := make(map[string]bool)
	for _, l := range lines {
		p, err := e.catalog.GetProduct(ctx, l.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			gone[l.ProductID] = true
			continue
		}
		if err != nil {
			return nil, err
		}
		current[l.ProductID] = p
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var adjustments []StockAdjustment
	for _, l := range e.cart.Lines() {
		p, ok := current[l.ProductID]
		switch {
		case gone[l.ProductID] || (ok && p.Stock == 0):
			e.cart.Remove(l.ProductID)
			adjustments = append(adjustments, StockAdjustment{ProductID: l.ProductID, Name: l.Name, Previous: l.Quantity})
		case ok:
			qty := l.Quantity
			if qty > p.Stock {
				qty = p.Stock
				adjustments = append(adjustments, StockAdjustment{ProductID: l.ProductID, Name: p.Name, Previous: l.Quantity, Current: qty})
			}
			if _, err := e.cart.SetQuantity(p, qty); err != nil {
				return adjustments, err
			}
		}
	}
	return adjustments, nil
}

func (e *CartEngine) Lines() []domain.CartLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Lines()
}

func (e *CartEngine) CartTotal() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Total()
}

func (e *CartEngine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.ItemCount()
}

func (e *CartEngine) IsEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.IsEmpty()
}

func (e *CartEngine) line(productID string) (domain.CartLine, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Line(productID)
}
