package domain

import "github.com/shopspring/decimal"

// CartLine is one product selection. StockCeiling is the stock observed at the
// last successful mutation of the line.
type CartLine struct {
	ProductID    string
	Name         string
	Quantity     int
	UnitPrice    decimal.Decimal
	StockCeiling int
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart keeps lines in insertion order with at most one line per product.
// The zero value is an empty cart.
type Cart struct {
	lines []CartLine
}

// Add merges qty into the product's line, creating it when absent. The merged
// quantity is checked against p.Stock; on failure the cart is unchanged.
func (c *Cart) Add(p Product, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	idx := c.index(p.ID)
	total := qty
	if idx >= 0 {
		total += c.lines[idx].Quantity
	}
	if total > p.Stock {
		return &StockExceededError{ProductID: p.ID, Name: p.Name, Requested: total, Available: p.Stock}
	}
	line := lineFor(p, total)
	if idx >= 0 {
		c.lines[idx] = line
		return nil
	}
	c.lines = append(c.lines, line)
	return nil
}

// SetQuantity replaces the line's quantity. qty <= 0 removes the line and an
// absent line is left alone. It reports whether a line was present.
func (c *Cart) SetQuantity(p Product, qty int) (bool, error) {
	idx := c.index(p.ID)
	if idx < 0 {
		return false, nil
	}
	if qty <= 0 {
		c.removeAt(idx)
		return true, nil
	}
	if qty > p.Stock {
		return true, &StockExceededError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock}
	}
	c.lines[idx] = lineFor(p, qty)
	return true, nil
}

func (c *Cart) Remove(productID string) {
	if idx := c.index(productID); idx >= 0 {
		c.removeAt(idx)
	}
}

func (c *Cart) Clear() {
	c.lines = nil
}

// Line returns the line for productID, if any.
func (c *Cart) Line(productID string) (CartLine, bool) {
	if idx := c.index(productID); idx >= 0 {
		return c.lines[idx], true
	}
	return CartLine{}, false
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Total() decimal.Decimal {
	return LinesTotal(c.lines)
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// LinesTotal sums unit price times quantity over lines.
func LinesTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c *Cart) index(productID string) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}

func lineFor(p Product, qty int) CartLine {
	return CartLine{
		ProductID:    p.ID,
		Name:         p.Name,
		Quantity:     qty,
		UnitPrice:    p.Price,
		StockCeiling: p.Stock,
	}
}
