package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPaymentPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

type Channel string

const (
	ChannelOnline Channel = "online"
	ChannelPOS    Channel = "pos"
)

// OrderLine is a by-value snapshot of a cart line, detached from the catalog.
type OrderLine struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is immutable after creation except for Status (and UpdatedAt).
// TotalAmount is frozen at creation.
type Order struct {
	ID              string
	CustomerID      string
	Channel         Channel
	Lines           []OrderLine
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	PaymentProofRef string
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SnapshotLines copies cart lines into order lines.
func SnapshotLines(lines []CartLine) []OrderLine {
	out := make([]OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, OrderLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	return out
}

func OrderLinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// StockLine is the ledger's unit of work.
type StockLine struct {
	ProductID string
	Quantity  int
}

// MergeStockLines sums quantities per product and returns the lines sorted by
// product id, which is also the order rows are locked in.
func MergeStockLines(lines []StockLine) []StockLine {
	byID := make(map[string]int, len(lines))
	for _, l := range lines {
		byID[l.ProductID] += l.Quantity
	}
	out := make([]StockLine, 0, len(byID))
	for id, qty := range byID {
		out = append(out, StockLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (o Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, StockLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return MergeStockLines(lines)
}

func StockLinesFromCart(lines []CartLine) []StockLine {
	out := make([]StockLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, StockLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return MergeStockLines(out)
}

func (o Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// WalkInCustomer is the customer id recorded on POS sales without a known customer.
const WalkInCustomer = "walk-in"

// OrderFilter narrows order listings. Zero fields match everything; the
// creation window is half-open [CreatedFrom, CreatedTo).
type OrderFilter struct {
	Status      OrderStatus
	CustomerID  string
	Channel     Channel
	CreatedFrom time.Time
	CreatedTo   time.Time
}

func (f OrderFilter) Match(o Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if f.Channel != "" && o.Channel != f.Channel {
		return false
	}
	if !f.CreatedFrom.IsZero() && o.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && !o.CreatedAt.Before(f.CreatedTo) {
		return false
	}
	return true
}
