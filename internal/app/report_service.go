package app

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wavethanapon/shop/internal/domain"
)

type OrderLister interface {
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
}

type DailySales struct {
	Day        time.Time
	OrderCount int
	Total      decimal.Decimal
}

type ChannelSales struct {
	OrderCount int
	Total      decimal.Decimal
}

// SalesSummary aggregates completed orders created in [From, To).
type SalesSummary struct {
	From       time.Time
	To         time.Time
	OrderCount int
	ItemCount  int
	Total      decimal.Decimal
	ByDay      []DailySales
	ByChannel  map[domain.Channel]ChannelSales
}

type ReportService struct {
	orders OrderLister
}

func NewReportService(orders OrderLister) *ReportService {
	return &ReportService{orders: orders}
}

func (s *ReportService) SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	orders, err := s.orders.ListOrders(ctx, domain.OrderFilter{
		Status:      domain.OrderStatusCompleted,
		CreatedFrom: from,
		CreatedTo:   to,
	})
	if err != nil {
		return SalesSummary{}, err
	}

	summary := SalesSummary{
		From:      from,
		To:        to,
		Total:     decimal.Zero,
		ByChannel: make(map[domain.Channel]ChannelSales),
	}
	days := make(map[time.Time]*DailySales)
	for _, o := range orders {
		summary.OrderCount++
		summary.ItemCount += o.ItemCount()
		summary.Total = summary.Total.Add(o.TotalAmount)

		ch := summary.ByChannel[o.Channel]
		if ch.OrderCount == 0 {
			ch.Total = decimal.Zero
		}
		ch.OrderCount++
		ch.Total = ch.Total.Add(o.TotalAmount)
		summary.ByChannel[o.Channel] = ch

		day := o.CreatedAt.UTC().Truncate(24 * time.Hour)
		d, ok := days[day]
		if !ok {
			d = &DailySales{Day: day, Total: decimal.Zero}
			days[day] = d
		}
		d.OrderCount++
		d.Total = d.Total.Add(o.TotalAmount)
	}
	for _, d := range days {
		summary.ByDay = append(summary.ByDay, *d)
	}
	sort.Slice(summary.ByDay, func(i, j int) bool { return summary.ByDay[i].Day.Before(summary.ByDay[j].Day) })
	return summary, nil
}
