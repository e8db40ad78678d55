package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wavethanapon/shop/internal/clock"
	"github.com/wavethanapon/shop/internal/domain"
)

// InventoryLedger is the only writer of stock after a product is created.
type InventoryLedger interface {
	ReserveAndCommit(ctx context.Context, lines []domain.StockLine) error
	Restock(ctx context.Context, lines []domain.StockLine) error
}

type StockRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProductForUpdate(ctx context.Context, id string) (domain.Product, error)
	SetStock(ctx context.Context, id string, stock int, at time.Time) error
}

type LedgerService struct {
	repo    StockRepository
	clock   clock.Clock
	timeout time.Duration
	logger  *zap.Logger
}

type LedgerOption func(*LedgerService)

func WithLedgerTimeout(d time.Duration) LedgerOption {
	return func(s *LedgerService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLedgerLogger(l *zap.Logger) LedgerOption {
	return func(s *LedgerService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewLedgerService(repo StockRepository, clk clock.Clock, opts ...LedgerOption) *LedgerService {
	svc := &LedgerService{
		repo:    repo,
		clock:   clk,
		timeout: defaultOpTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ReserveAndCommit decrements every line or none. Rows are locked in product
// id order. A shortage on any line returns *domain.InsufficientStockError
// listing every short line, and nothing is written.
func (s *LedgerService) ReserveAndCommit(ctx context.Context, lines []domain.StockLine) error {
	merged, err := validLines(lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		products := make([]domain.Product, len(merged))
		var shortages []domain.Shortage
		for i, l := range merged {
			p, err := s.repo.GetProductForUpdate(txCtx, l.ProductID)
			if errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrInvalidID) {
				shortages = append(shortages, domain.Shortage{ProductID: l.ProductID, Requested: l.Quantity})
				continue
			}
			if err != nil {
				return err
			}
			if p.Stock < l.Quantity {
				shortages = append(shortages, domain.Shortage{ProductID: l.ProductID, Requested: l.Quantity, Available: p.Stock})
			}
			products[i] = p
		}
		if len(shortages) > 0 {
			return &domain.InsufficientStockError{Shortages: shortages}
		}

		at := s.clock.Now()
		for i, l := range merged {
			if err := s.repo.SetStock(txCtx, l.ProductID, products[i].Stock-l.Quantity, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var short *domain.InsufficientStockError
		if errors.As(err, &short) {
			s.logger.Info("stock commit rejected", zap.Int("short_lines", len(short.Shortages)))
		}
		return classify("ledger commit", err)
	}
	s.logger.Debug("stock committed", zap.Int("lines", len(merged)))
	return nil
}

// Restock returns quantities to stock in one transaction. Products deleted
// since the sale, or whose id the store cannot hold, are skipped.
func (s *LedgerService) Restock(ctx context.Context, lines []domain.StockLine) error {
	merged, err := validLines(lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		at := s.clock.Now()
		for _, l := range merged {
			p, err := s.repo.GetProductForUpdate(txCtx, l.ProductID)
			if errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrInvalidID) {
				s.logger.Warn("restock skipped missing product", zap.String("product_id", l.ProductID), zap.Int("quantity", l.Quantity))
				continue
			}
			if err != nil {
				return err
			}
			if err := s.repo.SetStock(txCtx, l.ProductID, p.Stock+l.Quantity, at); err != nil {
				return err
			}
		}
		return nil
	})
	return classify("ledger restock", err)
}

// SetStock overwrites a product's count after a physical recount.
func (s *LedgerService) SetStock(ctx context.Context, productID string, stock int) (domain.Product, error) {
	if productID == "" {
		return domain.Product{}, domain.ErrInvalidID
	}
	if stock < 0 {
		return domain.Product{}, domain.ErrInvalidStock
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var updated domain.Product
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		p, err := s.repo.GetProductForUpdate(txCtx, productID)
		if err != nil {
			return err
		}
		at := s.clock.Now()
		if err := s.repo.SetStock(txCtx, productID, stock, at); err != nil {
			return err
		}
		p.Stock = stock
		p.UpdatedAt = at
		updated = p
		return nil
	})
	if err != nil {
		return domain.Product{}, classify("ledger set stock", err)
	}
	s.logger.Info("stock corrected", zap.String("product_id", productID), zap.Int("stock", stock))
	return updated, nil
}

func validLines(lines []domain.StockLine) ([]domain.StockLine, error) {
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, domain.ErrInvalidID
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("product %s: %w", l.ProductID, domain.ErrInvalidQuantity)
		}
	}
	return domain.MergeStockLines(lines), nil
}
