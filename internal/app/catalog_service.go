package app

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wavethanapon/shop/internal/clock"
	"github.com/wavethanapon/shop/internal/domain"
)

// CatalogReader is the read path used by carts and screens.
type CatalogReader interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type CatalogRepository interface {
	CatalogReader
	CreateProduct(ctx context.Context, p domain.Product) error
	// UpdateProductDetails writes name and price only; stock belongs to the ledger.
	UpdateProductDetails(ctx context.Context, p domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// CatalogService is the owner's inventory management surface.
type CatalogService struct {
	repo   CatalogRepository
	clock  clock.Clock
	newID  IDFunc
	logger *zap.Logger
}

type CatalogOption func(*CatalogService)

func WithCatalogLogger(l *zap.Logger) CatalogOption {
	return func(s *CatalogService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithCatalogIDs(fn IDFunc) CatalogOption {
	return func(s *CatalogService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func NewCatalogService(repo CatalogRepository, clk clock.Clock, opts ...CatalogOption) *CatalogService {
	svc := &CatalogService{
		repo:   repo,
		clock:  clk,
		newID:  newID,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateProductInput struct {
	Name  string
	Price decimal.Decimal
	Stock int
}

func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	now := s.clock.Now()
	p := domain.Product{
		ID:        s.newID(),
		Name:      strings.TrimSpace(in.Name),
		Price:     in.Price,
		Stock:     in.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.Int("stock", p.Stock))
	return p, nil
}

// UpdateProductInput changes only the fields that are set.
type UpdateProductInput struct {
	ID    string
	Name  *string
	Price *decimal.Decimal
}

func (s *CatalogService) UpdateProduct(ctx context.Context, in UpdateProductInput) (domain.Product, error) {
	if in.ID == "" {
		return domain.Product{}, domain.ErrInvalidID
	}
	p, err := s.repo.GetProduct(ctx, in.ID)
	if err != nil {
		return domain.Product{}, err
	}
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	p.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateProductDetails(ctx, p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrInvalidID
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if id == "" {
		return domain.Product{}, domain.ErrInvalidID
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// ListAvailable returns products a customer can currently put in a cart.
func (s *CatalogService) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := products[:0]
	for _, p := range products {
		if p.InStock() {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListLowStock returns products with stock below threshold, lowest first.
func (s *CatalogService) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	var low []domain.Product
	for _, p := range products {
		if p.Stock < threshold {
			low = append(low, p)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].Stock < low[j].Stock })
	return low, nil
}
