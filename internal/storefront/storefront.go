// Package storefront wires the services over the configured store.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wavethanapon/shop/internal/app"
	"github.com/wavethanapon/shop/internal/clock"
	"github.com/wavethanapon/shop/internal/config"
	"github.com/wavethanapon/shop/internal/domain"
	"github.com/wavethanapon/shop/internal/observability"
	"github.com/wavethanapon/shop/internal/storage/memory"
	"github.com/wavethanapon/shop/internal/storage/postgres"
	"github.com/wavethanapon/shop/migrations"
)

type repositories interface {
	app.CatalogRepository
	app.StockRepository
	app.OrderRepository
}

// pgRepositories joins the two Postgres repositories. Both read the
// transaction from the context, so WithTx on either covers both.
type pgRepositories struct {
	*postgres.ProductRepository
	*postgres.OrderRepository
}

func (r pgRepositories) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.OrderRepository.WithTx(ctx, fn)
}

type Storefront struct {
	Catalog   *app.CatalogService
	Stock     *app.LedgerService
	Ledger    app.InventoryLedger
	Orders    *app.OrderService
	Lifecycle app.Lifecycle
	Reports   *app.ReportService

	repos             repositories
	factory           *app.OrderFactory
	lowStockThreshold int
	opTimeout         time.Duration
	logger            *zap.Logger
	pool              *pgxpool.Pool
	telemetry         *observability.Telemetry
}

type Option func(*options)

type options struct {
	logger    *zap.Logger
	clock     clock.Clock
	telemetry *observability.Telemetry
	ids       app.IDFunc
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTelemetry instruments the lifecycle and ledger with t instead of
// providers built from the config. The storefront shuts it down on Close.
func WithTelemetry(t *observability.Telemetry) Option {
	return func(o *options) { o.telemetry = t }
}

func WithIDs(fn app.IDFunc) Option {
	return func(o *options) { o.ids = fn }
}

// New connects to Postgres and applies migrations when cfg.DatabaseURL is
// set, and otherwise keeps everything in memory.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Storefront, error) {
	o := options{logger: zap.NewNop(), clock: clock.NewSystem()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if o.telemetry == nil {
		tel, err := observability.SetupTelemetry(ctx, observability.TelemetryConfigFrom(cfg), o.logger)
		if err != nil {
			return nil, fmt.Errorf("setup telemetry: %w", err)
		}
		o.telemetry = tel
	}

	s := &Storefront{
		lowStockThreshold: cfg.LowStockThreshold,
		logger:            o.logger,
		telemetry:         o.telemetry,
	}
	fail := func(err error) (*Storefront, error) {
		_ = o.telemetry.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("connect to db: %w", err))
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fail(fmt.Errorf("db ping: %w", err))
		}
		if err := migrations.Apply(ctx, pool, migrations.WithLogger(o.logger)); err != nil {
			pool.Close()
			return fail(fmt.Errorf("apply migrations: %w", err))
		}
		s.pool = pool
		s.repos = pgRepositories{
			ProductRepository: postgres.NewProductRepository(pool),
			OrderRepository:   postgres.NewOrderRepository(pool),
		}
		o.logger.Info("storefront using postgres")
	} else {
		s.repos = memory.NewStore()
		o.logger.Info("storefront using in-memory store")
	}

	instrumentation := []observability.Option{
		observability.WithLogger(o.logger),
		observability.WithTracer(o.telemetry.Tracer()),
		observability.WithMeter(o.telemetry.Meter()),
	}

	var factoryOpts []app.FactoryOption
	catalogOpts := []app.CatalogOption{app.WithCatalogLogger(o.logger)}
	if o.ids != nil {
		factoryOpts = append(factoryOpts, app.WithIDGenerator(o.ids))
		catalogOpts = append(catalogOpts, app.WithCatalogIDs(o.ids))
	}

	s.Stock = app.NewLedgerService(s.repos, o.clock,
		app.WithLedgerTimeout(cfg.LedgerTimeout),
		app.WithLedgerLogger(o.logger),
	)
	s.Ledger = observability.NewLedger(s.Stock, instrumentation...)
	s.factory = app.NewOrderFactory(o.clock, factoryOpts...)
	s.Catalog = app.NewCatalogService(s.repos, o.clock, catalogOpts...)
	s.Orders = app.NewOrderService(s.repos, s.factory,
		app.WithOrderTimeout(cfg.LedgerTimeout),
		app.WithOrderLogger(o.logger),
	)
	s.Lifecycle = observability.NewLifecycle(
		app.NewOrderLifecycle(s.repos, s.Ledger, o.clock,
			app.WithLifecycleTimeout(cfg.LedgerTimeout),
			app.WithLifecycleLogger(o.logger),
		),
		instrumentation...,
	)
	s.Reports = app.NewReportService(s.repos)
	s.opTimeout = cfg.LedgerTimeout
	return s, nil
}

// NewCart returns an empty customer cart.
func (s *Storefront) NewCart() *app.CartEngine {
	return app.NewCartEngine(s.repos)
}

// NewPOS returns an empty owner point-of-sale session.
func (s *Storefront) NewPOS() *app.POSEngine {
	return app.NewPOSEngine(s.repos, s.repos, s.Ledger, s.factory,
		app.WithPOSTimeout(s.opTimeout),
		app.WithPOSLogger(s.logger),
	)
}

// LowStock lists products under the configured threshold.
func (s *Storefront) LowStock(ctx context.Context) ([]domain.Product, error) {
	return s.Catalog.ListLowStock(ctx, s.lowStockThreshold)
}

func (s *Storefront) Close(ctx context.Context) error {
	var err error
	if s.telemetry != nil {
		err = errors.Join(err, s.telemetry.Shutdown(ctx))
	}
	if s.pool != nil {
		s.pool.Close()
	}
	_ = s.logger.Sync()
	return err
}
