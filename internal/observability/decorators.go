package observability

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/wavethanapon/shop/internal/app"
	"github.com/wavethanapon/shop/internal/domain"
)

type Option func(*instruments)

type instruments struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger *zap.Logger
}

func WithTracer(tr trace.Tracer) Option {
	return func(i *instruments) {
		if tr != nil {
			i.tracer = tr
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(i *instruments) {
		if m != nil {
			i.meter = m
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(i *instruments) {
		if l != nil {
			i.logger = l
		}
	}
}

func newInstruments(opts []Option) instruments {
	i := instruments{
		tracer: nooptrace.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&i)
	}
	return i
}

// Outcome buckets an error for metric attributes.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrOrderNotOwned), errors.Is(err, domain.ErrOwnerOnly):
		return "forbidden"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "not_found"
	case domain.IsRetryable(err):
		return "transient"
	default:
		return "error"
	}
}

// finish records err on the span. Business rejections are logged at info,
// everything else at error.
func (i instruments) finish(ctx context.Context, span trace.Span, msg string, err error, fields ...zap.Field) {
	fields = append(fields, traceFields(ctx)...)
	if err == nil {
		i.logger.Debug(msg, fields...)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	fields = append(fields, zap.Error(err), zap.String("outcome", Outcome(err)))
	switch Outcome(err) {
	case "error", "transient":
		i.logger.Error(msg+" failed", fields...)
	default:
		i.logger.Info(msg+" rejected", fields...)
	}
}

// Lifecycle traces, logs and counts order transitions.
type Lifecycle struct {
	inner       app.Lifecycle
	ins         instruments
	transitions metric.Int64Counter
}

var _ app.Lifecycle = (*Lifecycle)(nil)

func NewLifecycle(inner app.Lifecycle, opts ...Option) *Lifecycle {
	ins := newInstruments(opts)
	counter, err := ins.meter.Int64Counter("storefront.orders.transitions",
		metric.WithDescription("Order transition attempts by event and outcome."))
	if err != nil {
		ins.logger.Warn("create transitions counter", zap.Error(err))
		counter, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("storefront.orders.transitions")
	}
	return &Lifecycle{inner: inner, ins: ins, transitions: counter}
}

func (l *Lifecycle) ConfirmPayment(ctx context.Context, orderID string) (domain.Order, error) {
	return l.observe(ctx, domain.EventConfirmPayment, orderID, func(ctx context.Context) (domain.Order, error) {
		return l.inner.ConfirmPayment(ctx, orderID)
	})
}

func (l *Lifecycle) MarkDone(ctx context.Context, orderID string) (domain.Order, error) {
	return l.observe(ctx, domain.EventMarkDone, orderID, func(ctx context.Context) (domain.Order, error) {
		return l.inner.MarkDone(ctx, orderID)
	})
}

func (l *Lifecycle) Cancel(ctx context.Context, in app.CancelOrderInput) (domain.Order, error) {
	return l.observe(ctx, domain.EventCancel, in.OrderID, func(ctx context.Context) (domain.Order, error) {
		return l.inner.Cancel(ctx, in)
	})
}

func (l *Lifecycle) TransitionTo(ctx context.Context, orderID string, target domain.OrderStatus, actor domain.Actor) (domain.Order, error) {
	event, ok := domain.EventFor(target)
	if !ok {
		event = domain.OrderEvent("to_" + strings.ToLower(string(target)))
	}
	return l.observe(ctx, event, orderID, func(ctx context.Context) (domain.Order, error) {
		return l.inner.TransitionTo(ctx, orderID, target, actor)
	})
}

func (l *Lifecycle) observe(ctx context.Context, event domain.OrderEvent, orderID string, fn func(context.Context) (domain.Order, error)) (domain.Order, error) {
	ctx, span := l.ins.tracer.Start(ctx, "OrderLifecycle."+string(event),
		trace.WithAttributes(attribute.String("order.id", orderID), attribute.String("order.event", string(event))))
	defer span.End()

	order, err := fn(ctx)
	l.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(event)),
		attribute.String("outcome", Outcome(err)),
	))
	if err == nil {
		span.SetAttributes(attribute.String("order.status", string(order.Status)))
	}
	l.ins.finish(ctx, span, "order transition", err,
		zap.String("order_id", orderID),
		zap.String("event", string(event)),
	)
	return order, err
}

// Ledger traces, logs and counts stock commits and restocks.
type Ledger struct {
	inner   app.InventoryLedger
	ins     instruments
	commits metric.Int64Counter
}

var _ app.InventoryLedger = (*Ledger)(nil)

func NewLedger(inner app.InventoryLedger, opts ...Option) *Ledger {
	ins := newInstruments(opts)
	counter, err := ins.meter.Int64Counter("storefront.ledger.commits",
		metric.WithDescription("Stock ledger operations by kind and outcome."))
	if err != nil {
		ins.logger.Warn("create ledger counter", zap.Error(err))
		counter, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("storefront.ledger.commits")
	}
	return &Ledger{inner: inner, ins: ins, commits: counter}
}

func (l *Ledger) ReserveAndCommit(ctx context.Context, lines []domain.StockLine) error {
	return l.observe(ctx, "commit", lines, l.inner.ReserveAndCommit)
}

func (l *Ledger) Restock(ctx context.Context, lines []domain.StockLine) error {
	return l.observe(ctx, "restock", lines, l.inner.Restock)
}

func (l *Ledger) observe(ctx context.Context, op string, lines []domain.StockLine, fn func(context.Context, []domain.StockLine) error) error {
	ctx, span := l.ins.tracer.Start(ctx, "Ledger."+op, trace.WithAttributes(attribute.Int("ledger.lines", len(lines))))
	defer span.End()

	err := fn(ctx, lines)
	l.commits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", Outcome(err)),
	))
	var short *domain.InsufficientStockError
	if errors.As(err, &short) {
		span.SetAttributes(attribute.Int("ledger.short_lines", len(short.Shortages)))
	}
	l.ins.finish(ctx, span, "ledger "+op, err, zap.Int("lines", len(lines)))
	return err
}
