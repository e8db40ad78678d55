package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wavethanapon/shop/internal/app"
	"github.com/wavethanapon/shop/internal/config"
	"github.com/wavethanapon/shop/internal/domain"
)

type stubLifecycle struct {
	err   error
	calls int
}

func (s *stubLifecycle) result(id string, status domain.OrderStatus) (domain.Order, error) {
	s.calls++
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return domain.Order{ID: id, Status: status}, nil
}

func (s *stubLifecycle) ConfirmPayment(_ context.Context, id string) (domain.Order, error) {
	return s.result(id, domain.OrderStatusProcessing)
}

func (s *stubLifecycle) MarkDone(_ context.Context, id string) (domain.Order, error) {
	return s.result(id, domain.OrderStatusCompleted)
}

func (s *stubLifecycle) Cancel(_ context.Context, in app.CancelOrderInput) (domain.Order, error) {
	return s.result(in.OrderID, domain.OrderStatusCancelled)
}

func (s *stubLifecycle) TransitionTo(_ context.Context, id string, target domain.OrderStatus, _ domain.Actor) (domain.Order, error) {
	return s.result(id, target)
}

type stubLedger struct {
	err error
}

func (s stubLedger) ReserveAndCommit(context.Context, []domain.StockLine) error { return s.err }
func (s stubLedger) Restock(context.Context, []domain.StockLine) error          { return s.err }

type recorders struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *observer.ObservedLogs
	opts   []Option
}

func newRecorders() recorders {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	core, logs := observer.New(zapcore.DebugLevel)
	return recorders{
		spans:  spans,
		reader: reader,
		logs:   logs,
		opts: []Option{
			WithTracer(tp.Tracer("test")),
			WithMeter(mp.Meter("test")),
			WithLogger(zap.New(core)),
		},
	}
}

// counter returns the summed value of name for data points whose attributes
// include every pair in want.
func (p recorders) counter(t *testing.T, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, p.reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				match := true
				for _, kv := range want {
					v, found := dp.Attributes.Value(kv.Key)
					if !found || v.Emit() != kv.Value.Emit() {
						match = false
						break
					}
				}
				if match {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestLifecycle_RecordsSuccess(t *testing.T) {
	p := newRecorders()
	inner := &stubLifecycle{}
	lc := NewLifecycle(inner, p.opts...)

	order, err := lc.ConfirmPayment(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, order.Status)
	require.Equal(t, 1, inner.calls)

	ended := p.spans.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "OrderLifecycle.confirm_payment", ended[0].Name())
	require.NotEqual(t, codes.Error, ended[0].Status().Code)

	require.Equal(t, int64(1), p.counter(t, "storefront.orders.transitions",
		attribute.String("event", "confirm_payment"), attribute.String("outcome", "ok")))

	entries := p.logs.FilterMessage("order transition").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Contains(t, entries[0].ContextMap(), "trace_id")
}

func TestLifecycle_RecordsRejection(t *testing.T) {
	p := newRecorders()
	rejection := &domain.InvalidTransitionError{OrderID: "o-2", From: domain.OrderStatusCompleted, To: domain.OrderStatusCancelled}
	lc := NewLifecycle(&stubLifecycle{err: rejection}, p.opts...)

	_, err := lc.Cancel(context.Background(), app.CancelOrderInput{OrderID: "o-2", Actor: domain.Owner("")})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	ended := p.spans.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.NotEmpty(t, ended[0].Events())

	require.Equal(t, int64(1), p.counter(t, "storefront.orders.transitions",
		attribute.String("event", "cancel"), attribute.String("outcome", "invalid_transition")))

	entries := p.logs.FilterMessage("order transition rejected").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "o-2", entries[0].ContextMap()["order_id"])
}

func TestLifecycle_TransitionToUsesTargetEvent(t *testing.T) {
	p := newRecorders()
	lc := NewLifecycle(&stubLifecycle{}, p.opts...)

	_, err := lc.TransitionTo(context.Background(), "o-3", domain.OrderStatusCompleted, domain.Owner(""))
	require.NoError(t, err)
	require.Equal(t, "OrderLifecycle.mark_done", p.spans.Ended()[0].Name())
}

func TestLifecycle_TransitionToWithoutEventNamesTarget(t *testing.T) {
	p := newRecorders()
	rejection := &domain.InvalidTransitionError{OrderID: "o-4", From: domain.OrderStatusProcessing, To: domain.OrderStatusPaymentPending}
	lc := NewLifecycle(&stubLifecycle{err: rejection}, p.opts...)

	_, err := lc.TransitionTo(context.Background(), "o-4", domain.OrderStatusPaymentPending, domain.Owner(""))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Equal(t, "OrderLifecycle.to_payment_pending", p.spans.Ended()[0].Name())
	require.Equal(t, int64(1), p.counter(t, "storefront.orders.transitions",
		attribute.String("event", "to_payment_pending"), attribute.String("outcome", "invalid_transition")))
}

func TestLedger_CountsByOutcome(t *testing.T) {
	p := newRecorders()
	ctx := context.Background()
	lines := []domain.StockLine{{ProductID: "p-1", Quantity: 2}}

	ok := NewLedger(stubLedger{}, p.opts...)
	require.NoError(t, ok.ReserveAndCommit(ctx, lines))
	require.NoError(t, ok.Restock(ctx, lines))

	short := &domain.InsufficientStockError{Shortages: []domain.Shortage{{ProductID: "p-1", Requested: 2, Available: 0}}}
	rejecting := NewLedger(stubLedger{err: short}, p.opts...)
	require.ErrorIs(t, rejecting.ReserveAndCommit(ctx, lines), domain.ErrInsufficientStock)

	failing := NewLedger(stubLedger{err: domain.NewTransientError("ledger commit", context.DeadlineExceeded)}, p.opts...)
	err := failing.ReserveAndCommit(ctx, lines)
	require.True(t, domain.IsRetryable(err))

	require.Equal(t, int64(1), p.counter(t, "storefront.ledger.commits",
		attribute.String("op", "commit"), attribute.String("outcome", "ok")))
	require.Equal(t, int64(1), p.counter(t, "storefront.ledger.commits",
		attribute.String("op", "restock"), attribute.String("outcome", "ok")))
	require.Equal(t, int64(1), p.counter(t, "storefront.ledger.commits",
		attribute.String("outcome", "insufficient_stock")))
	require.Equal(t, int64(1), p.counter(t, "storefront.ledger.commits",
		attribute.String("outcome", "transient")))

	require.Equal(t, 1, p.logs.FilterMessage("ledger commit failed").Len())
	require.Equal(t, 1, p.logs.FilterMessage("ledger commit rejected").Len())
}

func TestOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{domain.ErrOrderNotFound, "not_found"},
		{domain.ErrOwnerOnly, "forbidden"},
		{domain.ErrOrderNotOwned, "forbidden"},
		{domain.NewTransientError("op", errors.New("reset")), "transient"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Outcome(tc.err))
	}
}

func TestSetupTelemetry_Disabled(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), TelemetryConfig{ServiceName: "storefront-test", Disabled: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	lc := NewLifecycle(&stubLifecycle{}, WithTracer(tel.Tracer()), WithMeter(tel.Meter()))
	_, err = lc.MarkDone(context.Background(), "o-9")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, tel.Reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)
}

func TestSetupTelemetry_StdoutExporter(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	tel, err := SetupTelemetry(ctx, TelemetryConfig{ServiceName: "storefront-test", Environment: "test", Output: &out}, nil)
	require.NoError(t, err)

	lc := NewLifecycle(&stubLifecycle{}, WithTracer(tel.Tracer()), WithMeter(tel.Meter()))
	_, err = lc.ConfirmPayment(ctx, "o-10")
	require.NoError(t, err)
	require.NoError(t, tel.Shutdown(ctx))

	require.Contains(t, out.String(), "OrderLifecycle.confirm_payment")
	require.Contains(t, out.String(), "storefront-test")
}

func TestTelemetryConfigFrom(t *testing.T) {
	got := TelemetryConfigFrom(config.Config{
		ServiceName:     "shop",
		Environment:     "staging",
		OTLPEndpoint:    "http://collector:4318",
		TracingDisabled: true,
	})
	require.Equal(t, TelemetryConfig{
		ServiceName:  "shop",
		Environment:  "staging",
		OTLPEndpoint: "http://collector:4318",
		Disabled:     true,
	}, got)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn", false)
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger("chatty", true)
	require.Error(t, err)
}
