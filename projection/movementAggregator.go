package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MovementAggregator turns a product's stock events into per-day inflow/outflow buckets.
// Each source call runs under its own store timeout.
type MovementAggregator struct {
	events       EventSource
	balances     BalanceSource
	storeTimeout time.Duration
	logger       *logrus.Logger
}

func NewMovementAggregator(events EventSource, balances BalanceSource, storeTimeout time.Duration, logger *logrus.Logger) *MovementAggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MovementAggregator{
		events:       events,
		balances:     balances,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// Aggregate buckets the events of product for days 0..horizon.
// Backlog (events dated before asOf) is folded into the opening balance, events past the
// horizon are ignored and events for other products are skipped with a warning.
func (a *MovementAggregator) Aggregate(ctx context.Context, product ProductKey, asOf time.Time, horizon int) (*DayDeltas, error) {
	if horizon < 0 {
		return nil, fmt.Errorf("%w: negative horizon %d", ErrInvalidProjectionInput, horizon)
	}
	ctx, span := tracer.Start(ctx, "projection.Aggregate", trace.WithAttributes(
		attribute.String("product", string(product)),
		attribute.Int("horizon", horizon),
	))
	defer span.End()

	opening, err := a.readBalance(ctx, product, asOf)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	events, err := a.readEvents(ctx, product, asOf, horizon)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	deltas := &DayDeltas{
		Product:        product,
		AsOf:           asOf,
		Horizon:        horizon,
		InitialBalance: opening,
		Inflow:         make([]decimal.Decimal, horizon+1),
		Outflow:        make([]decimal.Decimal, horizon+1),
	}
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if ev.EventProduct() != product {
			a.logger.WithFields(logrus.Fields{
				"module":   "projection",
				"funcName": "Aggregate",
				"product":  product,
				"event":    ev.EventProduct(),
				"kind":     ev.Kind(),
			}).Warn("skipping event for another product")
			continue
		}
		in, out := ev.flows()
		day := ev.EventDay()
		switch {
		case day < 0:
			deltas.InitialBalance = deltas.InitialBalance.Add(in).Sub(out)
		case day > horizon:
			continue
		default:
			deltas.Inflow[day] = deltas.Inflow[day].Add(in)
			deltas.Outflow[day] = deltas.Outflow[day].Add(out)
		}
	}
	span.SetAttributes(attribute.Int("events", len(events)))
	return deltas, nil
}

func (a *MovementAggregator) readBalance(ctx context.Context, product ProductKey, asOf time.Time) (decimal.Decimal, error) {
	ctx, cancel := a.storeContext(ctx)
	defer cancel()
	balance, err := a.balances.ReadCurrentBalance(ctx, product, asOf)
	if err != nil {
		storeErrors.WithLabelValues("balance").Inc()
		return decimal.Zero, fmt.Errorf("%w: read balance of %s: %w", ErrDataUnavailable, product, err)
	}
	return balance, nil
}

func (a *MovementAggregator) readEvents(ctx context.Context, product ProductKey, asOf time.Time, horizon int) ([]StockEvent, error) {
	ctx, cancel := a.storeContext(ctx)
	defer cancel()
	events, err := a.events.ReadEvents(ctx, product, asOf, horizon)
	if err != nil {
		storeErrors.WithLabelValues("events").Inc()
		return nil, fmt.Errorf("%w: read events of %s: %w", ErrDataUnavailable, product, err)
	}
	return events, nil
}

func (a *MovementAggregator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.storeTimeout > 0 {
		return context.WithTimeout(ctx, a.storeTimeout)
	}
	return context.WithCancel(ctx)
}
