package projection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// BatchOrchestrator answers order availability questions. Within one batch every distinct
// product is projected once, with at most Settings.Concurrency projections in flight.
type BatchOrchestrator struct {
	cache      *ProjectionCache
	aggregator *MovementAggregator
	orders     OrderSource
	calculator ProjectionCalculator
	classifier *RuptureClassifier
	settings   Settings
	logger     *logrus.Logger
	now        func() time.Time
}

type OrchestratorOption func(*BatchOrchestrator)

func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *BatchOrchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewBatchOrchestrator(cache *ProjectionCache, aggregator *MovementAggregator, orders OrderSource, settings Settings, logger *logrus.Logger, opts ...OrchestratorOption) *BatchOrchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = DefaultSettings().Concurrency
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	o := &BatchOrchestrator{
		cache:      cache,
		aggregator: aggregator,
		orders:     orders,
		calculator: NewProjectionCalculator(settings.MinWindowDays),
		classifier: NewRuptureClassifier(settings.AtRiskBufferDays),
		settings:   settings,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AsOf is today's calendar day in the configured timezone.
func (o *BatchOrchestrator) AsOf() time.Time {
	return utils.DateIn(o.now(), o.settings.Location)
}

func (o *BatchOrchestrator) Settings() Settings { return o.settings }

func (o *BatchOrchestrator) Cache() *ProjectionCache { return o.cache }

// Projection returns the cached or freshly computed projection of one product.
// A negative horizon falls back to the configured default.
func (o *BatchOrchestrator) Projection(ctx context.Context, product ProductKey, horizon int) (*DailyProjection, error) {
	if horizon < 0 {
		horizon = o.settings.HorizonDays
	}
	return o.project(ctx, product, o.AsOf(), horizon)
}

func (o *BatchOrchestrator) project(ctx context.Context, product ProductKey, asOf time.Time, horizon int) (*DailyProjection, error) {
	return o.cache.GetOrCompute(ctx, product, asOf, horizon, func(ctx context.Context) (*DailyProjection, error) {
		deltas, err := o.aggregator.Aggregate(ctx, product, asOf, horizon)
		if err != nil {
			return nil, err
		}
		return o.calculator.ProjectDeltas(deltas)
	})
}

// AnalyzeOrder returns ErrOrderNotFound for unknown references and ErrDataUnavailable when
// the order itself cannot be read. Product failures degrade lines instead.
func (o *BatchOrchestrator) AnalyzeOrder(ctx context.Context, orderRef string) (*OrderAvailabilityReport, error) {
	batch, orderErrs, err := o.analyze(ctx, []string{orderRef})
	if err != nil {
		return nil, err
	}
	if err := orderErrs[orderRef]; err != nil {
		return nil, err
	}
	return batch.Reports[orderRef], nil
}

// AnalyzeOrders always returns one report per distinct reference. Orders that could not be
// read carry a Reason and are not OK.
func (o *BatchOrchestrator) AnalyzeOrders(ctx context.Context, orderRefs []string) (*BatchReport, error) {
	batch, _, err := o.analyze(ctx, dedupeRefs(orderRefs))
	return batch, err
}

func (o *BatchOrchestrator) AnalyzeAllActive(ctx context.Context) (*BatchReport, error) {
	listCtx, cancel := o.storeContext(ctx)
	refs, err := o.orders.ListActiveOrderRefs(listCtx)
	cancel()
	if err != nil {
		storeErrors.WithLabelValues("orders").Inc()
		return nil, fmt.Errorf("%w: list active orders: %w", ErrDataUnavailable, err)
	}
	batch, _, err := o.analyze(ctx, dedupeRefs(refs))
	return batch, err
}

func (o *BatchOrchestrator) analyze(ctx context.Context, refs []string) (*BatchReport, map[string]error, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "projection.AnalyzeBatch", trace.WithAttributes(attribute.Int("orders", len(refs))))
	defer span.End()
	if o.settings.BatchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.settings.BatchDeadline)
		defer cancel()
	}

	asOf := o.AsOf()
	horizon := o.settings.HorizonDays

	orderLines, orderErrs := o.resolveOrders(ctx, refs, asOf)

	products := distinctProducts(orderLines)
	projections, failures, err := o.resolveProjections(ctx, products, asOf, horizon)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	batch := &BatchReport{
		AsOf:    asOf,
		Reports: make(map[string]*OrderAvailabilityReport, len(refs)),
	}
	for _, ref := range refs {
		if err := orderErrs[ref]; err != nil {
			batch.Reports[ref] = &OrderAvailabilityReport{
				OrderRef: ref,
				Lines:    []OrderLineAvailability{},
				Reason:   failureReason(err),
			}
			continue
		}
		batch.Reports[ref] = o.classifier.ClassifyOrder(ref, orderLines[ref], projections, failures)
	}

	batch.Stats = summarize(batch.Reports)
	batch.Stats.ProductsEvaluated = len(projections)
	batch.Stats.ProductsFailed = len(failures)
	batch.Stats.ElapsedMs = time.Since(started).Milliseconds()
	batchDuration.Observe(time.Since(started).Seconds())

	span.SetAttributes(
		attribute.Int("products", len(products)),
		attribute.Int("products_failed", len(failures)),
	)
	if len(failures) > 0 || len(orderErrs) > 0 {
		o.logger.WithFields(logrus.Fields{
			"module":          "projection",
			"funcName":        "analyze",
			"orders":          len(refs),
			"orders_failed":   len(orderErrs),
			"products":        len(products),
			"products_failed": len(failures),
		}).Warn("batch finished with degraded results")
	}
	return batch, orderErrs, nil
}

func (o *BatchOrchestrator) resolveOrders(ctx context.Context, refs []string, asOf time.Time) (map[string][]OrderLine, map[string]error) {
	var (
		mu        sync.Mutex
		g         errgroup.Group
		lines     = make(map[string][]OrderLine, len(refs))
		orderErrs = make(map[string]error)
	)
	g.SetLimit(o.settings.Concurrency)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			orderErrs[ref] = err
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			result, err := o.readOrderLines(ctx, ref, asOf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				orderErrs[ref] = err
				return nil
			}
			lines[ref] = result
			return nil
		})
	}
	_ = g.Wait()
	return lines, orderErrs
}

func (o *BatchOrchestrator) readOrderLines(ctx context.Context, ref string, asOf time.Time) ([]OrderLine, error) {
	storeCtx, cancel := o.storeContext(ctx)
	defer cancel()
	lines, err := o.orders.ReadOrderLines(storeCtx, ref, asOf)
	switch {
	case err == nil:
		return lines, nil
	case errors.Is(err, ErrOrderNotFound):
		return nil, err
	case ctx.Err() != nil:
		// batch deadline or caller cancellation, not a store failure
		return nil, ctx.Err()
	default:
		storeErrors.WithLabelValues("orders").Inc()
		return nil, fmt.Errorf("%w: read order %s: %w", ErrDataUnavailable, ref, err)
	}
}

func (o *BatchOrchestrator) resolveProjections(ctx context.Context, products []ProductKey, asOf time.Time, horizon int) (map[ProductKey]*DailyProjection, map[ProductKey]string, error) {
	var (
		mu          sync.Mutex
		g           errgroup.Group
		defect      error
		projections = make(map[ProductKey]*DailyProjection, len(products))
		failures    = make(map[ProductKey]string)
	)
	g.SetLimit(o.settings.Concurrency)
	for _, product := range products {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			failures[product] = failureReason(err)
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			p, err := o.project(ctx, product, asOf, horizon)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				projections[product] = p
			case errors.Is(err, ErrInvalidProjectionInput):
				if defect == nil {
					defect = err
				}
			default:
				failures[product] = failureReason(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if defect != nil {
		return nil, nil, defect
	}
	return projections, failures, nil
}

func (o *BatchOrchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.settings.StoreTimeout > 0 {
		return context.WithTimeout(ctx, o.settings.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

func summarize(reports map[string]*OrderAvailabilityReport) BatchStats {
	stats := BatchStats{TotalOrders: len(reports)}
	if len(reports) == 0 {
		return stats
	}
	total := 0.0
	for _, r := range reports {
		total += r.PctAvailable
		if r.OverallOk {
			stats.FullyAvailable++
		}
		if r.HasRupture() {
			stats.WithRupture++
		}
	}
	stats.AvgPctAvailable = total / float64(len(reports))
	return stats
}

func distinctProducts(orderLines map[string][]OrderLine) []ProductKey {
	seen := make(map[ProductKey]struct{})
	for _, lines := range orderLines {
		for _, l := range lines {
			seen[l.Product] = struct{}{}
		}
	}
	products := make([]ProductKey, 0, len(seen))
	for p := range seen {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i] < products[j] })
	return products
}

func dedupeRefs(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
