package projection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string][]OrderLine
	active []string
	broken map[string]error
}

func (f *fakeOrders) ReadOrderLines(ctx context.Context, ref string, asOf time.Time) ([]OrderLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.broken[ref]; err != nil {
		return nil, err
	}
	lines, ok := f.orders[ref]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return lines, nil
}

func (f *fakeOrders) ListActiveOrderRefs(ctx context.Context) ([]string, error) {
	return f.active, nil
}

func line(ref string, product ProductKey, qty int64, day int) OrderLine {
	return OrderLine{LineRef: ref, Product: product, Qty: decimal.NewFromInt(qty), Day: day}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.HorizonDays = 6
	s.Concurrency = 4
	s.StoreTimeout = time.Second
	s.BatchDeadline = 5 * time.Second
	return s
}

func newTestOrchestrator(store *fakeStore, orders OrderSource, settings Settings) *BatchOrchestrator {
	cache := NewProjectionCache(WithTTL(time.Minute), WithCacheLogger(quietLogger()))
	agg := NewMovementAggregator(store, store, settings.StoreTimeout, quietLogger())
	return NewBatchOrchestrator(cache, agg, orders, settings, quietLogger(),
		WithOrchestratorClock(func() time.Time { return testAsOf.Add(9 * time.Hour) }))
}

func TestAnalyzeOrder_Scenario(t *testing.T) {
	store := newFakeStore()
	store.balances["SKU-1"] = decimal.NewFromInt(100)
	for day, qty := range []int64{-30, -40, 50, -30} {
		store.events["SKU-1"] = append(store.events["SKU-1"], Adjustment{Product: "SKU-1", Day: day, QtySigned: decimal.NewFromInt(qty)})
	}
	orders := &fakeOrders{orders: map[string][]OrderLine{
		"SO-1": {line("1", "SKU-1", 40, 1)},
		"SO-2": {line("1", "SKU-1", 30, 1), line("2", "SKU-1", 20, 3)},
	}}
	o := newTestOrchestrator(store, orders, testSettings())

	report, err := o.AnalyzeOrder(context.Background(), "SO-1")
	require.NoError(t, err)
	assert.Equal(t, VerdictRuptured, report.Lines[0].Verdict)
	assert.False(t, report.OverallOk)

	report, err = o.AnalyzeOrder(context.Background(), "SO-2")
	require.NoError(t, err)
	assert.True(t, report.OverallOk)
	assert.Equal(t, 1.0, report.PctAvailable)
	assert.Equal(t, int64(1), store.eventReads.Load(), "second order is served from cache")
}

func TestAnalyzeOrder_NotFound(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakeOrders{orders: map[string][]OrderLine{}}, testSettings())
	_, err := o.AnalyzeOrder(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrOrderNotFound))
}

func TestAnalyzeOrder_OrderReadFailure(t *testing.T) {
	orders := &fakeOrders{broken: map[string]error{"SO-1": errors.New("db down")}}
	o := newTestOrchestrator(newFakeStore(), orders, testSettings())
	_, err := o.AnalyzeOrder(context.Background(), "SO-1")
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestAnalyzeOrders_DeduplicatesProducts(t *testing.T) {
	store := newFakeStore()
	store.balances["A"] = decimal.NewFromInt(1000)
	store.balances["B"] = decimal.NewFromInt(1000)
	orders := &fakeOrders{orders: map[string][]OrderLine{}}
	refs := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		ref := fmt.Sprintf("SO-%d", i)
		refs = append(refs, ref)
		orders.orders[ref] = []OrderLine{line("1", "A", 1, 0), line("2", "B", 1, 2)}
	}
	o := newTestOrchestrator(store, orders, testSettings())

	batch, err := o.AnalyzeOrders(context.Background(), append(refs, refs[0]))
	require.NoError(t, err)
	assert.Len(t, batch.Reports, 50)
	assert.Equal(t, int64(2), store.eventReads.Load())
	assert.Equal(t, 50, batch.Stats.TotalOrders)
	assert.Equal(t, 50, batch.Stats.FullyAvailable)
	assert.Equal(t, 2, batch.Stats.ProductsEvaluated)
	assert.Equal(t, 1.0, batch.Stats.AvgPctAvailable)
}

func TestAnalyzeOrders_PartialFailure(t *testing.T) {
	store := newFakeStore()
	store.balances["A"] = decimal.NewFromInt(10)
	store.failing["B"] = errors.New("timeout talking to ledger")
	orders := &fakeOrders{
		orders: map[string][]OrderLine{
			"SO-1": {line("1", "A", 5, 0), line("2", "B", 5, 0)},
			"SO-2": {line("1", "A", 5, 0)},
		},
		broken: map[string]error{"SO-3": errors.New("bad row")},
	}
	o := newTestOrchestrator(store, orders, testSettings())

	batch, err := o.AnalyzeOrders(context.Background(), []string{"SO-1", "SO-2", "SO-3"})
	require.NoError(t, err)

	so1 := batch.Reports["SO-1"]
	assert.Equal(t, VerdictOK, so1.Lines[0].Verdict)
	assert.Equal(t, VerdictAtRisk, so1.Lines[1].Verdict)
	assert.Contains(t, so1.Lines[1].Reason, "data unavailable")
	assert.Equal(t, 0.5, so1.PctAvailable)

	assert.True(t, batch.Reports["SO-2"].OverallOk)

	so3 := batch.Reports["SO-3"]
	assert.False(t, so3.OverallOk)
	assert.Equal(t, 0.0, so3.PctAvailable)
	assert.NotEmpty(t, so3.Reason)

	assert.Equal(t, 1, batch.Stats.ProductsFailed)
	assert.Equal(t, 1, batch.Stats.FullyAvailable)
}

func TestAnalyzeOrders_DeadlineMarksNotEvaluated(t *testing.T) {
	store := newFakeStore()
	store.delay = 500 * time.Millisecond
	orders := &fakeOrders{orders: map[string][]OrderLine{"SO-1": {line("1", "A", 1, 0)}}}
	settings := testSettings()
	settings.BatchDeadline = 50 * time.Millisecond
	o := newTestOrchestrator(store, orders, settings)

	batch, err := o.AnalyzeOrders(context.Background(), []string{"SO-1"})
	require.NoError(t, err)
	l := batch.Reports["SO-1"].Lines[0]
	assert.Equal(t, VerdictAtRisk, l.Verdict)
	assert.True(t, strings.HasPrefix(l.Reason, "not evaluated"), l.Reason)
}

type gatedStore struct {
	*fakeStore
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (g *gatedStore) ReadEvents(ctx context.Context, product ProductKey, asOf time.Time, horizon int) ([]StockEvent, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return g.fakeStore.ReadEvents(ctx, product, asOf, horizon)
}

func TestAnalyzeOrders_BoundedConcurrency(t *testing.T) {
	store := &gatedStore{fakeStore: newFakeStore()}
	orders := &fakeOrders{orders: map[string][]OrderLine{}}
	refs := []string{}
	for i := 0; i < 20; i++ {
		ref := fmt.Sprintf("SO-%d", i)
		refs = append(refs, ref)
		orders.orders[ref] = []OrderLine{line("1", ProductKey(fmt.Sprintf("P%d", i)), 0, 0)}
	}
	settings := testSettings()
	settings.Concurrency = 3
	cache := NewProjectionCache(WithCacheLogger(quietLogger()))
	agg := NewMovementAggregator(store, store, time.Second, quietLogger())
	o := NewBatchOrchestrator(cache, agg, orders, settings, quietLogger())

	batch, err := o.AnalyzeOrders(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, 20, batch.Stats.ProductsEvaluated)
	assert.LessOrEqual(t, store.peak.Load(), int64(3))
}

func TestAnalyzeAllActive(t *testing.T) {
	store := newFakeStore()
	store.balances["A"] = decimal.NewFromInt(1)
	orders := &fakeOrders{
		orders: map[string][]OrderLine{"SO-1": {line("1", "A", 1, 0)}, "SO-2": {line("1", "A", 5, 0)}},
		active: []string{"SO-1", "SO-2"},
	}
	o := newTestOrchestrator(store, orders, testSettings())

	batch, err := o.AnalyzeAllActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Stats.TotalOrders)
	assert.Equal(t, 1, batch.Stats.WithRupture)
	assert.Equal(t, testAsOf, batch.AsOf)
}

type blockingOrders struct{}

func (blockingOrders) ReadOrderLines(ctx context.Context, ref string, asOf time.Time) ([]OrderLine, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingOrders) ListActiveOrderRefs(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestAnalyzeOrders_DeadlineDuringOrderDispatch(t *testing.T) {
	refs := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		refs = append(refs, fmt.Sprintf("SO-%d", i))
	}
	settings := testSettings()
	settings.Concurrency = 64
	settings.BatchDeadline = 5 * time.Millisecond
	o := newTestOrchestrator(newFakeStore(), blockingOrders{}, settings)

	batch, err := o.AnalyzeOrders(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, batch.Reports, 400)
	for _, ref := range refs {
		r := batch.Reports[ref]
		require.NotNil(t, r, ref)
		assert.False(t, r.OverallOk, ref)
		assert.NotEmpty(t, r.Reason, ref)
	}
}

func TestAnalyzeOrders_DeadlineDuringProductDispatch(t *testing.T) {
	store := newFakeStore()
	store.delay = time.Hour
	orders := &fakeOrders{orders: map[string][]OrderLine{}}
	refs := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		ref := fmt.Sprintf("SO-%d", i)
		refs = append(refs, ref)
		orders.orders[ref] = []OrderLine{line("1", ProductKey(fmt.Sprintf("P%d", i)), 1, 0)}
	}
	settings := testSettings()
	settings.Concurrency = 64
	settings.StoreTimeout = time.Second
	settings.BatchDeadline = 100 * time.Millisecond
	o := newTestOrchestrator(store, orders, settings)

	batch, err := o.AnalyzeOrders(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, batch.Reports, 400)
	for _, ref := range refs {
		require.Len(t, batch.Reports[ref].Lines, 1, ref)
		assert.Equal(t, VerdictAtRisk, batch.Reports[ref].Lines[0].Verdict, ref)
	}
	assert.Equal(t, 400, batch.Stats.ProductsFailed)
}

// businessStore only shows stock to its owner.
type businessStore struct {
	*fakeStore
	owner string
}

func (s *businessStore) ReadCurrentBalance(ctx context.Context, product ProductKey, asOf time.Time) (decimal.Decimal, error) {
	if businessId, _ := utils.GetBusinessIdFromContext(ctx); businessId != s.owner {
		return decimal.Zero, nil
	}
	return s.fakeStore.ReadCurrentBalance(ctx, product, asOf)
}

func TestProjection_IsolatedPerBusiness(t *testing.T) {
	inner := newFakeStore()
	inner.balances["S:12"] = decimal.NewFromInt(100)
	store := &businessStore{fakeStore: inner, owner: "biz-a"}
	settings := testSettings()
	cache := NewProjectionCache(WithTTL(time.Hour), WithCacheLogger(quietLogger()))
	agg := NewMovementAggregator(store, store, settings.StoreTimeout, quietLogger())
	o := NewBatchOrchestrator(cache, agg, &fakeOrders{}, settings, quietLogger(),
		WithOrchestratorClock(func() time.Time { return testAsOf }))

	other, err := o.Projection(utils.SetBusinessIdInContext(context.Background(), "biz-b"), "S:12", 3)
	require.NoError(t, err)
	assert.True(t, other.InitialBalance.IsZero())

	owner, err := o.Projection(utils.SetBusinessIdInContext(context.Background(), "biz-a"), "S:12", 3)
	require.NoError(t, err)
	assert.True(t, owner.InitialBalance.Equal(decimal.NewFromInt(100)), owner.InitialBalance.String())

	again, err := o.Projection(utils.SetBusinessIdInContext(context.Background(), "biz-b"), "S:12", 3)
	require.NoError(t, err)
	assert.Same(t, other, again)
}
