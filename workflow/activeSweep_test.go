package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/shopspring/decimal"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	seen     []string
	prepared int
	failFor  string
}

type preparedKey struct{}

func (a *fakeAnalyzer) AnalyzeAllActive(ctx context.Context) (*projection.BatchReport, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	a.mu.Lock()
	a.seen = append(a.seen, businessId)
	if ctx.Value(preparedKey{}) != nil {
		a.prepared++
	}
	a.mu.Unlock()

	if businessId == a.failFor {
		return nil, projection.ErrDataUnavailable
	}
	ruptured := &projection.OrderAvailabilityReport{
		OrderRef: "SO-2",
		Lines: []projection.OrderLineAvailability{
			{Product: "S:1", RequestedQty: decimal.NewFromInt(5), Verdict: projection.VerdictRuptured},
		},
	}
	ok := &projection.OrderAvailabilityReport{OrderRef: "SO-1", PctAvailable: 1, OverallOk: true}
	return &projection.BatchReport{
		AsOf:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Reports: map[string]*projection.OrderAvailabilityReport{"SO-1": ok, "SO-2": ruptured},
		Stats:   projection.BatchStats{TotalOrders: 2, FullyAvailable: 1, WithRupture: 1},
	}, nil
}

type memorySweepStore struct {
	mu   sync.Mutex
	last map[string]SweepSummary
}

func (s *memorySweepStore) Save(_ context.Context, summary SweepSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = map[string]SweepSummary{}
	}
	s.last[summary.BusinessId] = summary
	return nil
}

func (s *memorySweepStore) Last(_ context.Context, businessId string) (*SweepSummary, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.last[businessId]
	if !ok {
		return nil, false, nil
	}
	return &summary, true, nil
}

func TestActiveSweep_SweepsEveryBusiness(t *testing.T) {
	analyzer := &fakeAnalyzer{failFor: "b2"}
	store := &memorySweepStore{}
	sweep := NewActiveSweep(analyzer, store, quietLogger(), time.Minute)
	sweep.Businesses = func(context.Context) ([]string, error) { return []string{"b1", "b2"}, nil }
	sweep.Prepare = func(ctx context.Context) context.Context { return context.WithValue(ctx, preparedKey{}, true) }

	summaries, err := sweep.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if analyzer.prepared != 2 {
		t.Fatalf("prepared %d contexts, want 2", analyzer.prepared)
	}

	b1, ok, _ := store.Last(context.Background(), "b1")
	if !ok {
		t.Fatalf("no summary stored for b1")
	}
	if b1.Stats.WithRupture != 1 || len(b1.RupturedOrders) != 1 || b1.RupturedOrders[0] != "SO-2" {
		t.Fatalf("b1 summary = %+v", b1)
	}
	if b1.Error != "" {
		t.Fatalf("b1 error = %q", b1.Error)
	}

	b2, ok, _ := store.Last(context.Background(), "b2")
	if !ok || b2.Error == "" {
		t.Fatalf("b2 summary should carry the failure, got %+v", b2)
	}
}

func TestActiveSweep_UnscopedWithoutBusinessList(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	sweep := NewActiveSweep(analyzer, nil, quietLogger(), time.Minute)

	summaries, err := sweep.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if len(summaries) != 1 || analyzer.seen[0] != "" {
		t.Fatalf("want one unscoped sweep, got %v", analyzer.seen)
	}
}

func TestActiveSweep_BusinessListFailure(t *testing.T) {
	boom := errors.New("db down")
	sweep := NewActiveSweep(&fakeAnalyzer{}, nil, quietLogger(), time.Minute)
	sweep.Businesses = func(context.Context) ([]string, error) { return nil, boom }

	if _, err := sweep.SweepOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("SweepOnce error = %v, want %v", err, boom)
	}
}

func TestActiveSweep_RunStopsOnCancel(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	sweep := NewActiveSweep(analyzer, nil, quietLogger(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sweep.Run(ctx)
		close(done)
	}()
	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	if len(analyzer.seen) < 2 {
		t.Fatalf("swept %d times, want at least 2", len(analyzer.seen))
	}
}
