package workflow

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/rupture_engine/config"
	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/sirupsen/logrus"
)

const (
	lastSweepKeyPrefix = "RuptureSweep:last:"
	sweepLockKey       = "lock:rupture-sweep"
)

type ActiveOrderAnalyzer interface {
	AnalyzeAllActive(ctx context.Context) (*projection.BatchReport, error)
}

// SweepSummary is what a sweep leaves behind for one business.
type SweepSummary struct {
	BusinessId     string                `json:"business_id"`
	AsOf           time.Time             `json:"as_of"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at"`
	Stats          projection.BatchStats `json:"stats"`
	RupturedOrders []string              `json:"ruptured_orders"`
	Error          string                `json:"error,omitempty"`
}

type SweepStore interface {
	Save(ctx context.Context, summary SweepSummary) error
	Last(ctx context.Context, businessId string) (*SweepSummary, bool, error)
}

// RedisSweepStore keeps the last summary per business in Redis.
type RedisSweepStore struct {
	ttl time.Duration
}

func NewRedisSweepStore(ttl time.Duration) *RedisSweepStore {
	return &RedisSweepStore{ttl: ttl}
}

func (s *RedisSweepStore) Save(ctx context.Context, summary SweepSummary) error {
	return config.SetRedisObject(ctx, lastSweepKeyPrefix+summary.BusinessId, summary, s.ttl)
}

func (s *RedisSweepStore) Last(ctx context.Context, businessId string) (*SweepSummary, bool, error) {
	var summary SweepSummary
	ok, err := config.GetRedisObject(ctx, lastSweepKeyPrefix+businessId, &summary)
	if err != nil || !ok {
		return nil, false, err
	}
	return &summary, true, nil
}

// ActiveSweep periodically analyzes every active order of every business. With a Locker set
// only one instance sweeps per interval.
type ActiveSweep struct {
	Analyzer ActiveOrderAnalyzer
	Store    SweepStore
	Locker   *redislock.Client
	Logger   *logrus.Logger
	OwnerId  string

	// Businesses lists the businesses to sweep; nil sweeps once without a business scope.
	Businesses func(ctx context.Context) ([]string, error)
	// Prepare decorates each business context, e.g. with request loaders.
	Prepare func(ctx context.Context) context.Context

	Interval time.Duration
	LockTTL  time.Duration

	now func() time.Time
}

func NewActiveSweep(analyzer ActiveOrderAnalyzer, store SweepStore, logger *logrus.Logger, interval time.Duration) *ActiveSweep {
	return &ActiveSweep{
		Analyzer: analyzer,
		Store:    store,
		Logger:   logger,
		OwnerId:  uuid.NewString(),
		Interval: interval,
		LockTTL:  interval,
		now:      time.Now,
	}
}

func (s *ActiveSweep) Run(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			config.LogError(s.Logger, "activeSweep.go", "Run", "SweepOnce", nil, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce returns the summaries it stored, or nil when another instance holds the lock.
func (s *ActiveSweep) SweepOnce(ctx context.Context) ([]SweepSummary, error) {
	if s.Locker != nil {
		// the lock is never released; it expires so other instances skip the rest of this interval
		_, err := s.Locker.Obtain(ctx, sweepLockKey, s.lockTTL(), &redislock.Options{Metadata: s.OwnerId})
		if errors.Is(err, redislock.ErrNotObtained) {
			s.Logger.WithFields(logrus.Fields{
				"module": "activeSweep",
				"owner":  s.OwnerId,
			}).Debug("sweep lock held elsewhere")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	businesses := []string{""}
	if s.Businesses != nil {
		ids, err := s.Businesses(ctx)
		if err != nil {
			return nil, err
		}
		businesses = ids
	}

	summaries := make([]SweepSummary, 0, len(businesses))
	for _, businessId := range businesses {
		if ctx.Err() != nil {
			return summaries, ctx.Err()
		}
		summary := s.sweepBusiness(ctx, businessId)
		if s.Store != nil {
			if err := s.Store.Save(ctx, summary); err != nil {
				config.LogError(s.Logger, "activeSweep.go", "SweepOnce", "Save summary", businessId, err)
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *ActiveSweep) sweepBusiness(ctx context.Context, businessId string) SweepSummary {
	if businessId != "" {
		ctx = utils.SetBusinessIdInContext(ctx, businessId)
	}
	ctx = utils.SetCorrelationIdInContext(ctx, "sweep-"+uuid.NewString())
	if s.Prepare != nil {
		ctx = s.Prepare(ctx)
	}

	summary := SweepSummary{
		BusinessId:     businessId,
		StartedAt:      s.clock(),
		RupturedOrders: []string{},
	}
	report, err := s.Analyzer.AnalyzeAllActive(ctx)
	summary.FinishedAt = s.clock()
	if err != nil {
		summary.Error = err.Error()
		config.LogError(s.Logger, "activeSweep.go", "sweepBusiness", "AnalyzeAllActive", businessId, err)
		return summary
	}

	summary.AsOf = report.AsOf
	summary.Stats = report.Stats
	for ref, r := range report.Reports {
		if r.HasRupture() {
			summary.RupturedOrders = append(summary.RupturedOrders, ref)
		}
	}
	sort.Strings(summary.RupturedOrders)

	s.Logger.WithFields(logrus.Fields{
		"module":       "activeSweep",
		"business_id":  businessId,
		"total_orders": report.Stats.TotalOrders,
		"with_rupture": report.Stats.WithRupture,
		"elapsed_ms":   report.Stats.ElapsedMs,
	}).Info("active order sweep finished")
	return summary
}

func (s *ActiveSweep) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return time.Minute
}

func (s *ActiveSweep) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
