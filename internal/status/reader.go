// Package status computes the derived read views over the persisted
// monitoring tables: uptime percentages, SLA compliance, trends, monthly
// grids, and the whole-system snapshot.
package status

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/maypok86/otter"
	"github.com/zeebo/xxh3"

	"github.com/sla-monitor/watch-server/internal/model"
	"github.com/sla-monitor/watch-server/internal/store"
)

const (
	cacheCapacity = 4096
	cacheTTL      = 30 * time.Second
)

// Config wires a Reader.
type Config struct {
	Store *store.Store
	// Interval is the monitoring cycle interval, used to convert failed
	// check counts into downtime minutes.
	Interval time.Duration
	// SLATarget is the default compliance target percentage.
	SLATarget float64
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Reader serves the derived views. Results are cached for a short TTL;
// writers never invalidate, a status page tolerates 30 s of staleness.
type Reader struct {
	store     *store.Store
	interval  time.Duration
	slaTarget float64
	now       func() time.Time
	cache     otter.Cache[uint64, any]
}

// NewReader creates a Reader.
func NewReader(cfg Config) *Reader {
	cache, err := otter.MustBuilder[uint64, any](cacheCapacity).
		Cost(func(_ uint64, _ any) uint32 { return 1 }).
		WithTTL(cacheTTL).
		Build()
	if err != nil {
		panic("status: failed to create reader cache: " + err.Error())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reader{
		store:     cfg.Store,
		interval:  cfg.Interval,
		slaTarget: cfg.SLATarget,
		now:       now,
		cache:     cache,
	}
}

// Close releases the reader cache.
func (r *Reader) Close() {
	r.cache.Close()
}

// SLATarget returns the configured default target percentage.
func (r *Reader) SLATarget() float64 { return r.slaTarget }

func cacheKey(view, serviceID string, window int) uint64 {
	return xxh3.HashString(fmt.Sprintf("%s|%s|%d", view, serviceID, window))
}

// UptimePercentage returns the uptime over the last `days` buckets as a
// percentage with two-decimal rounding. Operational scores 1.0, partial
// outage 0.75, major outage 0; no-data and empty days are excluded from
// both numerator and denominator. Values at or above 99.95 report as
// 99.99. A window with no counted days reports 0.
func (r *Reader) UptimePercentage(ctx context.Context, serviceID string, days int) (float64, error) {
	key := cacheKey("uptime", serviceID, days)
	if v, ok := r.cache.Get(key); ok {
		return v.(float64), nil
	}

	pct, _, err := r.uptimeOverWindow(ctx, serviceID, days, true)
	if err != nil {
		return 0, err
	}
	r.cache.Set(key, pct)
	return pct, nil
}

// uptimeOverWindow computes the uptime percentage and the per-day scored
// uptimes (counted days only, calendar order) for the trailing window.
func (r *Reader) uptimeOverWindow(ctx context.Context, serviceID string, days int, nice bool) (float64, []float64, error) {
	if days <= 0 {
		return 0, nil, fmt.Errorf("status: days must be positive, got %d", days)
	}
	if _, err := r.store.GetService(ctx, serviceID); err != nil {
		return 0, nil, err
	}

	today := r.now().UTC()
	from := model.DayKey(today.AddDate(0, 0, -(days - 1)))
	to := model.DayKey(today)

	buckets, err := r.store.BucketsInRange(ctx, serviceID, from, to)
	if err != nil {
		return 0, nil, err
	}

	var sum float64
	var daily []float64
	for _, b := range buckets {
		score, counted := b.Status.UptimeScore()
		if !counted {
			continue
		}
		sum += score
		daily = append(daily, round2(score*100))
	}
	if len(daily) == 0 {
		return 0, nil, nil
	}

	pct := round2(sum / float64(len(daily)) * 100)
	if nice && pct >= 99.95 {
		pct = 99.99
	}
	return pct, daily, nil
}

// SystemSnapshot reduces the newest per-service uptime bucket into a
// whole-registry health level. It is a pure function of the current
// bucket table.
func (r *Reader) SystemSnapshot(ctx context.Context) (model.SystemStatus, error) {
	latest, err := r.store.LatestBuckets(ctx)
	if err != nil {
		return model.SystemStatus{}, err
	}
	statuses := make([]model.BucketStatus, 0, len(latest))
	for _, b := range latest {
		statuses = append(statuses, b.Status)
	}
	return model.ReduceSystemStatus(statuses, r.now().UTC()), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
