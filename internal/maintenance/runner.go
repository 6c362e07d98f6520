// Package maintenance runs the daily housekeeping job: aggregate rebuild,
// retention pruning, and the system status snapshot.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sla-monitor/watch-server/internal/model"
	"github.com/sla-monitor/watch-server/internal/store"
)

const (
	checkRetentionDays     = 30
	sampleRetentionDays    = 30
	aggregateRetentionDays = 90
)

// Config wires a Runner.
type Config struct {
	Store *store.Store
	// Schedule is a standard 5-field cron expression; validated by the
	// config loader before it reaches this package.
	Schedule string
	// BucketRetentionDays is the daily uptime bucket horizon; must cover
	// at least a full year so the yearly grid stays complete.
	BucketRetentionDays int
	Log                 *logrus.Entry
	// Now overrides the clock in tests; nil means time.Now.
	Now func() time.Time
}

// Runner executes the maintenance sequence on a cron schedule and on
// demand. Each step is isolated: a failing step is logged and the rest
// still run.
type Runner struct {
	store               *store.Store
	bucketRetentionDays int
	log                 *logrus.Entry
	now                 func() time.Time

	cron *cron.Cron
}

// New creates a Runner and registers the cron entry; nothing fires until
// Start.
func New(cfg Config) (*Runner, error) {
	r := &Runner{
		store:               cfg.Store,
		bucketRetentionDays: cfg.BucketRetentionDays,
		log:                 cfg.Log,
		now:                 cfg.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(cfg.Schedule, func() {
		r.RunNow(context.Background())
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins firing the daily job.
func (r *Runner) Start() {
	r.cron.Start()
	r.log.Info("maintenance schedule started")
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("maintenance schedule stopped")
}

// Report summarizes one maintenance run.
type Report struct {
	Day               string             `json:"day"`
	RebuiltAggregates int64              `json:"rebuilt_aggregates"`
	DeletedChecks     int64              `json:"deleted_checks"`
	DeletedSamples    int64              `json:"deleted_samples"`
	DeletedAggregates int64              `json:"deleted_aggregates"`
	DeletedBuckets    int64              `json:"deleted_buckets"`
	SystemStatus      model.SystemStatus `json:"system_status"`
	Errors            []string           `json:"errors,omitempty"`
}

// RunNow executes the full maintenance sequence immediately and returns
// what happened. Step failures are collected, never propagated.
func (r *Runner) RunNow(ctx context.Context) Report {
	now := r.now().UTC()
	yesterday := model.DayKey(now.AddDate(0, 0, -1))
	rep := Report{Day: yesterday}

	r.log.WithField("day", yesterday).Info("maintenance run starting")

	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			r.log.Warnf("maintenance step %s failed: %v", name, err)
			rep.Errors = append(rep.Errors, name+": "+err.Error())
		}
	}

	step("rebuild-aggregates", func() error {
		n, err := r.store.RebuildDailyAggregates(ctx, yesterday)
		rep.RebuiltAggregates = n
		return err
	})
	step("prune-checks", func() error {
		n, err := r.store.DeleteChecksBefore(ctx, now.AddDate(0, 0, -checkRetentionDays))
		rep.DeletedChecks = n
		return err
	})
	step("prune-samples", func() error {
		n, err := r.store.DeleteSamplesBefore(ctx, now.AddDate(0, 0, -sampleRetentionDays))
		rep.DeletedSamples = n
		return err
	})
	step("prune-aggregates", func() error {
		n, err := r.store.DeleteAggregatesBefore(ctx, model.DayKey(now.AddDate(0, 0, -aggregateRetentionDays)))
		rep.DeletedAggregates = n
		return err
	})
	step("prune-buckets", func() error {
		n, err := r.store.DeleteBucketsBefore(ctx, model.DayKey(now.AddDate(0, 0, -r.bucketRetentionDays)))
		rep.DeletedBuckets = n
		return err
	})
	step("system-status", func() error {
		latest, err := r.store.LatestBuckets(ctx)
		if err != nil {
			return err
		}
		buckets := make([]model.BucketStatus, 0, len(latest))
		for _, b := range latest {
			buckets = append(buckets, b.Status)
		}
		st := model.ReduceSystemStatus(buckets, now)
		rep.SystemStatus = st
		r.log.WithFields(logrus.Fields{
			"status":  st.OverallStatus,
			"message": st.Message,
		}).Info("system status snapshot")
		return r.store.AppendSystemStatus(ctx, st)
	})

	r.log.WithFields(logrus.Fields{
		"day":                rep.Day,
		"rebuilt":            rep.RebuiltAggregates,
		"deleted_checks":     rep.DeletedChecks,
		"deleted_samples":    rep.DeletedSamples,
		"deleted_aggregates": rep.DeletedAggregates,
		"deleted_buckets":    rep.DeletedBuckets,
		"failed_steps":       len(rep.Errors),
	}).Info("maintenance run complete")
	return rep
}
