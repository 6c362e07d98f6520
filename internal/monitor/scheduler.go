// Package monitor runs the monitoring cycles: one concurrent probe per
// registered service per tick, persistence of every terminal result, the
// in-memory live board, and the auto-detection trigger policy.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sirupsen/logrus"

	"github.com/sla-monitor/watch-server/internal/detect"
	"github.com/sla-monitor/watch-server/internal/model"
	"github.com/sla-monitor/watch-server/internal/prober"
	"github.com/sla-monitor/watch-server/internal/registry"
	"github.com/sla-monitor/watch-server/internal/store"
)

// ProbeFunc executes one probe. Injectable for testing.
type ProbeFunc func(ctx context.Context, sc registry.ServiceConfig) model.ProbeResult

// Config wires a Scheduler.
type Config struct {
	Registry   *registry.Registry
	Store      *store.Store
	Dispatcher *detect.Dispatcher
	Log        *logrus.Entry

	// AlertOnFailure elevates per-probe failure logs from DEBUG to WARN.
	AlertOnFailure bool

	// Probe overrides the prober for tests; nil uses a real Prober.
	Probe ProbeFunc
}

// Scheduler fires a monitoring cycle every registry interval. Cycles
// never overlap: a tick that arrives while a cycle is still running is
// skipped.
type Scheduler struct {
	registry   *registry.Registry
	store      *store.Store
	dispatcher *detect.Dispatcher
	probe      ProbeFunc
	log        *logrus.Entry
	alert      bool

	live        *xsync.Map[string, model.LiveStatus]
	lastSession atomic.Pointer[model.MonitoringSession]
	sessionSeq  atomic.Int64

	cycleRunning atomic.Bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg Config) *Scheduler {
	probe := cfg.Probe
	if probe == nil {
		p := prober.New(cfg.Log.WithField("component", "prober"))
		probe = p.Probe
	}
	return &Scheduler{
		registry:   cfg.Registry,
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		probe:      probe,
		log:        cfg.Log,
		alert:      cfg.AlertOnFailure,
		live:       xsync.NewMap[string, model.LiveStatus](),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the scheduler loop: one cycle immediately, then one per
// interval. ctx cancels in-flight probes on shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.launchCycle(ctx)

		ticker := time.NewTicker(s.registry.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.launchCycle(ctx)
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop signals the loop to stop and waits for any in-flight cycle. The
// caller cancels the context passed to Start to abort probes early.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// launchCycle starts a cycle goroutine unless one is still running, in
// which case the tick is skipped.
func (s *Scheduler) launchCycle(ctx context.Context) {
	if !s.cycleRunning.CompareAndSwap(false, true) {
		s.log.Warn("previous cycle still running, skipping tick")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.cycleRunning.Store(false)
		s.runCycle(ctx)
	}()
}

// runCycle probes every registered service concurrently, persists the
// terminal results, refreshes the live board, and fires the
// auto-detection triggers.
func (s *Scheduler) runCycle(ctx context.Context) {
	services := s.registry.Services()
	start := time.Now().UTC()

	results := make([]model.ProbeResult, len(services))
	var inner sync.WaitGroup
	for i, sc := range services {
		inner.Add(1)
		go func(i int, sc registry.ServiceConfig) {
			defer inner.Done()
			results[i] = s.probe(ctx, sc)
		}(i, sc)
	}
	inner.Wait()

	session := model.MonitoringSession{
		SessionID: s.nextSessionID(),
		StartTime: start,
	}

	var candidates []string
	checkIDs := make(map[string]string)
	var latencySum int64

	for i, res := range results {
		if res.Cancelled() {
			s.log.WithField("service", res.ServiceID).Debug("probe cancelled, result dropped")
			continue
		}
		sc := services[i]

		changed := s.updateLiveBoard(res)
		if !res.Success() || changed {
			candidates = append(candidates, res.ServiceID)
		}
		if !res.Success() {
			entry := s.log.WithFields(logrus.Fields{
				"service": res.ServiceID,
				"status":  res.Status,
				"http":    res.HTTPStatus,
				"error":   res.Error,
			})
			if s.alert {
				entry.Warn("probe failed")
			} else {
				entry.Debug("probe failed")
			}
		}

		checkID, err := s.persist(ctx, sc, res)
		if err != nil {
			// Drop this service's batch; the rest of the cycle continues.
			s.log.WithField("service", res.ServiceID).Warnf("dropping probe batch: %v", err)
		} else {
			checkIDs[res.ServiceID] = checkID
		}

		session.Total++
		latencySum += res.ResponseTimeMs
		switch res.Status {
		case model.StatusOperational:
			session.Operational++
		case model.StatusDegraded:
			session.Degraded++
		case model.StatusDown:
			session.Down++
		}
		session.Results = append(session.Results, res)
	}

	session.EndTime = time.Now().UTC()
	if session.Total > 0 {
		session.AvgResponseTimeMs = latencySum / int64(session.Total)
	}
	s.lastSession.Store(&session)

	s.log.WithFields(logrus.Fields{
		"session":     session.SessionID,
		"total":       session.Total,
		"operational": session.Operational,
		"degraded":    session.Degraded,
		"down":        session.Down,
		"avg_ms":      session.AvgResponseTimeMs,
		"took":        session.EndTime.Sub(session.StartTime).Round(time.Millisecond).String(),
	}).Info("monitoring cycle complete")

	s.dispatch(ctx, candidates, checkIDs)
}

// ProbeNow performs one immediate probe of a single service, persists
// the result, and always fires a single-service analyze trigger. Used by
// the manual probe endpoint.
func (s *Scheduler) ProbeNow(ctx context.Context, serviceID string) (model.ProbeResult, error) {
	sc, ok := s.registry.Get(serviceID)
	if !ok {
		return model.ProbeResult{}, store.ErrServiceNotFound
	}

	res := s.probe(ctx, sc)
	if res.Cancelled() {
		return res, ctx.Err()
	}

	s.updateLiveBoard(res)
	checkID, err := s.persist(ctx, sc, res)
	if err != nil {
		s.log.WithField("service", serviceID).Warnf("dropping probe batch: %v", err)
		checkID = ""
	}
	if s.dispatcher != nil {
		s.dispatcher.AnalyzeSingle(ctx, serviceID, checkID)
	}
	return res, nil
}

// persist runs the four-write batch for one result and returns the new
// check-log id.
func (s *Scheduler) persist(ctx context.Context, sc registry.ServiceConfig, res model.ProbeResult) (string, error) {
	errType, bucket := prober.Classify(res)
	rec := store.ProbeRecord{
		CheckID:   uuid.NewString(),
		Endpoint:  sc.URL,
		Method:    sc.Method,
		Result:    res,
		ErrorType: errType,
		Bucket:    bucket,
	}
	if err := s.store.RecordProbe(ctx, rec); err != nil {
		return "", err
	}
	return rec.CheckID, nil
}

// updateLiveBoard refreshes the per-service live view and reports
// whether the live status changed from the previous observation.
func (s *Scheduler) updateLiveBoard(res model.ProbeResult) (changed bool) {
	prev, had := s.live.Load(res.ServiceID)
	s.live.Store(res.ServiceID, model.LiveStatus{
		ServiceID:      res.ServiceID,
		Status:         res.Status,
		HTTPStatus:     res.HTTPStatus,
		ResponseTimeMs: res.ResponseTimeMs,
		CheckedAt:      res.Timestamp,
	})
	return had && prev.Status != res.Status
}

// dispatch fires the post-cycle auto-detection triggers: one candidate
// gets a single analyze with its check id, several get a batch.
func (s *Scheduler) dispatch(ctx context.Context, candidates []string, checkIDs map[string]string) {
	if s.dispatcher == nil || len(candidates) == 0 {
		return
	}
	if len(candidates) == 1 {
		s.dispatcher.AnalyzeSingle(ctx, candidates[0], checkIDs[candidates[0]])
		return
	}
	s.dispatcher.AnalyzeBatch(ctx, candidates)
}

// LiveBoard returns the current per-service live statuses keyed by id.
func (s *Scheduler) LiveBoard() map[string]model.LiveStatus {
	out := make(map[string]model.LiveStatus, s.live.Size())
	s.live.Range(func(id string, st model.LiveStatus) bool {
		out[id] = st
		return true
	})
	return out
}

// LatestSession returns the most recently completed cycle's session.
func (s *Scheduler) LatestSession() (model.MonitoringSession, bool) {
	p := s.lastSession.Load()
	if p == nil {
		return model.MonitoringSession{}, false
	}
	return *p, true
}

func (s *Scheduler) nextSessionID() string {
	return fmt.Sprintf("session-%d-%s", s.sessionSeq.Add(1), uuid.NewString()[:8])
}
