package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sla-monitor/watch-server/internal/detect"
	"github.com/sla-monitor/watch-server/internal/model"
	"github.com/sla-monitor/watch-server/internal/registry"
	"github.com/sla-monitor/watch-server/internal/state"
	"github.com/sla-monitor/watch-server/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "watch.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log, _ := logtest.NewNullLogger()
	return store.New(db, log.WithField("component", "store"))
}

func testRegistry(ids ...string) *registry.Registry {
	services := make([]registry.ServiceConfig, 0, len(ids))
	for _, id := range ids {
		services = append(services, registry.ServiceConfig{
			ID:     id,
			Name:   id,
			URL:    "https://" + id + ".example.com/health",
			Method: http.MethodGet,
		})
	}
	return registry.NewStatic(services, time.Minute)
}

func syncRegistry(t *testing.T, reg *registry.Registry, st *store.Store) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	if err := SyncServices(context.Background(), reg, st, log.WithField("component", "init")); err != nil {
		t.Fatalf("SyncServices: %v", err)
	}
}

func okProbe(sc registry.ServiceConfig, rt int64) model.ProbeResult {
	return model.ProbeResult{
		ServiceID:      sc.ID,
		URL:            sc.URL,
		Status:         model.StatusOperational,
		HTTPStatus:     200,
		ResponseTimeMs: rt,
		Timestamp:      time.Now().UTC(),
		AttemptsUsed:   1,
	}
}

func downProbe(sc registry.ServiceConfig) model.ProbeResult {
	return model.ProbeResult{
		ServiceID:      sc.ID,
		URL:            sc.URL,
		Status:         model.StatusDown,
		HTTPStatus:     0,
		ResponseTimeMs: 5000,
		Timestamp:      time.Now().UTC(),
		Error:          "dial tcp: connection refused",
		ErrorKind:      model.ErrKindConnection,
		AttemptsUsed:   3,
	}
}

func TestCyclePersistsAndAggregates(t *testing.T) {
	reg := testRegistry("id-recognition", "face-compare")
	st := testStore(t)
	syncRegistry(t, reg, st)

	log, _ := logtest.NewNullLogger()
	s := NewScheduler(Config{
		Registry: reg,
		Store:    st,
		Log:      log.WithField("component", "monitor"),
		Probe: func(_ context.Context, sc registry.ServiceConfig) model.ProbeResult {
			if sc.ID == "face-compare" {
				return downProbe(sc)
			}
			return okProbe(sc, 80)
		},
	})

	s.runCycle(context.Background())

	session, ok := s.LatestSession()
	if !ok {
		t.Fatal("no session after cycle")
	}
	if session.Total != 2 || session.Operational != 1 || session.Down != 1 {
		t.Errorf("session counts = %+v", session)
	}
	if !strings.HasPrefix(session.SessionID, "session-1-") {
		t.Errorf("session id = %q", session.SessionID)
	}

	ctx := context.Background()
	checks, err := st.RecentChecks(ctx, "id-recognition", 10, time.Now().Add(time.Hour))
	if err != nil || len(checks) != 1 {
		t.Fatalf("checks = %v, err = %v", checks, err)
	}
	if !checks[0].IsSuccess {
		t.Error("operational probe should persist as success")
	}

	checks, err = st.RecentChecks(ctx, "face-compare", 10, time.Now().Add(time.Hour))
	if err != nil || len(checks) != 1 {
		t.Fatalf("checks = %v, err = %v", checks, err)
	}
	if checks[0].IsSuccess || checks[0].ErrorType == nil {
		t.Errorf("down probe row = %+v", checks[0])
	}

	board := s.LiveBoard()
	if len(board) != 2 {
		t.Fatalf("live board = %v", board)
	}
	if board["face-compare"].Status != model.StatusDown {
		t.Errorf("live status = %q", board["face-compare"].Status)
	}
}

func TestCancelledResultsAreDropped(t *testing.T) {
	reg := testRegistry("id-recognition")
	st := testStore(t)
	syncRegistry(t, reg, st)

	log, _ := logtest.NewNullLogger()
	s := NewScheduler(Config{
		Registry: reg,
		Store:    st,
		Log:      log.WithField("component", "monitor"),
		Probe: func(_ context.Context, sc registry.ServiceConfig) model.ProbeResult {
			return model.ProbeResult{
				ServiceID: sc.ID,
				URL:       sc.URL,
				Status:    model.StatusDown,
				ErrorKind: model.ErrKindCancelled,
				Timestamp: time.Now().UTC(),
			}
		},
	})

	s.runCycle(context.Background())

	session, _ := s.LatestSession()
	if session.Total != 0 || session.Down != 0 {
		t.Errorf("cancelled probes counted: %+v", session)
	}
	checks, err := st.RecentChecks(context.Background(), "id-recognition", 10, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RecentChecks: %v", err)
	}
	if len(checks) != 0 {
		t.Errorf("cancelled probe persisted: %v", checks)
	}
	if len(s.LiveBoard()) != 0 {
		t.Error("cancelled probe updated live board")
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	reg := testRegistry("id-recognition")
	st := testStore(t)
	syncRegistry(t, reg, st)

	release := make(chan struct{})
	var started atomic.Int64
	log, hook := logtest.NewNullLogger()
	s := NewScheduler(Config{
		Registry: reg,
		Store:    st,
		Log:      log.WithField("component", "monitor"),
		Probe: func(_ context.Context, sc registry.ServiceConfig) model.ProbeResult {
			started.Add(1)
			<-release
			return okProbe(sc, 10)
		},
	})

	s.launchCycle(context.Background())
	for started.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Second tick while the first cycle is blocked in its probe.
	s.launchCycle(context.Background())
	if started.Load() != 1 {
		t.Fatalf("overlapping cycle started, probes = %d", started.Load())
	}
	skipLogged := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "skipping") {
			skipLogged = true
		}
	}
	if !skipLogged {
		t.Error("skipped tick should be logged at WARN")
	}

	close(release)
	s.wg.Wait()

	// After the first cycle finishes a new tick runs again.
	release = make(chan struct{})
	close(release)
	s.launchCycle(context.Background())
	s.wg.Wait()
	if started.Load() != 2 {
		t.Errorf("post-completion tick did not run, probes = %d", started.Load())
	}
}

func TestDispatchSingleCandidateSendsCheckID(t *testing.T) {
	var gotPath atomic.Value
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotBody.Store(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := testRegistry("id-recognition", "face-compare")
	st := testStore(t)
	syncRegistry(t, reg, st)

	log, _ := logtest.NewNullLogger()
	entry := log.WithField("component", "monitor")
	s := NewScheduler(Config{
		Registry:   reg,
		Store:      st,
		Dispatcher: detect.New(detect.Config{Enabled: true, BaseURL: srv.URL, Timeout: time.Second, Log: entry}),
		Log:        entry,
		Probe: func(_ context.Context, sc registry.ServiceConfig) model.ProbeResult {
			if sc.ID == "face-compare" {
				return downProbe(sc)
			}
			return okProbe(sc, 50)
		},
	})

	s.runCycle(context.Background())

	if gotPath.Load() != "/api/auto-detection/analyze" {
		t.Fatalf("path = %v", gotPath.Load())
	}
	body := gotBody.Load().(map[string]string)
	if body["serviceId"] != "face-compare" {
		t.Errorf("serviceId = %q", body["serviceId"])
	}
	if body["latestCheckId"] == "" {
		t.Error("latestCheckId should carry the persisted check id")
	}
}

func TestDispatchMultipleCandidatesUsesBatch(t *testing.T) {
	var gotPath atomic.Value
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		var body map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotBody.Store(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := testRegistry("id-recognition", "face-compare", "ocr-service")
	st := testStore(t)
	syncRegistry(t, reg, st)

	log, _ := logtest.NewNullLogger()
	entry := log.WithField("component", "monitor")
	s := NewScheduler(Config{
		Registry:   reg,
		Store:      st,
		Dispatcher: detect.New(detect.Config{Enabled: true, BaseURL: srv.URL, Timeout: time.Second, Log: entry}),
		Log:        entry,
		Probe: func(_ context.Context, sc registry.ServiceConfig) model.ProbeResult {
			if sc.ID == "ocr-service" {
				return okProbe(sc, 50)
			}
			return downProbe(sc)
		},
	})

	s.runCycle(context.Background())

	if gotPath.Load() != "/api/auto-detection/batch-analyze" {
		t.Fatalf("path = %v", gotPath.Load())
	}
	body := gotBody.Load().(map[string][]string)
	if len(body["serviceIds"]) != 2 {
		t.Errorf("serviceIds = %v", body["serviceIds"])
	}
}

func TestLiveStatusChangeTriggersDispatch(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := testRegistry("id-recognition")
	st := testStore(t)
	syncRegistry(t, reg, st)

	var healthy atomic.Bool
	log, _ := logtest.NewNullLogger()
	entry := log.WithField("component", "monitor")
	s := NewScheduler(Config{
		Registry:   reg,
		Store:      st,
		Dispatcher: detect.New(detect.Config{Enabled: true, BaseURL: srv.URL, Timeout: time.Second, Log: entry}),
		Log:        entry,
		Probe: func(_ context.Context, sc registry.ServiceConfig) model.ProbeResult {
			if healthy.Load() {
				return okProbe(sc, 50)
			}
			return downProbe(sc)
		},
	})

	s.runCycle(context.Background()) // down, no previous: non-operational trigger
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}

	healthy.Store(true)
	s.runCycle(context.Background()) // recovery is a live status change
	if hits.Load() != 2 {
		t.Fatalf("recovery should trigger dispatch, hits = %d", hits.Load())
	}

	s.runCycle(context.Background()) // still healthy and unchanged
	if hits.Load() != 2 {
		t.Errorf("steady healthy state should not trigger, hits = %d", hits.Load())
	}
}

func TestProbeNow(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := testRegistry("id-recognition")
	st := testStore(t)
	syncRegistry(t, reg, st)

	log, _ := logtest.NewNullLogger()
	entry := log.WithField("component", "monitor")
	s := NewScheduler(Config{
		Registry:   reg,
		Store:      st,
		Dispatcher: detect.New(detect.Config{Enabled: true, BaseURL: srv.URL, Timeout: time.Second, Log: entry}),
		Log:        entry,
		Probe: func(_ context.Context, sc registry.ServiceConfig) model.ProbeResult {
			return okProbe(sc, 42)
		},
	})

	res, err := s.ProbeNow(context.Background(), "id-recognition")
	if err != nil {
		t.Fatalf("ProbeNow: %v", err)
	}
	if res.Status != model.StatusOperational {
		t.Errorf("status = %q", res.Status)
	}
	if hits.Load() != 1 {
		t.Errorf("manual probe should always dispatch, hits = %d", hits.Load())
	}
	checks, err := st.RecentChecks(context.Background(), "id-recognition", 10, time.Now().Add(time.Hour))
	if err != nil || len(checks) != 1 {
		t.Fatalf("checks = %v, err = %v", checks, err)
	}

	if _, err := s.ProbeNow(context.Background(), "nope"); err == nil {
		t.Error("unknown service should error")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	reg := testRegistry("id-recognition")
	st := testStore(t)
	syncRegistry(t, reg, st)

	log, _ := logtest.NewNullLogger()
	s := NewScheduler(Config{
		Registry: reg,
		Store:    st,
		Log:      log.WithField("component", "monitor"),
		Probe: func(_ context.Context, sc registry.ServiceConfig) model.ProbeResult {
			return okProbe(sc, 10)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := s.LatestSession(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial cycle never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
}
