package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sla-monitor/watch-server/internal/model"
	"github.com/sla-monitor/watch-server/internal/state"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "watch.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log, _ := logtest.NewNullLogger()
	return New(db, log.WithField("component", "store"))
}

func seedService(t *testing.T, s *Store, id string) {
	t.Helper()
	_, err := s.SyncService(context.Background(), model.Service{
		ID:          id,
		Name:        id,
		EndpointURL: "https://" + id + ".example.com/health",
	})
	if err != nil {
		t.Fatalf("seed service %s: %v", id, err)
	}
}

func okResult(serviceID string, rt int64, at time.Time) model.ProbeResult {
	return model.ProbeResult{
		ServiceID:      serviceID,
		URL:            "https://" + serviceID + ".example.com/health",
		Status:         model.StatusOperational,
		HTTPStatus:     200,
		ResponseTimeMs: rt,
		Timestamp:      at,
		AttemptsUsed:   1,
	}
}

func record(t *testing.T, s *Store, res model.ProbeResult, bucket model.BucketStatus, errType *string) string {
	t.Helper()
	id := uuid.NewString()
	err := s.RecordProbe(context.Background(), ProbeRecord{
		CheckID:   id,
		Endpoint:  res.URL,
		Method:    "GET",
		Result:    res,
		ErrorType: errType,
		Bucket:    bucket,
	})
	if err != nil {
		t.Fatalf("RecordProbe: %v", err)
	}
	return id
}

func TestRecordProbeHealthy(t *testing.T) {
	s := testStore(t)
	seedService(t, s, "id-recognition")
	ctx := context.Background()

	at := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	record(t, s, okResult("id-recognition", 120, at), model.BucketOperational, nil)

	checks, err := s.RecentChecks(ctx, "id-recognition", 10, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("RecentChecks: %v", err)
	}
	if len(checks) != 1 {
		t.Fatalf("checks = %d, want 1", len(checks))
	}
	c := checks[0]
	if !c.IsSuccess || c.StatusCode != 200 || c.ResponseTimeMs != 120 {
		t.Errorf("check = %+v", c)
	}
	if c.ErrorType != nil || c.ErrorMessage != nil {
		t.Errorf("error fields should be null, got %+v", c)
	}

	agg, err := s.GetDailyAggregate(ctx, "id-recognition", "2026-08-25")
	if err != nil {
		t.Fatalf("GetDailyAggregate: %v", err)
	}
	if agg.TotalCalls != 1 || agg.SuccessCalls != 1 || agg.ErrorCalls != 0 {
		t.Errorf("aggregate counts = %+v", agg)
	}
	if *agg.AvgResponseTimeMs != 120 || *agg.MinResponseTimeMs != 120 || *agg.MaxResponseTimeMs != 120 {
		t.Errorf("aggregate latency = %+v", agg)
	}

	buckets, err := s.BucketsInRange(ctx, "id-recognition", "2026-08-25", "2026-08-25")
	if err != nil {
		t.Fatalf("BucketsInRange: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Status != model.BucketOperational {
		t.Fatalf("buckets = %+v", buckets)
	}
	if *buckets[0].ResponseTimeMs != 120 {
		t.Errorf("bucket response time = %d", *buckets[0].ResponseTimeMs)
	}
}

func TestRunningMean(t *testing.T) {
	s := testStore(t)
	seedService(t, s, "ocr-service")
	ctx := context.Background()

	at := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	for i, rt := range []int64{100, 200, 300} {
		record(t, s, okResult("ocr-service", rt, at.Add(time.Duration(i)*time.Minute)),
			model.BucketOperational, nil)
	}

	agg, err := s.GetDailyAggregate(ctx, "ocr-service", "2026-08-25")
	if err != nil {
		t.Fatalf("GetDailyAggregate: %v", err)
	}
	if agg.TotalCalls != 3 || agg.SuccessCalls != 3 || agg.ErrorCalls != 0 {
		t.Errorf("counts = %+v", agg)
	}
	if *agg.AvgResponseTimeMs != 200 {
		t.Errorf("avg = %d, want 200", *agg.AvgResponseTimeMs)
	}
	if *agg.MinResponseTimeMs != 100 || *agg.MaxResponseTimeMs != 300 {
		t.Errorf("min/max = %d/%d, want 100/300", *agg.MinResponseTimeMs, *agg.MaxResponseTimeMs)
	}
}

func TestAggregateCountInvariant(t *testing.T) {
	s := testStore(t)
	seedService(t, s, "face-compare")
	ctx := context.Background()

	at := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	record(t, s, okResult("face-compare", 80, at), model.BucketOperational, nil)

	httpErr := "http_error"
	bad := okResult("face-compare", 90, at.Add(time.Minute))
	bad.Status = model.StatusDegraded
	bad.HTTPStatus = 400
	bad.Error = "Bad Request"
	bad.ErrorKind = model.ErrKindHTTP
	record(t, s, bad, model.BucketPartialOutage, &httpErr)

	agg, err := s.GetDailyAggregate(ctx, "face-compare", "2026-08-25")
	if err != nil {
		t.Fatalf("GetDailyAggregate: %v", err)
	}
	if agg.TotalCalls != agg.SuccessCalls+agg.ErrorCalls {
		t.Errorf("total %d != success %d + error %d", agg.TotalCalls, agg.SuccessCalls, agg.ErrorCalls)
	}
	if agg.SuccessCalls != 1 || agg.ErrorCalls != 1 {
		t.Errorf("counts = %+v", agg)
	}
	if *agg.MinResponseTimeMs > *agg.AvgResponseTimeMs || *agg.AvgResponseTimeMs > *agg.MaxResponseTimeMs {
		t.Errorf("min <= avg <= max violated: %+v", agg)
	}
}

func TestBucketLastWriterWins(t *testing.T) {
	s := testStore(t)
	seedService(t, s, "liveness-check")
	ctx := context.Background()

	at := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	down := okResult("liveness-check", 500, at)
	down.Status = model.StatusDown
	down.HTTPStatus = 503
	down.Error = "Service Unavailable"
	down.ErrorKind = model.ErrKindHTTP
	httpErr := "http_error"
	record(t, s, down, model.BucketMajorOutage, &httpErr)

	record(t, s, okResult("liveness-check", 95, at.Add(time.Minute)), model.BucketOperational, nil)

	buckets, err := s.BucketsInRange(ctx, "liveness-check", "2026-08-25", "2026-08-25")
	if err != nil {
		t.Fatalf("BucketsInRange: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("buckets = %d, want 1", len(buckets))
	}
	b := buckets[0]
	if b.Status != model.BucketOperational {
		t.Errorf("status = %q, want o (most recent wins)", b.Status)
	}
	if *b.ResponseTimeMs != 95 {
		t.Errorf("response time = %d, want latest sample 95", *b.ResponseTimeMs)
	}
	if b.ErrorMessage != nil {
		t.Errorf("error message should be cleared, got %q", *b.ErrorMessage)
	}
}

func TestRecordProbeUnknownServiceLeavesNoPartialRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	at := time.Now().UTC()
	err := s.RecordProbe(ctx, ProbeRecord{
		CheckID: uuid.NewString(),
		Method:  "GET",
		Result:  okResult("ghost-service", 50, at),
		Bucket:  model.BucketOperational,
	})
	if err == nil {
		t.Fatal("RecordProbe for unreferenced service should fail on the foreign key")
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM check_logs`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("check_logs has %d rows after failed batch, want 0", n)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM response_time_samples`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("response_time_samples has %d rows after failed batch, want 0", n)
	}
}

func TestSyncService(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	svc := model.Service{ID: "id-recognition", Name: "ID Recognition", EndpointURL: "https://a.example.com"}

	action, err := s.SyncService(ctx, svc)
	if err != nil || action != "created" {
		t.Fatalf("first sync = %q, %v; want created", action, err)
	}

	action, err = s.SyncService(ctx, svc)
	if err != nil || action != "unchanged" {
		t.Fatalf("second sync = %q, %v; want unchanged", action, err)
	}

	svc.EndpointURL = "https://b.example.com"
	action, err = s.SyncService(ctx, svc)
	if err != nil || action != "updated" {
		t.Fatalf("third sync = %q, %v; want updated", action, err)
	}

	got, err := s.GetService(ctx, "id-recognition")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	if got.EndpointURL != "https://b.example.com" {
		t.Errorf("EndpointURL = %q", got.EndpointURL)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Errorf("UpdatedAt %v before CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestGetServiceNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetService(context.Background(), "nope"); err != ErrServiceNotFound {
		t.Fatalf("err = %v, want ErrServiceNotFound", err)
	}
}

func TestLatestBuckets(t *testing.T) {
	s := testStore(t)
	seedService(t, s, "id-recognition")
	seedService(t, s, "ocr-service")
	ctx := context.Background()

	day1 := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	record(t, s, okResult("id-recognition", 100, day1), model.BucketOperational, nil)
	down := okResult("id-recognition", 100, day2)
	down.Status = model.StatusDown
	down.HTTPStatus = 503
	httpErr := "http_error"
	record(t, s, down, model.BucketMajorOutage, &httpErr)
	record(t, s, okResult("ocr-service", 90, day1), model.BucketOperational, nil)

	latest, err := s.LatestBuckets(ctx)
	if err != nil {
		t.Fatalf("LatestBuckets: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("latest = %d services, want 2", len(latest))
	}
	if latest["id-recognition"].Status != model.BucketMajorOutage {
		t.Errorf("id-recognition latest = %q, want mo (newest day)", latest["id-recognition"].Status)
	}
	if latest["ocr-service"].Status != model.BucketOperational {
		t.Errorf("ocr-service latest = %q", latest["ocr-service"].Status)
	}
}

func TestFailedCheckCount(t *testing.T) {
	s := testStore(t)
	seedService(t, s, "id-recognition")
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	record(t, s, okResult("id-recognition", 100, base), model.BucketOperational, nil)
	for i := 0; i < 3; i++ {
		bad := okResult("id-recognition", 100, base.Add(time.Duration(i+1)*time.Minute))
		bad.Status = model.StatusDown
		bad.HTTPStatus = 500
		httpErr := "http_error"
		record(t, s, bad, model.BucketMajorOutage, &httpErr)
	}

	n, err := s.FailedCheckCount(ctx, "id-recognition", base)
	if err != nil {
		t.Fatalf("FailedCheckCount: %v", err)
	}
	if n != 3 {
		t.Errorf("failed count = %d, want 3", n)
	}

	// Window excludes earlier failures.
	n, err = s.FailedCheckCount(ctx, "id-recognition", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("FailedCheckCount: %v", err)
	}
	if n != 2 {
		t.Errorf("failed count since +2m = %d, want 2", n)
	}
}
