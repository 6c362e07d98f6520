package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sla-monitor/watch-server/internal/model"
)

// RebuildDailyAggregates recomputes the call aggregates for one UTC day
// from the raw response-time samples, for every service that has samples
// on that day. The recomputation is idempotent: the aggregate is replaced
// wholesale, not incremented. Samples with a status code in [200, 400)
// count as successes.
func (s *Store) RebuildDailyAggregates(ctx context.Context, day string) (int64, error) {
	dayStart, err := model.ParseDayKey(day)
	if err != nil {
		return 0, fmt.Errorf("store: rebuild: %w", err)
	}
	from := dayStart.UnixMilli()
	to := dayStart.Add(24 * time.Hour).UnixMilli()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_call_aggregates
			(service_id, date, total_calls, success_calls, error_calls,
			 avg_response_time_ms, max_response_time_ms, min_response_time_ms)
		SELECT service_id, ?,
		       COUNT(*),
		       SUM(CASE WHEN status_code >= 200 AND status_code < 400 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status_code >= 200 AND status_code < 400 THEN 0 ELSE 1 END),
		       CAST(ROUND(AVG(response_time_ms)) AS INTEGER),
		       MAX(response_time_ms),
		       MIN(response_time_ms)
		FROM response_time_samples
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY service_id
		ON CONFLICT(service_id, date) DO UPDATE SET
			total_calls          = excluded.total_calls,
			success_calls        = excluded.success_calls,
			error_calls          = excluded.error_calls,
			avg_response_time_ms = excluded.avg_response_time_ms,
			max_response_time_ms = excluded.max_response_time_ms,
			min_response_time_ms = excluded.min_response_time_ms`,
		day, from, to)
	if err != nil {
		return 0, fmt.Errorf("store: rebuild aggregates for %s: %w", day, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteChecksBefore removes check-log rows older than the cutoff.
func (s *Store) DeleteChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM check_logs WHERE check_time < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: delete old checks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteSamplesBefore removes response-time samples older than the cutoff.
func (s *Store) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM response_time_samples WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: delete old samples: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteAggregatesBefore removes daily call aggregates with a day key
// strictly before cutoffDay.
func (s *Store) DeleteAggregatesBefore(ctx context.Context, cutoffDay string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM daily_call_aggregates WHERE date < ?`, cutoffDay)
	if err != nil {
		return 0, fmt.Errorf("store: delete old aggregates: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteBucketsBefore removes daily uptime buckets with a day key strictly
// before cutoffDay.
func (s *Store) DeleteBucketsBefore(ctx context.Context, cutoffDay string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM daily_uptime_buckets WHERE date < ?`, cutoffDay)
	if err != nil {
		return 0, fmt.Errorf("store: delete old buckets: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AppendSystemStatus records a system status snapshot.
func (s *Store) AppendSystemStatus(ctx context.Context, st model.SystemStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_status_log (overall_status, message, created_at)
		VALUES (?,?,?)`,
		string(st.OverallStatus), st.Message, st.GeneratedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: append system status: %w", err)
	}
	return nil
}

// LatestSystemStatus returns the most recently persisted snapshot, or
// ok=false when none has been written yet.
func (s *Store) LatestSystemStatus(ctx context.Context) (model.SystemStatus, bool, error) {
	var st model.SystemStatus
	var level string
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT overall_status, message, created_at
		FROM system_status_log ORDER BY id DESC LIMIT 1`).
		Scan(&level, &st.Message, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SystemStatus{}, false, nil
	}
	if err != nil {
		return model.SystemStatus{}, false, fmt.Errorf("store: latest system status: %w", err)
	}
	st.OverallStatus = model.SystemStatusLevel(level)
	st.GeneratedAt = time.UnixMilli(created).UTC()
	return st, true, nil
}
