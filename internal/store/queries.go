package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sla-monitor/watch-server/internal/model"
)

// BucketsInRange returns the uptime buckets for one service with
// fromDay <= date <= toDay, in calendar order.
func (s *Store) BucketsInRange(ctx context.Context, serviceID, fromDay, toDay string) ([]model.DailyUptimeBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_id, date, status, response_time_ms, error_message, updated_at
		FROM daily_uptime_buckets
		WHERE service_id = ? AND date >= ? AND date <= ?
		ORDER BY date`, serviceID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("store: query buckets: %w", err)
	}
	defer rows.Close()

	var out []model.DailyUptimeBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LatestBuckets returns the newest uptime bucket per service, keyed by
// service id. Services that never recorded a bucket are absent.
func (s *Store) LatestBuckets(ctx context.Context) (map[string]model.DailyUptimeBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_id, date, status, response_time_ms, error_message, updated_at
		FROM daily_uptime_buckets b
		WHERE date = (SELECT MAX(date) FROM daily_uptime_buckets WHERE service_id = b.service_id)`)
	if err != nil {
		return nil, fmt.Errorf("store: query latest buckets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.DailyUptimeBucket)
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out[b.ServiceID] = b
	}
	return out, rows.Err()
}

func scanBucket(rows *sql.Rows) (model.DailyUptimeBucket, error) {
	var b model.DailyUptimeBucket
	var status string
	var updated int64
	if err := rows.Scan(&b.ServiceID, &b.Date, &status, &b.ResponseTimeMs, &b.ErrorMessage, &updated); err != nil {
		return b, fmt.Errorf("store: scan bucket: %w", err)
	}
	b.Status = model.BucketStatus(status)
	b.UpdatedAt = time.UnixMilli(updated).UTC()
	return b, nil
}

// FailedCheckCount counts unsuccessful check-log rows for one service
// since the given instant.
func (s *Store) FailedCheckCount(ctx context.Context, serviceID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM check_logs
		WHERE service_id = ? AND check_time >= ? AND is_success = 0`,
		serviceID, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count failed checks: %w", err)
	}
	return n, nil
}

// RecentChecks returns up to limit check-log rows for one service with
// check_time strictly before the given instant, newest first.
func (s *Store) RecentChecks(ctx context.Context, serviceID string, limit int, before time.Time) ([]model.CheckLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_id, check_time, status_code, response_time_ms, is_success, error_message, error_type
		FROM check_logs
		WHERE service_id = ? AND check_time < ?
		ORDER BY check_time DESC
		LIMIT ?`, serviceID, before.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: query checks: %w", err)
	}
	defer rows.Close()

	var out []model.CheckLog
	for rows.Next() {
		var c model.CheckLog
		var checkTime int64
		if err := rows.Scan(&c.ID, &c.ServiceID, &checkTime, &c.StatusCode,
			&c.ResponseTimeMs, &c.IsSuccess, &c.ErrorMessage, &c.ErrorType); err != nil {
			return nil, fmt.Errorf("store: scan check: %w", err)
		}
		c.CheckTime = time.UnixMilli(checkTime).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetDailyAggregate returns the call aggregate for one (service, day).
func (s *Store) GetDailyAggregate(ctx context.Context, serviceID, day string) (model.DailyCallAggregate, error) {
	var a model.DailyCallAggregate
	err := s.db.QueryRowContext(ctx, `
		SELECT service_id, date, total_calls, success_calls, error_calls,
		       avg_response_time_ms, max_response_time_ms, min_response_time_ms
		FROM daily_call_aggregates WHERE service_id = ? AND date = ?`,
		serviceID, day).
		Scan(&a.ServiceID, &a.Date, &a.TotalCalls, &a.SuccessCalls, &a.ErrorCalls,
			&a.AvgResponseTimeMs, &a.MaxResponseTimeMs, &a.MinResponseTimeMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DailyCallAggregate{}, fmt.Errorf("store: no aggregate for %s on %s", serviceID, day)
	}
	if err != nil {
		return model.DailyCallAggregate{}, fmt.Errorf("store: get aggregate: %w", err)
	}
	return a, nil
}
