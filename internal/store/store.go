// Package store is the persistence layer over the monitoring tables. It
// owns every write to check_logs, response_time_samples,
// daily_call_aggregates, daily_uptime_buckets, and system_status_log.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sla-monitor/watch-server/internal/model"
)

// Store wraps the shared database handle. All methods are safe for
// concurrent use; SQLite serializes writers on the single connection.
type Store struct {
	db  *sql.DB
	log *logrus.Entry
}

// New creates a Store over an opened, migrated database.
func New(db *sql.DB, log *logrus.Entry) *Store {
	return &Store{db: db, log: log}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// ProbeRecord is everything persisted for one terminal probe result.
type ProbeRecord struct {
	CheckID   string
	Endpoint  string
	Method    string
	Result    model.ProbeResult
	ErrorType *string
	Bucket    model.BucketStatus
}

// RecordProbe performs the four writes for one probe result in a single
// transaction: check log insert, response-time sample insert, daily call
// aggregate upsert, daily uptime bucket upsert. Either all four land or
// none do.
func (s *Store) RecordProbe(ctx context.Context, rec ProbeRecord) error {
	res := rec.Result
	day := model.DayKey(res.Timestamp)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var errMsg *string
	if res.Error != "" {
		errMsg = &res.Error
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO check_logs
			(id, service_id, check_time, status_code, response_time_ms, is_success, error_message, error_type)
		VALUES (?,?,?,?,?,?,?,?)`,
		rec.CheckID, res.ServiceID, res.Timestamp.UnixMilli(), res.HTTPStatus,
		res.ResponseTimeMs, res.Success(), errMsg, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("store: insert check log: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO response_time_samples
			(service_id, endpoint, method, status_code, response_time_ms, timestamp)
		VALUES (?,?,?,?,?,?)`,
		res.ServiceID, rec.Endpoint, rec.Method, res.HTTPStatus,
		res.ResponseTimeMs, res.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: insert sample: %w", err)
	}

	// Running mean per the daily aggregate contract: with n calls after
	// the increment, avg_new = round((avg_old*(n-1) + rt) / n). In the
	// DO UPDATE arm every plain column reference is the pre-update value,
	// so total_calls there is n-1.
	success, failure := 0, 1
	if res.Success() {
		success, failure = 1, 0
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_call_aggregates
			(service_id, date, total_calls, success_calls, error_calls,
			 avg_response_time_ms, max_response_time_ms, min_response_time_ms)
		VALUES (?,?,1,?,?,?,?,?)
		ON CONFLICT(service_id, date) DO UPDATE SET
			total_calls   = total_calls + 1,
			success_calls = success_calls + excluded.success_calls,
			error_calls   = error_calls + excluded.error_calls,
			avg_response_time_ms = CAST(ROUND(
				(avg_response_time_ms * total_calls + excluded.avg_response_time_ms) * 1.0
				/ (total_calls + 1)) AS INTEGER),
			max_response_time_ms = MAX(max_response_time_ms, excluded.max_response_time_ms),
			min_response_time_ms = MIN(min_response_time_ms, excluded.min_response_time_ms)`,
		res.ServiceID, day, success, failure,
		res.ResponseTimeMs, res.ResponseTimeMs, res.ResponseTimeMs)
	if err != nil {
		return fmt.Errorf("store: upsert daily aggregate: %w", err)
	}

	// Last writer wins within the day.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_uptime_buckets
			(service_id, date, status, response_time_ms, error_message, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(service_id, date) DO UPDATE SET
			status           = excluded.status,
			response_time_ms = excluded.response_time_ms,
			error_message    = excluded.error_message,
			updated_at       = excluded.updated_at`,
		res.ServiceID, day, string(rec.Bucket), res.ResponseTimeMs, errMsg,
		res.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: upsert uptime bucket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
