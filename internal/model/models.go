// Package model defines the domain types shared across the watch-server
// core: probe outcomes, persisted rows, and the status taxonomy.
package model

import "time"

// ServiceStatus is the live classification of a single probe outcome.
type ServiceStatus string

const (
	StatusOperational ServiceStatus = "operational"
	StatusDegraded    ServiceStatus = "degraded"
	StatusDown        ServiceStatus = "down"
)

// BucketStatus is the per-day coarse uptime classification.
type BucketStatus string

const (
	BucketOperational   BucketStatus = "o"  // fully operational
	BucketPartialOutage BucketStatus = "po" // alive but degraded (unexpected 4xx)
	BucketMajorOutage   BucketStatus = "mo" // down or unexpected 5xx
	BucketNoData        BucketStatus = "nd" // recorded but unclassifiable
	BucketEmpty         BucketStatus = "e"  // no row for the day
)

// UptimeScore returns the bucket's contribution to an uptime percentage
// and whether the bucket counts toward the window at all. BucketNoData
// and BucketEmpty are excluded from both numerator and denominator.
func (b BucketStatus) UptimeScore() (score float64, counted bool) {
	switch b {
	case BucketOperational:
		return 1.0, true
	case BucketPartialOutage:
		return 0.75, true
	case BucketMajorOutage:
		return 0.0, true
	default:
		return 0, false
	}
}

// ErrorKind tags the terminal failure mode of a probe. The zero value
// means no error. ErrKindCancelled marks shutdown-interrupted probes and
// is never persisted.
type ErrorKind string

const (
	ErrKindNone       ErrorKind = ""
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindDNS        ErrorKind = "dns_error"
	ErrKindConnection ErrorKind = "connection_error"
	ErrKindHTTP       ErrorKind = "http_error"
	ErrKindCancelled  ErrorKind = "cancelled"
)

// SystemStatusLevel is the whole-registry health reduction.
type SystemStatusLevel string

const (
	SystemOperational SystemStatusLevel = "operational"
	SystemDegraded    SystemStatusLevel = "degraded"
	SystemOutage      SystemStatusLevel = "outage"
)

// Service is a row of the service dimension table. Rows are created and
// updated only by the initializer and never deleted while referenced.
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	EndpointURL string    `json:"endpoint_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CheckLog is one append-only row per terminal probe outcome. StatusCode
// is 0 when no HTTP response was received.
type CheckLog struct {
	ID             string    `json:"id"`
	ServiceID      string    `json:"service_id"`
	CheckTime      time.Time `json:"check_time"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	IsSuccess      bool      `json:"is_success"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	ErrorType      *string   `json:"error_type,omitempty"`
}

// ResponseTimeSample is one append-only latency sample per probe,
// recorded even when the probe failed.
type ResponseTimeSample struct {
	ID             int64     `json:"id"`
	ServiceID      string    `json:"service_id"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// DailyCallAggregate is the rolled-up per-day call and latency stats for
// one service. The latency fields are nil when TotalCalls is zero.
type DailyCallAggregate struct {
	ServiceID         string `json:"service_id"`
	Date              string `json:"date"` // YYYY-MM-DD, UTC
	TotalCalls        int64  `json:"total_calls"`
	SuccessCalls      int64  `json:"success_calls"`
	ErrorCalls        int64  `json:"error_calls"`
	AvgResponseTimeMs *int64 `json:"avg_response_time_ms,omitempty"`
	MaxResponseTimeMs *int64 `json:"max_response_time_ms,omitempty"`
	MinResponseTimeMs *int64 `json:"min_response_time_ms,omitempty"`
}

// DailyUptimeBucket is the per-day coarse state for one service. The row
// holds whatever the most recent probe of the day classified
// (last-writer wins within the day).
type DailyUptimeBucket struct {
	ServiceID      string       `json:"service_id"`
	Date           string       `json:"date"` // YYYY-MM-DD, UTC
	Status         BucketStatus `json:"status"`
	ResponseTimeMs *int64       `json:"response_time_ms,omitempty"`
	ErrorMessage   *string      `json:"error_message,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ProbeResult is the in-memory outcome of one probe, possibly spanning
// several HTTP attempts. ResponseTimeMs is the wall-clock from the first
// attempt's dispatch to the terminal outcome, including backoff sleeps.
type ProbeResult struct {
	ServiceID      string        `json:"service_id"`
	URL            string        `json:"url"`
	Status         ServiceStatus `json:"status"`
	HTTPStatus     int           `json:"http_status"`
	ResponseTimeMs int64         `json:"response_time_ms"`
	Timestamp      time.Time     `json:"timestamp"`
	Error          string        `json:"error,omitempty"`
	ErrorKind      ErrorKind     `json:"error_kind,omitempty"`
	AttemptsUsed   int           `json:"attempts_used"`
}

// Success reports whether the result counts as a successful check.
func (r ProbeResult) Success() bool {
	return r.Status == StatusOperational
}

// Cancelled reports whether the probe was interrupted by shutdown.
func (r ProbeResult) Cancelled() bool {
	return r.ErrorKind == ErrKindCancelled
}

// MonitoringSession groups the results of one scheduler cycle.
type MonitoringSession struct {
	SessionID         string        `json:"session_id"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	Total             int           `json:"total"`
	Operational       int           `json:"operational"`
	Degraded          int           `json:"degraded"`
	Down              int           `json:"down"`
	AvgResponseTimeMs int64         `json:"avg_response_time_ms"`
	Results           []ProbeResult `json:"results"`
}

// LiveStatus is the most recent probe view of one service, kept on the
// in-memory live board.
type LiveStatus struct {
	ServiceID      string        `json:"service_id"`
	Status         ServiceStatus `json:"status"`
	HTTPStatus     int           `json:"http_status"`
	ResponseTimeMs int64         `json:"response_time_ms"`
	CheckedAt      time.Time     `json:"checked_at"`
}

// SystemStatus is the whole-registry health snapshot.
type SystemStatus struct {
	OverallStatus SystemStatusLevel `json:"overall_status"`
	Message       string            `json:"message"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// DayKey formats t as the UTC day key used by the daily tables.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseDayKey parses a YYYY-MM-DD day key back to UTC midnight.
func ParseDayKey(key string) (time.Time, error) {
	return time.Parse("2006-01-02", key)
}
