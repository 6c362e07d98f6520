// Package prober performs individual HTTP probes against monitored
// services and classifies their outcomes.
package prober

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sla-monitor/watch-server/internal/model"
	"github.com/sla-monitor/watch-server/internal/registry"
)

const (
	userAgent = "SLA-Monitor-Watch-Server/1.0"

	// maxDrainBytes bounds how much of a response body is read before the
	// connection is released for reuse.
	maxDrainBytes = 64 << 10
)

// Prober executes probes with bounded per-attempt timeouts and exponential
// backoff between attempts. It is stateless per call and safe for
// concurrent use.
type Prober struct {
	client *http.Client
	log    *logrus.Entry
}

// New creates a Prober. The shared transport keeps connections alive
// across cycles.
func New(log *logrus.Entry) *Prober {
	return &Prober{
		client: &http.Client{
			// Per-attempt deadlines come from the request context; the
			// client itself never times out.
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}
}

// Probe checks one service, making up to Retries+1 attempts. The returned
// result is always terminal: an HTTP response (whatever its status), an
// exhausted retry budget, or cancellation. ResponseTimeMs is the
// wall-clock from the first attempt's dispatch to the terminal outcome,
// backoff sleeps included.
func (p *Prober) Probe(ctx context.Context, sc registry.ServiceConfig) model.ProbeResult {
	start := time.Now()
	attempts := sc.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			// base_delay * 2^(attempt-2) before the retry.
			delay := sc.RetryDelay << (attempt - 2)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return p.cancelledResult(sc, start, attempt-1)
			}
		}

		status, err := p.attempt(ctx, sc)
		if err == nil {
			// A response classifies the outcome; never retry on status.
			res := model.ProbeResult{
				ServiceID:      sc.ID,
				URL:            sc.URL,
				Status:         statusForCode(sc, status),
				HTTPStatus:     status,
				ResponseTimeMs: time.Since(start).Milliseconds(),
				Timestamp:      time.Now().UTC(),
				AttemptsUsed:   attempt,
			}
			if res.Status != model.StatusOperational {
				res.Error = http.StatusText(status)
				res.ErrorKind = model.ErrKindHTTP
			}
			return res
		}

		if ctx.Err() != nil {
			return p.cancelledResult(sc, start, attempt)
		}
		lastErr = err
		p.log.WithField("service", sc.ID).Debugf("attempt %d/%d failed: %v", attempt, attempts, err)
	}

	// Retry budget exhausted with no HTTP response.
	res := model.ProbeResult{
		ServiceID:      sc.ID,
		URL:            sc.URL,
		Status:         model.StatusDown,
		HTTPStatus:     0,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		Timestamp:      time.Now().UTC(),
		AttemptsUsed:   attempts,
		ErrorKind:      transportErrorKind(lastErr),
	}
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	return res
}

// attempt performs one HTTP round trip bounded by the service timeout.
// A non-nil error always means no usable response was received.
func (p *Prober) attempt(ctx context.Context, sc registry.ServiceConfig) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, sc.Timeout)
	defer cancel()

	var body io.Reader
	if sc.Body != "" {
		body = strings.NewReader(sc.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, sc.Method, sc.URL, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if sc.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range sc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	resp.Body.Close()

	return resp.StatusCode, nil
}

func (p *Prober) cancelledResult(sc registry.ServiceConfig, start time.Time, attemptsUsed int) model.ProbeResult {
	return model.ProbeResult{
		ServiceID:      sc.ID,
		URL:            sc.URL,
		Status:         model.StatusDown,
		HTTPStatus:     0,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		Timestamp:      time.Now().UTC(),
		Error:          "cancelled",
		ErrorKind:      model.ErrKindCancelled,
		AttemptsUsed:   attemptsUsed,
	}
}

// statusForCode maps a received HTTP status to the live service status.
// Expected statuses and anything in [200, 400) are operational; an
// unexpected 4xx means the service is alive but degraded; unexpected 5xx
// (or anything else) is down.
func statusForCode(sc registry.ServiceConfig, code int) model.ServiceStatus {
	switch {
	case sc.ExpectsStatus(code):
		return model.StatusOperational
	case code >= 200 && code < 400:
		return model.StatusOperational
	case code >= 400 && code < 500:
		return model.StatusDegraded
	default:
		return model.StatusDown
	}
}

// transportErrorKind maps the final transport failure of a no-response
// probe to the error taxonomy.
func transportErrorKind(err error) model.ErrorKind {
	if err == nil {
		return model.ErrKindConnection
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ErrKindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.ErrKindDNS
	}
	// String match as a fallback: wrapped resolver errors do not always
	// survive errors.As through url.Error.
	if strings.Contains(err.Error(), "no such host") {
		return model.ErrKindDNS
	}
	return model.ErrKindConnection
}
