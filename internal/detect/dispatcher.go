// Package detect triggers the downstream incident auto-detection
// pipeline after notable probe outcomes. Triggers are fire-and-forget:
// the monitoring core never depends on the incident API being up.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPStatusError indicates the incident API responded, but with a
// non-2xx status code.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("detect: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Config wires a Dispatcher.
type Config struct {
	// Enabled gates the whole dispatcher; a disabled dispatcher turns
	// every call into a no-op.
	Enabled bool
	// BaseURL is the incident API root, e.g. "http://monitor:3000".
	BaseURL string
	// Timeout bounds a single-service trigger; batch triggers get twice
	// as long.
	Timeout time.Duration
	Log     *logrus.Entry
}

// Dispatcher posts analyze triggers to the incident API.
type Dispatcher struct {
	enabled bool
	baseURL string
	timeout time.Duration
	client  *http.Client
	log     *logrus.Entry
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		enabled: cfg.Enabled,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
		log:     cfg.Log,
	}
}

// Enabled reports whether triggers will actually be sent.
func (d *Dispatcher) Enabled() bool { return d.enabled }

// AnalyzeSingle asks the incident API to analyze one service, optionally
// pointing it at the check-log row that prompted the trigger. Failures
// are logged and swallowed.
func (d *Dispatcher) AnalyzeSingle(ctx context.Context, serviceID, latestCheckID string) {
	if !d.enabled {
		return
	}
	payload := map[string]string{"serviceId": serviceID}
	if latestCheckID != "" {
		payload["latestCheckId"] = latestCheckID
	}
	if err := d.post(ctx, "/api/auto-detection/analyze", payload, d.timeout); err != nil {
		d.log.WithField("service", serviceID).Warnf("analyze trigger failed: %v", err)
		return
	}
	d.log.WithField("service", serviceID).Debug("analyze trigger dispatched")
}

// AnalyzeBatch asks the incident API to analyze several services at once.
func (d *Dispatcher) AnalyzeBatch(ctx context.Context, serviceIDs []string) {
	if !d.enabled || len(serviceIDs) == 0 {
		return
	}
	payload := map[string][]string{"serviceIds": serviceIDs}
	if err := d.post(ctx, "/api/auto-detection/batch-analyze", payload, 2*d.timeout); err != nil {
		d.log.WithField("services", len(serviceIDs)).Warnf("batch analyze trigger failed: %v", err)
		return
	}
	d.log.WithField("services", len(serviceIDs)).Debug("batch analyze trigger dispatched")
}

// post sends one JSON trigger. The response body is advisory and only
// the status class matters.
func (d *Dispatcher) post(ctx context.Context, path string, payload any, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("detect: marshal payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := d.baseURL + path
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("detect: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}
