package prober

import "github.com/sla-monitor/watch-server/internal/model"

// Classify maps a terminal ProbeResult to the error-type tag stored on
// the check log and the daily uptime bucket for the day.
//
// The error type is non-nil exactly when the check is unsuccessful: an
// unexpected >= 400 response is an http_error, a no-response outcome
// carries its transport taxonomy tag. Cancelled probes are never
// persisted and classify as no-data.
func Classify(res model.ProbeResult) (errorType *string, bucket model.BucketStatus) {
	if res.Cancelled() {
		return nil, model.BucketNoData
	}

	switch res.Status {
	case model.StatusOperational:
		bucket = model.BucketOperational
	case model.StatusDegraded:
		bucket = model.BucketPartialOutage
	case model.StatusDown:
		bucket = model.BucketMajorOutage
	default:
		bucket = model.BucketNoData
	}

	if res.ErrorKind != model.ErrKindNone {
		s := string(res.ErrorKind)
		errorType = &s
	}
	return errorType, bucket
}
