package prober

import (
	"testing"

	"github.com/sla-monitor/watch-server/internal/model"
)

func TestClassify(t *testing.T) {
	strPtr := func(s string) *string { return &s }

	cases := []struct {
		name       string
		res        model.ProbeResult
		wantType   *string
		wantBucket model.BucketStatus
	}{
		{
			name:       "operational 200",
			res:        model.ProbeResult{Status: model.StatusOperational, HTTPStatus: 200},
			wantType:   nil,
			wantBucket: model.BucketOperational,
		},
		{
			name:       "expected 422 is a clean success",
			res:        model.ProbeResult{Status: model.StatusOperational, HTTPStatus: 422},
			wantType:   nil,
			wantBucket: model.BucketOperational,
		},
		{
			name:       "unexpected 400",
			res:        model.ProbeResult{Status: model.StatusDegraded, HTTPStatus: 400, ErrorKind: model.ErrKindHTTP},
			wantType:   strPtr("http_error"),
			wantBucket: model.BucketPartialOutage,
		},
		{
			name:       "unexpected 503",
			res:        model.ProbeResult{Status: model.StatusDown, HTTPStatus: 503, ErrorKind: model.ErrKindHTTP},
			wantType:   strPtr("http_error"),
			wantBucket: model.BucketMajorOutage,
		},
		{
			name:       "timeout without response",
			res:        model.ProbeResult{Status: model.StatusDown, HTTPStatus: 0, ErrorKind: model.ErrKindTimeout},
			wantType:   strPtr("timeout"),
			wantBucket: model.BucketMajorOutage,
		},
		{
			name:       "dns failure",
			res:        model.ProbeResult{Status: model.StatusDown, HTTPStatus: 0, ErrorKind: model.ErrKindDNS},
			wantType:   strPtr("dns_error"),
			wantBucket: model.BucketMajorOutage,
		},
		{
			name:       "connection refused",
			res:        model.ProbeResult{Status: model.StatusDown, HTTPStatus: 0, ErrorKind: model.ErrKindConnection},
			wantType:   strPtr("connection_error"),
			wantBucket: model.BucketMajorOutage,
		},
		{
			name:       "cancelled is no-data",
			res:        model.ProbeResult{Status: model.StatusDown, ErrorKind: model.ErrKindCancelled},
			wantType:   nil,
			wantBucket: model.BucketNoData,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotType, gotBucket := Classify(tc.res)
			if gotBucket != tc.wantBucket {
				t.Errorf("bucket = %q, want %q", gotBucket, tc.wantBucket)
			}
			switch {
			case tc.wantType == nil && gotType != nil:
				t.Errorf("errorType = %q, want nil", *gotType)
			case tc.wantType != nil && gotType == nil:
				t.Errorf("errorType = nil, want %q", *tc.wantType)
			case tc.wantType != nil && *gotType != *tc.wantType:
				t.Errorf("errorType = %q, want %q", *gotType, *tc.wantType)
			}
		})
	}
}
