package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ParseIntQuery reads an optional integer query parameter with bounds.
func ParseIntQuery(r *http.Request, key string, def, min, max int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: must be an integer", key)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s: must be between %d and %d", key, min, max)
	}
	return n, nil
}

// ParseFloatQuery reads an optional float query parameter with bounds.
// The lower bound is exclusive.
func ParseFloatQuery(r *http.Request, key string, def, min, max float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: must be a number", key)
	}
	if f <= min || f > max {
		return 0, fmt.Errorf("%s: must be greater than %v and at most %v", key, min, max)
	}
	return f, nil
}

// ParseTimeQuery reads an optional timestamp query parameter, accepting
// Unix milliseconds or RFC 3339. The zero value means "not provided".
func ParseTimeQuery(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: must be Unix milliseconds or RFC 3339", key)
	}
	return t.UTC(), nil
}

// ParseDayQuery reads an optional YYYY-MM-DD query parameter. The zero
// value means "not provided".
func ParseDayQuery(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: must be YYYY-MM-DD", key)
	}
	return t.UTC(), nil
}
