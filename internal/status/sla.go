package status

import "context"

// SLAReport is the compliance verdict for one service over a window.
type SLAReport struct {
	Compliant              bool    `json:"compliant"`
	CurrentUptime          float64 `json:"current_uptime"`
	DowntimeMinutes        float64 `json:"downtime_minutes"`
	AllowedDowntimeMinutes float64 `json:"allowed_downtime_minutes"`
	BreachMinutes          float64 `json:"breach_minutes"`
	Target                 float64 `json:"target"`
	WindowDays             int     `json:"window_days"`
}

// checkLogRetentionDays bounds the window within which downtime can be
// derived from individual failed checks; older windows fall back to the
// bucket approximation.
const checkLogRetentionDays = 30

// SLACompliance evaluates a service against an uptime target over the
// last `days`. Within check-log retention, downtime is the failed check
// count times the cycle interval; beyond it, downtime is approximated
// from the daily buckets as (1 - score) * 1440 minutes per counted day.
func (r *Reader) SLACompliance(ctx context.Context, serviceID string, target float64, days int) (SLAReport, error) {
	key := cacheKey("sla", serviceID, days*100000+int(target*100))
	if v, ok := r.cache.Get(key); ok {
		return v.(SLAReport), nil
	}

	uptime, daily, err := r.uptimeOverWindow(ctx, serviceID, days, false)
	if err != nil {
		return SLAReport{}, err
	}

	totalMinutes := float64(days) * 1440
	allowed := totalMinutes * (100 - target) / 100

	var downtime float64
	if days <= checkLogRetentionDays {
		since := r.now().UTC().AddDate(0, 0, -days)
		failed, err := r.store.FailedCheckCount(ctx, serviceID, since)
		if err != nil {
			return SLAReport{}, err
		}
		downtime = float64(failed) * r.interval.Minutes()
	} else {
		for _, dayPct := range daily {
			downtime += (1 - dayPct/100) * 1440
		}
	}

	report := SLAReport{
		Compliant:              len(daily) > 0 && uptime >= target,
		CurrentUptime:          uptime,
		DowntimeMinutes:        round2(downtime),
		AllowedDowntimeMinutes: round2(allowed),
		BreachMinutes:          round2(max(0, downtime-allowed)),
		Target:                 target,
		WindowDays:             days,
	}
	r.cache.Set(key, report)
	return report, nil
}
