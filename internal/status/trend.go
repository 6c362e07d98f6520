package status

import "context"

// Trend directions.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// trendThreshold is the minimum half-to-half delta (percentage points)
// before a window counts as moving at all.
const trendThreshold = 0.5

// TrendReport describes how a service's uptime is moving over a window.
type TrendReport struct {
	Direction      string    `json:"direction"`
	DeltaPct       float64   `json:"delta_pct"`
	WeeklyAverages []float64 `json:"weekly_averages"`
	DailyUptimes   []float64 `json:"daily_uptimes"`
}

// Trend splits the window's per-day uptimes into weekly averages and
// compares the mean of the first half of the weeks against the second.
// Fewer than two full or partial weeks of counted days reports stable
// with a zero delta.
func (r *Reader) Trend(ctx context.Context, serviceID string, days int) (TrendReport, error) {
	key := cacheKey("trend", serviceID, days)
	if v, ok := r.cache.Get(key); ok {
		return v.(TrendReport), nil
	}

	_, daily, err := r.uptimeOverWindow(ctx, serviceID, days, false)
	if err != nil {
		return TrendReport{}, err
	}

	report := TrendReport{
		Direction:    TrendStable,
		DailyUptimes: daily,
	}

	var weekly []float64
	for i := 0; i < len(daily); i += 7 {
		end := i + 7
		if end > len(daily) {
			end = len(daily)
		}
		var sum float64
		for _, v := range daily[i:end] {
			sum += v
		}
		weekly = append(weekly, round2(sum/float64(end-i)))
	}
	report.WeeklyAverages = weekly

	if len(weekly) < 2 {
		r.cache.Set(key, report)
		return report, nil
	}

	half := len(weekly) / 2
	first := mean(weekly[:half])
	second := mean(weekly[len(weekly)-half:])
	delta := round2(second - first)
	report.DeltaPct = delta
	switch {
	case delta > trendThreshold:
		report.Direction = TrendImproving
	case delta < -trendThreshold:
		report.Direction = TrendDeclining
	}

	r.cache.Set(key, report)
	return report, nil
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
