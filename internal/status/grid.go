package status

import (
	"context"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/sla-monitor/watch-server/internal/model"
)

// MonthGrid is one calendar month of per-day statuses plus the month's
// aggregate uptime.
type MonthGrid struct {
	Year      int                  `json:"year"`
	Month     int                  `json:"month"`
	UptimePct float64              `json:"uptime_pct"`
	Days      []model.BucketStatus `json:"days"`
}

// MonthlyGrid returns the per-day statuses for each of the last `months`
// calendar months, oldest first, anchored on the given day (zero anchor
// means today). Days without a bucket row render as empty.
func (r *Reader) MonthlyGrid(ctx context.Context, serviceID string, months int, anchor time.Time) ([]MonthGrid, error) {
	if months <= 0 {
		return nil, fmt.Errorf("status: months must be positive, got %d", months)
	}
	if anchor.IsZero() {
		anchor = r.now()
	}
	anchor = anchor.UTC()

	key := xxh3.HashString(fmt.Sprintf("grid|%s|%d|%s", serviceID, months, model.DayKey(anchor)))
	if v, ok := r.cache.Get(key); ok {
		return v.([]MonthGrid), nil
	}

	if _, err := r.store.GetService(ctx, serviceID); err != nil {
		return nil, err
	}

	firstMonth := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, -(months - 1), 0)
	lastDay := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, -1)

	buckets, err := r.store.BucketsInRange(ctx, serviceID,
		model.DayKey(firstMonth), model.DayKey(lastDay))
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]model.BucketStatus, len(buckets))
	for _, b := range buckets {
		byDay[b.Date] = b.Status
	}

	grids := make([]MonthGrid, 0, months)
	for m := 0; m < months; m++ {
		monthStart := firstMonth.AddDate(0, m, 0)
		daysInMonth := monthStart.AddDate(0, 1, -1).Day()

		grid := MonthGrid{
			Year:  monthStart.Year(),
			Month: int(monthStart.Month()),
			Days:  make([]model.BucketStatus, 0, daysInMonth),
		}
		var sum float64
		var counted int
		for d := 1; d <= daysInMonth; d++ {
			day := model.DayKey(monthStart.AddDate(0, 0, d-1))
			st, ok := byDay[day]
			if !ok {
				st = model.BucketEmpty
			}
			grid.Days = append(grid.Days, st)
			if score, c := st.UptimeScore(); c {
				sum += score
				counted++
			}
		}
		if counted > 0 {
			grid.UptimePct = round2(sum / float64(counted) * 100)
		}
		grids = append(grids, grid)
	}

	r.cache.Set(key, grids)
	return grids, nil
}
