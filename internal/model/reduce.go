package model

import (
	"fmt"
	"time"
)

// ReduceSystemStatus folds the latest per-service uptime buckets into a
// single SystemStatus: any major outage wins, then any partial outage,
// otherwise operational. The input is the newest bucket per service.
func ReduceSystemStatus(latest []BucketStatus, at time.Time) SystemStatus {
	var major, partial int
	for _, b := range latest {
		switch b {
		case BucketMajorOutage:
			major++
		case BucketPartialOutage:
			partial++
		}
	}

	s := SystemStatus{OverallStatus: SystemOperational, GeneratedAt: at}
	switch {
	case len(latest) == 0:
		s.Message = "no uptime data recorded yet"
	case major > 0:
		s.OverallStatus = SystemOutage
		s.Message = fmt.Sprintf("%d of %d services in major outage", major, len(latest))
	case partial > 0:
		s.OverallStatus = SystemDegraded
		s.Message = fmt.Sprintf("%d of %d services degraded", partial, len(latest))
	default:
		s.Message = "all services operational"
	}
	return s
}
