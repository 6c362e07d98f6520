package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/sla-monitor/watch-server/internal/buildinfo"
	"github.com/sla-monitor/watch-server/internal/maintenance"
	"github.com/sla-monitor/watch-server/internal/model"
	"github.com/sla-monitor/watch-server/internal/monitor"
	"github.com/sla-monitor/watch-server/internal/status"
	"github.com/sla-monitor/watch-server/internal/store"
)

const (
	maxWindowDays = 366
	maxGridMonths = 12
	maxCheckLimit = 500
)

// writeStoreError maps persistence errors to HTTP responses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrServiceNotFound) {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
}

// HandleHealthz returns a handler for GET /healthz. Reports liveness,
// database reachability, and the build version. No authentication.
func HandleHealthz(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "ok"
		code := http.StatusOK
		if err := st.DB().PingContext(r.Context()); err != nil {
			dbStatus = "unreachable"
			code = http.StatusServiceUnavailable
		}
		WriteJSON(w, code, map[string]string{
			"status":   "ok",
			"database": dbStatus,
			"version":  buildinfo.Version,
		})
	}
}

// HandleSystemStatus returns GET /api/v1/status: the on-demand bucket
// reduction, the latest persisted snapshot, and the live board.
func HandleSystemStatus(reader *status.Reader, st *store.Store, sched *monitor.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := reader.SystemSnapshot(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}

		var lastPersisted *model.SystemStatus
		if persisted, ok, err := st.LatestSystemStatus(r.Context()); err != nil {
			writeStoreError(w, err)
			return
		} else if ok {
			lastPersisted = &persisted
		}

		board := sched.LiveBoard()
		services := make([]model.LiveStatus, 0, len(board))
		for _, ls := range board {
			services = append(services, ls)
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"snapshot":       snapshot,
			"last_persisted": lastPersisted,
			"services":       services,
		})
	}
}

// HandleListServices returns GET /api/v1/services.
func HandleListServices(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := st.ListServices(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"services": services})
	}
}

// HandleUptime returns GET /api/v1/services/{id}/uptime.
func HandleUptime(reader *status.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := ParseIntQuery(r, "days", 30, 1, maxWindowDays)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		serviceID := r.PathValue("id")

		pct, err := reader.UptimePercentage(r.Context(), serviceID, days)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"service_id": serviceID,
			"days":       days,
			"uptime":     pct,
		})
	}
}

// HandleSLA returns GET /api/v1/services/{id}/sla.
func HandleSLA(reader *status.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := ParseIntQuery(r, "days", 30, 1, maxWindowDays)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		target, err := ParseFloatQuery(r, "target", reader.SLATarget(), 0, 100)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		serviceID := r.PathValue("id")

		report, err := reader.SLACompliance(r.Context(), serviceID, target, days)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"service_id": serviceID,
			"sla":        report,
		})
	}
}

// HandleTrend returns GET /api/v1/services/{id}/trend.
func HandleTrend(reader *status.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := ParseIntQuery(r, "days", 28, 1, maxWindowDays)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		serviceID := r.PathValue("id")

		report, err := reader.Trend(r.Context(), serviceID, days)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"service_id": serviceID,
			"trend":      report,
		})
	}
}

// HandleGrid returns GET /api/v1/services/{id}/grid.
func HandleGrid(reader *status.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		months, err := ParseIntQuery(r, "months", 3, 1, maxGridMonths)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		anchor, err := ParseDayQuery(r, "anchor")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		serviceID := r.PathValue("id")

		grids, err := reader.MonthlyGrid(r.Context(), serviceID, months, anchor)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"service_id": serviceID,
			"months":     grids,
		})
	}
}

// HandleChecks returns GET /api/v1/services/{id}/checks.
func HandleChecks(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := ParseIntQuery(r, "limit", 50, 1, maxCheckLimit)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		before, err := ParseTimeQuery(r, "before")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		if before.IsZero() {
			before = time.Now().UTC()
		}
		serviceID := r.PathValue("id")

		if _, err := st.GetService(r.Context(), serviceID); err != nil {
			writeStoreError(w, err)
			return
		}
		checks, err := st.RecentChecks(r.Context(), serviceID, limit, before)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"service_id": serviceID,
			"checks":     checks,
		})
	}
}

// HandleLatestSession returns GET /api/v1/sessions/latest.
func HandleLatestSession(sched *monitor.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		session, ok := sched.LatestSession()
		if !ok {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "no monitoring cycle has completed yet")
			return
		}
		WriteJSON(w, http.StatusOK, session)
	}
}

// HandleProbeService returns POST /api/v1/services/{id}/probe (admin).
func HandleProbeService(sched *monitor.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceID := r.PathValue("id")
		res, err := sched.ProbeNow(r.Context(), serviceID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// HandleRunMaintenance returns POST /api/v1/maintenance/run (admin).
func HandleRunMaintenance(runner *maintenance.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, runner.RunNow(r.Context()))
	}
}
