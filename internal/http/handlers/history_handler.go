// README: Ride history and earnings handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridecore/internal/http/middleware"
	"ridecore/internal/modules/history"
	"ridecore/internal/modules/ride"
	"ridecore/internal/types"
)

type HistoryService interface {
	RiderHistory(ctx context.Context, riderID types.ID, page, limit int) (history.Page[ride.Ride], error)
	DriverHistory(ctx context.Context, driverID types.ID, page, limit int) (history.Page[ride.Ride], error)
	DriverEarnings(ctx context.Context, driverID types.ID, w history.Window) (history.Earnings, error)
}

type HistoryHandler struct {
	history HistoryService
	drivers DriverLookup
}

func NewHistoryHandler(svc HistoryService, drivers DriverLookup) *HistoryHandler {
	return &HistoryHandler{history: svc, drivers: drivers}
}

// RiderRides handles GET /history/rides?page&limit.
func (h *HistoryHandler) RiderRides(c *gin.Context) {
	p, err := h.history.RiderHistory(c.Request.Context(), types.ID(middleware.CallerUID(c)), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, pageResponse(p))
}

func (h *HistoryHandler) DriverRides(c *gin.Context) {
	d, err := h.drivers.GetByUserID(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	p, err := h.history.DriverHistory(c.Request.Context(), d.ID, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, pageResponse(p))
}

// DriverEarnings handles GET /history/driver/earnings?from&to. Bounds are
// RFC 3339 timestamps or plain dates; a plain "to" date covers that whole day.
func (h *HistoryHandler) DriverEarnings(c *gin.Context) {
	var w history.Window
	if v := c.Query("from"); v != "" {
		t, _, ok := parseBound(v)
		if !ok {
			writeError(c, http.StatusBadRequest, codeBadRequest, "invalid from")
			return
		}
		w.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, dateOnly, ok := parseBound(v)
		if !ok {
			writeError(c, http.StatusBadRequest, codeBadRequest, "invalid to")
			return
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		w.To = &t
	}
	d, err := h.drivers.GetByUserID(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	e, err := h.history.DriverEarnings(c.Request.Context(), d.ID, w)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, e)
}

func parseBound(v string) (time.Time, bool, bool) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), false, true
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, true
	}
	return time.Time{}, false, false
}
