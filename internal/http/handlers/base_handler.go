// README: Base handler utilities (JSON helpers, error mapping, caller identity).
package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridecore/internal/modules/advisory"
	"ridecore/internal/modules/driver"
	"ridecore/internal/modules/fare"
	"ridecore/internal/modules/history"
	"ridecore/internal/modules/ride"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const (
	codeBadRequest        = "BAD_REQUEST"
	codeForbidden         = "FORBIDDEN"
	codeNotFound          = "NOT_FOUND"
	codeConflict          = "CONFLICT"
	codeNoDrivers         = "NO_DRIVERS_AVAILABLE"
	codeUnresolvable      = "DESTINATION_UNRESOLVABLE"
	codeInternal          = "INTERNAL_ERROR"
	codeDriverNotFound    = "DRIVER_PROFILE_REQUIRED"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeDestinationLocked = "DESTINATION_CHANGE_NOT_ALLOWED"
	codeCancelNotAllowed  = "CANCEL_NOT_ALLOWED"
)

// isValidID accepts the uuid ids this service generates and the opaque
// uids issued by the identity provider.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, code, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps module sentinels onto HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest), errors.Is(err, driver.ErrBadRequest),
		errors.Is(err, fare.ErrBadRequest), errors.Is(err, history.ErrBadRequest):
		writeError(c, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, ride.ErrForbidden):
		writeError(c, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, driver.ErrNotFound), errors.Is(err, fare.ErrNotFound):
		writeError(c, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, ride.ErrInvalidTransition):
		writeError(c, http.StatusConflict, codeInvalidTransition, err.Error())
	case errors.Is(err, ride.ErrDestinationChangeNotAllowed):
		writeError(c, http.StatusConflict, codeDestinationLocked, err.Error())
	case errors.Is(err, ride.ErrCancelNotAllowed):
		writeError(c, http.StatusConflict, codeCancelNotAllowed, err.Error())
	case errors.Is(err, ride.ErrConflict), errors.Is(err, driver.ErrConflict), errors.Is(err, fare.ErrConflict):
		writeError(c, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, ride.ErrNoDriversAvailable):
		writeError(c, http.StatusServiceUnavailable, codeNoDrivers, err.Error())
	case errors.Is(err, advisory.ErrDestinationUnresolvable):
		writeError(c, http.StatusUnprocessableEntity, codeUnresolvable, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// queryFloat reads a required float query parameter.
func queryFloat(c *gin.Context, name string) (float64, bool) {
	v, err := strconv.ParseFloat(c.Query(name), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// queryInt reads an optional int query parameter; absent or malformed is 0.
func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func pageResponse[T any](p history.Page[T]) gin.H {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (p.Total + p.Limit - 1) / p.Limit
	}
	return gin.H{
		"data":       items,
		"pagination": pagination{Page: p.Page, Limit: p.Limit, Total: p.Total, TotalPages: totalPages},
	}
}
