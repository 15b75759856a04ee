// README: Ride handlers for create, match, status, destination, cancel and audit reads.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridecore/internal/http/middleware"
	"ridecore/internal/modules/dispatch"
	"ridecore/internal/modules/driver"
	"ridecore/internal/modules/ride"
	"ridecore/internal/types"
)

type RideService interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	Match(ctx context.Context, rideID, riderID types.ID) (*ride.Ride, error)
	UpdateStatus(ctx context.Context, cmd ride.UpdateStatusCommand) (*ride.Ride, error)
	ChangeDestination(ctx context.Context, cmd ride.ChangeDestinationCommand) (*ride.Ride, error)
	Cancel(ctx context.Context, cmd ride.CancelCommand) (*ride.Ride, error)
	Get(ctx context.Context, rideID, actorID types.ID, role ride.Role) (*ride.Ride, error)
	Events(ctx context.Context, rideID, actorID types.ID, role ride.Role) ([]ride.Event, error)
}

// DriverLookup resolves the driver profile behind an authenticated user.
type DriverLookup interface {
	GetByUserID(ctx context.Context, userID types.ID) (*driver.Driver, error)
}

type AttemptLookup interface {
	Lookup(ctx context.Context, rideID types.ID) (dispatch.Attempt, bool, error)
}

type RideHandler struct {
	rides    RideService
	drivers  DriverLookup
	attempts AttemptLookup
}

func NewRideHandler(rides RideService, drivers DriverLookup, attempts AttemptLookup) *RideHandler {
	return &RideHandler{rides: rides, drivers: drivers, attempts: attempts}
}

var errNoDriverProfile = errors.New("driver profile required")

// actor returns the id the ride service checks ownership against: the
// user id for riders and admins, the driver profile id for drivers.
func (h *RideHandler) actor(c *gin.Context) (types.ID, ride.Role, error) {
	uid := types.ID(middleware.CallerUID(c))
	role := ride.Role(middleware.CallerRole(c))
	if role != ride.RoleDriver {
		return uid, role, nil
	}
	d, err := h.drivers.GetByUserID(c.Request.Context(), uid)
	if errors.Is(err, driver.ErrNotFound) {
		return "", role, errNoDriverProfile
	}
	if err != nil {
		return "", role, err
	}
	return d.ID, role, nil
}

func (h *RideHandler) resolveActor(c *gin.Context) (types.ID, ride.Role, bool) {
	id, role, err := h.actor(c)
	switch {
	case errors.Is(err, errNoDriverProfile):
		writeError(c, http.StatusForbidden, codeDriverNotFound, err.Error())
		return "", "", false
	case err != nil:
		writeServiceError(c, err)
		return "", "", false
	}
	return id, role, true
}

func rideID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, codeBadRequest, "invalid ride id")
		return "", false
	}
	return types.ID(id), true
}

type createRideReq struct {
	PickupLat       *float64 `json:"pickupLat"`
	PickupLng       *float64 `json:"pickupLng"`
	PickupAddress   *string  `json:"pickupAddress"`
	DestinationText string   `json:"destinationText"`
}

// Create handles POST /rides.
func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeBadRequest, "invalid json")
		return
	}
	if req.PickupLat == nil || req.PickupLng == nil || strings.TrimSpace(req.DestinationText) == "" {
		writeError(c, http.StatusBadRequest, codeBadRequest, "pickupLat, pickupLng and destinationText are required")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		RiderID:         types.ID(middleware.CallerUID(c)),
		Pickup:          types.Point{Lat: *req.PickupLat, Lng: *req.PickupLng},
		PickupAddress:   req.PickupAddress,
		DestinationText: req.DestinationText,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

// Match handles POST /rides/:id/match.
func (h *RideHandler) Match(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	r, err := h.rides.Match(c.Request.Context(), id, types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	actorID, role, ok := h.resolveActor(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id, actorID, role)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Events(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	actorID, role, ok := h.resolveActor(c)
	if !ok {
		return
	}
	events, err := h.rides.Events(c.Request.Context(), id, actorID, role)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if events == nil {
		events = []ride.Event{}
	}
	writeJSON(c, http.StatusOK, gin.H{"data": events})
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /rides/:id/status for the assigned driver.
func (h *RideHandler) UpdateStatus(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, codeBadRequest, "status is required")
		return
	}
	driverID, _, ok := h.resolveActor(c)
	if !ok {
		return
	}
	r, err := h.rides.UpdateStatus(c.Request.Context(), ride.UpdateStatusCommand{
		RideID:   id,
		DriverID: driverID,
		To:       ride.Status(req.Status),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type changeDestinationReq struct {
	DestinationText string `json:"destinationText"`
}

func (h *RideHandler) ChangeDestination(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	var req changeDestinationReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.DestinationText) == "" {
		writeError(c, http.StatusBadRequest, codeBadRequest, "destinationText is required")
		return
	}
	r, err := h.rides.ChangeDestination(c.Request.Context(), ride.ChangeDestinationCommand{
		RideID:          id,
		RiderID:         types.ID(middleware.CallerUID(c)),
		DestinationText: req.DestinationText,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /rides/:id/cancel; the body is optional.
func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, codeBadRequest, "invalid json")
			return
		}
	}
	actorID, role, ok := h.resolveActor(c)
	if !ok {
		return
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:  id,
		ActorID: actorID,
		Role:    role,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Dispatch handles GET /rides/:id/dispatch (admin): the last recorded
// dispatch attempt for the ride.
func (h *RideHandler) Dispatch(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	if h.attempts == nil {
		writeError(c, http.StatusNotFound, codeNotFound, "dispatch attempts are not recorded")
		return
	}
	a, found, err := h.attempts.Lookup(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, codeNotFound, "no dispatch attempt recorded")
		return
	}
	writeJSON(c, http.StatusOK, a)
}
