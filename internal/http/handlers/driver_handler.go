// README: Driver handlers for registration, availability, location and nearby search.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/http/middleware"
	"ridecore/internal/modules/driver"
	"ridecore/internal/types"
)

type DriverService interface {
	DriverLookup
	Register(ctx context.Context, cmd driver.RegisterCommand) (*driver.Driver, error)
	SetOnline(ctx context.Context, userID types.ID, online bool) (*driver.Driver, error)
	UpdateLocation(ctx context.Context, userID types.ID, p types.Point) (*driver.Driver, error)
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]driver.Nearby, error)
}

type DriverHandler struct {
	drivers DriverService
}

func NewDriverHandler(svc DriverService) *DriverHandler {
	return &DriverHandler{drivers: svc}
}

type registerDriverReq struct {
	Name         string `json:"name"`
	VehicleMake  string `json:"vehicleMake"`
	VehicleModel string `json:"vehicleModel"`
	VehicleColor string `json:"vehicleColor"`
	LicensePlate string `json:"licensePlate"`
}

// Register handles POST /drivers/register.
func (h *DriverHandler) Register(c *gin.Context) {
	var req registerDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeBadRequest, "invalid json")
		return
	}
	d, err := h.drivers.Register(c.Request.Context(), driver.RegisterCommand{
		UserID:       types.ID(middleware.CallerUID(c)),
		Name:         req.Name,
		VehicleMake:  req.VehicleMake,
		VehicleModel: req.VehicleModel,
		VehicleColor: req.VehicleColor,
		LicensePlate: req.LicensePlate,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

func (h *DriverHandler) Me(c *gin.Context) {
	d, err := h.drivers.GetByUserID(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type setStatusReq struct {
	IsOnline *bool `json:"isOnline"`
}

// SetStatus handles PATCH /drivers/me/status.
func (h *DriverHandler) SetStatus(c *gin.Context) {
	var req setStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.IsOnline == nil {
		writeError(c, http.StatusBadRequest, codeBadRequest, "isOnline is required")
		return
	}
	d, err := h.drivers.SetOnline(c.Request.Context(), types.ID(middleware.CallerUID(c)), *req.IsOnline)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type updateLocationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// UpdateLocation handles PATCH /drivers/me/location. Only the caller's own
// profile can be moved.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, codeBadRequest, "lat and lng are required")
		return
	}
	d, err := h.drivers.UpdateLocation(c.Request.Context(), types.ID(middleware.CallerUID(c)), types.Point{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

// Nearby handles GET /drivers/nearby?lat&lng&radiusKm.
func (h *DriverHandler) Nearby(c *gin.Context) {
	lat, okLat := queryFloat(c, "lat")
	lng, okLng := queryFloat(c, "lng")
	if !okLat || !okLng {
		writeError(c, http.StatusBadRequest, codeBadRequest, "lat and lng are required")
		return
	}
	radius := 0.0
	if c.Query("radiusKm") != "" {
		r, ok := queryFloat(c, "radiusKm")
		if !ok || r <= 0 || r > 50 {
			writeError(c, http.StatusBadRequest, codeBadRequest, "radiusKm must be within (0, 50]")
			return
		}
		radius = r
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.InRange() {
		writeError(c, http.StatusBadRequest, codeBadRequest, "coordinates out of range")
		return
	}
	nearby, err := h.drivers.Nearby(c.Request.Context(), p, radius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if nearby == nil {
		nearby = []driver.Nearby{}
	}
	writeJSON(c, http.StatusOK, gin.H{"data": nearby})
}
