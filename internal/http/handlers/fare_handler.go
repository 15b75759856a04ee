// README: Fare estimate and admin surge-zone handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/modules/fare"
	"ridecore/internal/types"
)

type FareService interface {
	Estimate(ctx context.Context, pickup, dest types.Point) (fare.Estimate, error)
	ListZones(ctx context.Context) ([]fare.SurgeZone, error)
	CreateZone(ctx context.Context, cmd fare.CreateZoneCommand) (fare.SurgeZone, error)
	UpdateZone(ctx context.Context, id types.ID, patch fare.ZonePatch) (fare.SurgeZone, error)
	DeleteZone(ctx context.Context, id types.ID) error
}

type FareHandler struct {
	fares FareService
}

func NewFareHandler(svc FareService) *FareHandler {
	return &FareHandler{fares: svc}
}

// Estimate handles GET /fares/estimate?pickupLat&pickupLng&destLat&destLng.
func (h *FareHandler) Estimate(c *gin.Context) {
	var vals [4]float64
	for i, name := range []string{"pickupLat", "pickupLng", "destLat", "destLng"} {
		v, ok := queryFloat(c, name)
		if !ok {
			writeError(c, http.StatusBadRequest, codeBadRequest, name+" is required")
			return
		}
		vals[i] = v
	}
	pickup := types.Point{Lat: vals[0], Lng: vals[1]}
	dest := types.Point{Lat: vals[2], Lng: vals[3]}
	if !pickup.InRange() || !dest.InRange() {
		writeError(c, http.StatusBadRequest, codeBadRequest, "coordinates out of range")
		return
	}
	est, err := h.fares.Estimate(c.Request.Context(), pickup, dest)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

func (h *FareHandler) ListZones(c *gin.Context) {
	zones, err := h.fares.ListZones(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if zones == nil {
		zones = []fare.SurgeZone{}
	}
	writeJSON(c, http.StatusOK, gin.H{"data": zones})
}

type createZoneReq struct {
	Name       string   `json:"name"`
	CenterLat  *float64 `json:"centerLat"`
	CenterLng  *float64 `json:"centerLng"`
	RadiusKm   float64  `json:"radiusKm"`
	Multiplier float64  `json:"multiplier"`
}

func (h *FareHandler) CreateZone(c *gin.Context) {
	var req createZoneReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeBadRequest, "invalid json")
		return
	}
	if req.CenterLat == nil || req.CenterLng == nil {
		writeError(c, http.StatusBadRequest, codeBadRequest, "centerLat and centerLng are required")
		return
	}
	z, err := h.fares.CreateZone(c.Request.Context(), fare.CreateZoneCommand{
		Name:       req.Name,
		Center:     types.Point{Lat: *req.CenterLat, Lng: *req.CenterLng},
		RadiusKm:   req.RadiusKm,
		Multiplier: req.Multiplier,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, z)
}

type updateZoneReq struct {
	Name       *string  `json:"name"`
	CenterLat  *float64 `json:"centerLat"`
	CenterLng  *float64 `json:"centerLng"`
	RadiusKm   *float64 `json:"radiusKm"`
	Multiplier *float64 `json:"multiplier"`
	IsActive   *bool    `json:"isActive"`
}

// UpdateZone handles PATCH /fares/surge-zones/:id. The center moves only
// when both coordinates are given.
func (h *FareHandler) UpdateZone(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, codeBadRequest, "invalid zone id")
		return
	}
	var req updateZoneReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeBadRequest, "invalid json")
		return
	}
	if (req.CenterLat == nil) != (req.CenterLng == nil) {
		writeError(c, http.StatusBadRequest, codeBadRequest, "centerLat and centerLng must be set together")
		return
	}
	patch := fare.ZonePatch{Name: req.Name, RadiusKm: req.RadiusKm, Multiplier: req.Multiplier, IsActive: req.IsActive}
	if req.CenterLat != nil {
		patch.Center = &types.Point{Lat: *req.CenterLat, Lng: *req.CenterLng}
	}
	z, err := h.fares.UpdateZone(c.Request.Context(), types.ID(id), patch)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, z)
}

func (h *FareHandler) DeleteZone(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, codeBadRequest, "invalid zone id")
		return
	}
	if err := h.fares.DeleteZone(c.Request.Context(), types.ID(id)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
