// README: Destination preview handler (free text -> coordinates + fare quote).
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridecore/internal/modules/advisory"
	"ridecore/internal/types"
)

type DestinationResolver interface {
	Resolve(ctx context.Context, text string, pickup *types.Point) (advisory.Destination, error)
}

type DestinationHandler struct {
	resolver DestinationResolver
	fares    FareService
}

func NewDestinationHandler(resolver DestinationResolver, fares FareService) *DestinationHandler {
	return &DestinationHandler{resolver: resolver, fares: fares}
}

type resolveReq struct {
	Text      string   `json:"text"`
	PickupLat *float64 `json:"pickupLat"`
	PickupLng *float64 `json:"pickupLng"`
}

// Resolve handles POST /destinations/resolve. With a pickup the reply also
// carries the fare a ride to that destination would be quoted.
func (h *DestinationHandler) Resolve(c *gin.Context) {
	var req resolveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeBadRequest, "invalid json")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(c, http.StatusBadRequest, codeBadRequest, "text is required")
		return
	}
	if (req.PickupLat == nil) != (req.PickupLng == nil) {
		writeError(c, http.StatusBadRequest, codeBadRequest, "pickupLat and pickupLng must be set together")
		return
	}
	var pickup *types.Point
	if req.PickupLat != nil {
		pickup = &types.Point{Lat: *req.PickupLat, Lng: *req.PickupLng}
		if !pickup.InRange() {
			writeError(c, http.StatusBadRequest, codeBadRequest, "pickup out of range")
			return
		}
	}

	d, err := h.resolver.Resolve(c.Request.Context(), req.Text, pickup)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	resp := gin.H{"destination": d}
	if pickup != nil {
		est, err := h.fares.Estimate(c.Request.Context(), *pickup, d.Point())
		if err != nil {
			writeServiceError(c, err)
			return
		}
		resp["estimate"] = est
	}
	writeJSON(c, http.StatusOK, resp)
}
