// README: HTTP route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridecore/internal/http/handlers"
	"ridecore/internal/http/middleware"
)

const (
	roleRider  = "rider"
	roleDriver = "driver"
	roleAdmin  = "admin"
)

func registerRoutes(r *gin.Engine, deps ServerDeps) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1", middleware.Auth(deps.Verifier))
	riders := middleware.RequireRole(roleRider)
	drivers := middleware.RequireRole(roleDriver)
	admins := middleware.RequireRole(roleAdmin)

	rideHandler := handlers.NewRideHandler(deps.Rides, deps.Drivers, deps.Attempts)
	api.POST("/rides", riders, rideHandler.Create)
	api.GET("/rides/:id", rideHandler.Get)
	api.GET("/rides/:id/events", rideHandler.Events)
	api.POST("/rides/:id/match", riders, rideHandler.Match)
	api.PATCH("/rides/:id/status", drivers, rideHandler.UpdateStatus)
	api.PATCH("/rides/:id/destination", riders, rideHandler.ChangeDestination)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.GET("/rides/:id/dispatch", admins, rideHandler.Dispatch)

	driverHandler := handlers.NewDriverHandler(deps.Drivers)
	api.POST("/drivers/register", drivers, driverHandler.Register)
	api.GET("/drivers/me", drivers, driverHandler.Me)
	api.PATCH("/drivers/me/status", drivers, driverHandler.SetStatus)
	api.PATCH("/drivers/me/location", drivers, driverHandler.UpdateLocation)
	api.GET("/drivers/nearby", driverHandler.Nearby)

	fareHandler := handlers.NewFareHandler(deps.Fares)
	api.GET("/fares/estimate", fareHandler.Estimate)
	api.GET("/fares/surge-zones", admins, fareHandler.ListZones)
	api.POST("/fares/surge-zones", admins, fareHandler.CreateZone)
	api.PATCH("/fares/surge-zones/:id", admins, fareHandler.UpdateZone)
	api.DELETE("/fares/surge-zones/:id", admins, fareHandler.DeleteZone)

	destinationHandler := handlers.NewDestinationHandler(deps.Destinations, deps.Fares)
	api.POST("/destinations/resolve", riders, destinationHandler.Resolve)

	historyHandler := handlers.NewHistoryHandler(deps.History, deps.Drivers)
	api.GET("/history/rides", riders, historyHandler.RiderRides)
	api.GET("/history/driver/rides", drivers, historyHandler.DriverRides)
	api.GET("/history/driver/earnings", drivers, historyHandler.DriverEarnings)
}
