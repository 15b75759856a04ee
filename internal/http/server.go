// README: API gateway; builds the gin engine and delegates to module services.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/http/handlers"
	"ridecore/internal/http/middleware"
	"ridecore/internal/infra"
	"ridecore/internal/logging"
)

type ServerDeps struct {
	Rides        handlers.RideService
	Drivers      handlers.DriverService
	Fares        handlers.FareService
	History      handlers.HistoryService
	Destinations handlers.DestinationResolver
	Attempts     handlers.AttemptLookup
	Verifier     infra.TokenVerifier
	Logger       *slog.Logger
	// Ready reports dependency health for /ready; nil means always ready.
	Ready func(context.Context) error
}

type Server struct {
	deps ServerDeps
	log  *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps, log: logging.OrDefault(deps.Logger)}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log), middleware.Metrics())
	registerRoutes(r, s.deps)
	r.GET("/ready", s.ready)
	return r
}

func (s *Server) ready(c *gin.Context) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(c.Request.Context()); err != nil {
			s.log.Warn("readiness check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
