// Package http provides the HTTP server implementation for the stage.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/botjam/stage/config"
	"github.com/botjam/stage/internal/hub"
	"github.com/botjam/stage/internal/ratelimit"
	"github.com/botjam/stage/internal/service"
	v1 "github.com/botjam/stage/internal/transport/http/v1"
)

// NewServer creates and configures the public HTTP server. It serves the
// agent API, the viewer API, and the live stream endpoints.
func NewServer(svc *service.Service, h *hub.Hub, limiter *ratelimit.Limiter, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, h, limiter, cfg)

	// Register Routes
	v1Handler.RegisterRoutes(e)

	return e
}
