// Package v1 provides HTTP handlers for the stage API.
package v1

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/botjam/stage/config"
	"github.com/botjam/stage/internal/hub"
	"github.com/botjam/stage/internal/ratelimit"
	"github.com/botjam/stage/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	hub     *hub.Hub
	limiter *ratelimit.Limiter
	cfg     *config.Config
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, h *hub.Hub, limiter *ratelimit.Limiter, cfg *config.Config) *Handler {
	return &Handler{
		service: svc,
		hub:     h,
		limiter: limiter,
		cfg:     cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Agent API (bearer token required except for register)
	e.POST("/v1/agent/register", h.RegisterAgent)
	e.POST("/v1/agent/start", h.StartRun)
	e.POST("/v1/agent/event", h.SubmitEvent)
	e.POST("/v1/agent/finish", h.FinishRun)
	e.POST("/v1/agent/fail", h.FailRun)

	// Viewer API
	e.GET("/v1/today", h.GetToday)
	e.GET("/v1/live", h.GetLive)
	e.GET("/v1/live/stream", h.StreamLive)
	e.GET("/v1/live/ws", h.LiveWS)
	e.GET("/v1/runs", h.ListRuns)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.GET("/v1/runs/:run_id/replay", h.ReplayRun)
	e.GET("/v1/runs/:run_id/comments", h.GetRunComments)
	e.POST("/v1/runs/:run_id/comments", h.PostRunComment)
	e.GET("/v1/runs/:run_id/likes", h.GetRunLikes)
	e.POST("/v1/runs/:run_id/likes", h.PostRunLike)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// fail maps service errors to HTTP responses.
func (h *Handler) fail(c echo.Context, err error) error {
	var validationErr service.ValidationError
	var liveErr *service.LiveRunExistsError
	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": validationErr.Error()})
	case errors.As(err, &liveErr):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":   "a live run already exists",
			"liveRun": liveErr.LiveRun,
		})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	case errors.Is(err, service.ErrNotLive):
		return c.JSON(http.StatusConflict, map[string]string{"error": "run is not live"})
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func rateLimited(c echo.Context) error {
	return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional non-negative query parameter, falling back to
// def when absent or malformed.
func queryInt64(c echo.Context, name string, def int64) int64 {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func queryLimit(c echo.Context) int {
	limit := int(queryInt64(c, "limit", defaultPageSize))
	if limit < 1 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
