package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/botjam/stage/internal/domain"
)

// RegisterAgent mints a bearer token for an agent.
// POST /v1/agent/register
func (h *Handler) RegisterAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	token, err := h.service.RegisterAgent(ctx, req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token":     token,
		"agentName": req.AgentName,
	})
}

// StartRun claims the stage and creates a LIVE run.
// POST /v1/agent/start
func (h *Handler) StartRun(c echo.Context) error {
	ctx := c.Request().Context()

	agent, err := h.service.Authenticate(ctx, c.Request().Header.Get("Authorization"))
	if err != nil {
		return h.fail(c, err)
	}

	var req domain.StartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	agentName := domain.TrimAndValidate(req.AgentName, domain.MaxAgentName)
	if agentName == "" {
		agentName = agent.AgentName
	}

	result, err := h.service.StartRun(ctx, agentName)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run":            result.Run,
		"dailyChallenge": result.DailyChallenge,
	})
}

// SubmitEvent appends one timeline event to a live run.
// POST /v1/agent/event
func (h *Handler) SubmitEvent(c echo.Context) error {
	ctx := c.Request().Context()

	agent, err := h.service.Authenticate(ctx, c.Request().Header.Get("Authorization"))
	if err != nil {
		return h.fail(c, err)
	}
	if !h.limiter.Take("events:"+agent.TokenHash, h.cfg.EventRateLimit, h.cfg.RateWindow) {
		return rateLimited(c)
	}

	var sub domain.EventSubmission
	if err := c.Bind(&sub); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	event, err := h.service.IngestEvent(ctx, sub)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"event": event})
}

// FinishRun transitions a live run to FINISHED.
// POST /v1/agent/finish
func (h *Handler) FinishRun(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := h.service.Authenticate(ctx, c.Request().Header.Get("Authorization")); err != nil {
		return h.fail(c, err)
	}

	var req domain.FinishRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.RunID < 1 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "runId is required"})
	}
	if !domain.ValidOptional(req.FinalSummary, domain.MaxFinalSummary) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid finalSummary"})
	}

	run, err := h.service.FinishRun(ctx, req.RunID, req.FinalSummary)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"run": run})
}

// FailRun transitions a live run to FAILED with a synthesized error event.
// POST /v1/agent/fail
func (h *Handler) FailRun(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := h.service.Authenticate(ctx, c.Request().Header.Get("Authorization")); err != nil {
		return h.fail(c, err)
	}

	var req domain.FailRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.RunID < 1 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "runId is required"})
	}
	reason := domain.TrimAndValidate(req.Reason, domain.MaxEventText)
	if reason == "" {
		reason = "run failed"
	}

	run, event, err := h.service.FailRun(ctx, req.RunID, reason)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run":   run,
		"event": event,
	})
}
