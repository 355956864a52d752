package v1

import (
	"math"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/botjam/stage/internal/domain"
)

// GetToday returns (and upserts) today's challenge, plus the live run if one
// is on stage.
// GET /v1/today
func (h *Handler) GetToday(c echo.Context) error {
	ctx := c.Request().Context()

	ch, err := h.service.EnsureTodayChallenge(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	run, _, err := h.service.CurrentLive(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"dailyChallenge": ch,
		"liveRun":        run,
	})
}

// ListRuns returns the archive feed, newest-first, paged by id cursor.
// GET /v1/runs
func (h *Handler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	cursor := queryInt64(c, "cursor", 0)
	runs, nextCursor, err := h.service.ListRuns(ctx, cursor, queryLimit(c))
	if err != nil {
		return h.fail(c, err)
	}
	if runs == nil {
		runs = []domain.RunWithChallenge{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":       runs,
		"nextCursor": nextCursor,
	})
}

// GetRun returns one run with its challenge and counts.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	runID, ok := pathID(c, "run_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	run, err := h.service.GetRunDetail(ctx, runID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents returns a run's events in id order, paged by id cursor.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	ctx := c.Request().Context()

	runID, ok := pathID(c, "run_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	cursor := queryInt64(c, "cursor", 0)
	events, nextCursor, err := h.service.ListEvents(ctx, runID, cursor, queryLimit(c))
	if err != nil {
		return h.fail(c, err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events":     events,
		"nextCursor": nextCursor,
	})
}

// ReplayRun reconstructs the visible stage state at a point in song time.
// GET /v1/runs/:run_id/replay?atMs=12345
func (h *Handler) ReplayRun(c echo.Context) error {
	ctx := c.Request().Context()

	runID, ok := pathID(c, "run_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	// Default replays the whole run.
	atMs := queryInt64(c, "atMs", math.MaxInt64)

	result, err := h.service.ReplayRun(ctx, runID, atMs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":       result.Code,
		"warnings":   result.Warnings,
		"eventCount": len(result.VisibleEvents),
	})
}

// GetRunComments returns a run's comments in id order.
// GET /v1/runs/:run_id/comments
func (h *Handler) GetRunComments(c echo.Context) error {
	ctx := c.Request().Context()

	runID, ok := pathID(c, "run_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	comments, err := h.service.ListComments(ctx, runID)
	if err != nil {
		return h.fail(c, err)
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"comments": comments})
}

// PostRunComment adds a spectator comment to a run.
// POST /v1/runs/:run_id/comments
func (h *Handler) PostRunComment(c echo.Context) error {
	ctx := c.Request().Context()

	runID, ok := pathID(c, "run_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	if !h.limiter.Take("comments:"+c.RealIP(), h.cfg.CommentRateLimit, h.cfg.RateWindow) {
		return rateLimited(c)
	}

	var req domain.CommentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	comment, err := h.service.AddComment(ctx, runID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"comment": comment})
}

// GetRunLikes returns a run's likes.
// GET /v1/runs/:run_id/likes
func (h *Handler) GetRunLikes(c echo.Context) error {
	ctx := c.Request().Context()

	runID, ok := pathID(c, "run_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	likes, err := h.service.ListLikes(ctx, runID)
	if err != nil {
		return h.fail(c, err)
	}
	if likes == nil {
		likes = []domain.Like{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"likes": likes})
}

// PostRunLike records a like for a run. Repeat likes are absorbed and
// reported as duplicates.
// POST /v1/runs/:run_id/likes
func (h *Handler) PostRunLike(c echo.Context) error {
	ctx := c.Request().Context()

	runID, ok := pathID(c, "run_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	if !h.limiter.Take("likes:"+c.RealIP(), h.cfg.LikeRateLimit, h.cfg.RateWindow) {
		return rateLimited(c)
	}

	var req domain.LikeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	// Agent likes are attributed to the authenticated agent, never a
	// caller-chosen name.
	if req.Source == string(domain.LikeSourceAgent) {
		agent, err := h.service.Authenticate(ctx, c.Request().Header.Get("Authorization"))
		if err != nil {
			return h.fail(c, err)
		}
		req.Name = agent.AgentName
	}

	like, duplicate, err := h.service.LikeRun(ctx, runID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"like":      like,
		"duplicate": duplicate,
	})
}
