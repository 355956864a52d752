package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/botjam/stage/internal/domain"
	"github.com/botjam/stage/internal/hub"
)

// GetLive returns the current live run and its challenge, or nulls when the
// stage is idle.
// GET /v1/live
func (h *Handler) GetLive(c echo.Context) error {
	ctx := c.Request().Context()

	run, ch, err := h.service.CurrentLive(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"liveRun":        run,
		"dailyChallenge": ch,
	})
}

// StreamLive serves the live stage over Server-Sent Events. Every new viewer
// receives a hello snapshot before any incremental messages, then event and
// run messages as they happen, with keep-alive comments in between.
// GET /v1/live/stream
func (h *Handler) StreamLive(c echo.Context) error {
	ctx := c.Request().Context()
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	client := h.hub.AddClient()
	defer h.hub.RemoveClient(client.ID)

	// The snapshot is written directly so it always precedes anything the
	// hub delivers to this client.
	hello, err := h.helloSnapshot(c)
	if err != nil {
		return h.fail(c, err)
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", domain.StreamHello, hello); err != nil {
		return nil
	}
	res.Flush()

	ticker := time.NewTicker(h.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.hub.SendKeepAlive(client.ID)
		case frame, ok := <-client.Frames:
			if !ok {
				return nil
			}
			if err := writeSSEFrame(res, frame); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func (h *Handler) helloSnapshot(c echo.Context) (json.RawMessage, error) {
	ctx := c.Request().Context()
	ch, err := h.service.EnsureTodayChallenge(ctx)
	if err != nil {
		return nil, err
	}
	run, liveCh, err := h.service.CurrentLive(ctx)
	if err != nil {
		return nil, err
	}
	if liveCh != nil {
		ch = liveCh
	}
	return json.Marshal(domain.HelloData{DailyChallenge: ch, LiveRun: run})
}

func writeSSEFrame(w io.Writer, frame hub.Frame) error {
	if frame.KeepAlive {
		_, err := fmt.Fprint(w, ": keep-alive\n\n")
		return err
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Event, frame.Data)
	return err
}
