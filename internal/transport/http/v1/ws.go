package v1

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/botjam/stage/internal/domain"
	"github.com/botjam/stage/internal/hub"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Viewers connect from arbitrary origins
		return true
	},
}

// wsMessage mirrors an SSE frame as a single JSON object.
type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// LiveWS serves the same live stream as StreamLive over a WebSocket. Frames
// become JSON messages; keep-alives become ping frames.
// GET /v1/live/ws
func (h *Handler) LiveWS(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	client := h.hub.AddClient()

	hello, err := h.helloSnapshot(c)
	if err != nil {
		h.hub.RemoveClient(client.ID)
		ws.Close()
		return nil
	}

	go h.wsReadPump(ws, client)
	go h.wsWritePump(ws, client, hello)
	return nil
}

// wsReadPump drains the connection so close frames are noticed; incoming
// messages are ignored, the stream is one-way.
func (h *Handler) wsReadPump(ws *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.RemoveClient(client.ID)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func (h *Handler) wsWritePump(ws *websocket.Conn, client *hub.Client, hello json.RawMessage) {
	ticker := time.NewTicker(h.cfg.KeepAliveInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := ws.WriteJSON(wsMessage{Event: domain.StreamHello, Data: hello}); err != nil {
		return
	}

	for {
		select {
		case frame, ok := <-client.Frames:
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				// Hub closed the channel
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if frame.KeepAlive {
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
				continue
			}
			if err := ws.WriteJSON(wsMessage{Event: frame.Event, Data: json.RawMessage(frame.Data)}); err != nil {
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
