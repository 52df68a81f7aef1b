package v1

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dalia/internal/chat"
	"github.com/xiaot623/dalia/internal/metrics"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsMaxMessageSize = 64 * 1024
)

// ChatWebSocket serves streamed turns over a WebSocket. Each inbound
// {"message", "conversation_id"} produces the same frames as
// POST /chat/stream, one JSON text message per frame. Turns on one
// connection run in order; a message without conversation_id continues the
// connection's last conversation.
// GET /chat/ws
func (h *Handler) ChatWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return nil
	}
	defer ws.Close()
	ws.SetReadLimit(wsMaxMessageSize)

	m := h.service.Metrics()
	release := m.StreamStarted()
	defer release()

	ctx := c.Request().Context()
	w := &wsFrameWriter{conn: ws, metrics: m}
	current := ""

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return nil
		}

		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := w.WriteFrame(chat.ErrorFrame("invalid JSON message")); err != nil {
				return nil
			}
			continue
		}
		if req.Message == "" {
			if err := w.WriteFrame(chat.ErrorFrame("message is required")); err != nil {
				return nil
			}
			continue
		}
		if req.ConversationID == "" {
			req.ConversationID = current
		}

		w.last = ""
		id, err := h.relayTurn(ctx, req.ConversationID, req.Message, w)
		current = id
		m.ChatTurn("ws", turnOutcome(w.last))
		if err != nil {
			log.Printf("WARN: websocket turn for conversation %s ended early: %v", id, err)
			return nil
		}
	}
}

// wsFrameWriter writes frames as JSON text messages.
type wsFrameWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	metrics *metrics.Metrics
	last    chat.FrameType
}

func (w *wsFrameWriter) WriteFrame(f chat.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := w.conn.WriteJSON(f); err != nil {
		return err
	}
	w.last = f.Type
	w.metrics.Frame(string(f.Type))
	return nil
}

// relayTurn runs one turn and reports the conversation id it used.
func (h *Handler) relayTurn(ctx context.Context, conversationID, text string, w chat.FrameWriter) (string, error) {
	id, session := h.service.Session(conversationID)
	return id, chat.Relay(ctx, id, session, text, w)
}
