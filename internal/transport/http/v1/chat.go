package v1

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	sse "github.com/tmaxmax/go-sse"

	"github.com/xiaot623/dalia/internal/chat"
	"github.com/xiaot623/dalia/internal/metrics"
)

// ChatRequest is the body of POST /chat and POST /chat/stream.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func bindChatRequest(c echo.Context) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return nil, errors.New("invalid request body")
	}
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	return &req, nil
}

// PostChat runs one synchronous turn.
// POST /chat
func (h *Handler) PostChat(c echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	}

	ctx := c.Request().Context()
	result, err := h.service.Chat(ctx, req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("ERROR: chat turn failed: %v", err)
		return errorJSON(c, http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, result)
}

// GetChat returns the transcript of a conversation.
// GET /chat/:conversation_id
func (h *Handler) GetChat(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	return c.JSON(http.StatusOK, h.service.History(c.Request().Context(), conversationID))
}

// StreamChat runs one streamed turn as Server-Sent Events.
// POST /chat/stream
func (h *Handler) StreamChat(c echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	}

	res := c.Response()
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")

	sess, err := sse.Upgrade(res, c.Request())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	m := h.service.Metrics()
	release := m.StreamStarted()
	defer release()

	ctx := c.Request().Context()
	conversationID, session := h.service.Session(req.ConversationID)
	w := &sseFrameWriter{sess: sess, metrics: m}
	if err := chat.Relay(ctx, conversationID, session, req.Message, w); err != nil && ctx.Err() == nil {
		log.Printf("WARN: stream for conversation %s ended early: %v", conversationID, err)
	}
	m.ChatTurn("stream", turnOutcome(w.last))
	return nil
}

// sseFrameWriter writes each frame as one "data:" event and flushes it.
type sseFrameWriter struct {
	sess    *sse.Session
	metrics *metrics.Metrics
	last    chat.FrameType
}

func (w *sseFrameWriter) WriteFrame(f chat.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	msg := &sse.Message{}
	msg.AppendData(string(payload))
	if err := w.sess.Send(msg); err != nil {
		return err
	}
	if err := w.sess.Flush(); err != nil {
		return err
	}
	w.last = f.Type
	w.metrics.Frame(string(f.Type))
	return nil
}

func turnOutcome(last chat.FrameType) string {
	switch last {
	case chat.FrameComplete:
		return "ok"
	case chat.FrameError:
		return "error"
	default:
		return "disconnected"
	}
}
