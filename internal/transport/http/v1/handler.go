// Package v1 provides the HTTP handlers of the public API.
package v1

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dalia/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler. frontendOrigin restricts WebSocket
// upgrades; empty accepts any origin.
func NewHandler(service *service.Service, frontendOrigin string) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return frontendOrigin == "" || frontendOrigin == "*" || origin == "" || origin == frontendOrigin
			},
		},
	}
}

// RegisterRoutes registers routes with the echo server. chatMiddleware is
// applied to the /chat routes only.
func (h *Handler) RegisterRoutes(e *echo.Echo, chatMiddleware ...echo.MiddlewareFunc) {
	// Chat API
	g := e.Group("/chat", chatMiddleware...)
	g.POST("", h.PostChat)
	g.POST("/stream", h.StreamChat)
	g.GET("/ws", h.ChatWebSocket)
	g.GET("/:conversation_id", h.GetChat)

	// Brokerage API
	e.GET("/trading212/transactions", h.ListTransactions)
	e.GET("/trading212/account/cash", h.GetAccountCash)
	e.GET("/trading212/account/info", h.GetAccountInfo)
	e.GET("/trading212/positions", h.ListPositions)

	// Market data API
	e.GET("/market/quote/:symbol", h.GetQuote)
	e.GET("/market/search", h.SearchSymbol)

	// Run trace API
	e.GET("/runs/:run_id", h.GetRun)
	e.GET("/runs/:run_id/events", h.GetRunEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
