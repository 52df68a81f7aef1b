// Package http provides the HTTP server for the dalia backend.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/xiaot623/dalia/internal/service"
	v1 "github.com/xiaot623/dalia/internal/transport/http/v1"
)

// Options configures NewServer.
type Options struct {
	// FrontendOrigin is the only origin allowed by CORS and the WebSocket
	// upgrader. Empty allows any origin.
	FrontendOrigin string
	// ChatRateLimit is the per-client request rate allowed on /chat routes.
	// Zero disables limiting.
	ChatRateLimit float64
}

// NewServer creates and configures the HTTP server.
func NewServer(svc *service.Service, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(corsConfig(opts.FrontendOrigin)))

	var chatMiddleware []echo.MiddlewareFunc
	if opts.ChatRateLimit > 0 {
		chatMiddleware = append(chatMiddleware, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStore(rate.Limit(opts.ChatRateLimit)),
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			},
		}))
	}

	// Handlers
	h := v1.NewHandler(svc, opts.FrontendOrigin)

	// Register Routes
	h.RegisterRoutes(e, chatMiddleware...)
	if m := svc.Metrics(); m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return e
}

func corsConfig(origin string) middleware.CORSConfig {
	cfg := middleware.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}
	if origin == "" || origin == "*" {
		cfg.AllowOrigins = []string{"*"}
		return cfg
	}
	cfg.AllowOrigins = []string{origin}
	cfg.AllowCredentials = true
	return cfg
}
