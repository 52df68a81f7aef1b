package v1

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dalia/internal/adapter/alphavantage"
	"github.com/xiaot623/dalia/internal/adapter/trading212"
	"github.com/xiaot623/dalia/internal/chat"
	"github.com/xiaot623/dalia/internal/service"
)

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

// writeError maps service errors to status codes: missing credentials are
// a server fault, upstream API failures are a bad gateway.
func writeError(c echo.Context, err error) error {
	var (
		brokerErr *trading212.Error
		marketErr *alphavantage.Error
	)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, service.ErrInvalidLimit):
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrNotConfigured):
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	case errors.As(err, &brokerErr), errors.As(err, &marketErr):
		log.Printf("ERROR: upstream API error on %s: %v", c.Path(), err)
		return errorJSON(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return errorJSON(c, http.StatusGatewayTimeout, err.Error())
	default:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
}

func writeRaw(c echo.Context, data json.RawMessage) error {
	if len(data) == 0 {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSONBlob(http.StatusOK, data)
}
