package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GetQuote returns the latest quote for a symbol.
// GET /market/quote/:symbol
func (h *Handler) GetQuote(c echo.Context) error {
	data, err := h.service.Quote(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return writeError(c, err)
	}
	return writeRaw(c, data)
}

// SearchSymbol finds symbols matching keywords.
// GET /market/search?keywords=
func (h *Handler) SearchSymbol(c echo.Context) error {
	keywords := strings.TrimSpace(c.QueryParam("keywords"))
	if keywords == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "keywords is required")
	}
	data, err := h.service.SearchSymbol(c.Request().Context(), keywords)
	if err != nil {
		return writeError(c, err)
	}
	return writeRaw(c, data)
}
