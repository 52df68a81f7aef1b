package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dalia/internal/adapter/trading212"
	"github.com/xiaot623/dalia/internal/service"
)

// ListTransactions returns one page of brokerage transactions.
// GET /trading212/transactions?cursor=&time=&limit=
func (h *Handler) ListTransactions(c echo.Context) error {
	params := trading212.TransactionParams{
		Cursor: c.QueryParam("cursor"),
		Time:   c.QueryParam("time"),
	}
	if l := c.QueryParam("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 || limit > service.MaxTransactionsLimit {
			return errorJSON(c, http.StatusUnprocessableEntity, service.ErrInvalidLimit.Error())
		}
		params.Limit = limit
	}

	page, err := h.service.ListTransactions(c.Request().Context(), params)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// GetAccountCash returns the brokerage cash breakdown.
// GET /trading212/account/cash
func (h *Handler) GetAccountCash(c echo.Context) error {
	data, err := h.service.AccountCash(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return writeRaw(c, data)
}

// GetAccountInfo returns the brokerage account metadata.
// GET /trading212/account/info
func (h *Handler) GetAccountInfo(c echo.Context) error {
	data, err := h.service.AccountInfo(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return writeRaw(c, data)
}

// ListPositions returns open positions.
// GET /trading212/positions?ticker=
func (h *Handler) ListPositions(c echo.Context) error {
	data, err := h.service.Positions(c.Request().Context(), c.QueryParam("ticker"))
	if err != nil {
		return writeError(c, err)
	}
	return writeRaw(c, data)
}
