package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dalia/internal/domain"
)

// GetRun returns one stored run.
// GET /runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if run == nil {
		return errorJSON(c, http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents retrieves the trace events of a run.
// GET /runs/:run_id/events?after_ts=&limit=&types=a,b
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if raw := c.QueryParam("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	ctx := c.Request().Context()
	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if run == nil {
		return errorJSON(c, http.StatusNotFound, "run not found")
	}

	events, err := h.service.GetRunEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []domain.Event{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":   runID,
		"status":   run.Status,
		"events":   events,
		"has_more": len(events) == limit,
	})
}
