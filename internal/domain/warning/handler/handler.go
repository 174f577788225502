// Package handler exposes academic warning cases and the manual scan
// trigger.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vui-edu/records/internal/domain/warning"
)

type WarningHandler struct {
	svc    *warning.Service
	logger *slog.Logger
}

func NewWarningHandler(svc *warning.Service, logger *slog.Logger) *WarningHandler {
	return &WarningHandler{svc: svc, logger: logger}
}

func (h *WarningHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/warnings", h.listCases)
	g.POST("/warnings/scan", h.runScan)
}

func (h *WarningHandler) listCases(c echo.Context) error {
	severity := warning.Severity(c.QueryParam("severity"))
	switch severity {
	case "", warning.SeverityWarning, warning.SeverityCritical:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown severity")
	}
	cases, err := h.svc.Cases(c.Request().Context(), severity)
	if err != nil {
		h.logger.Error("listing warning cases failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "listing cases failed")
	}
	return c.JSON(http.StatusOK, cases)
}

func (h *WarningHandler) runScan(c echo.Context) error {
	report, err := h.svc.Scan(c.Request().Context())
	if err != nil {
		h.logger.Error("warning scan failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "scan failed")
	}
	return c.JSON(http.StatusOK, report)
}
