// Package handler exposes student lookups over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vui-edu/records/internal/domain/student"
)

type StudentHandler struct {
	svc    *student.Service
	logger *slog.Logger
}

func NewStudentHandler(svc *student.Service, logger *slog.Logger) *StudentHandler {
	return &StudentHandler{svc: svc, logger: logger}
}

func (h *StudentHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/students/:code", h.getProfile)
	g.GET("/cohorts/:code/students", h.listByCohort)
}

func (h *StudentHandler) getProfile(c echo.Context) error {
	profile, err := h.svc.Profile(c.Request().Context(), c.Param("code"))
	if errors.Is(err, student.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "student not found")
	}
	if err != nil {
		h.logger.Error("loading student profile failed", "code", c.Param("code"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "loading student failed")
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *StudentHandler) listByCohort(c echo.Context) error {
	students, err := h.svc.ByCohort(c.Request().Context(), c.Param("code"))
	if err != nil {
		h.logger.Error("listing cohort students failed", "cohort", c.Param("code"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "listing students failed")
	}
	return c.JSON(http.StatusOK, students)
}
