// Package handler exposes catalog reads and course search over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vui-edu/records/internal/domain/catalog"
)

type CatalogHandler struct {
	svc    *catalog.Service
	logger *slog.Logger
}

func NewCatalogHandler(svc *catalog.Service, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, logger: logger}
}

func (h *CatalogHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/courses", h.listCourses)
	g.GET("/courses/:code", h.getCourse)
	g.GET("/programs", h.listPrograms)
	g.GET("/programs/:code/curriculum", h.getCurriculum)
	g.GET("/cohorts", h.listCohorts)
}

// listCourses returns the whole catalog, or a search result when ?q= is set.
func (h *CatalogHandler) listCourses(c echo.Context) error {
	ctx := c.Request().Context()
	if q := c.QueryParam("q"); q != "" {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		hits, err := h.svc.SearchCourses(ctx, q, limit)
		if err != nil {
			h.logger.Error("course search failed", "query", q, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
		}
		return c.JSON(http.StatusOK, hits)
	}
	courses, err := h.svc.Courses(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing courses failed")
	}
	return c.JSON(http.StatusOK, courses)
}

func (h *CatalogHandler) getCourse(c echo.Context) error {
	course, err := h.svc.Course(c.Request().Context(), c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "loading course failed")
	}
	if course == nil {
		return echo.NewHTTPError(http.StatusNotFound, "course not found")
	}
	return c.JSON(http.StatusOK, course)
}

func (h *CatalogHandler) listPrograms(c echo.Context) error {
	programs, err := h.svc.Programs(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing programs failed")
	}
	return c.JSON(http.StatusOK, programs)
}

func (h *CatalogHandler) getCurriculum(c echo.Context) error {
	entries, err := h.svc.Curriculum(c.Request().Context(), c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "loading curriculum failed")
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *CatalogHandler) listCohorts(c echo.Context) error {
	cohorts, err := h.svc.Cohorts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing cohorts failed")
	}
	return c.JSON(http.StatusOK, cohorts)
}
