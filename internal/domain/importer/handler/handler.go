// Package handler exposes the import runs over HTTP.
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vui-edu/records/internal/domain/importer/parser"
	"github.com/vui-edu/records/internal/domain/importer/repository"
	"github.com/vui-edu/records/internal/domain/importer/resolver"
	"github.com/vui-edu/records/internal/domain/importer/service"
)

// maxUploadBytes caps a single spreadsheet upload.
const maxUploadBytes = 16 << 20

// ActorKey is the echo context key under which auth middleware stores the
// caller's identity.
const ActorKey = "actor"

type ImportHandler struct {
	svc    *service.ImportService
	logger *slog.Logger
}

func NewImportHandler(svc *service.ImportService, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the import endpoints on g, typically /api/admin.
func (h *ImportHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/import/grades", h.importGrades)
	g.POST("/import/class-roster", h.importRoster)
	g.POST("/import/curriculum", h.importCurriculum)
}

func (h *ImportHandler) importGrades(c echo.Context) error {
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}
	opts := service.GradeOptions{
		Preview:      boolParam(c, "preview", true),
		AllowUpdate:  boolParam(c, "allow_update", true),
		CohortCode:   c.QueryParam("lop"),
		TermLabel:    c.QueryParam("hocky"),
		RetakePolicy: c.QueryParam("retake_policy"),
		Actor:        actor(c),
	}
	res, err := h.svc.ImportGrades(c.Request().Context(), filename, data, opts)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ImportHandler) importRoster(c echo.Context) error {
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}
	opts := service.RosterOptions{
		Preview:     boolParam(c, "preview", true),
		AllowUpdate: boolParam(c, "allow_update", true),
		CohortCode:  c.QueryParam("lop"),
		Actor:       actor(c),
	}
	res, err := h.svc.ImportRoster(c.Request().Context(), filename, data, opts)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ImportHandler) importCurriculum(c echo.Context) error {
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}
	opts := service.CurriculumOptions{
		Preview:     boolParam(c, "preview", true),
		ProgramCode: c.QueryParam("manganh"),
		Actor:       actor(c),
	}
	res, err := h.svc.ImportCurriculum(c.Request().Context(), filename, data, opts)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// mapError turns pipeline failures into stable status codes: malformed files
// and unresolvable inputs are the caller's problem, an exhausted commit retry
// budget means try again later.
func (h *ImportHandler) mapError(c echo.Context, err error) error {
	switch {
	case repository.IsLockBusy(err):
		h.logger.Warn("import gave up on a busy database", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "the database is busy, retry shortly")
	case errors.Is(err, resolver.ErrMissingStudentID),
		errors.Is(err, service.ErrUnknownReference),
		errors.Is(err, parser.ErrEmptyFile),
		errors.Is(err, parser.ErrNoHeaderRow),
		errors.Is(err, parser.ErrNoWorksheets):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("import failed", "path", c.Path(), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "import failed")
	}
}

func readUpload(c echo.Context) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "missing file upload")
	}
	if fh.Size > maxUploadBytes {
		return "", nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable file upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable file upload")
	}
	return fh.Filename, data, nil
}

// boolParam reads a boolean query parameter, keeping def when the caller
// omitted it or sent garbage. Both preview and allow_update default to true,
// so an import only writes when the caller explicitly asks for it.
func boolParam(c echo.Context, name string, def bool) bool {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func actor(c echo.Context) string {
	if v, ok := c.Get(ActorKey).(string); ok {
		return v
	}
	return "anonymous"
}
