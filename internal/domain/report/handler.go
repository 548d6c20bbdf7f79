package report

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kaiprevention/portal/internal/platform/render"
	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// DownloadName is the file name offered when the report is downloaded.
const DownloadName = "relatorio.pdf"

type Handler struct {
	repo   Repository
	logger zerolog.Logger
}

func NewHandler(repo Repository, logger zerolog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/medical-report/:id", h.Show)
	g.GET("/medical-report/:id/pdf", h.PDF)
}

// Show renders the report page. The service request detail is decoration;
// when it cannot be loaded the page still embeds the document.
func (h *Handler) Show(c echo.Context) error {
	id := c.Param("id")
	if !validID(id) {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	sr, err := h.repo.ServiceRequest(c.Request().Context(), id)
	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		return err
	case err != nil:
		h.logger.Warn().Err(err).Str("service_request_id", id).Msg("service request unavailable")
	}

	tab := c.QueryParam("tab")
	if tab != TabImages {
		tab = TabReport
	}
	base := "/medical-report/" + url.PathEscape(id) + "/pdf"
	page := render.NewPage(c, "Relatório do Médico", &Page{
		ID:             id,
		ServiceRequest: sr,
		Tab:            tab,
		PDFURL:         base,
		DownloadURL:    base + "?download=1",
	})
	page.Nav = "report"
	return c.Render(http.StatusOK, "medical_report", page)
}

// PDF streams the report document from the API.
func (h *Handler) PDF(c echo.Context) error {
	id := c.Param("id")
	if !validID(id) {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	stream, err := h.repo.PDF(c.Request().Context(), id)
	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		return err
	case errors.Is(err, upstream.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound)
	case err != nil:
		h.logger.Error().Err(err).Str("service_request_id", id).Msg("report download failed")
		return echo.NewHTTPError(http.StatusBadGateway)
	}
	defer stream.Body.Close()

	disposition := "inline"
	if c.QueryParam("download") != "" {
		disposition = "attachment"
	}
	hdr := c.Response().Header()
	hdr.Set(echo.HeaderContentDisposition, disposition+`; filename="`+DownloadName+`"`)
	hdr.Set("X-Content-Type-Options", "nosniff")
	if stream.ContentLength > 0 {
		hdr.Set(echo.HeaderContentLength, strconv.FormatInt(stream.ContentLength, 10))
	}

	contentType := stream.ContentType
	if !strings.HasPrefix(contentType, "application/pdf") {
		contentType = "application/pdf"
	}
	hdr.Set(echo.HeaderContentType, contentType)
	c.Response().WriteHeader(http.StatusOK)
	if _, err := io.Copy(c.Response(), stream.Body); err != nil {
		h.logger.Warn().Err(err).Str("service_request_id", id).Msg("report stream interrupted")
	}
	return nil
}

// validID accepts the identifier forms the API issues.
func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
