package studies

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kaiprevention/portal/internal/platform/render"
	"github.com/kaiprevention/portal/internal/platform/upstream"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the dashboard on a group that is already behind the
// session gate.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/dashboard", h.Dashboard)
}

func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context(), c.QueryParam("tab"), c.QueryParam("study"))
	if err != nil {
		if errors.Is(err, upstream.ErrUnauthorized) {
			return err
		}
		page := render.NewPage(c, "Painel", &Dashboard{Tab: TabMine, Tabs: tabs(TabMine)})
		page.Nav = "dashboard"
		page.Error = "Não foi possível carregar seus estudos. Tente novamente mais tarde."
		return c.Render(http.StatusOK, "dashboard", page)
	}
	page := render.NewPage(c, "Painel", d)
	page.Nav = "dashboard"
	return c.Render(http.StatusOK, "dashboard", page)
}
