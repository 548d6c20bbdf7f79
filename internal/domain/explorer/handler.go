package explorer

import (
	"html/template"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kaiprevention/portal/internal/domain/catalog"
	"github.com/kaiprevention/portal/internal/domain/findings"
	"github.com/kaiprevention/portal/internal/platform/render"
	"github.com/kaiprevention/portal/internal/platform/session"
	"github.com/kaiprevention/portal/internal/platform/websocket"
)

// Routes of the explorer.
const (
	LivePath = BasePath + "/live"
	InfoPath = BasePath + "/pathology-info"
)

// Client actions accepted on the live connection.
const (
	ActionToggleSystem    = "toggle-system"
	ActionToggleOrgan     = "toggle-organ"
	ActionTogglePathology = "toggle-pathology"
)

// Fragment names rendered for live updates.
const (
	bodyFragment = "explorer_body"
	infoFragment = "pathology_info"
)

// Page is the view model of the findings page and of the explorer_body
// fragment pushed on every change.
type Page struct {
	View View
	// Info is rendered inline on full page loads. Live updates leave it nil
	// and the client loads InfoURL instead.
	Info     *findings.PathologyInfo
	InfoURL  string
	LiveURL  string
	BackURL  string
	Live     bool
	InfoDown bool
}

// InfoPanel is the view model of the pathology_info fragment.
type InfoPanel struct {
	Pathology   string
	Info        *findings.PathologyInfo
	Unavailable bool
}

// Fragments renders named partials for live pushes.
type Fragments interface {
	Fragment(name string, data any) (template.HTML, error)
}

type Handler struct {
	repo      findings.Repository
	info      findings.InfoRepository
	hub       *websocket.Hub
	upgrader  *websocket.Upgrader
	fragments Fragments
	debounce  time.Duration
	logger    zerolog.Logger
}

func NewHandler(repo findings.Repository, info findings.InfoRepository, hub *websocket.Hub, fragments Fragments, debounce time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		info:      info,
		hub:       hub,
		upgrader:  websocket.NewUpgrader(),
		fragments: fragments,
		debounce:  debounce,
		logger:    logger,
	}
}

// RegisterRoutes mounts the explorer on g, which must be behind the session
// gate.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET(BasePath, h.Show)
	g.GET(LivePath, h.Live)
	g.GET(InfoPath, h.PathologyInfo)
}

// Show renders the explorer for the URL state. A URL naming a node that
// does not exist, or a nested node without its parent, is redirected to its
// canonical form.
func (h *Handler) Show(c echo.Context) error {
	ctx := c.Request().Context()
	ex := New(ctx, h.repo, Options{Logger: h.logger})
	defer ex.Close()

	q := c.QueryParams()
	ex.Mount(q)
	ex.Wait()
	if err := ex.Err(); err != nil {
		return err
	}

	state := ex.State()
	if state.Encode() != q.Encode() {
		return c.Redirect(http.StatusFound, state.URL(BasePath))
	}

	data := h.page(state, ex.View())
	if state.Pathology != "" {
		info, err := h.info.PathologyInfo(ctx, state.Organ, state.Pathology)
		if err != nil {
			h.logger.Warn().Err(err).Str("pathology", state.Pathology).Msg("pathology info unavailable")
			data.InfoDown = true
		}
		data.Info = info
	}

	page := render.NewPage(c, "Resultados", data)
	page.Nav = "findings"
	return c.Render(http.StatusOK, "findings", page)
}

func (h *Handler) page(s State, v View) *Page {
	p := &Page{View: v, LiveURL: LivePath}
	if enc := s.Encode(); enc != "" {
		p.LiveURL += "?" + enc
	}
	if s.Pathology != "" {
		p.InfoURL = InfoPath + "?" + url.Values{"organ": {s.Organ}, "pathology": {s.Pathology}}.Encode()
	}
	p.BackURL = "/dashboard"
	if s.ReportID != "" {
		p.BackURL += "?" + url.Values{"study": {s.ReportID}}.Encode()
	}
	return p
}

// Live serves the explorer over a WebSocket. The browser sends toggle
// actions; the server pushes the re-rendered tree after every change and
// asks the browser to replace its URL once toggles settle. The connection
// joins the topic of its browser session so that logging out closes it.
func (h *Handler) Live(c echo.Context) error {
	s, ok := session.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized)
	}
	ctx := c.Request().Context()
	q := c.QueryParams()

	var (
		ex     *Explorer
		client *websocket.Client
		pushMu sync.Mutex
		ended  bool
	)

	push := func() {
		pushMu.Lock()
		defer pushMu.Unlock()
		if ended {
			return
		}
		if err := ex.Err(); err != nil {
			ended = true
			ev, _ := websocket.NewEvent(websocket.EventSessionEnded, nil)
			client.Push(ev)
			return
		}
		v := ex.View()
		data := h.page(ex.State(), v)
		data.Live = true
		html, err := h.fragments.Fragment(bodyFragment, data)
		if err != nil {
			h.logger.Error().Err(err).Msg("render explorer fragment")
			return
		}
		ev, err := websocket.NewEvent(websocket.EventView, map[string]any{
			"html":     html,
			"query":    v.Query,
			"selected": v.Selection,
			"infoUrl":  data.InfoURL,
		})
		if err == nil {
			client.Push(ev)
		}
	}

	start := func(cl *websocket.Client) {
		client = cl
		ex = New(ctx, h.repo, Options{
			URLDebounce: h.debounce,
			Navigator: NavigatorFunc(func(query string) {
				ev, err := websocket.NewEvent(websocket.EventReplaceURL, map[string]string{
					"query": query,
					"url":   BasePath + queryString(query),
				})
				if err == nil {
					cl.Push(ev)
				}
			}),
			OnChange: func(View) { push() },
			Logger:   h.logger.With().Str("session_id", s.ID).Logger(),
		})
		ex.Mount(q)
	}

	onMessage := func(m websocket.ClientMessage) {
		switch m.Action {
		case ActionToggleSystem:
			ex.ToggleSystem(catalog.System(m.Key))
		case ActionToggleOrgan:
			ex.ToggleOrgan(m.Key)
		case ActionTogglePathology:
			ex.TogglePathology(m.Key)
		default:
			h.logger.Debug().Str("action", m.Action).Msg("ignoring unknown explorer action")
		}
	}

	err := h.upgrader.Serve(c, h.hub, s.ID, start, onMessage)
	if ex != nil {
		ex.Close()
		ex.Wait()
	}
	return err
}

func queryString(q string) string {
	if q == "" {
		return ""
	}
	return "?" + q
}

// PathologyInfo renders the information panel of one pathology. Upstream
// failures render the panel's unavailable state.
func (h *Handler) PathologyInfo(c echo.Context) error {
	pathology := c.QueryParam("pathology")
	if pathology == "" {
		return echo.NewHTTPError(http.StatusBadRequest)
	}
	panel := InfoPanel{Pathology: pathology}

	info, err := h.info.PathologyInfo(c.Request().Context(), c.QueryParam("organ"), pathology)
	if err != nil {
		h.logger.Warn().Err(err).Str("pathology", pathology).Msg("pathology info unavailable")
		panel.Unavailable = true
	}
	panel.Info = info

	c.Response().Header().Set("Cache-Control", "private, max-age=300")
	return c.Render(http.StatusOK, infoFragment, panel)
}
