package session

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// Status is the resolution state of a request's session.
type Status int

const (
	// StatusLoading means the session could not be resolved yet. Nothing
	// protected may render and no redirect may be issued.
	StatusLoading Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "loading"
	}
}

const sessionKey = "session"

// Resolver turns a request into a session status.
type Resolver struct {
	mgr    *Manager
	store  RevocationStore
	logger zerolog.Logger
}

func NewResolver(mgr *Manager, store RevocationStore, logger zerolog.Logger) *Resolver {
	return &Resolver{mgr: mgr, store: store, logger: logger}
}

// Resolve reads the session cookie. A missing, invalid or revoked cookie is
// unauthenticated; a revocation backend that cannot answer leaves the
// status loading.
func (r *Resolver) Resolve(c echo.Context) (Status, *Session) {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return StatusUnauthenticated, nil
	}
	s, err := r.mgr.Parse(cookie.Value)
	if err != nil {
		return StatusUnauthenticated, nil
	}
	revoked, err := r.store.IsRevoked(c.Request().Context(), s.ID)
	if err != nil {
		r.logger.Warn().Err(err).Str("request_id", requestID(c)).Msg("session status unavailable")
		return StatusLoading, nil
	}
	if revoked {
		return StatusUnauthenticated, nil
	}
	return StatusAuthenticated, s
}

// Current parses the session cookie without consulting the revocation
// store. Logout uses it so that a session can be ended while the store is
// unreachable.
func (r *Resolver) Current(c echo.Context) (*Session, bool) {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	s, err := r.mgr.Parse(cookie.Value)
	if err != nil {
		return nil, false
	}
	return s, true
}

// Begin issues a session for a signed-in user and writes its cookie.
func (r *Resolver) Begin(c echo.Context, userID, name, email, accessToken string) (*Session, error) {
	s, raw, err := r.mgr.Issue(userID, name, email, accessToken)
	if err != nil {
		return nil, err
	}
	r.mgr.SetCookie(c, raw, s.ExpiresAt)
	return s, nil
}

// End revokes s and clears the cookie. The cookie is cleared even when the
// revocation cannot be recorded.
func (r *Resolver) End(c echo.Context, s *Session) error {
	r.mgr.ClearCookie(c)
	if s == nil {
		return nil
	}
	return r.store.Revoke(c.Request().Context(), s.ID, s.UserID, s.ExpiresAt)
}

// Attach makes s available to handlers and its upstream token to every
// upstream call made with the request context.
func Attach(c echo.Context, s *Session) {
	c.Set(sessionKey, s)
	ctx := upstream.WithToken(c.Request().Context(), s.AccessToken)
	c.SetRequest(c.Request().WithContext(ctx))
}

// FromContext returns the session attached by Gate.
func FromContext(c echo.Context) (*Session, bool) {
	s, ok := c.Get(sessionKey).(*Session)
	return s, ok && s != nil
}

// UserIDFromContext returns the signed-in user of an echo context, or "".
func UserIDFromContext(c echo.Context) string {
	if s, ok := FromContext(c); ok {
		return s.UserID
	}
	return ""
}

// GateConfig configures Gate.
type GateConfig struct {
	LoginPath string
	// Loading renders the neutral page shown while the status is unknown.
	// Defaults to LoadingPage.
	Loading echo.HandlerFunc
}

// Gate protects a route group. Unauthenticated requests are redirected to
// the login page, loading requests get the loading page, and authenticated
// requests continue with the session attached. A handler error wrapping
// upstream.ErrUnauthorized ends the session.
func Gate(r *Resolver, cfg GateConfig) echo.MiddlewareFunc {
	loading := cfg.Loading
	if loading == nil {
		loading = LoadingPage
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			status, s := r.Resolve(c)
			switch status {
			case StatusUnauthenticated:
				return c.Redirect(http.StatusSeeOther, cfg.LoginPath)
			case StatusLoading:
				return loading(c)
			}

			Attach(c, s)
			err := next(c)
			if errors.Is(err, upstream.ErrUnauthorized) && !c.Response().Committed {
				r.logger.Info().Str("user_id", s.UserID).Msg("upstream rejected session token")
				r.mgr.ClearCookie(c)
				return c.Redirect(http.StatusSeeOther, cfg.LoginPath)
			}
			return err
		}
	}
}

// GuestOnly sends signed-in users away from the sign-in pages.
func GuestOnly(r *Resolver, home string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if status, _ := r.Resolve(c); status == StatusAuthenticated {
				return c.Redirect(http.StatusSeeOther, home)
			}
			return next(c)
		}
	}
}

// RootRedirect handles "/": authenticated users go to home, others to
// login, and nothing is decided while the status is loading.
func RootRedirect(r *Resolver, home, login string, loading echo.HandlerFunc) echo.HandlerFunc {
	if loading == nil {
		loading = LoadingPage
	}
	return func(c echo.Context) error {
		switch status, _ := r.Resolve(c); status {
		case StatusAuthenticated:
			return c.Redirect(http.StatusSeeOther, home)
		case StatusUnauthenticated:
			return c.Redirect(http.StatusSeeOther, login)
		default:
			return loading(c)
		}
	}
}

const loadingHTML = `<!DOCTYPE html>
<html lang="pt-BR"><head><meta charset="utf-8"><meta http-equiv="refresh" content="2">
<title>KAI</title></head><body><main class="loading" aria-busy="true">Carregando…</main></body></html>`

// LoadingPage renders the neutral loading page. It carries no protected
// content and refreshes itself.
func LoadingPage(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.HTML(http.StatusOK, loadingHTML)
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
