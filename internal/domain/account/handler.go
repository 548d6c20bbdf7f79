package account

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kaiprevention/portal/internal/platform/render"
	"github.com/kaiprevention/portal/internal/platform/session"
	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// Paths of the account pages.
const (
	LoginPath   = "/auth/login"
	ForgotPath  = "/auth/forgot-password"
	ResetPath   = "/auth/reset-password"
	LogoutPath  = "/auth/logout"
	ProfilePath = "/profile"
	HomePath    = "/dashboard"
)

const (
	msgInvalidCredentials = "E-mail ou senha inválidos"
	msgSignInUnavailable  = "Não foi possível entrar agora. Tente novamente mais tarde."
	msgForgotFailed       = "Falha ao enviar e-mail de redefinição de senha"
	msgResetFailed        = "Não foi possível redefinir a senha"
	msgProfileUpdated     = "Perfil atualizado com sucesso!"
	msgProfileFailed      = "Erro ao atualizar perfil"
	msgProfileUnavailable = "Não foi possível carregar seu perfil."
)

// LoginForm is the view model of the login page.
type LoginForm struct {
	Email  string
	Errors FieldErrors
}

// ForgotForm is the view model of the forgot-password page.
type ForgotForm struct {
	Email     string
	Errors    FieldErrors
	Submitted bool
}

// ResetForm is the view model of the reset-password page. InvalidLink
// replaces the whole page when the link carries no token.
type ResetForm struct {
	Token       string
	Errors      FieldErrors
	InvalidLink bool
	Done        bool
}

// ProfileForm is the view model of the profile page.
type ProfileForm struct {
	Profile *Profile
	Genders []GenderOption
	Errors  FieldErrors
}

// SessionEnder tells the open pages of a browser session that it is over.
type SessionEnder interface {
	EndSession(ctx context.Context, topic string)
}

type Handler struct {
	repo     Repository
	sessions *session.Resolver
	live     SessionEnder
	logger   zerolog.Logger
}

func NewHandler(repo Repository, sessions *session.Resolver, live SessionEnder, logger zerolog.Logger) *Handler {
	return &Handler{repo: repo, sessions: sessions, live: live, logger: logger}
}

// RegisterRoutes mounts the sign-in flows on public and the profile on
// protected, which must be behind the session gate. formGuard wraps the
// credential-bearing form posts (rate limiting).
func (h *Handler) RegisterRoutes(public, protected *echo.Group, formGuard ...echo.MiddlewareFunc) {
	guest := session.GuestOnly(h.sessions, HomePath)
	posts := append(append([]echo.MiddlewareFunc{}, formGuard...), guest)

	public.GET(LoginPath, h.LoginForm, guest)
	public.POST(LoginPath, h.Login, posts...)
	public.GET(ForgotPath, h.ForgotForm, guest)
	public.POST(ForgotPath, h.Forgot, posts...)
	public.GET(ResetPath, h.ResetForm, guest)
	public.POST(ResetPath, h.Reset, posts...)
	public.POST(LogoutPath, h.Logout)

	protected.GET(ProfilePath, h.Profile)
	protected.POST(ProfilePath, h.UpdateProfile)
}

// -- Sign in --

func (h *Handler) LoginForm(c echo.Context) error {
	return c.Render(http.StatusOK, "login", render.NewPage(c, "Entrar", &LoginForm{Errors: FieldErrors{}}))
}

func (h *Handler) Login(c echo.Context) error {
	form := &LoginForm{Email: strings.TrimSpace(c.FormValue("email"))}
	password := c.FormValue("password")

	form.Errors = ValidateLogin(form.Email, password)
	if form.Errors.Any() {
		return c.Render(http.StatusUnprocessableEntity, "login", render.NewPage(c, "Entrar", form))
	}

	res, err := h.repo.SignIn(c.Request().Context(), form.Email, password)
	if err == nil && res.AccessToken == "" {
		err = errors.New("sign-in response without access token")
	}
	if err != nil {
		page := render.NewPage(c, "Entrar", form)
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			page.Error = msgInvalidCredentials
			return c.Render(http.StatusUnauthorized, "login", page)
		}
		h.logger.Error().Err(err).Msg("sign-in failed")
		page.Error = msgSignInUnavailable
		return c.Render(http.StatusBadGateway, "login", page)
	}

	email := res.User.Email
	if email == "" {
		email = form.Email
	}
	if _, err := h.sessions.Begin(c, res.User.ID, res.User.DisplayName(), email, res.AccessToken); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, HomePath)
}

// Logout revokes the session and closes its live pages. The cookie is
// cleared even when the revocation store fails.
func (h *Handler) Logout(c echo.Context) error {
	if s, ok := h.sessions.Current(c); ok {
		if err := h.sessions.End(c, s); err != nil {
			h.logger.Error().Err(err).Str("user_id", s.UserID).Msg("session revocation failed")
		}
		if h.live != nil {
			h.live.EndSession(c.Request().Context(), s.ID)
		}
	} else {
		_ = h.sessions.End(c, nil)
	}
	return c.Redirect(http.StatusSeeOther, LoginPath)
}

// -- Forgot / reset password --

func (h *Handler) ForgotForm(c echo.Context) error {
	return c.Render(http.StatusOK, "forgot_password", render.NewPage(c, "Esqueceu sua senha?", &ForgotForm{Errors: FieldErrors{}}))
}

// Forgot never calls the API with a malformed address.
func (h *Handler) Forgot(c echo.Context) error {
	form := &ForgotForm{Email: strings.TrimSpace(c.FormValue("email"))}
	form.Errors = ValidateForgot(form.Email)
	if form.Errors.Any() {
		return c.Render(http.StatusUnprocessableEntity, "forgot_password", render.NewPage(c, "Esqueceu sua senha?", form))
	}

	if err := h.repo.ForgotPassword(c.Request().Context(), form.Email); err != nil {
		h.logger.Warn().Err(err).Msg("forgot-password request failed")
		page := render.NewPage(c, "Esqueceu sua senha?", form)
		page.Error = upstream.MessageOr(err, msgForgotFailed)
		return c.Render(http.StatusOK, "forgot_password", page)
	}

	form.Submitted = true
	return c.Render(http.StatusOK, "forgot_password", render.NewPage(c, "Esqueceu sua senha?", form))
}

func (h *Handler) ResetForm(c echo.Context) error {
	form := &ResetForm{Token: c.QueryParam("token"), Errors: FieldErrors{}}
	form.InvalidLink = form.Token == ""
	return c.Render(http.StatusOK, "reset_password", render.NewPage(c, "Criar nova senha", form))
}

func (h *Handler) Reset(c echo.Context) error {
	form := &ResetForm{Token: c.FormValue("token")}
	if form.Token == "" {
		form.InvalidLink = true
		form.Errors = FieldErrors{}
		return c.Render(http.StatusBadRequest, "reset_password", render.NewPage(c, "Criar nova senha", form))
	}

	password := c.FormValue("password")
	form.Errors = ValidateReset(password, c.FormValue("confirmPassword"))
	if form.Errors.Any() {
		return c.Render(http.StatusUnprocessableEntity, "reset_password", render.NewPage(c, "Criar nova senha", form))
	}

	if err := h.repo.ResetPassword(c.Request().Context(), form.Token, password); err != nil {
		h.logger.Warn().Err(err).Msg("reset-password request failed")
		page := render.NewPage(c, "Criar nova senha", form)
		page.Error = upstream.MessageOr(err, msgResetFailed)
		return c.Render(http.StatusOK, "reset_password", page)
	}

	form.Done = true
	return c.Render(http.StatusOK, "reset_password", render.NewPage(c, "Criar nova senha", form))
}

// -- Profile --

func (h *Handler) Profile(c echo.Context) error {
	p, err := h.repo.Me(c.Request().Context())
	if errors.Is(err, upstream.ErrUnauthorized) {
		return err
	}

	page := render.NewPage(c, "Perfil", &ProfileForm{Profile: p, Genders: Genders, Errors: FieldErrors{}})
	page.Nav = "profile"
	if err != nil {
		h.logger.Error().Err(err).Msg("profile unavailable")
		page.Data = &ProfileForm{Profile: &Profile{}, Genders: Genders, Errors: FieldErrors{}}
		page.Error = msgProfileUnavailable
	}
	if c.QueryParam("updated") != "" && err == nil {
		page.Flash = msgProfileUpdated
	}
	return c.Render(http.StatusOK, "profile", page)
}

// UpdateProfile submits the flat profile fields and redirects back to the
// form on success.
func (h *Handler) UpdateProfile(c echo.Context) error {
	var u ProfileUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest)
	}
	u.Email = strings.TrimSpace(u.Email)

	form := &ProfileForm{Profile: &Profile{}, Genders: Genders}
	u.Apply(form.Profile)
	form.Errors = ValidateProfile(u)
	if form.Errors.Any() {
		page := render.NewPage(c, "Perfil", form)
		page.Nav = "profile"
		return c.Render(http.StatusUnprocessableEntity, "profile", page)
	}

	if err := h.repo.UpdateMe(c.Request().Context(), u); err != nil {
		if errors.Is(err, upstream.ErrUnauthorized) {
			return err
		}
		h.logger.Error().Err(err).Msg("profile update failed")
		page := render.NewPage(c, "Perfil", form)
		page.Nav = "profile"
		page.Error = msgProfileFailed
		return c.Render(http.StatusOK, "profile", page)
	}
	return c.Redirect(http.StatusSeeOther, ProfilePath+"?updated=1")
}
