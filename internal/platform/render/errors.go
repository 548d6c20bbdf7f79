package render

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorData is the view model of the error page.
type ErrorData struct {
	Code    int
	Message string
}

var errorMessages = map[int]string{
	http.StatusNotFound:              "Página não encontrada.",
	http.StatusForbidden:             "Você não tem acesso a esta página.",
	http.StatusTooManyRequests:       "Muitas tentativas. Aguarde alguns instantes e tente novamente.",
	http.StatusRequestEntityTooLarge: "O conteúdo enviado é grande demais.",
	http.StatusBadGateway:            "Não foi possível carregar os dados. Tente novamente mais tarde.",
	http.StatusGatewayTimeout:        "O servidor demorou demais para responder. Tente novamente.",
}

// Message returns the user-facing text for an HTTP status.
func Message(code int) string {
	if m, ok := errorMessages[code]; ok {
		return m
	}
	if code >= http.StatusInternalServerError {
		return "Ocorreu um erro inesperado. Tente novamente mais tarde."
	}
	return "Não foi possível concluir a solicitação."
}

// HTTPErrorHandler renders errors as the portal error page. Internal error
// details are logged, never shown.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		if code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Int("status", code).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}

		page := NewPage(c, "Erro", ErrorData{Code: code, Message: Message(code)})
		if rerr := c.Render(code, "error", page); rerr != nil {
			logger.Error().Err(rerr).Msg("render error page")
			_ = c.String(code, Message(code))
		}
	}
}
