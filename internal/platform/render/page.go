package render

import (
	"html/template"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/kaiprevention/portal/internal/domain/findings"
	"github.com/kaiprevention/portal/internal/platform/session"
)

// Page is the data handed to every full-page template.
type Page struct {
	Title string
	// Nav names the header entry to highlight.
	Nav  string
	User *session.Session
	CSRF string
	// Flash is a one-off success message, Error a banner-level failure.
	Flash string
	Error string
	Data  any
}

// NewPage builds a Page for the current request.
func NewPage(c echo.Context, title string, data any) Page {
	p := Page{Title: title, Data: data}
	if s, ok := session.FromContext(c); ok {
		p.User = s
	}
	p.CSRF, _ = c.Get(echomw.DefaultCSRFConfig.ContextKey).(string)
	return p
}

var months = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// saoPaulo is the display zone for dates; UTC when tzdata is unavailable.
var saoPaulo = func() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Date formats t as dd/mm/aaaa. The zero time renders as "".
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(saoPaulo).Format("02/01/2006")
}

// MonthYear formats t as "maio de 2026".
func MonthYear(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(saoPaulo)
	return months[t.Month()-1] + " de " + t.Format("2006")
}

// Funcs are available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"date":      Date,
		"monthYear": MonthYear,
		"severityLabel": func(s findings.Severity) string {
			return s.Label()
		},
		"severityColor": func(s findings.Severity) template.CSS {
			return template.CSS(s.Color())
		},
		"cssColor": func(c string) template.CSS {
			return template.CSS(c)
		},
		"cardHeading": findings.CardHeading,
		"static": func(p string) string {
			return "/static/" + strings.TrimPrefix(p, "/")
		},
		"upper": strings.ToUpper,
	}
}
