package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kaiprevention/portal/internal/platform/session"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || lines[0] == "" {
		t.Fatalf("expected exactly one log line, got %q", buf.String())
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &out); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	return out
}

// ---------------------------------------------------------------------------
// RequestID
// ---------------------------------------------------------------------------

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generates when absent", "", false},
		{"keeps proxy id", "edge-7f3a", true},
		{"keeps 128 chars", strings.Repeat("a", 128), true},
		{"replaces oversized", strings.Repeat("a", 129), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seen string
			h := RequestID()(func(c echo.Context) error {
				seen, _ = c.Get(RequestIDKey).(string)
				return nil
			})
			if err := h(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("expected the same id in context and header, got %q and %q", seen, rec.Header().Get(RequestIDHeader))
			}
			if tt.keep && seen != tt.incoming {
				t.Errorf("expected incoming id kept, got %q", seen)
			}
			if !tt.keep && (seen == tt.incoming || len(seen) > 128) {
				t.Errorf("expected a fresh id, got %q", seen)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Logger
// ---------------------------------------------------------------------------

func TestLogger_HandsErrorToErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	handled := 0
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handled++
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.String(he.Code, "custom page")
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/medical-report/R-9", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Logger(zerolog.New(&buf))(func(echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	})
	if err := h(c); err != nil {
		t.Fatalf("expected the error to be consumed, got %v", err)
	}

	if handled != 1 {
		t.Errorf("expected the error handler to run once, ran %d times", handled)
	}
	if rec.Code != http.StatusNotFound || rec.Body.String() != "custom page" {
		t.Errorf("expected the handler's page, got %d %q", rec.Code, rec.Body.String())
	}
	line := logLine(t, &buf)
	if line["level"] != "warn" || line["status"] != float64(http.StatusNotFound) {
		t.Errorf("expected a warn line with the written status, got %v", line)
	}
}

func TestLogger_ServerErrorLogsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/dashboard", nil), httptest.NewRecorder())

	h := Logger(zerolog.New(&buf))(func(echo.Context) error {
		return errors.New("upstream unreachable")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := logLine(t, &buf)
	if line["level"] != "error" || line["status"] != float64(http.StatusInternalServerError) {
		t.Errorf("expected an error line with status 500, got %v", line)
	}
	if line["error"] != "upstream unreachable" {
		t.Errorf("expected the cause logged, got %v", line["error"])
	}
}

func TestLogger_FieldsOmitQueryString(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/findings?reportId=R-1&organ=figado&finding=Esteatose", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(RequestIDKey, "rid-1")

	h := Logger(zerolog.New(&buf))(func(c echo.Context) error {
		session.Attach(c, &session.Session{ID: "s-1", UserID: "u-42", AccessToken: "tok"})
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := logLine(t, &buf)
	if line["level"] != "info" {
		t.Errorf("expected info level, got %v", line["level"])
	}
	want := map[string]any{
		"request_id": "rid-1",
		"user_id":    "u-42",
		"method":     http.MethodGet,
		"path":       "/findings",
		"status":     float64(http.StatusOK),
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, line[k])
		}
	}
	for _, leak := range []string{"reportId", "figado", "Esteatose", "tok"} {
		if strings.Contains(buf.String(), leak) {
			t.Errorf("log line leaks %q: %s", leak, buf.String())
		}
	}
}

func TestLogger_GuestHasEmptyUserID(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/login", nil), httptest.NewRecorder())

	h := Logger(zerolog.New(&buf))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line := logLine(t, &buf); line["user_id"] != "" {
		t.Errorf("expected empty user_id for a guest, got %v", line["user_id"])
	}
}

// ---------------------------------------------------------------------------
// Recovery
// ---------------------------------------------------------------------------

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/findings", nil), httptest.NewRecorder())
	c.Set(RequestIDKey, "rid-2")

	h := Recovery(zerolog.New(&buf))(func(echo.Context) error {
		panic("nil organ")
	})
	err := h(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected a 500 HTTPError, got %v", err)
	}
	line := logLine(t, &buf)
	if line["panic"] != "nil organ" || line["request_id"] != "rid-2" || line["path"] != "/findings" {
		t.Errorf("unexpected panic log %v", line)
	}
	if s, _ := line["stack"].(string); s == "" {
		t.Error("expected a stack trace in the log")
	}
}

func TestRecovery_RepanicsOnAbortHandler(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/medical-report/R/pdf", nil), httptest.NewRecorder())

	h := Recovery(zerolog.New(&buf))(func(echo.Context) error {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected http.ErrAbortHandler to propagate, got %v", r)
		}
		if buf.Len() != 0 {
			t.Errorf("an aborted handler must not be logged as a panic: %s", buf.String())
		}
	}()
	_ = h(c)
	t.Fatal("expected the abort to propagate")
}

func TestRecovery_PassesThrough(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	h := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || buf.Len() != 0 {
		t.Errorf("expected a clean pass-through, got %d and log %q", rec.Code, buf.String())
	}
}
