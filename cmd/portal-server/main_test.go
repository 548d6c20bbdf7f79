package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kaiprevention/portal/internal/config"
	"github.com/kaiprevention/portal/internal/domain/catalog"
	"github.com/kaiprevention/portal/internal/platform/session"
	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// fakeAPI stands in for the screening API: one patient with no studies.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"message":"invalid credentials"}`)
				return
			}
			_, _ = io.WriteString(w, `{"accessToken":"api-token","user":{"id":"u1","name":"Maria","fullName":"Maria Souza","email":"maria@example.com"}}`)
		case "/studies":
			if r.Header.Get("Authorization") != "Bearer api-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"data":[],"meta":{"total":0}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	api := fakeAPI(t)
	store := session.NewMemoryStore(time.Minute)
	t.Cleanup(store.Close)

	cfg := &config.Config{
		Env:             "test",
		APIBaseURL:      api.URL,
		SessionSecret:   "a-test-session-secret-that-is-long-enough",
		SessionTTL:      time.Hour,
		UpstreamTimeout: 5 * time.Second,
		RequestTimeout:  5 * time.Second,
		URLDebounce:     10 * time.Millisecond,
		RateLimitRPS:    100,
		RateLimitBurst:  100,
	}
	e, err := newServer(cfg, zerolog.Nop(), serverDeps{revocations: store})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func csrfToken(t *testing.T, client *http.Client, base string) string {
	t.Helper()
	u, _ := url.Parse(base)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "kai_csrf" {
			return c.Value
		}
	}
	t.Fatal("no csrf cookie")
	return ""
}

func get(t *testing.T, client *http.Client, target string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func post(t *testing.T, client *http.Client, target string, form url.Values) *http.Response {
	t.Helper()
	resp, err := client.PostForm(target, form)
	if err != nil {
		t.Fatalf("POST %s: %v", target, err)
	}
	resp.Body.Close()
	return resp
}

func TestServer_Health(t *testing.T) {
	srv := testServer(t)

	resp, body := get(t, browser(t), srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(body), &out); err != nil || out["status"] != "ok" {
		t.Errorf("unexpected health body %q", body)
	}
}

func TestServer_StaticAssets(t *testing.T) {
	srv := testServer(t)

	resp, body := get(t, browser(t), srv.URL+"/static/app.css")
	if resp.StatusCode != http.StatusOK || body == "" {
		t.Fatalf("expected stylesheet, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestServer_GuestIsSentToLogin(t *testing.T) {
	srv := testServer(t)
	client := browser(t)

	for _, path := range []string{"/", "/dashboard", "/findings?reportId=R", "/medical-report/R", "/profile"} {
		resp, _ := get(t, client, srv.URL+path)
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/auth/login" {
			t.Errorf("%s: expected redirect to login, got %d %q", path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}
}

func TestServer_LoginRequiresCSRFToken(t *testing.T) {
	srv := testServer(t)

	resp := post(t, browser(t), srv.URL+"/auth/login", url.Values{"email": {"maria@example.com"}, "password": {"secret"}})
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected the post to be rejected, got %d", resp.StatusCode)
	}
}

func TestServer_SignInDashboardLogout(t *testing.T) {
	srv := testServer(t)
	client := browser(t)

	resp, body := get(t, client, srv.URL+"/auth/login")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `name="_csrf"`) {
		t.Fatalf("expected login form, got %d", resp.StatusCode)
	}
	token := csrfToken(t, client, srv.URL)

	resp = post(t, client, srv.URL+"/auth/login", url.Values{
		"_csrf": {token}, "email": {"maria@example.com"}, "password": {"wrong"},
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", resp.StatusCode)
	}

	resp = post(t, client, srv.URL+"/auth/login", url.Values{
		"_csrf": {token}, "email": {"maria@example.com"}, "password": {"secret"},
	})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, body = get(t, client, srv.URL+"/dashboard")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected dashboard, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Nenhum estudo encontrado") || !strings.Contains(body, "Maria") {
		t.Errorf("expected the empty dashboard for Maria, got:\n%s", body)
	}

	resp, _ = get(t, client, srv.URL+"/auth/login")
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/dashboard" {
		t.Errorf("signed-in user should skip the login page, got %d", resp.StatusCode)
	}

	resp = post(t, client, srv.URL+"/auth/logout", url.Values{"_csrf": {token}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/auth/login" {
		t.Fatalf("expected redirect to login after logout, got %d", resp.StatusCode)
	}

	resp, _ = get(t, client, srv.URL+"/dashboard")
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("expected dashboard to require a session after logout, got %d", resp.StatusCode)
	}
}

func TestIsStreamingPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/medical-report/R/pdf", true},
		{"/static/app.js", true},
		{"/medical-report/R", false},
		{"/dashboard", false},
	}
	for _, tt := range tests {
		if got := isStreamingPath(tt.path); got != tt.want {
			t.Errorf("isStreamingPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCatalogCmd(t *testing.T) {
	cmd := catalogCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"nervoso", "Sistema Nervoso", "left", "musculoesqueletico", "right"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("catalog output missing %q:\n%s", want, out.String())
		}
	}
}

func TestConfigCheckCmd(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com/")
	t.Setenv("ENV", "development")
	t.Setenv("PATHOLOGY_INFO_API_KEY", "k-123")

	root := configCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"check"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "https://api.example.com") {
		t.Errorf("expected the API base URL, got:\n%s", got)
	}
	if strings.Contains(got, "k-123") {
		t.Errorf("secrets must not be printed:\n%s", got)
	}
}

func TestNewFindingsRepository_ActiveFlag(t *testing.T) {
	for _, active := range []bool{true, false} {
		var got string
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query().Get("active")
			_, _ = io.WriteString(w, `[]`)
		}))

		repo := newFindingsRepository(upstream.NewClient(api.URL, time.Second), &config.Config{ActivePathologies: active})
		if _, err := repo.Pathologies(context.Background(), catalog.Urinario, "Rins"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		api.Close()

		want := ""
		if active {
			want = "true"
		}
		if got != want {
			t.Errorf("ActivePathologies=%v: expected active=%q, got %q", active, want, got)
		}
	}
}
