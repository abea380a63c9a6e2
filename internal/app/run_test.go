package app

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/sheetgate/internal/config"
	"github.com/hitoshi/sheetgate/internal/credential"
)

// sheetCSV はX2/Y2に資格情報を置いたCSVを返す。
func sheetCSV(id, secret string) string {
	header := make([]string, 25)
	row := make([]string, 25)
	for i := range header {
		header[i] = `"h"`
		row[i] = `""`
	}
	row[23] = `"` + id + `"`
	row[24] = `"` + secret + `"`
	return strings.Join(header, ",") + "\n" + strings.Join(row, ",") + "\n"
}

// newSheetServer は指定したステータスとボディを返すスプレッドシートのスタブを起動する。
func newSheetServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func loadLocalConfig(t *testing.T, sourceURL string) *config.Config {
	t.Helper()
	clearEnv(t)
	t.Setenv("CREDENTIAL_SOURCE_URL", sourceURL)
	t.Setenv("ALLOW_PRIVATE_SOURCE", "true")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return cfg
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	clearEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_Check_Success_DoesNotLogValues(t *testing.T) {
	srv := newSheetServer(t, http.StatusOK, sheetCSV("surgeon-1", "top-secret"))
	clearEnv(t)
	t.Setenv("CREDENTIAL_SOURCE_URL", srv.URL)
	t.Setenv("ALLOW_PRIVATE_SOURCE", "true")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"check"}); err != nil {
		t.Fatalf("Run(check) error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "credential source check passed") {
		t.Errorf("expected success log, got %s", out)
	}
	if strings.Contains(out, "surgeon-1") || strings.Contains(out, "top-secret") {
		t.Errorf("check must not log credential values: %s", out)
	}
}

func TestRunCheck_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind error
	}{
		{"server error", http.StatusInternalServerError, "", credential.ErrServerError},
		{"missing fields", http.StatusOK, "only,one,row\n", credential.ErrMissingFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSheetServer(t, tt.status, tt.body)
			cfg := loadLocalConfig(t, srv.URL)

			err := runCheck(context.Background(), cfg)
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("err = %v, want %v", err, tt.wantKind)
			}
		})
	}
}

func TestRunCheck_PrivateSourceBlockedByDefault(t *testing.T) {
	srv := newSheetServer(t, http.StatusOK, sheetCSV("A", "B"))
	cfg := loadLocalConfig(t, srv.URL)
	cfg.AllowPrivateSource = false

	if err := runCheck(context.Background(), cfg); err == nil {
		t.Fatal("expected loopback credential source to be rejected")
	}
}

func TestNewServer_EndToEndLogin(t *testing.T) {
	srv := newSheetServer(t, http.StatusOK, sheetCSV("A", "B"))
	cfg := loadLocalConfig(t, srv.URL)

	router, store, err := newServer(cfg)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer store.Stop()

	// 初回アクセスでブラウザIDとCSRFトークンを受け取る
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := w.Result().Cookies()

	var csrf string
	for _, c := range cookies {
		if c.Name == "csrf_token" {
			csrf = c.Value
		}
	}
	if csrf == "" {
		t.Fatal("expected a CSRF cookie")
	}

	post := func(password string) *httptest.ResponseRecorder {
		form := url.Values{"user_id": {"A"}, "password": {password}, "csrf_token": {csrf}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := post("wrong"); w.Header().Get("Location") != "/" {
		t.Errorf("wrong password: Location = %q, want /", w.Header().Get("Location"))
	}
	if w := post("B"); w.Header().Get("Location") != "/dashboard" {
		t.Errorf("correct password: Location = %q, want /dashboard", w.Header().Get("Location"))
	}

	// メトリクスに認証結果が記録される
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	for _, want := range []string{`outcome="success"`, `outcome="mismatch"`, "sheetgate_source_fetch_latency_seconds_count 2"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics should contain %q:\n%s", want, body)
		}
	}
}

func TestNewServer_DashboardShowsAuthenticatedID(t *testing.T) {
	srv := newSheetServer(t, http.StatusOK, sheetCSV("a<b", "B"))
	cfg := loadLocalConfig(t, srv.URL)

	router, store, err := newServer(cfg)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer store.Stop()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := w.Result().Cookies()
	var csrf string
	for _, c := range cookies {
		if c.Name == "csrf_token" {
			csrf = c.Value
		}
	}

	send := func(req *http.Request) *httptest.ResponseRecorder {
		for _, c := range cookies {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	form := url.Values{"user_id": {"a<b"}, "password": {"B"}, "csrf_token": {csrf}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if w := send(req); w.Header().Get("Location") != "/dashboard" {
		t.Fatalf("login: Location = %q, want /dashboard", w.Header().Get("Location"))
	}

	w = send(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if !strings.Contains(w.Body.String(), "System Access: a&lt;b</h2>") {
		t.Errorf("dashboard should show the authenticated id a<b, got:\n%s", w.Body.String())
	}

	w = send(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if !strings.Contains(w.Body.String(), `"user_id":"a\u003cb"`) {
		t.Errorf("/api/auth/me = %s, want user_id a<b", w.Body.String())
	}
}

func TestRunHealthcheck_NoServer_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	if err := runHealthcheck(port); err == nil {
		t.Error("expected error when nothing listens on the port")
	}
}
