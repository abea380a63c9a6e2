package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sheetgate/internal/middleware"
	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/session"
)

const (
	testBrowserID = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testCSRFToken = "csrf-test-token"
)

// --- モック定義 ---

type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, attempt model.AuthAttempt) model.AuthResult
	calls          int
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, attempt model.AuthAttempt) model.AuthResult {
	m.calls++
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, attempt)
	}
	return model.Mismatch()
}

// credentialAuthenticator は固定の資格情報と照合するモックを返す。
func credentialAuthenticator(id, secret string) *mockAuthenticator {
	return &mockAuthenticator{
		authenticateFn: func(ctx context.Context, attempt model.AuthAttempt) model.AuthResult {
			if attempt.SubmittedID == id && attempt.SubmittedSecret == secret {
				return model.Success(attempt.SubmittedID)
			}
			return model.Mismatch()
		},
	}
}

// resultAuthenticator は常に同じ結果を返すモックを返す。
func resultAuthenticator(result model.AuthResult) *mockAuthenticator {
	return &mockAuthenticator{
		authenticateFn: func(ctx context.Context, attempt model.AuthAttempt) model.AuthResult {
			return result
		},
	}
}

// --- ルーター構築ヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	s := session.NewStore(time.Hour, 0)
	t.Cleanup(s.Stop)
	return s
}

func createTestRouter(t *testing.T, authenticator Authenticator) (http.Handler, *session.Store) {
	t.Helper()
	store := newTestStore(t)
	deps := &RouterDeps{
		Authenticator: authenticator,
		Store:         store,
		PageConfig: PageHandlerConfig{
			SourceLabel: "sum!X2 & sum!Y2",
			SourceCells: "sum!X2 and sum!Y2",
		},
		BrowserSession: middleware.BrowserSessionConfig{
			MaxAge: 3600,
			NewID:  session.NewID,
		},
		CSRFConfig:        middleware.CSRFConfig{CookieSecure: false},
		CORSAllowedOrigin: "http://localhost:3000",
		Gatherer:          prometheus.NewRegistry(),
		Logger:            discardLogger(),
	}
	return NewRouter(deps), store
}

// --- リクエストヘルパー ---

// newBrowserRequest はブラウザIDとCSRFトークンのCookieを付与したリクエストを生成する。
func newBrowserRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.AddCookie(&http.Cookie{Name: middleware.BrowserCookieName, Value: testBrowserID})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	return req
}

// newFormRequest はCSRFトークンをフォームフィールドに含めたPOSTリクエストを生成する。
func newFormRequest(target string, form url.Values) *http.Request {
	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFFormField, testCSRFToken)
	req := newBrowserRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// newJSONRequest はCSRFトークンをヘッダーに含めたJSONリクエストを生成する。
func newJSONRequest(method, target, body string) *http.Request {
	req := newBrowserRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func loginForm(id, password string) url.Values {
	return url.Values{"user_id": {id}, "password": {password}}
}
