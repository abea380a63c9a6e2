// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
)

// BrowserCookieName はブラウザIDを保持するCookieの名前。
// 値はランダムなIDのみで、資格情報や認証済みユーザーIDは含まない。
const BrowserCookieName = "sheetgate_sid"

// browserIDLength はブラウザIDの16進文字列長。
const browserIDLength = 64

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// browserIDContextKey はリクエストコンテキストにブラウザIDを格納するためのキー。
var browserIDContextKey = contextKey("browser_id")

// BrowserSessionConfig はブラウザセッションミドルウェアの設定。
type BrowserSessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int
	// NewID はブラウザIDの生成関数。session.NewIDを渡す。
	NewID func() (string, error)
}

// NewBrowserSessionMiddleware はCookieからブラウザIDを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieが未設定または形式不正の場合は新しいIDを発行する。
// 認証済みかどうかの判定はハンドラーがセッションストアに問い合わせて行う。
func NewBrowserSessionMiddleware(config BrowserSessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(BrowserCookieName); err == nil && validBrowserID(cookie.Value) {
				next.ServeHTTP(w, r.WithContext(ContextWithBrowserID(r.Context(), cookie.Value)))
				return
			}

			id, err := config.NewID()
			if err != nil {
				slog.Error("failed to generate browser id",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     BrowserCookieName,
				Value:    id,
				Path:     "/",
				Domain:   config.CookieDomain,
				MaxAge:   config.MaxAge,
				HttpOnly: true,
				Secure:   config.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})

			next.ServeHTTP(w, r.WithContext(ContextWithBrowserID(r.Context(), id)))
		})
	}
}

// BrowserIDFromContext はリクエストコンテキストからブラウザIDを取得する。
// ブラウザセッションミドルウェアを通過したリクエストでのみ有効。
func BrowserIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(browserIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("browser ID not found in context")
	}
	return id, nil
}

// ContextWithBrowserID はコンテキストにブラウザIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithBrowserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, browserIDContextKey, id)
}

func validBrowserID(v string) bool {
	if len(v) != browserIDLength {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
