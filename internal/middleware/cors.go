package middleware

import "net/http"

const corsPreflightMaxAge = "600"

// NewCORSMiddleware は/api配下に設定された1つのオリジンだけを許可するCORSミドルウェアを返す。
// Originが一致するリクエストにのみ許可ヘッダーを付け、Cookie送信を許可する。
// プリフライト（OPTIONS）は一致すれば204、一致しないオリジンからは403を返す。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := origin != "" && origin == allowedOrigin
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if origin != "" && !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
				w.Header().Set("Access-Control-Max-Age", corsPreflightMaxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
