package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sheetgate/internal/metrics"
	"github.com/hitoshi/sheetgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 認証
	Authenticator Authenticator
	Store         StateStore
	PageConfig    PageHandlerConfig

	// ミドルウェア依存
	BrowserSession    middleware.BrowserSessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string

	// 運用
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → BrowserSession → CSRF
//
// /api 配下にはCORSを追加する。/health と /metrics はセッション・CSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	pageHandler := NewPageHandler(deps.Authenticator, deps.Store, deps.PageConfig, deps.Logger)
	apiHandler := NewAPIHandler(deps.Authenticator, deps.Store, deps.Logger)

	// --- 運用エンドポイント ---
	r.Get("/health", Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- ブラウザ状態を扱うルート ---
	// ミドルウェアスタック: BrowserSession → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBrowserSessionMiddleware(deps.BrowserSession))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// HTML画面
		r.Get("/", pageHandler.LoginPage)
		r.Post("/login", pageHandler.Login)
		r.Get("/dashboard", pageHandler.Dashboard)
		r.Post("/logout", pageHandler.Logout)
		r.Post("/notice/dismiss", pageHandler.DismissNotice)

		// JSON API
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", apiHandler.Login)
				r.Get("/me", apiHandler.Me)
				r.Post("/logout", apiHandler.Logout)
			})
		})
	})

	return r
}
