package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sheetgate/internal/middleware"
	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageTemplates は埋め込みテンプレートを起動時に1回だけパースしたもの。
var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// PageHandlerConfig はHTML画面ハンドラーの設定。
type PageHandlerConfig struct {
	// SourceLabel はログイン画面に表示する照合先セルの説明（例: "sum!X2 & sum!Y2"）。
	SourceLabel string
	// SourceCells はData Error通知に含める照合先セルの表記（例: "sum!X2 and sum!Y2"）。
	SourceCells string
}

const busyMessage = "A verification is already in progress for this browser. " +
	"Please wait for it to finish before trying again."

// PageHandler はログイン画面とダッシュボードのHTMLハンドラー。
type PageHandler struct {
	flow   *loginFlow
	store  StateStore
	config PageHandlerConfig
	logger *slog.Logger
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(authenticator Authenticator, store StateStore, config PageHandlerConfig, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		flow:   &loginFlow{auth: authenticator, store: store, logger: logger},
		store:  store,
		config: config,
		logger: logger,
	}
}

// pageData はテンプレートに渡す表示用データ。
type pageData struct {
	Title       string
	Compact     bool
	CSRFToken   string
	SourceLabel string
	Notice      *model.Notice
	Verifying   bool
	UserID      string
	Message     string
}

// LoginPage はログイン画面を表示する。ログイン済みの場合はダッシュボードへリダイレクトする。
// GET /
func (h *PageHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	id, ok := browserID(w, r)
	if !ok {
		return
	}

	state := h.store.Get(id)
	if state.Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	h.render(w, http.StatusOK, "login.html", pageData{
		Title:       "Login",
		CSRFToken:   middleware.CSRFTokenFromContext(r.Context()),
		SourceLabel: h.config.SourceLabel,
		Notice:      h.displayNotice(state.Notice),
		Verifying:   state.Phase == session.PhaseVerifying,
	})
}

// Login はログインフォームの送信を処理する。
// POST /login
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	id, ok := browserID(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	result, err := h.flow.attempt(r.Context(), id, r.PostFormValue("user_id"), r.PostFormValue("password"))
	switch {
	case err == nil:
	case isInFlight(err):
		h.render(w, http.StatusConflict, "busy.html", pageData{
			Title:   "Verifying",
			Message: busyMessage,
		})
		return
	case errors.Is(err, session.ErrAlreadyAuthenticated):
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	default:
		h.logger.Error("failed to begin authentication attempt", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if result.Succeeded() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Dashboard はログイン後のダッシュボードを表示する。未ログインの場合はログイン画面へリダイレクトする。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := browserID(w, r)
	if !ok {
		return
	}

	state := h.store.Get(id)
	if !state.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.render(w, http.StatusOK, "dashboard.html", pageData{
		Title:     "Dashboard",
		Compact:   true,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		UserID:    state.UserID,
	})
}

// Logout はログアウトしてログイン画面へリダイレクトする。未ログインでもエラーにしない。
// POST /logout
func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := browserID(w, r)
	if !ok {
		return
	}

	if err := h.store.Logout(id); err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
		h.logger.Error("failed to logout", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DismissNotice は表示中の通知を閉じてログイン画面へ戻る。
// POST /notice/dismiss
func (h *PageHandler) DismissNotice(w http.ResponseWriter, r *http.Request) {
	id, ok := browserID(w, r)
	if !ok {
		return
	}

	h.store.DismissNotice(id)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// displayNotice はData Error通知に照合先セルの表記を加える。
func (h *PageHandler) displayNotice(notice *model.Notice) *model.Notice {
	if notice == nil || notice.Title != model.ReasonDataError || h.config.SourceCells == "" {
		return notice
	}
	return model.DataErrorNotice(h.config.SourceCells)
}

// render はテンプレートをバッファに描画してから書き込む。
// 描画に失敗した場合は何も書き込まずに500を返す。
func (h *PageHandler) render(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
