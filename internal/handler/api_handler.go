package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sheetgate/internal/middleware"
	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/session"
)

// maxLoginBodySize はログインAPIのリクエストボディ上限（バイト）。
const maxLoginBodySize = 4096

// loginRequest はPOST /api/auth/loginのリクエストボディ。
type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// loginResponse はログイン成功時のレスポンスボディ。
type loginResponse struct {
	UserID string `json:"user_id"`
}

// meResponse はGET /api/auth/meのレスポンスボディ。
type meResponse struct {
	UserID string `json:"user_id"`
	Phase  string `json:"phase"`
}

// APIHandler はスクリプトクライアント向けのJSON認証API。
// HTML画面と同じ状態ストアを共有する。
type APIHandler struct {
	flow   *loginFlow
	store  StateStore
	logger *slog.Logger
}

// NewAPIHandler はAPIHandlerを生成する。
func NewAPIHandler(authenticator Authenticator, store StateStore, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		flow:   &loginFlow{auth: authenticator, store: store, logger: logger},
		store:  store,
		logger: logger,
	}
}

// Login は資格情報を照合する。
// POST /api/auth/login
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	id, ok := browserID(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodySize)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}

	result, err := h.flow.attempt(r.Context(), id, req.UserID, req.Password)
	switch {
	case err == nil:
	case isInFlight(err):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewAttemptInFlightError())
		return
	case errors.Is(err, session.ErrAlreadyAuthenticated):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewAlreadyAuthenticatedError())
		return
	default:
		h.logger.Error("failed to begin authentication attempt", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if !result.Succeeded() {
		middleware.WriteAuthFailure(w, result)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{UserID: result.UserID})
}

// Me は現在のログイン状態を返す。
// GET /api/auth/me
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := browserID(w, r)
	if !ok {
		return
	}

	state := h.store.Get(id)
	if !state.Authenticated() {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	writeJSON(w, http.StatusOK, meResponse{UserID: state.UserID, Phase: state.Phase.String()})
}

// Logout はログアウトする。未ログインでも204を返す。
// POST /api/auth/logout
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := browserID(w, r)
	if !ok {
		return
	}

	if err := h.store.Logout(id); err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
		h.logger.Error("failed to logout", slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
