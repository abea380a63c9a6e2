package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/sheetgate/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスのJSON形式。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIエラーをJSONで書き込む。
// 認証状態に依存する応答のため、キャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		apiErr = model.NewInternalError()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAuthFailure は失敗した認証結果をAPIエラーとして書き込む。
// 不一致は401、取得元の問題（Data Error・Connection Error）は503とする。
func WriteAuthFailure(w http.ResponseWriter, result model.AuthResult) {
	status := http.StatusServiceUnavailable
	if result.Outcome == model.OutcomeMismatch {
		status = http.StatusUnauthorized
	}
	WriteErrorResponse(w, status, model.APIErrorFor(result))
}

// WriteInternalServerError は500を書き込む。詳細はログのみに記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
