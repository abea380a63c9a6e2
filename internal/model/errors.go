package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, source, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccessDenied     = "ACCESS_DENIED"
	ErrCodeDataError        = "DATA_ERROR"
	ErrCodeConnectionError  = "CONNECTION_ERROR"
	ErrCodeAttemptInFlight  = "ATTEMPT_IN_FLIGHT"
	ErrCodeAlreadySignedIn  = "ALREADY_AUTHENTICATED"
	ErrCodeNotAuthenticated = "NOT_AUTHENTICATED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeCSRFFailed       = "CSRF_FAILED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Notice は認証失敗後に表示する閉じることのできる通知。
type Notice struct {
	Title   string
	Message string
}

const (
	accessDeniedMessage = "The ID or Password provided does not match our secure records. " +
		"Please check your credentials and try again."
	dataErrorMessage = "The system could not locate the authentication records " +
		"in the specified spreadsheet cells"
	connectionErrorMessage = "Could not reach the verification server. " +
		"Please verify your internet connection and ensure the spreadsheet is published to the web."
)

// NoticeFor は失敗した認証結果に対応する通知を返す。成功時はnilを返す。
func NoticeFor(result AuthResult) *Notice {
	switch result.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeMismatch:
		return &Notice{Title: "Access Denied", Message: accessDeniedMessage}
	}
	if result.Reason == ReasonDataError {
		return DataErrorNotice("")
	}
	return &Notice{Title: "System Connection Error", Message: connectionErrorMessage}
}

// DataErrorNotice は照合先セルの表記（例: "sum!X2 and sum!Y2"）を含むData Error通知を返す。
// cellsが空の場合はセル表記を省く。
func DataErrorNotice(cells string) *Notice {
	if cells == "" {
		return &Notice{Title: ReasonDataError, Message: dataErrorMessage + "."}
	}
	return &Notice{Title: ReasonDataError, Message: fmt.Sprintf("%s (%s).", dataErrorMessage, cells)}
}

// APIErrorFor は失敗した認証結果をAPIエラーに変換する。成功時はnilを返す。
func APIErrorFor(result AuthResult) *APIError {
	notice := NoticeFor(result)
	if notice == nil {
		return nil
	}

	switch {
	case result.Outcome == OutcomeMismatch:
		return &APIError{
			Code:     ErrCodeAccessDenied,
			Message:  notice.Message,
			Category: "auth",
			Action:   "IDとパスワードを確認して再度お試しください。",
		}
	case result.Reason == ReasonDataError:
		return &APIError{
			Code:     ErrCodeDataError,
			Message:  notice.Message,
			Category: "source",
			Action:   "管理者に認証データの設定を確認するよう依頼してください。",
		}
	default:
		return &APIError{
			Code:     ErrCodeConnectionError,
			Message:  notice.Message,
			Category: "source",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
}

// NewAttemptInFlightError は認証試行が処理中の場合のエラーを生成する。
func NewAttemptInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeAttemptInFlight,
		Message:  "認証処理が進行中です。",
		Category: "auth",
		Action:   "現在の認証処理の完了を待ってから再度お試しください。",
	}
}

// NewAlreadyAuthenticatedError は既にログイン済みの場合のエラーを生成する。
func NewAlreadyAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadySignedIn,
		Message:  "既にログインしています。",
		Category: "auth",
		Action:   "別のIDでログインする場合は先にログアウトしてください。",
	}
}

// NewNotAuthenticatedError は未ログインの場合のエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "user_id と password を含むJSONを送信してください。",
	}
}

// NewCSRFFailedError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "validation",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
