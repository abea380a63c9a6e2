// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sheetgate/internal/auth"
	"github.com/hitoshi/sheetgate/internal/middleware"
	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/session"
)

// Authenticator は認証ハンドラーが必要とする認証サービスインターフェース。
type Authenticator interface {
	Authenticate(ctx context.Context, attempt model.AuthAttempt) model.AuthResult
}

// StateStore はブラウザごとの画面状態を保持するストアのインターフェース。
// session.Storeの部分集合として定義する。
type StateStore interface {
	Get(id string) session.State
	Begin(id string) error
	Finish(id string, result model.AuthResult) (session.State, error)
	Logout(id string) error
	DismissNotice(id string)
}

// loginFlow はHTMLフォームとJSON APIで共有する認証試行の流れ。
// Begin（Anonymous -> Verifying）、認証、Finish（Verifying -> 結果）を順に行う。
type loginFlow struct {
	auth   Authenticator
	store  StateStore
	logger *slog.Logger
}

// attempt は認証試行を1回実行する。
// 既に試行中・ログイン済みの場合はsessionパッケージのエラーを返し、認証は行わない。
// 認証処理がpanicしても状態がVerifyingのまま残らないようFinishを必ず呼ぶ。
func (f *loginFlow) attempt(ctx context.Context, browserID, submittedID, submittedSecret string) (result model.AuthResult, err error) {
	if err := f.store.Begin(browserID); err != nil {
		return model.AuthResult{}, err
	}

	result = model.SourceUnavailable(model.ReasonConnectionError)
	defer func() {
		if _, finishErr := f.store.Finish(browserID, result); finishErr != nil {
			f.logger.Error("failed to finish authentication attempt",
				slog.String("error", finishErr.Error()),
			)
		}
	}()

	result = f.auth.Authenticate(ctx, auth.NewAttempt(submittedID, submittedSecret))
	return result, nil
}

// browserID はブラウザセッションミドルウェアが注入したIDを取り出す。
// ミドルウェア未通過の場合は500を返してfalseを返す。
func browserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := middleware.BrowserIDFromContext(r.Context())
	if err != nil {
		slog.Error("browser id missing from request context",
			slog.String("path", r.URL.Path),
		)
		middleware.WriteInternalServerError(w)
		return "", false
	}
	return id, true
}

// isInFlight は認証試行が重複した場合のエラーかどうかを判定する。
func isInFlight(err error) bool {
	return errors.Is(err, session.ErrAttemptInFlight)
}
