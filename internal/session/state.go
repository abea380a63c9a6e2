// Package session はブラウザごとの画面状態（未ログイン・検証中・ログイン済み）を
// 明示的な有限状態として管理する。
package session

import (
	"errors"

	"github.com/hitoshi/sheetgate/internal/model"
)

// Phase は画面状態の段階。
type Phase int

const (
	// PhaseAnonymous は未ログイン状態。
	PhaseAnonymous Phase = iota
	// PhaseVerifying は認証試行の結果待ち状態。
	PhaseVerifying
	// PhaseAuthenticated はログイン済み状態。
	PhaseAuthenticated
)

// String はAPIレスポンスやログに使う名前を返す。
func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseVerifying:
		return "verifying"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// 不正な状態遷移を表すエラー。
var (
	ErrAttemptInFlight      = errors.New("authentication attempt already in flight")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrNotVerifying         = errors.New("no authentication attempt in flight")
	ErrNotAuthenticated     = errors.New("not authenticated")
)

// State はブラウザ1つ分の画面状態。
// UserIDはPhaseAuthenticatedのときのみ設定される。
type State struct {
	Phase  Phase
	UserID string
	Notice *model.Notice
}

// Submit はフォーム送信による Anonymous -> Verifying の遷移。
// 表示中の通知は消える。
func (s State) Submit() (State, error) {
	switch s.Phase {
	case PhaseVerifying:
		return s, ErrAttemptInFlight
	case PhaseAuthenticated:
		return s, ErrAlreadyAuthenticated
	}
	return State{Phase: PhaseVerifying}, nil
}

// Resolve は認証結果による Verifying からの遷移。
// 成功時はAuthenticated、それ以外は通知付きでAnonymousに戻る。
func (s State) Resolve(result model.AuthResult) (State, error) {
	if s.Phase != PhaseVerifying {
		return s, ErrNotVerifying
	}
	if result.Succeeded() {
		return State{Phase: PhaseAuthenticated, UserID: result.UserID}, nil
	}
	return State{Phase: PhaseAnonymous, Notice: model.NoticeFor(result)}, nil
}

// Logout は Authenticated -> Anonymous の遷移。
func (s State) Logout() (State, error) {
	if s.Phase != PhaseAuthenticated {
		return s, ErrNotAuthenticated
	}
	return State{Phase: PhaseAnonymous}, nil
}

// DismissNotice は通知を閉じる。段階は変わらない。
func (s State) DismissNotice() State {
	s.Notice = nil
	return s
}

// Authenticated はログイン済みかを返す。
func (s State) Authenticated() bool {
	return s.Phase == PhaseAuthenticated
}
