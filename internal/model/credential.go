// Package model はドメインモデルを定義する。
package model

// CredentialRecord はスプレッドシートから取得した期待値の組を表す。
// 認証試行ごとに取得し直し、保存やキャッシュは行わない。
type CredentialRecord struct {
	ExpectedID     string
	ExpectedSecret string
}

// AuthAttempt はフォーム送信1回分の認証試行を表す。
type AuthAttempt struct {
	ID              string // ログ相関用のID
	SubmittedID     string
	SubmittedSecret string
}

// Outcome は認証結果の種別。
type Outcome int

const (
	// OutcomeSuccess は識別子・シークレットの両方が一致したことを示す。
	OutcomeSuccess Outcome = iota
	// OutcomeMismatch はいずれかが一致しなかったことを示す。
	OutcomeMismatch
	// OutcomeSourceUnavailable は認証データを取得できなかったことを示す。
	OutcomeSourceUnavailable
)

// String はメトリクスのラベルやログに使う名前を返す。
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeSourceUnavailable:
		return "source_unavailable"
	default:
		return "unknown"
	}
}

// SourceUnavailable の理由。
const (
	ReasonDataError       = "Data Error"
	ReasonConnectionError = "Connection Error"
)

// AuthResult は認証試行1回に対してちょうど1つ生成される結果。
// UserIDはSuccessのとき、ReasonはSourceUnavailableのときのみ設定される。
type AuthResult struct {
	Outcome Outcome
	UserID  string
	Reason  string
}

// Success は認証成功の結果を生成する。
func Success(userID string) AuthResult {
	return AuthResult{Outcome: OutcomeSuccess, UserID: userID}
}

// Mismatch は資格情報不一致の結果を生成する。
func Mismatch() AuthResult {
	return AuthResult{Outcome: OutcomeMismatch}
}

// SourceUnavailable は認証データ取得失敗の結果を生成する。
func SourceUnavailable(reason string) AuthResult {
	return AuthResult{Outcome: OutcomeSourceUnavailable, Reason: reason}
}

// Succeeded は認証が成功したかを返す。
func (r AuthResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}
