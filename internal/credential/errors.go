package credential

import (
	"errors"
	"fmt"
)

// Kind はフェッチ失敗の分類。
type Kind int

const (
	// KindServerError は2xx以外のHTTPステータスが返されたことを示す。
	KindServerError Kind = iota
	// KindUnreachable は通信自体に失敗したことを示す。
	KindUnreachable
	// KindMissingFields は対象の行またはセルが存在しないか空であることを示す。
	KindMissingFields
)

// String はログ・メトリクス用のラベルを返す。
func (k Kind) String() string {
	switch k {
	case KindServerError:
		return "server_error"
	case KindUnreachable:
		return "unreachable"
	case KindMissingFields:
		return "missing_fields"
	default:
		return "unknown"
	}
}

// errors.Is で判定するためのセンチネルエラー。
var (
	ErrServerError   = errors.New("credential source returned non-success status")
	ErrUnreachable   = errors.New("credential source unreachable")
	ErrMissingFields = errors.New("credential fields missing")
)

// FetchError は認証データ取得の失敗を表す。
type FetchError struct {
	Kind       Kind
	StatusCode int   // KindServerErrorのときのみ設定
	Err        error // 元になったエラー（あれば）
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	switch e.Kind {
	case KindServerError:
		return fmt.Sprintf("credential source responded with status %d", e.StatusCode)
	case KindUnreachable:
		if e.Err != nil {
			return fmt.Sprintf("credential source unreachable: %v", e.Err)
		}
		return ErrUnreachable.Error()
	case KindMissingFields:
		if e.Err != nil {
			return fmt.Sprintf("credential fields missing: %v", e.Err)
		}
		return ErrMissingFields.Error()
	default:
		return "credential fetch failed"
	}
}

// Unwrap は元のエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is はKindに対応するセンチネルエラーとの一致を判定する。
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrServerError:
		return e.Kind == KindServerError
	case ErrUnreachable:
		return e.Kind == KindUnreachable
	case ErrMissingFields:
		return e.Kind == KindMissingFields
	}
	return false
}

func serverError(status int) *FetchError {
	return &FetchError{Kind: KindServerError, StatusCode: status}
}

func unreachable(err error) *FetchError {
	return &FetchError{Kind: KindUnreachable, Err: err}
}

func missingFields(reason string) *FetchError {
	return &FetchError{Kind: KindMissingFields, Err: errors.New(reason)}
}

// KindOf はエラーからKindを取り出す。FetchErrorでない場合はKindUnreachableとみなす。
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnreachable
}
