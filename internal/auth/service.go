// Package auth は送信された資格情報をスプレッドシート上の期待値と照合する認証処理を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/sheetgate/internal/credential"
	"github.com/hitoshi/sheetgate/internal/model"
)

// OutcomeRecorder は認証結果を記録するインターフェース。
// metrics.Collectorが実装する。
type OutcomeRecorder interface {
	RecordAuthOutcome(result model.AuthResult)
}

// LabelSanitizer はログに出力するユーザー入力を無害化するインターフェース。
type LabelSanitizer interface {
	SanitizeLabel(raw string) string
}

// Service は認証に関するビジネスロジックを提供する。
// 試行ごとに認証データ取得元を1回だけ呼び出し、結果を保持しない。
type Service struct {
	source    credential.Source
	recorder  OutcomeRecorder
	sanitizer LabelSanitizer
	logger    *slog.Logger
}

// NewService はServiceを生成する。recorderとsanitizerはnilでもよい。
func NewService(source credential.Source, recorder OutcomeRecorder, sanitizer LabelSanitizer, logger *slog.Logger) *Service {
	return &Service{
		source:    source,
		recorder:  recorder,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// NewAttempt はフォーム送信内容から認証試行を生成する。
func NewAttempt(submittedID, submittedSecret string) model.AuthAttempt {
	return model.AuthAttempt{
		ID:              uuid.New().String(),
		SubmittedID:     submittedID,
		SubmittedSecret: submittedSecret,
	}
}

// Authenticate は試行を期待値と照合し、結果を1つ返す。
// 取得元がMissingFieldsで失敗した場合は SourceUnavailable("Data Error")、
// それ以外の失敗は SourceUnavailable("Connection Error") を返す。
// 比較は大文字小文字を区別する完全一致で、ハッシュ化は行わない。
func (s *Service) Authenticate(ctx context.Context, attempt model.AuthAttempt) model.AuthResult {
	result := s.authenticate(ctx, attempt)

	s.logger.Info("authentication attempt",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", s.label(attempt.SubmittedID)),
		slog.String("outcome", result.Outcome.String()),
		slog.String("reason", result.Reason),
	)
	if s.recorder != nil {
		s.recorder.RecordAuthOutcome(result)
	}

	return result
}

func (s *Service) authenticate(ctx context.Context, attempt model.AuthAttempt) model.AuthResult {
	record, err := s.source.FetchCredentialRecord(ctx)
	if err != nil {
		if errors.Is(err, credential.ErrMissingFields) {
			return model.SourceUnavailable(model.ReasonDataError)
		}
		s.logger.Error("Authentication Error",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
		return model.SourceUnavailable(model.ReasonConnectionError)
	}

	if attempt.SubmittedID == record.ExpectedID && attempt.SubmittedSecret == record.ExpectedSecret {
		return model.Success(attempt.SubmittedID)
	}
	return model.Mismatch()
}

func (s *Service) label(raw string) string {
	if s.sanitizer == nil {
		return raw
	}
	return s.sanitizer.SanitizeLabel(raw)
}
