// Package credential はスプレッドシートのCSVエクスポートから
// 認証用の期待値を取得するアダプタを提供する。
package credential

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
)

const (
	// DefaultBaseURL は公開スプレッドシートのベースURL。
	DefaultBaseURL = "https://docs.google.com/spreadsheets/d"
	// DefaultSheetName は認証データを保持するシート名。
	DefaultSheetName = "sum"

	userAgent = "Sheetgate/1.0"
)

// Source は認証データ取得のインターフェース。
type Source interface {
	FetchCredentialRecord(ctx context.Context) (*model.CredentialRecord, error)
}

// FetchObserver はフェッチ結果を記録するインターフェース。
// metrics.Collectorが実装する。
type FetchObserver interface {
	RecordSourceFetch(duration time.Duration, statusCode int, err error)
}

// SheetSourceConfig はSheetSourceの設定。
type SheetSourceConfig struct {
	URL         string
	IDCell      CellRef
	SecretCell  CellRef
	MaxBodySize int64
}

// SheetSource は公開CSVエンドポイントから認証データを取得する。
// 呼び出しごとに1回だけGETし、結果をキャッシュしない。
type SheetSource struct {
	client   *http.Client
	config   SheetSourceConfig
	observer FetchObserver
	logger   *slog.Logger
}

// NewSheetSource はSheetSourceを生成する。observerはnilでもよい。
func NewSheetSource(client *http.Client, config SheetSourceConfig, observer FetchObserver, logger *slog.Logger) *SheetSource {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	return &SheetSource{
		client:   client,
		config:   config,
		observer: observer,
		logger:   logger,
	}
}

// BuildSheetURL はGoogle Visualization APIのCSVエクスポートURLを組み立てる。
func BuildSheetURL(baseURL, documentID, sheetName string) string {
	q := url.Values{}
	q.Set("tqx", "out:csv")
	q.Set("sheet", sheetName)
	return fmt.Sprintf("%s/%s/gviz/tq?%s",
		strings.TrimRight(baseURL, "/"), url.PathEscape(documentID), q.Encode())
}

// FetchCredentialRecord はCSVを取得し、設定されたセルから期待値を取り出す。
func (s *SheetSource) FetchCredentialRecord(ctx context.Context) (*model.CredentialRecord, error) {
	start := time.Now()
	status, body, err := s.fetch(ctx)
	if err == nil {
		var record *model.CredentialRecord
		record, err = ExtractRecord(ParseRows(body), s.config.IDCell, s.config.SecretCell)
		if err == nil {
			s.observe(start, status, nil)
			return record, nil
		}
		s.logger.Error("認証セルが見つからないか空です",
			slog.String("id_cell", s.config.IDCell.String()),
			slog.String("secret_cell", s.config.SecretCell.String()),
		)
	}

	s.observe(start, status, err)
	return nil, err
}

func (s *SheetSource) fetch(ctx context.Context) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return 0, "", unreachable(fmt.Errorf("リクエスト作成に失敗: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/csv, text/plain, */*")
	// 中間キャッシュを経由せず最新の公開データを取得する
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("認証データの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, "", unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Error("認証データの取得先がエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return resp.StatusCode, "", serverError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBodySize))
	if err != nil {
		s.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return resp.StatusCode, "", unreachable(fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err))
	}

	return resp.StatusCode, string(body), nil
}

func (s *SheetSource) observe(start time.Time, status int, err error) {
	if s.observer == nil {
		return
	}
	s.observer.RecordSourceFetch(time.Since(start), status, err)
}
