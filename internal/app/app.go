package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/sheetgate/internal/auth"
	"github.com/hitoshi/sheetgate/internal/config"
	"github.com/hitoshi/sheetgate/internal/credential"
	"github.com/hitoshi/sheetgate/internal/handler"
	"github.com/hitoshi/sheetgate/internal/logger"
	"github.com/hitoshi/sheetgate/internal/metrics"
	"github.com/hitoshi/sheetgate/internal/middleware"
	"github.com/hitoshi/sheetgate/internal/security"
	"github.com/hitoshi/sheetgate/internal/session"
)

// sessionCleanupInterval は期限切れブラウザ状態の掃除間隔。
const sessionCleanupInterval = 5 * time.Minute

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込んでログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandCheck:
		return runCheck(context.Background(), cfg)
	default:
		return runServe(cfg)
	}
}

// newSheetSource はSSRFガードを通した認証データ取得元を構築する。
// 取得先URLが拒否対象の場合はエラーを返す。
func newSheetSource(cfg *config.Config, observer credential.FetchObserver) (*credential.SheetSource, error) {
	guard := security.NewSourceGuard(cfg.AllowPrivateSource)
	if err := guard.ValidateURL(cfg.CredentialSourceURL); err != nil {
		return nil, fmt.Errorf("credential source rejected: %w", err)
	}

	return credential.NewSheetSource(
		guard.NewClient(cfg.FetchTimeout),
		credential.SheetSourceConfig{
			URL:         cfg.CredentialSourceURL,
			IDCell:      cfg.IDCell,
			SecretCell:  cfg.SecretCell,
			MaxBodySize: cfg.FetchMaxSize,
		},
		observer,
		slog.Default(),
	), nil
}

// newServer は全依存関係をワイヤリングしたHTTPハンドラーとセッションストアを返す。
// 呼び出し側はstore.Stopでクリーンアップを停止する責任を持つ。
func newServer(cfg *config.Config) (http.Handler, *session.Store, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. 認証データ取得元
	source, err := newSheetSource(cfg, collector)
	if err != nil {
		return nil, nil, err
	}

	// 3. ドメインサービス
	sanitizer := security.NewLabelSanitizer()
	authService := auth.NewService(source, collector, sanitizer, slog.Default())
	store := session.NewStore(time.Duration(cfg.SessionMaxAge)*time.Second, sessionCleanupInterval,
		session.WithMaxEntries(cfg.SessionMaxEntries),
	)

	// 4. ルーター
	deps := &handler.RouterDeps{
		Authenticator: authService,
		Store:         store,
		PageConfig: handler.PageHandlerConfig{
			SourceLabel: fmt.Sprintf("%s!%s & %s!%s", cfg.SheetName, cfg.IDCell, cfg.SheetName, cfg.SecretCell),
			SourceCells: fmt.Sprintf("%s!%s and %s!%s", cfg.SheetName, cfg.IDCell, cfg.SheetName, cfg.SecretCell),
		},
		BrowserSession: middleware.BrowserSessionConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
			NewID:        session.NewID,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Gatherer:          registry,
		Logger:            slog.Default(),
	}

	return handler.NewRouter(deps), store, nil
}

// runServe はHTTPサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	router, store, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer store.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FetchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runCheck は認証データ取得元に1回だけ問い合わせ、認証セルが揃っているかを確認する。
// セルの値はログに出力しない。取得に失敗した場合はエラーを返す。
func runCheck(ctx context.Context, cfg *config.Config) error {
	source, err := newSheetSource(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()

	if _, err := source.FetchCredentialRecord(ctx); err != nil {
		return fmt.Errorf("credential check failed (%s): %w", credential.KindOf(err), err)
	}

	slog.Info("credential source check passed",
		slog.String("id_cell", cfg.IDCell.String()),
		slog.String("secret_cell", cfg.SecretCell.String()),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
