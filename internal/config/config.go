package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/sheetgate/internal/credential"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Credential source
	CredentialSourceURL string
	SheetBaseURL        string
	SheetID             string
	SheetName           string
	IDCell              credential.CellRef
	SecretCell          credential.CellRef
	AllowPrivateSource  bool

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Session
	SessionMaxAge     int
	SessionMaxEntries int

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.CredentialSourceURL = os.Getenv("CREDENTIAL_SOURCE_URL")
	cfg.SheetID = os.Getenv("CREDENTIAL_SHEET_ID")
	if cfg.CredentialSourceURL == "" && cfg.SheetID == "" {
		return nil, fmt.Errorf("required environment variables are not set: [CREDENTIAL_SHEET_ID] (or CREDENTIAL_SOURCE_URL)")
	}

	cfg.SheetBaseURL = getEnvString("CREDENTIAL_SHEET_BASE_URL", credential.DefaultBaseURL)
	cfg.SheetName = getEnvString("CREDENTIAL_SHEET_NAME", credential.DefaultSheetName)
	if cfg.CredentialSourceURL == "" {
		cfg.CredentialSourceURL = credential.BuildSheetURL(cfg.SheetBaseURL, cfg.SheetID, cfg.SheetName)
	}

	var err error
	cfg.IDCell, err = credential.ParseCellRef(getEnvString("CREDENTIAL_ID_CELL", "X2"))
	if err != nil {
		return nil, fmt.Errorf("CREDENTIAL_ID_CELL: %w", err)
	}
	cfg.SecretCell, err = credential.ParseCellRef(getEnvString("CREDENTIAL_SECRET_CELL", "Y2"))
	if err != nil {
		return nil, fmt.Errorf("CREDENTIAL_SECRET_CELL: %w", err)
	}
	if cfg.IDCell.Row != cfg.SecretCell.Row {
		return nil, fmt.Errorf("CREDENTIAL_ID_CELL (%s) and CREDENTIAL_SECRET_CELL (%s) must be on the same row",
			cfg.IDCell, cfg.SecretCell)
	}

	// Optional fields with defaults
	cfg.AllowPrivateSource = getEnvBool("ALLOW_PRIVATE_SOURCE", false)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 1048576)
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.FetchMaxSize <= 0 {
		cfg.FetchMaxSize = 1048576
	}
	cfg.SessionMaxAge = getEnvPositiveInt("SESSION_MAX_AGE", 86400)
	cfg.SessionMaxEntries = getEnvPositiveInt("SESSION_MAX_ENTRIES", 10000)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvPositiveInt は正の整数のみを受け付け、0以下や不正値はデフォルト値とする。
func getEnvPositiveInt(key string, defaultVal int) int {
	if i := getEnvInt(key, defaultVal); i > 0 {
		return i
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
