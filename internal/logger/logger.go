package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// level はグローバルロガーのログレベル。設定読み込み後にSetLevelで変更する。
var level = new(slog.LevelVar)

// redactedKeys は値を出力しない属性キー。
var redactedKeys = []string{"password", "secret"}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// キーがpassword・secretそのもの、または"_password"・"_secret"で終わる属性の値はマスクされる。
func Setup(w io.Writer, lv slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lv,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, level))
}

// SetLevel はグローバルロガーのログレベルを変更する。
func SetLevel(lv slog.Level) {
	level.Set(lv)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, k := range redactedKeys {
		if key == k || strings.HasSuffix(key, "_"+k) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}
