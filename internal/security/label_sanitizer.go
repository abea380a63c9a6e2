package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// maxLabelLength は表示ラベルの最大文字数。
const maxLabelLength = 128

// LabelSanitizer はユーザー入力やシート由来の値を
// ダッシュボード表示・ログ出力用のプレーンテキストに変換する。
// bluemondayのStrictPolicyで全タグを除去し、制御文字を取り除く。
type LabelSanitizer struct {
	policy *bluemonday.Policy
}

// NewLabelSanitizer はLabelSanitizerを生成する。
func NewLabelSanitizer() *LabelSanitizer {
	return &LabelSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeLabel はタグと制御文字を取り除き、最大長で切り詰めたプレーンテキストを返す。
// StrictPolicyが行うエスケープは戻すため、出力時のエスケープはhtml/templateに任せる。
// 同一入力に対して常に同一出力を返す。
func (s *LabelSanitizer) SanitizeLabel(raw string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)

	if runes := []rune(cleaned); len(runes) > maxLabelLength {
		cleaned = string(runes[:maxLabelLength])
	}
	return cleaned
}
