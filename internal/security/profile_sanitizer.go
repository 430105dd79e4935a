package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizer はプロフィール編集で受け取るテキストを無害化する。
// 表示名やロケールはプレーンテキストとして扱うため、HTMLはすべて除去する。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
// bluemondayがエスケープした実体参照は元の文字に戻す（JSONで返すため二重エスケープを避ける）。
// maxRunesを超える場合は切り詰める。maxRunesが0以下の場合は制限しない。
func (s *ProfileSanitizer) SanitizeText(raw string, maxRunes int) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.TrimSpace(cleaned)

	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}
