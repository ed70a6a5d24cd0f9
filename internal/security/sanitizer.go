package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はユーザー入力の自由記述テキストからHTMLを除去する。
// 既往歴や医師の所見など、他のユーザーに表示されるフィールドに適用する。
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はテキストからHTMLタグを全て除去し、前後の空白をトリムする。
func (s *Sanitizer) Clean(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}

// CleanAll は文字列スライスの各要素をCleanして返す。空になった要素は除外する。
func (s *Sanitizer) CleanAll(texts []string) []string {
	cleaned := make([]string, 0, len(texts))
	for _, text := range texts {
		c := s.Clean(text)
		if c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return cleaned
}
