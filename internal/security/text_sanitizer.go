package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const maxStripPasses = 4

// TextSanitizer はユーザー由来の短いテキスト（Steamの表示名、アイテム名）から
// HTMLを取り除き、プレーンテキストとして保存できる形に整える。
type TextSanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewTextSanitizer はTextSanitizerを生成する。maxRunesが0以下なら長さを制限しない。
func NewTextSanitizer(maxRunes int) *TextSanitizer {
	return &TextSanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxRunes: maxRunes,
	}
}

// Clean はタグを除去し、制御文字を取り除き、連続する空白を1つにまとめる。
// 実体参照で書かれたタグも除去されるよう、結果が変化しなくなるまで繰り返す。
func (s *TextSanitizer) Clean(raw string) string {
	stripped := raw
	for i := 0; i < maxStripPasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(stripped))
		if next == stripped {
			break
		}
		stripped = next
	}

	stripped = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, stripped)

	cleaned := strings.Join(strings.Fields(stripped), " ")

	if s.maxRunes > 0 {
		runes := []rune(cleaned)
		if len(runes) > s.maxRunes {
			cleaned = strings.TrimSpace(string(runes[:s.maxRunes]))
		}
	}
	return cleaned
}
