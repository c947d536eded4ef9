// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は利用者が入力した自由記述からマークアップを取り除き、プレーンテキストにする。
// 求人の説明文は不正検出の前に、応募のカバーレターは保存前にこれを通す。
type TextSanitizer interface {
	Sanitize(s string) string
}

// maxSanitizePasses は実体参照の多重エンコードを剥がす最大回数。
const maxSanitizePasses = 8

// autolinkPattern は <ion@firma.ro> や <https://...> のような山括弧で囲んだアドレス。
// HTMLパーサーはこれをタグとして扱い中身ごと捨てるため、除去前に括弧を外す。
var autolinkPattern = regexp.MustCompile(`<((?:mailto:)?[^\s<>@]+@[^\s<>]+|https?://[^\s<>]+)>`)

// textSanitizer はbluemondayのStrictPolicyを使うTextSanitizerの実装。
// タグはすべて除去し、エスケープされた実体参照は元の文字に戻す。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer は新しいTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグと制御文字を除去し、前後の空白を取り除いた文字列を返す。
// 改行とタブは保持する。実体参照で書かれたタグも除去対象とし、
// 出力に再適用しても結果は変わらない。
func (s *textSanitizer) Sanitize(in string) string {
	if in == "" {
		return ""
	}

	// 実体参照を戻してからタグを除去し、変化がなくなるまで繰り返す。
	// 固定点に達した出力にはbluemondayが除去するタグが残っていない。
	out := in
	for i := 0; i < maxSanitizePasses; i++ {
		next := s.strip(out)
		if next == out {
			break
		}
		out = next
	}
	if strings.ContainsRune(out, '<') && s.strip(out) != out {
		// 固定点に達しない入力は山括弧をすべて落とす
		out = strings.NewReplacer("<", "", ">", "").Replace(out)
	}
	return out
}

func (s *textSanitizer) strip(in string) string {
	text := autolinkPattern.ReplaceAllString(html.UnescapeString(in), "$1")
	out := html.UnescapeString(s.policy.Sanitize(text))
	out = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, out)
	return strings.TrimSpace(out)
}

var _ TextSanitizer = (*textSanitizer)(nil)
