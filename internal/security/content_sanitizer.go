// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はドライバーや管理者が入力する自由記述（走行メモ、審査メモなど）から
// HTMLを取り除き、プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyを使用し、すべてのタグと属性を除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxTextLength はサニタイズ後に保持する最大文字数。
const maxTextLength = 2000

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// SanitizeText はHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は除去し、maxTextLength文字を超える部分は切り捨てる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyがエスケープした文字は元に戻す。出力時のエスケープはテンプレートが行う。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > maxTextLength {
		text = strings.TrimSpace(string(runes[:maxTextLength]))
	}
	return text
}
