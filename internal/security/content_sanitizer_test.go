package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestSanitizeText はHTMLが除去されプレーンテキストが残ることを検証する。
func TestSanitizeText(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"プレーンテキストはそのまま", "Parked near the station", "Parked near the station"},
		{"前後の空白を除去", "  traffic jam \n", "traffic jam"},
		{"scriptタグを除去", `<script>alert("xss")</script>Delivered`, "Delivered"},
		{"タグのみ除去し本文を残す", "<b>Heavy</b> rain", "Heavy rain"},
		{"イベント属性を除去", `<img src=x onerror="alert(1)">ok`, "ok"},
		{"エンティティを元に戻す", "Tom &amp; Jerry", "Tom & Jerry"},
		{"日本語", "<p>渋滞あり</p>", "渋滞あり"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_Idempotent は同一入力に対して同一出力を返し、再適用しても変化しないことを検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := `<div onclick="x()">Route <a href="javascript:alert(1)">A</a> &amp; B</div>`

	first := sanitizer.SanitizeText(input)
	second := sanitizer.SanitizeText(input)
	if first != second {
		t.Errorf("not deterministic: %q vs %q", first, second)
	}
	if strings.ContainsAny(first, "<>") {
		t.Errorf("tags remain: %q", first)
	}
}

// TestSanitizeText_Truncates は長すぎる入力が切り詰められることを検証する。
func TestSanitizeText_Truncates(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := strings.Repeat("あ", maxTextLength+100)

	got := sanitizer.SanitizeText(input)
	if n := utf8.RuneCountInString(got); n != maxTextLength {
		t.Errorf("length = %d, want %d", n, maxTextLength)
	}
}
