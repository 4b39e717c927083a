package security

import (
	"strings"
	"testing"
)

func TestTextSanitizer_Clean(t *testing.T) {
	s := NewTextSanitizer(0)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "プレーンテキスト", input: "AK-47 | Redline", want: "AK-47 | Redline"},
		{name: "scriptタグ除去", input: `<script>alert(1)</script>bob`, want: "bob"},
		{name: "タグ除去でテキストは残る", input: `<b>StatTrak™</b> M4A4`, want: "StatTrak™ M4A4"},
		{name: "アンパサンドは保持", input: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "空白の正規化", input: "  a \t\n b  ", want: "a b"},
		{name: "制御文字除去", input: "a\x01b\x07c", want: "a b c"},
		{name: "空文字", input: "", want: ""},
		{name: "日本語", input: "ナイフ ★", want: "ナイフ ★"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Clean_Truncates(t *testing.T) {
	s := NewTextSanitizer(5)
	got := s.Clean("あいうえおかきくけこ")
	if got != "あいうえお" {
		t.Errorf("Clean = %q, want %q", got, "あいうえお")
	}
}

func TestTextSanitizer_Clean_Idempotent(t *testing.T) {
	s := NewTextSanitizer(64)
	inputs := []string{
		`<img src=x onerror=alert(1)>name`,
		"&lt;b&gt;escaped&lt;/b&gt;",
		"a & b < c",
	}
	for _, in := range inputs {
		once := s.Clean(in)
		twice := s.Clean(once)
		if strings.Contains(once, "<img") {
			t.Errorf("Clean(%q) left markup: %q", in, once)
		}
		if once != twice {
			t.Errorf("Clean is not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}
