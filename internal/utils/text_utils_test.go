package utils

import (
	"testing"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"
)

func TestTruncateText(t *testing.T) {
	tp := NewTextProcessor(zaptest.NewLogger(t))

	tests := []struct {
		name    string
		text    string
		maxSize int
		want    string
	}{
		{"no limit", "hello world", 0, "hello world"},
		{"within limit", "hello", 10, "hello"},
		{"cut", "hello world", 5, "hello"},
		{"multibyte boundary", "héllo", 2, "h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tp.TruncateText(tt.text, tt.maxSize); got != tt.want {
				t.Errorf("TruncateText(%q, %d) = %q, want %q", tt.text, tt.maxSize, got, tt.want)
			}
		})
	}
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zaptest.NewLogger(t))

	if got := tp.SanitizeUTF8("plain"); got != "plain" {
		t.Errorf("valid text changed: %q", got)
	}
	got := tp.SanitizeUTF8("ab\xffcd")
	if got != "abcd" || !utf8.ValidString(got) {
		t.Errorf("SanitizeUTF8 = %q", got)
	}
}

func TestProcessText(t *testing.T) {
	tp := NewTextProcessor(zaptest.NewLogger(t))
	if got := tp.ProcessText("\xffverify account", 6); got != "verify" {
		t.Errorf("ProcessText = %q", got)
	}
}
