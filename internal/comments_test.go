package internal

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCommentPreview(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"short text untouched", "looks good", "looks good"},
		{"exactly at the cap", strings.Repeat("a", 80), strings.Repeat("a", 80)},
		{"ascii over the cap", strings.Repeat("a", 81), strings.Repeat("a", 80)},
		{"multibyte over the cap", strings.Repeat("日", 81), strings.Repeat("日", 80)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commentPreview(tt.text)
			if got != tt.want {
				t.Errorf("commentPreview() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("commentPreview() produced invalid UTF-8: %q", got)
			}
		})
	}
}
