package internal

import (
	"strings"
	"testing"
	"time"
)

func TestHumanizeOverdue(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"under a minute", 30 * time.Second, "0 minute(s)"},
		{"minutes", 45 * time.Minute, "45 minute(s)"},
		{"just under an hour", 59 * time.Minute, "59 minute(s)"},
		{"exactly an hour", time.Hour, "1 hour(s)"},
		{"hours", 5 * time.Hour, "5 hour(s)"},
		{"just under a day", 23*time.Hour + 59*time.Minute, "23 hour(s)"},
		{"exactly a day", 24 * time.Hour, "1 day(s)"},
		{"days", 72 * time.Hour, "3 day(s)"},
		{"partial days round down", 24*time.Hour + 90*time.Minute, "1 day(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := humanizeOverdue(tt.d); got != tt.want {
				t.Errorf("humanizeOverdue(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestDigestMessage(t *testing.T) {
	t.Run("few items listed in full", func(t *testing.T) {
		msg := digestMessage([]string{"Oscilloscope", "Projector"})
		want := "2 overdue item(s) need attention: Oscilloscope, Projector"
		if msg != want {
			t.Errorf("digestMessage() = %q, want %q", msg, want)
		}
	})

	t.Run("truncates past five names", func(t *testing.T) {
		names := []string{"A", "B", "C", "D", "E", "F", "G"}
		msg := digestMessage(names)
		if !strings.HasPrefix(msg, "7 overdue item(s) need attention: A, B, C, D, E") {
			t.Errorf("Unexpected digest prefix: %q", msg)
		}
		if !strings.HasSuffix(msg, "...and 2 more") {
			t.Errorf("Expected truncation suffix, got %q", msg)
		}
		if strings.Contains(msg, "F") || strings.Contains(msg, "G") {
			t.Errorf("Truncated names should not appear: %q", msg)
		}
	})

	t.Run("exactly five names not truncated", func(t *testing.T) {
		msg := digestMessage([]string{"A", "B", "C", "D", "E"})
		if strings.Contains(msg, "more") {
			t.Errorf("Five names should not truncate: %q", msg)
		}
	})
}
