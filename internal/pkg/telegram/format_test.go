package telegram

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEscapeMarkdown(t *testing.T) {
	got := EscapeMarkdown("Surebet +3.73% (fonbet) [x] a_b!")
	want := `Surebet \+3\.73% \(fonbet\) \[x\] a\_b\!`
	if got != want {
		t.Errorf("EscapeMarkdown = %q, want %q", got, want)
	}
}

func TestFormatLabel(t *testing.T) {
	tests := map[string]string{
		"main_match": "Main Match",
		"home_win":   "Home Win",
		"1x2":        "1x2",
		"":           "",
	}
	for in, want := range tests {
		if got := FormatLabel(in); got != want {
			t.Errorf("FormatLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "N/A" {
		t.Errorf("zero time = %q", got)
	}
	msk := time.FixedZone("MSK", 3*3600)
	if got := FormatTime(time.Date(2026, 3, 1, 21, 30, 0, 0, msk)); got != "2026-03-01 18:30 UTC" {
		t.Errorf("got %q", got)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"49398", "49398"},
		{"49398.00", "49398"},
		{"103735.8", "103735.80"},
		{"103734.9405", "103734.94"},
		{"49397.59", "49397.59"},
		{"-3.5", "-3.50"},
	}
	for _, tt := range tests {
		if got := FormatAmount(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatAmount(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
