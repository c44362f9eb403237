package models

import (
	"reflect"
	"testing"
	"time"
)

func TestArbitrage_Bookmakers(t *testing.T) {
	a := &Arbitrage{Bets: []Bet{
		{Bookmaker: "fonbet", Outcome: "home_win"},
		{Bookmaker: "pinnacle", Outcome: "draw"},
		{Bookmaker: "fonbet", Outcome: "away_win"},
	}}
	if got, want := a.Bookmakers(), []string{"fonbet", "pinnacle"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Bookmakers() = %v, want %v", got, want)
	}
}

func TestArbitrage_LiveAndUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		start    time.Time
		live     bool
		upcoming bool
	}{
		{"in an hour", now.Add(time.Hour), false, true},
		{"started 30 min ago", now.Add(-30 * time.Minute), true, false},
		{"starts right now", now, true, false},
		{"finished long ago", now.Add(-5 * time.Hour), false, false},
		{"unknown start", time.Time{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Arbitrage{StartTime: tt.start}
			if got := a.IsLive(now, 3*time.Hour); got != tt.live {
				t.Errorf("IsLive = %v, want %v", got, tt.live)
			}
			if got := a.IsUpcoming(now); got != tt.upcoming {
				t.Errorf("IsUpcoming = %v, want %v", got, tt.upcoming)
			}
		})
	}
}
