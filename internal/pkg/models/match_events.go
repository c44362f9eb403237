package models

import "time"

// Match is one bookmaker's line for a fixture as served by the parser's
// /matches endpoint. The same fixture appears once per bookmaker.
type Match struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"` // "Home vs Away", used when team fields are empty
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	StartTime  time.Time `json:"start_time"`
	Sport      string    `json:"sport"`
	Tournament string    `json:"tournament,omitempty"`
	Bookmaker  string    `json:"bookmaker"`
	Events     []Event   `json:"events"`
}

// Event groups the outcomes of one event type (main match, corners, ...).
type Event struct {
	ID        string    `json:"id,omitempty"`
	EventType string    `json:"event_type"`
	Bookmaker string    `json:"bookmaker,omitempty"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Outcome is a single quoted price.
type Outcome struct {
	OutcomeType string  `json:"outcome_type"`
	Parameter   string  `json:"parameter"` // "2.5" for totals, empty otherwise
	Odds        float64 `json:"odds"`
	Bookmaker   string  `json:"bookmaker,omitempty"`
}

type StandardEventType string

// StandardEventMainMatch is assumed when a parser leaves event_type empty.
const StandardEventMainMatch StandardEventType = "main_match"

type StandardOutcomeType string

const (
	OutcomeTypeHomeWin StandardOutcomeType = "home_win"
	OutcomeTypeDraw    StandardOutcomeType = "draw"
	OutcomeTypeAwayWin StandardOutcomeType = "away_win"

	OutcomeTypeTotalOver  StandardOutcomeType = "total_over"
	OutcomeTypeTotalUnder StandardOutcomeType = "total_under"

	OutcomeTypeAltTotalOver  StandardOutcomeType = "alt_total_over"
	OutcomeTypeAltTotalUnder StandardOutcomeType = "alt_total_under"
)
