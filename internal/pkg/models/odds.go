package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Arbitrage represents a surebet found across bookmakers for one market of one match.
type Arbitrage struct {
	ID            string    `json:"id"`
	MatchGroupKey string    `json:"match_group_key"`
	MatchName     string    `json:"match_name"`
	StartTime     time.Time `json:"start_time"`
	Sport         string    `json:"sport"`

	EventType string `json:"event_type"` // e.g. main_match, corners
	Market    string `json:"market"`     // e.g. 1x2, moneyline, total
	Parameter string `json:"parameter"`  // e.g. 2.5 for totals, empty for 1x2
	MarketKey string `json:"market_key"` // eventType|market|parameter

	ArbitrageIndex   float64         `json:"arbitrage_index"` // sum of 1/odd over legs
	ProfitPercent    float64         `json:"profit_percent"`  // (1/index - 1) * 100
	TotalStake       decimal.Decimal `json:"total_stake"`
	GuaranteedReturn decimal.Decimal `json:"guaranteed_return"`
	NetProfit        decimal.Decimal `json:"net_profit"`

	Bets    []Bet     `json:"bets"`
	FoundAt time.Time `json:"found_at"`
	Alerted bool      `json:"alerted"` // an alert went out for this record
}

// Bet represents one leg of an arbitrage.
type Bet struct {
	Bookmaker string          `json:"bookmaker"`
	Outcome   string          `json:"outcome"` // StandardOutcomeType
	Odd       float64         `json:"odd"`
	Stake     decimal.Decimal `json:"stake"`  // rounded stake for this leg
	Return    decimal.Decimal `json:"return"` // Odd * Stake
}

// Bookmakers returns the distinct bookmakers of the legs in leg order.
func (a *Arbitrage) Bookmakers() []string {
	seen := make(map[string]bool, len(a.Bets))
	var out []string
	for _, b := range a.Bets {
		if !seen[b.Bookmaker] {
			seen[b.Bookmaker] = true
			out = append(out, b.Bookmaker)
		}
	}
	return out
}

// IsLive reports whether the match has started but not more than maxAge ago.
func (a *Arbitrage) IsLive(now time.Time, maxAge time.Duration) bool {
	if a.StartTime.IsZero() {
		return false
	}
	started := !a.StartTime.After(now)
	return started && now.Sub(a.StartTime) <= maxAge
}

// IsUpcoming reports whether the match has not started yet. Unknown start
// times count as upcoming.
func (a *Arbitrage) IsUpcoming(now time.Time) bool {
	return a.StartTime.IsZero() || a.StartTime.After(now)
}
