package surebet

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// NoOpportunityReason is the message carried by every NoOpportunity result.
const NoOpportunityReason = "no arbitrage opportunity at these odds"

// Result is either NoOpportunity or Surebet. Use a type switch to read it.
type Result interface {
	// ArbitrageIndex is S, the sum of implied probabilities.
	ArbitrageIndex() float64
	IsSurebet() bool

	isResult()
}

// NoOpportunity is returned when S >= 1. Break-even (S == 1) lands here too.
type NoOpportunity struct {
	Index  float64
	Reason string
}

func (NoOpportunity) isResult()                 {}
func (r NoOpportunity) ArbitrageIndex() float64 { return r.Index }
func (NoOpportunity) IsSurebet() bool           { return false }

func (r NoOpportunity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind   string  `json:"kind"`
		Index  float64 `json:"arbitrage_index"`
		Reason string  `json:"reason"`
	}{
		Kind:   "no_opportunity",
		Index:  r.Index,
		Reason: r.Reason,
	})
}

// Surebet is returned when S < 1. All slices are indexed by outcome, in the
// order the odds were given. Money fields are exact decimals.
type Surebet struct {
	Index         float64
	Odds          []float64
	Probabilities []float64

	TotalStake   decimal.Decimal
	RoundingUnit decimal.Decimal
	RawStakes    []decimal.Decimal // TotalStake * p[i] / S, before rounding
	Stakes       []decimal.Decimal // RawStakes rounded to RoundingUnit
	StakedTotal  decimal.Decimal

	// Returns[i] is the payout if outcome i wins with the rounded stakes.
	Returns          []decimal.Decimal
	GuaranteedReturn decimal.Decimal // min(Returns)
	ReturnSpread     decimal.Decimal // max(Returns) - min(Returns)
	NetProfit        decimal.Decimal // GuaranteedReturn - TotalStake
	ProfitPercentage float64         // (1/S - 1) * 100, independent of rounding
}

func (Surebet) isResult()                 {}
func (r Surebet) ArbitrageIndex() float64 { return r.Index }
func (Surebet) IsSurebet() bool           { return true }

// TheoreticalReturn is TotalStake / S, the payout every outcome would yield
// with unrounded stakes.
func (r Surebet) TheoreticalReturn() decimal.Decimal {
	return r.TotalStake.Div(decimal.NewFromFloat(r.Index))
}

// MarshalJSON writes money as plain JSON numbers in exact decimal notation,
// so 49397.59 never shows up as 49397.590000000004.
func (r Surebet) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind             string        `json:"kind"`
		Index            float64       `json:"arbitrage_index"`
		Odds             []float64     `json:"odds"`
		Probabilities    []float64     `json:"probabilities"`
		TotalStake       json.Number   `json:"total_stake"`
		RoundingUnit     json.Number   `json:"rounding_unit"`
		RawStakes        []json.Number `json:"raw_stakes"`
		Stakes           []json.Number `json:"stakes"`
		StakedTotal      json.Number   `json:"staked_total"`
		Returns          []json.Number `json:"returns"`
		GuaranteedReturn json.Number   `json:"guaranteed_return"`
		ReturnSpread     json.Number   `json:"return_spread"`
		NetProfit        json.Number   `json:"net_profit"`
		ProfitPercentage float64       `json:"profit_percentage"`
	}{
		Kind:             "surebet",
		Index:            r.Index,
		Odds:             r.Odds,
		Probabilities:    r.Probabilities,
		TotalStake:       number(r.TotalStake),
		RoundingUnit:     number(r.RoundingUnit),
		RawStakes:        numbers(r.RawStakes),
		Stakes:           numbers(r.Stakes),
		StakedTotal:      number(r.StakedTotal),
		Returns:          numbers(r.Returns),
		GuaranteedReturn: number(r.GuaranteedReturn),
		ReturnSpread:     number(r.ReturnSpread),
		NetProfit:        number(r.NetProfit),
		ProfitPercentage: r.ProfitPercentage,
	})
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func numbers(ds []decimal.Decimal) []json.Number {
	out := make([]json.Number, len(ds))
	for i, d := range ds {
		out[i] = number(d)
	}
	return out
}
