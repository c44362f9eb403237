// Package surebet detects arbitrage between decimal odds quoted for the
// mutually exclusive outcomes of one event and splits a total stake so that
// the payout is the same whichever outcome wins.
//
// Odds, implied probabilities and the arbitrage index are float64. Money
// (stakes, returns, profit) is decimal.Decimal so rounded stakes and their
// payouts are exact.
//
// Everything here is a pure function of its arguments and safe for
// concurrent use.
package surebet

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultRoundingUnit rounds stakes to whole currency units.
const DefaultRoundingUnit = 1.0

// Compute runs the full pipeline with whole-unit stake rounding.
func Compute(odds []float64, totalStake float64) (Result, error) {
	return ComputeWithUnit(odds, totalStake, DefaultRoundingUnit)
}

// ComputeWithUnit is Compute with stakes rounded to the nearest multiple of
// unit (half away from zero). A non-positive or non-finite unit means 1.
func ComputeWithUnit(odds []float64, totalStake float64, unit float64) (Result, error) {
	if err := validate(odds, totalStake); err != nil {
		return nil, err
	}

	probs, err := impliedProbabilities(odds)
	if err != nil {
		return nil, err
	}

	s := arbitrageIndex(probs)
	if math.IsInf(s, 0) {
		i := extremeOdd(odds, false)
		return nil, &ValidationError{Err: ErrInvalidOdd, Index: i, Value: odds[i]}
	}
	if s >= 1 {
		return NoOpportunity{Index: s, Reason: NoOpportunityReason}, nil
	}

	profit := (1/s - 1) * 100
	if math.IsInf(profit, 0) || math.IsNaN(profit) {
		i := extremeOdd(odds, true)
		return nil, &ValidationError{Err: ErrInvalidOdd, Index: i, Value: odds[i]}
	}

	if unit <= 0 || math.IsNaN(unit) || math.IsInf(unit, 0) {
		unit = DefaultRoundingUnit
	}
	total := decimal.NewFromFloat(totalStake)
	unitDec := decimal.NewFromFloat(unit)
	raw, stakes := allocate(probs, s, total, unitDec)
	return report(odds, probs, s, profit, total, unitDec, raw, stakes), nil
}

func validate(odds []float64, totalStake float64) error {
	if len(odds) < 2 {
		return &ValidationError{Err: ErrInvalidOddsCount, Index: -1, Value: float64(len(odds))}
	}
	for i, o := range odds {
		if !(o > 0) || math.IsInf(o, 0) {
			return &ValidationError{Err: ErrInvalidOdd, Index: i, Value: o}
		}
	}
	if !(totalStake > 0) || math.IsInf(totalStake, 0) {
		return &ValidationError{Err: ErrInvalidStake, Index: -1, Value: totalStake}
	}
	return nil
}

// impliedProbabilities re-checks every odd so a caller bypassing validate
// can never get a silent zero or infinite probability. Subnormal odds such as
// 1e-320 pass validate but overflow 1/o.
func impliedProbabilities(odds []float64) ([]float64, error) {
	probs := make([]float64, len(odds))
	for i, o := range odds {
		if o == 0 {
			return nil, &ValidationError{Err: ErrInvalidOdd, Index: i, Value: o}
		}
		p := 1 / o
		if math.IsInf(p, 0) || math.IsNaN(p) || p == 0 {
			return nil, &ValidationError{Err: ErrInvalidOdd, Index: i, Value: o}
		}
		probs[i] = p
	}
	return probs, nil
}

func arbitrageIndex(probs []float64) float64 {
	var s float64
	for _, p := range probs {
		s += p
	}
	return s
}

// extremeOdd returns the index of the largest odd, or the smallest one when
// largest is false. Ties go to the first.
func extremeOdd(odds []float64, largest bool) int {
	best := 0
	for i, o := range odds {
		if (largest && o > odds[best]) || (!largest && o < odds[best]) {
			best = i
		}
	}
	return best
}

// allocate gives every outcome totalStake*p/s, so odds[i]*raw[i] == totalStake/s
// for all i. Each stake is rounded on its own; the sum may drift from
// totalStake by at most len(probs)*unit/2.
func allocate(probs []float64, s float64, total, unit decimal.Decimal) (raw, rounded []decimal.Decimal) {
	raw = make([]decimal.Decimal, len(probs))
	rounded = make([]decimal.Decimal, len(probs))
	for i, p := range probs {
		// p/s is in (0, 1] and finite, unlike p or 1/s on their own.
		raw[i] = total.Mul(decimal.NewFromFloat(p / s))
		rounded[i] = roundTo(raw[i], unit)
	}
	return raw, rounded
}

func roundTo(v, unit decimal.Decimal) decimal.Decimal {
	if unit.Equal(decimal.NewFromInt(1)) {
		return v.Round(0)
	}
	return v.Div(unit).Round(0).Mul(unit)
}

func report(odds, probs []float64, s, profit float64, total, unit decimal.Decimal, raw, stakes []decimal.Decimal) Surebet {
	returns := make([]decimal.Decimal, len(stakes))
	staked := decimal.Zero
	for i, st := range stakes {
		staked = staked.Add(st)
		returns[i] = decimal.NewFromFloat(odds[i]).Mul(st)
	}
	minReturn := decimal.Min(returns[0], returns[1:]...)
	maxReturn := decimal.Max(returns[0], returns[1:]...)

	return Surebet{
		Index:            s,
		Odds:             append([]float64(nil), odds...),
		Probabilities:    probs,
		TotalStake:       total,
		RoundingUnit:     unit,
		RawStakes:        raw,
		Stakes:           stakes,
		StakedTotal:      staked,
		Returns:          returns,
		GuaranteedReturn: minReturn,
		ReturnSpread:     maxReturn.Sub(minReturn),
		NetProfit:        minReturn.Sub(total),
		ProfitPercentage: profit,
	}
}
