package surebet

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const eps = 1e-9

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func equalAmounts(got []decimal.Decimal, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !got[i].Equal(dec(want[i])) {
			return false
		}
	}
	return true
}

func mustSurebet(t *testing.T, odds []float64, stake float64) Surebet {
	t.Helper()
	res, err := Compute(odds, stake)
	if err != nil {
		t.Fatalf("Compute(%v, %v) error: %v", odds, stake, err)
	}
	sb, ok := res.(Surebet)
	if !ok {
		t.Fatalf("Compute(%v, %v) = %T, want Surebet", odds, stake, res)
	}
	return sb
}

func TestCompute_TwoWaySurebet(t *testing.T) {
	sb := mustSurebet(t, []float64{2.10, 2.05}, 100000)

	if math.Abs(sb.Index-0.9639953542) > 1e-9 {
		t.Errorf("index = %v, want ~0.96400", sb.Index)
	}
	if math.Abs(sb.Probabilities[0]-0.476190476) > 1e-8 || math.Abs(sb.Probabilities[1]-0.487804878) > 1e-8 {
		t.Errorf("probabilities = %v", sb.Probabilities)
	}
	if !equalAmounts(sb.Stakes, "49398", "50602") {
		t.Errorf("stakes = %v, want [49398 50602]", sb.Stakes)
	}
	if math.Abs(sb.ProfitPercentage-3.7349397590) > 1e-6 {
		t.Errorf("profit percentage = %v, want ~3.735", sb.ProfitPercentage)
	}
	if !equalAmounts(sb.Returns, "103735.8", "103734.1") {
		t.Errorf("returns = %v", sb.Returns)
	}
	if !sb.GuaranteedReturn.Equal(sb.Returns[1]) {
		t.Errorf("guaranteed return = %v, want min of %v", sb.GuaranteedReturn, sb.Returns)
	}
	if !sb.NetProfit.Equal(dec("3734.1")) {
		t.Errorf("net profit = %v", sb.NetProfit)
	}
	if !sb.ReturnSpread.Equal(dec("1.7")) {
		t.Errorf("return spread = %v", sb.ReturnSpread)
	}
	if !sb.StakedTotal.Equal(dec("100000")) {
		t.Errorf("staked total = %v", sb.StakedTotal)
	}
}

func TestComputeWithUnit_CentsAreExact(t *testing.T) {
	res, err := ComputeWithUnit([]float64{2.10, 2.05}, 100000, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	sb := res.(Surebet)
	if !equalAmounts(sb.Stakes, "49397.59", "50602.41") {
		t.Errorf("stakes = %v, want [49397.59 50602.41]", sb.Stakes)
	}
	if !equalAmounts(sb.Returns, "103734.939", "103734.9405") {
		t.Errorf("returns = %v", sb.Returns)
	}
	if !sb.NetProfit.Equal(dec("3734.939")) {
		t.Errorf("net profit = %v", sb.NetProfit)
	}

	b, err := json.Marshal(sb)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`"stakes":[49397.59,50602.41]`,
		`"returns":[103734.939,103734.9405]`,
		`"rounding_unit":0.01`,
		`"net_profit":3734.939`,
	} {
		if !strings.Contains(string(b), want) {
			t.Errorf("JSON missing %s:\n%s", want, b)
		}
	}
}

func TestCompute_ThreeWaySurebet(t *testing.T) {
	sb := mustSurebet(t, []float64{2.5, 3.6, 4.2}, 100)

	if !equalAmounts(sb.Stakes, "44", "30", "26") {
		t.Errorf("stakes = %v, want [44 30 26]", sb.Stakes)
	}
	if math.Abs(sb.ProfitPercentage-9.1854419) > 1e-6 {
		t.Errorf("profit percentage = %v", sb.ProfitPercentage)
	}
	if !equalAmounts(sb.Returns, "110", "108", "109.2") {
		t.Errorf("returns = %v", sb.Returns)
	}
	if sb.ReturnSpread.IsNegative() {
		t.Errorf("negative spread %v", sb.ReturnSpread)
	}
}

func TestCompute_NoOpportunity(t *testing.T) {
	tests := []struct {
		name string
		odds []float64
		want float64
	}{
		{"break-even", []float64{2.0, 2.0}, 1.0},
		{"bookmaker margin", []float64{1.5, 1.5}, 4.0 / 3.0},
		{"odds below one", []float64{0.8, 5.0}, 1.45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(tt.odds, 100000)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			no, ok := res.(NoOpportunity)
			if !ok {
				t.Fatalf("got %T, want NoOpportunity", res)
			}
			if res.IsSurebet() {
				t.Error("IsSurebet() = true")
			}
			if math.Abs(no.Index-tt.want) > eps {
				t.Errorf("index = %v, want %v", no.Index, tt.want)
			}
			if no.Reason != NoOpportunityReason {
				t.Errorf("reason = %q", no.Reason)
			}
		})
	}
}

func TestCompute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		odds  []float64
		stake float64
		want  error
		index int
	}{
		{"zero odd", []float64{0, 2.0}, 100000, ErrInvalidOdd, 0},
		{"negative odd", []float64{2.0, -1.5}, 100000, ErrInvalidOdd, 1},
		{"NaN odd", []float64{2.0, math.NaN()}, 100000, ErrInvalidOdd, 1},
		{"infinite odd", []float64{math.Inf(1), 2.0}, 100000, ErrInvalidOdd, 0},
		{"single odd", []float64{2.0}, 100000, ErrInvalidOddsCount, -1},
		{"no odds", nil, 100000, ErrInvalidOddsCount, -1},
		{"zero stake", []float64{2.1, 2.05}, 0, ErrInvalidStake, -1},
		{"negative stake", []float64{2.1, 2.05}, -10, ErrInvalidStake, -1},
		{"NaN stake", []float64{2.1, 2.05}, math.NaN(), ErrInvalidStake, -1},
		{"count checked first", []float64{0}, 0, ErrInvalidOddsCount, -1},
		{"subnormal odd", []float64{1e-320, 2.0}, 100000, ErrInvalidOdd, 0},
		{"index overflows", []float64{2.0, 1e-308, 1e-308}, 100000, ErrInvalidOdd, 1},
		{"profit overflows", []float64{1e308, 1e308}, 100000, ErrInvalidOdd, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(tt.odds, tt.stake)
			if res != nil {
				t.Errorf("result = %v, want nil", res)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err %T is not *ValidationError", err)
			}
			if verr.Index != tt.index {
				t.Errorf("index = %d, want %d", verr.Index, tt.index)
			}
		})
	}
}

func TestImpliedProbabilities_RejectsZero(t *testing.T) {
	_, err := impliedProbabilities([]float64{2.0, 0})
	if !errors.Is(err, ErrInvalidOdd) {
		t.Fatalf("err = %v, want ErrInvalidOdd", err)
	}
}

func TestImpliedProbabilities_RejectsOverflow(t *testing.T) {
	_, err := impliedProbabilities([]float64{2.0, 1e-320})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Index != 1 {
		t.Fatalf("err = %v, want invalid odd at 1", err)
	}
}

func TestCompute_HugeOddsStayMarshalable(t *testing.T) {
	res, err := Compute([]float64{1e305, 1e305}, 100000)
	if err != nil {
		t.Fatal(err)
	}
	sb := res.(Surebet)
	if !sb.ReturnSpread.IsZero() {
		t.Errorf("return spread = %v, want 0", sb.ReturnSpread)
	}
	if _, err := json.Marshal(sb); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}

func TestAllocate_EqualPayoutBeforeRounding(t *testing.T) {
	cases := [][]float64{
		{2.10, 2.05},
		{2.5, 3.6, 4.2},
		{1.02, 60},
		{3.1, 3.3, 3.5, 28},
		{4.5, 4.5, 4.5, 4.5},
	}
	for _, odds := range cases {
		sb := mustSurebet(t, odds, 12345.67)
		want := sb.TheoreticalReturn()
		for i, raw := range sb.RawStakes {
			got := decimal.NewFromFloat(odds[i]).Mul(raw)
			if got.Sub(want).Abs().GreaterThan(dec("0.000001")) {
				t.Errorf("odds %v: payout[%d] = %v, want %v", odds, i, got, want)
			}
		}
	}
}

func TestAllocate_RoundingBound(t *testing.T) {
	units := []float64{1, 10, 0.01}
	oddsSets := [][]float64{
		{2.10, 2.05},
		{2.5, 3.6, 4.2},
		{3.1, 3.3, 3.5, 28},
		{5.1, 5.2, 5.3, 5.4, 5.5},
	}
	for _, unit := range units {
		for _, odds := range oddsSets {
			res, err := ComputeWithUnit(odds, 99999, unit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			sb := res.(Surebet)
			half := decimal.NewFromFloat(unit).Div(decimal.NewFromInt(2))
			bound := half.Mul(decimal.NewFromInt(int64(len(odds))))
			if diff := sb.StakedTotal.Sub(dec("99999")).Abs(); diff.GreaterThan(bound) {
				t.Errorf("unit %v odds %v: |sum-total| = %v > %v", unit, odds, diff, bound)
			}
			for i, st := range sb.Stakes {
				if st.Sub(sb.RawStakes[i]).Abs().GreaterThan(half) {
					t.Errorf("unit %v: stake %v too far from raw %v", unit, st, sb.RawStakes[i])
				}
				if !st.Mod(decimal.NewFromFloat(unit)).IsZero() {
					t.Errorf("unit %v: stake %v is not a multiple", unit, st)
				}
			}
		}
	}
}

func TestComputeWithUnit_BadUnitFallsBack(t *testing.T) {
	for _, unit := range []float64{0, -5, math.NaN()} {
		res, err := ComputeWithUnit([]float64{2.10, 2.05}, 100000, unit)
		if err != nil {
			t.Fatal(err)
		}
		if got := res.(Surebet).RoundingUnit; !got.Equal(decimal.NewFromFloat(DefaultRoundingUnit)) {
			t.Errorf("unit %v: rounding unit = %v", unit, got)
		}
	}
}

func TestRoundTo_HalfAwayFromZero(t *testing.T) {
	tests := []struct {
		v, unit, want string
	}{
		{"2.5", "1", "3"},
		{"3.5", "1", "4"},
		{"-2.5", "1", "-3"},
		{"2.4999", "1", "2"},
		{"15", "10", "20"},
		{"14.9", "10", "10"},
		{"0.125", "0.01", "0.13"},
		{"49397.59036144578", "0.01", "49397.59"},
	}
	for _, tt := range tests {
		if got := roundTo(dec(tt.v), dec(tt.unit)); !got.Equal(dec(tt.want)) {
			t.Errorf("roundTo(%v, %v) = %v, want %v", tt.v, tt.unit, got, tt.want)
		}
	}
}

func TestCompute_Idempotent(t *testing.T) {
	odds := []float64{2.5, 3.6, 4.2}
	a, errA := Compute(odds, 777)
	b, errB := Compute(odds, 777)
	if errA != nil || errB != nil {
		t.Fatalf("errors: %v, %v", errA, errB)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("results differ:\n%+v\n%+v", a, b)
	}
}

func TestCompute_DoesNotAliasInput(t *testing.T) {
	odds := []float64{2.10, 2.05}
	sb := mustSurebet(t, odds, 1000)
	odds[0] = 9
	if sb.Odds[0] != 2.10 {
		t.Errorf("result odds changed with input: %v", sb.Odds)
	}
}

func TestArbitrageIndex_Monotonic(t *testing.T) {
	base := []float64{2.10, 2.05, 30}
	s0 := arbitrageIndexOf(t, base)

	for i := range base {
		higher := append([]float64(nil), base...)
		higher[i] += 0.1
		if s := arbitrageIndexOf(t, higher); !(s < s0) {
			t.Errorf("raising odd %d: S %v -> %v, want decrease", i, s0, s)
		}

		lower := append([]float64(nil), base...)
		lower[i] -= 0.1
		if s := arbitrageIndexOf(t, lower); !(s > s0) {
			t.Errorf("lowering odd %d: S %v -> %v, want increase", i, s0, s)
		}
	}

	// A surebet stays a surebet when any odd improves.
	sure := []float64{2.10, 2.05}
	for i := range sure {
		better := append([]float64(nil), sure...)
		better[i] *= 1.5
		res, err := Compute(better, 100)
		if err != nil || !res.IsSurebet() {
			t.Errorf("improving odd %d lost the surebet: %v %v", i, res, err)
		}
	}
}

func arbitrageIndexOf(t *testing.T, odds []float64) float64 {
	t.Helper()
	res, err := Compute(odds, 100)
	if err != nil {
		t.Fatalf("Compute(%v): %v", odds, err)
	}
	return res.ArbitrageIndex()
}

func TestResult_JSONKinds(t *testing.T) {
	sure, _ := Compute([]float64{2.10, 2.05}, 100000)
	none, _ := Compute([]float64{1.5, 1.5}, 100000)

	var got map[string]any
	b, err := json.Marshal(sure)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["kind"] != "surebet" {
		t.Errorf("kind = %v", got["kind"])
	}
	if _, ok := got["stakes"]; !ok {
		t.Error("surebet JSON has no stakes")
	}

	b, err = json.Marshal(none)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "stakes") || strings.Contains(string(b), "profit") {
		t.Errorf("no-opportunity JSON leaks surebet fields: %s", b)
	}
	if !strings.Contains(string(b), `"kind":"no_opportunity"`) {
		t.Errorf("no-opportunity JSON = %s", b)
	}
}

func TestValidationError_Kind(t *testing.T) {
	_, err := Compute([]float64{2}, 1)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind() != "invalid_odds_count" {
		t.Errorf("kind for %v = %q", err, verr.Kind())
	}
	if !strings.Contains(err.Error(), "got 1") {
		t.Errorf("message = %q", err.Error())
	}
}
