package calculator

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Vodeneev/surebet/internal/pkg/models"
	"github.com/Vodeneev/surebet/internal/pkg/surebet"
)

// marketSpec is a set of mutually exclusive outcomes that together cover
// every result of a market.
type marketSpec struct {
	name          string
	outcomes      []models.StandardOutcomeType
	parameterized bool
}

var marketSpecs = []marketSpec{
	{
		name:     "1x2",
		outcomes: []models.StandardOutcomeType{models.OutcomeTypeHomeWin, models.OutcomeTypeDraw, models.OutcomeTypeAwayWin},
	},
	{
		// Only when no bookmaker quotes a draw, otherwise home/away do not cover every result.
		name:     "moneyline",
		outcomes: []models.StandardOutcomeType{models.OutcomeTypeHomeWin, models.OutcomeTypeAwayWin},
	},
	{
		name:          "total",
		outcomes:      []models.StandardOutcomeType{models.OutcomeTypeTotalOver, models.OutcomeTypeTotalUnder},
		parameterized: true,
	},
	{
		name:          "alt_total",
		outcomes:      []models.StandardOutcomeType{models.OutcomeTypeAltTotalOver, models.OutcomeTypeAltTotalUnder},
		parameterized: true,
	},
}

// scanOptions controls how surebets are searched and sized.
type scanOptions struct {
	totalStake       float64
	roundingUnit     float64
	minProfitPercent float64
	keepTop          int
}

// quote is the best odd of one bookmaker for one outcome.
type quote struct {
	bookmaker string
	odd       float64
}

// computeSurebets finds surebets across bookmakers in parsed matches.
// For every match, event type and parameter it takes the best odd per
// outcome across bookmakers and runs the legs through the surebet engine.
// Returns top surebets sorted by profit_percent descending.
func computeSurebets(matches []models.Match, opts scanOptions, now time.Time) []models.Arbitrage {
	if opts.keepTop <= 0 {
		opts.keepTop = 100
	}

	// matchGroupKey -> eventType|parameter -> outcomeType -> bookmaker -> odd
	type outcomeMap map[string]map[string]float64
	groups := map[string]map[string]outcomeMap{}

	type groupMeta struct {
		name      string
		startTime time.Time
		sport     string
	}
	meta := map[string]groupMeta{}

	for i := range matches {
		m := matches[i]
		gk := matchGroupKey(m)
		if gk == "" {
			continue
		}
		if _, ok := meta[gk]; !ok {
			meta[gk] = groupMeta{
				name:      matchDisplayName(m),
				startTime: m.StartTime,
				sport:     strings.ToLower(strings.TrimSpace(m.Sport)),
			}
			groups[gk] = map[string]outcomeMap{}
		}

		for _, ev := range m.Events {
			eventType := strings.TrimSpace(ev.EventType)
			if eventType == "" {
				eventType = string(models.StandardEventMainMatch)
			}
			for _, out := range ev.Outcomes {
				bk := outcomeBookmaker(m, ev, out)
				outcomeType := strings.TrimSpace(out.OutcomeType)
				if bk == "" || outcomeType == "" || !isUsableOdd(out.Odds) {
					continue
				}

				mk := eventType + "|" + strings.TrimSpace(out.Parameter)
				if _, ok := groups[gk][mk]; !ok {
					groups[gk][mk] = outcomeMap{}
				}
				if _, ok := groups[gk][mk][outcomeType]; !ok {
					groups[gk][mk][outcomeType] = map[string]float64{}
				}

				// Keep the best (max) odd per bookmaker+outcome.
				if prev, ok := groups[gk][mk][outcomeType][bk]; !ok || out.Odds > prev {
					groups[gk][mk][outcomeType][bk] = out.Odds
				}
			}
		}
	}

	var found []models.Arbitrage
	for gk, markets := range groups {
		gm := meta[gk]
		for mk, byOutcome := range markets {
			eventType, param, _ := strings.Cut(mk, "|")

			for _, spec := range marketSpecs {
				if spec.parameterized != (param != "") {
					continue
				}
				if spec.name == "moneyline" && len(byOutcome[string(models.OutcomeTypeDraw)]) > 0 {
					continue
				}

				legs, ok := bestQuotes(byOutcome, spec.outcomes)
				if !ok || distinctBookmakers(legs) < 2 {
					continue
				}

				odds := make([]float64, len(legs))
				for i, q := range legs {
					odds[i] = q.odd
				}
				res, err := surebet.ComputeWithUnit(odds, opts.totalStake, opts.roundingUnit)
				if err != nil {
					slog.Warn("Calculator: rejected legs", "match", gm.name, "market", spec.name, "error", err)
					continue
				}
				sb, ok := res.(surebet.Surebet)
				if !ok || sb.ProfitPercentage < opts.minProfitPercent {
					continue
				}

				arb := models.Arbitrage{
					ID:               uuid.NewString(),
					MatchGroupKey:    gk,
					MatchName:        gm.name,
					StartTime:        gm.startTime,
					Sport:            gm.sport,
					EventType:        eventType,
					Market:           spec.name,
					Parameter:        param,
					MarketKey:        eventType + "|" + spec.name + "|" + param,
					ArbitrageIndex:   sb.Index,
					ProfitPercent:    sb.ProfitPercentage,
					TotalStake:       sb.TotalStake,
					GuaranteedReturn: sb.GuaranteedReturn,
					NetProfit:        sb.NetProfit,
					FoundAt:          now,
				}
				for i, q := range legs {
					arb.Bets = append(arb.Bets, models.Bet{
						Bookmaker: q.bookmaker,
						Outcome:   string(spec.outcomes[i]),
						Odd:       q.odd,
						Stake:     sb.Stakes[i],
						Return:    sb.Returns[i],
					})
				}
				found = append(found, arb)
			}
		}
	}

	sortSurebets(found)
	if len(found) > opts.keepTop {
		found = found[:opts.keepTop]
	}
	return found
}

// bestQuotes picks the highest odd per outcome. Ties go to the
// alphabetically first bookmaker so scans are reproducible.
func bestQuotes(byOutcome map[string]map[string]float64, outcomes []models.StandardOutcomeType) ([]quote, bool) {
	legs := make([]quote, len(outcomes))
	for i, ot := range outcomes {
		byBook := byOutcome[string(ot)]
		if len(byBook) == 0 {
			return nil, false
		}
		best := quote{}
		for bk, odd := range byBook {
			if odd > best.odd || (odd == best.odd && bk < best.bookmaker) {
				best = quote{bookmaker: bk, odd: odd}
			}
		}
		legs[i] = best
	}
	return legs, true
}

func distinctBookmakers(legs []quote) int {
	seen := map[string]bool{}
	for _, q := range legs {
		seen[q.bookmaker] = true
	}
	return len(seen)
}

func sortSurebets(arbs []models.Arbitrage) {
	sort.Slice(arbs, func(i, j int) bool {
		if arbs[i].ProfitPercent != arbs[j].ProfitPercent {
			return arbs[i].ProfitPercent > arbs[j].ProfitPercent
		}
		if arbs[i].MatchGroupKey != arbs[j].MatchGroupKey {
			return arbs[i].MatchGroupKey < arbs[j].MatchGroupKey
		}
		return arbs[i].MarketKey < arbs[j].MarketKey
	})
}

// filterByStatus keeps "live" or "upcoming" surebets; any other status keeps all.
func filterByStatus(arbs []models.Arbitrage, status string, now time.Time, liveMaxAge time.Duration) []models.Arbitrage {
	if status != "live" && status != "upcoming" {
		return arbs
	}
	filtered := make([]models.Arbitrage, 0, len(arbs))
	for i := range arbs {
		a := &arbs[i]
		if (status == "live" && a.IsLive(now, liveMaxAge)) || (status == "upcoming" && a.IsUpcoming(now)) {
			filtered = append(filtered, *a)
		}
	}
	return filtered
}

// filterByProfit keeps surebets at or above minProfit percent.
func filterByProfit(arbs []models.Arbitrage, minProfit float64) []models.Arbitrage {
	if minProfit <= 0 {
		return arbs
	}
	filtered := make([]models.Arbitrage, 0, len(arbs))
	for _, a := range arbs {
		if a.ProfitPercent >= minProfit {
			filtered = append(filtered, a)
		}
	}
	return filtered
}
