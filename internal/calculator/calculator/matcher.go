package calculator

import (
	"math"
	"strings"
	"time"

	"github.com/Vodeneev/surebet/internal/pkg/models"
)

// startTimeBucket tolerates small kick-off differences between bookmakers.
const startTimeBucket = 30 * time.Minute

// matchGroupKey creates a unique key for grouping the same match quoted by
// different bookmakers. Format: "sport|home|away|start_time".
func matchGroupKey(m models.Match) string {
	home := normalizeTeam(m.HomeTeam)
	away := normalizeTeam(m.AwayTeam)
	if home == "" || away == "" {
		if h, a, ok := splitTeamsFromName(m.Name); ok {
			home = normalizeTeam(h)
			away = normalizeTeam(a)
		}
	}
	if home == "" || away == "" {
		return ""
	}

	sport := strings.ToLower(strings.TrimSpace(m.Sport))
	if sport == "" {
		sport = "unknown"
	}

	if m.StartTime.IsZero() {
		return sport + "|" + home + "|" + away
	}
	t := m.StartTime.UTC().Truncate(startTimeBucket)
	return sport + "|" + home + "|" + away + "|" + t.Format(time.RFC3339)
}

// matchDisplayName is "Home vs Away", falling back to the raw match name.
func matchDisplayName(m models.Match) string {
	home, away := strings.TrimSpace(m.HomeTeam), strings.TrimSpace(m.AwayTeam)
	if home != "" && away != "" {
		return home + " vs " + away
	}
	return strings.TrimSpace(m.Name)
}

// clubAffixes are stripped so "RC Hades", "Hades FC" and "Hades" group together.
var (
	clubPrefixes = []string{
		"r.c. ", "rc ", "k.s.k. ", "k.s. k. ", "ksk ", "f.c. ", "fc ", "f.k. ", "fk ",
		"c.f. ", "cf ", "s.c. ", "sc ", "s.s.c. ", "ssc ", "a.c. ", "ac ", "a.s. ", "as ",
		"u.d. ", "ud ", "c.d. ", "cd ", "n.k. ", "nk ", "b.c. ", "bc ", "bk ",
	}
	clubSuffixes = []string{" fc", " f.c.", " sc", " cf", " afc"}
)

func normalizeTeam(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if s == "" {
		return ""
	}
	for _, p := range clubPrefixes {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	for _, suf := range clubSuffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			s = strings.TrimSpace(s[:len(s)-len(suf)])
			break
		}
	}
	return s
}

var teamSeparators = []string{" vs ", " v ", " - ", " — ", " – "}

// splitTeamsFromName extracts home and away from "Home vs Away" style names.
func splitTeamsFromName(name string) (string, string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	for _, sep := range teamSeparators {
		parts := strings.Split(name, sep)
		if len(parts) != 2 {
			continue
		}
		home := strings.TrimSpace(parts[0])
		away := strings.TrimSpace(parts[1])
		if home == "" || away == "" {
			return "", "", false
		}
		return home, away, true
	}
	return "", "", false
}

// isUsableOdd filters out parser noise before odds reach the engine: an odd
// must be finite and pay more than the stake back.
func isUsableOdd(v float64) bool {
	return v > 1.000001 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// outcomeBookmaker resolves the bookmaker of an outcome, falling back to its
// event and then its match.
func outcomeBookmaker(m models.Match, ev models.Event, out models.Outcome) string {
	for _, bk := range []string{out.Bookmaker, ev.Bookmaker, m.Bookmaker} {
		if bk = strings.ToLower(strings.TrimSpace(bk)); bk != "" {
			return bk
		}
	}
	return ""
}
