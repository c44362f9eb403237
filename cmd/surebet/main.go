// Command surebet splits a total stake across the outcomes of one event so
// that every outcome pays the same, and reports the locked-in profit.
//
//	surebet -stake 100000 2.10 2.05
//	surebet -stake 100 -unit 5 -json 2.5 3.6 4.2
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/Vodeneev/surebet/internal/pkg/surebet"
)

const (
	exitOK    = 0
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("surebet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	stake := fs.Float64("stake", 0, "Total stake to split across outcomes (required)")
	unit := fs.Float64("unit", surebet.DefaultRoundingUnit, "Round each stake to a multiple of this")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: surebet -stake <total> [-unit <u>] [-json] <odd1> <odd2> [odd3 ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	odds := make([]float64, 0, fs.NArg())
	for _, a := range fs.Args() {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			fmt.Fprintf(stderr, "surebet: invalid odd %q\n", a)
			return exitUsage
		}
		odds = append(odds, v)
	}

	res, err := surebet.ComputeWithUnit(odds, *stake, *unit)
	if err != nil {
		var ve *surebet.ValidationError
		if errors.As(err, &ve) && ve.Kind() == "invalid_odds_count" {
			fs.Usage()
		}
		fmt.Fprintf(stderr, "surebet: %v\n", err)
		return exitUsage
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(stderr, "surebet: %v\n", err)
			return 1
		}
		return exitOK
	}

	printResult(stdout, res)
	return exitOK
}

func printResult(w io.Writer, res surebet.Result) {
	switch r := res.(type) {
	case surebet.NoOpportunity:
		fmt.Fprintf(w, "Arbitrage index: %.6f\n", r.Index)
		fmt.Fprintf(w, "No surebet: %s\n", r.Reason)
	case surebet.Surebet:
		fmt.Fprintf(w, "Arbitrage index: %.6f\n", r.Index)
		fmt.Fprintf(w, "Surebet: profit %.4f%% on %s\n\n", r.ProfitPercentage, r.TotalStake)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tODD\tSTAKE\tRETURN")
		for i := range r.Odds {
			fmt.Fprintf(tw, "%d\t%.2f\t%s\t%s\n", i+1, r.Odds[i], r.Stakes[i], r.Returns[i].StringFixed(2))
		}
		_ = tw.Flush()

		fmt.Fprintf(w, "\nStaked: %s\n", r.StakedTotal)
		fmt.Fprintf(w, "Guaranteed return: %s (spread %s)\n", r.GuaranteedReturn.StringFixed(2), r.ReturnSpread.StringFixed(2))
		fmt.Fprintf(w, "Net profit: %s\n", r.NetProfit.StringFixed(2))
	}
}
