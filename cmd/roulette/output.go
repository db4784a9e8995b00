package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/MJE43/roulette-tracker-go/internal/progression"
	"github.com/MJE43/roulette-tracker-go/internal/session"
	"github.com/MJE43/roulette-tracker-go/internal/stats"
	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

type statsReport struct {
	Variant    wheel.Variant     `json:"variant"`
	Spins      int               `json:"spins"`
	Hot        []string          `json:"hot"`
	Cold       []string          `json:"cold"`
	Prediction *stats.Prediction `json:"prediction,omitempty"`
	Colors     stats.ColorCounts `json:"colors"`
	Betting    progression.State `json:"betting"`
}

func collectStats(s *session.Session, n int) statsReport {
	r := statsReport{
		Variant: s.Variant(),
		Spins:   len(s.History()),
		Hot:     s.HotNumbers(n),
		Cold:    s.ColdNumbers(n),
		Colors:  s.Colors(),
		Betting: s.BettingState(),
	}
	// ErrInsufficientData is the only error PredictNext returns.
	if p, err := s.PredictNext(); err == nil {
		r.Prediction = &p
	}
	return r
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSpin(out io.Writer, res session.SpinResult) {
	outcome := "loss"
	if res.Win {
		outcome = "win"
	}
	fmt.Fprintf(out, "%3s %-5s  %-4s  stake %s -> %s\n",
		res.Label, res.Color, outcome, res.Stake, res.Betting.CurrentStake)
}

func printStats(out io.Writer, r statsReport) {
	fmt.Fprintf(out, "wheel:      %s\n", r.Variant)
	fmt.Fprintf(out, "spins:      %d\n", r.Spins)
	fmt.Fprintf(out, "hot:        %s\n", joinOrDash(r.Hot))
	fmt.Fprintf(out, "cold:       %s\n", joinOrDash(r.Cold))
	if r.Prediction != nil {
		fmt.Fprintf(out, "prediction: %s (%.1f%%)\n", r.Prediction.Label, r.Prediction.Percent)
	} else {
		fmt.Fprintf(out, "prediction: need %d spins\n", stats.MinPredictionHistory)
	}
	fmt.Fprintf(out, "colours:    red %d  black %d  green %d\n", r.Colors.Red, r.Colors.Black, r.Colors.Green)
	fmt.Fprintf(out, "stake:      %s (base %s, last %s)\n",
		r.Betting.CurrentStake, r.Betting.BaseStake, lastOutcome(r.Betting.LastWin))
}

func printHistory(out io.Writer, history []wheel.Slot) {
	if len(history) == 0 {
		fmt.Fprintln(out, "no spins yet")
		return
	}
	for i, s := range history {
		fmt.Fprintf(out, "%3d  %3s %s\n", i+1, s.Label(), s.Color())
	}
}

func joinOrDash(labels []string) string {
	if len(labels) == 0 {
		return "-"
	}
	return strings.Join(labels, " ")
}

func lastOutcome(win bool) string {
	if win {
		return "win"
	}
	return "loss"
}
