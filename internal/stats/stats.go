// Package stats derives descriptive statistics from spin history.
//
// Nothing here predicts anything: spins are independent, so "hot" and
// "cold" numbers and the prediction are plain frequency counts.
package stats

import (
	"errors"
	"math"
	"sort"

	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

const (
	// HistoryLimit is the number of most recent spins retained.
	HistoryLimit = 100
	// MinPredictionHistory is the history length required by Predict.
	MinPredictionHistory = 5
)

// ErrInsufficientData is returned by Predict when the history is too short.
var ErrInsufficientData = errors.New("stats: not enough spins")

// Frequency maps slot labels to draw counts.
type Frequency map[string]int

// Total returns the sum of all counts.
func (f Frequency) Total() int {
	total := 0
	for _, n := range f {
		total += n
	}
	return total
}

// Clone returns an independent copy.
func (f Frequency) Clone() Frequency {
	out := make(Frequency, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

type entry struct {
	slot  wheel.Slot
	count int
}

// HotNumbers returns up to n observed labels by descending count. Ties are
// ordered by wheel position.
func HotNumbers(freq Frequency, n int) []string {
	if n <= 0 {
		return []string{}
	}
	entries := make([]entry, 0, len(freq))
	for label, count := range freq {
		s, err := wheel.ParseSlot(label)
		if err != nil || count <= 0 {
			continue
		}
		entries = append(entries, entry{slot: s, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].slot.Order() < entries[j].slot.Order()
	})
	return labels(entries, n)
}

// ColdNumbers returns up to n labels of the variant's wheel by ascending
// count, so slots never drawn come first. Ties are ordered by wheel position.
func ColdNumbers(freq Frequency, v wheel.Variant, n int) []string {
	if n <= 0 {
		return []string{}
	}
	slots := wheel.Slots(v)
	entries := make([]entry, len(slots))
	for i, s := range slots {
		entries[i] = entry{slot: s, count: freq[s.Label()]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].count < entries[j].count
	})
	return labels(entries, n)
}

func labels(entries []entry, n int) []string {
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i].slot.Label()
	}
	return out
}

// Prediction is the hottest label and its share of the recorded history.
type Prediction struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Predict returns the hottest number and count / historyLen as a percentage
// rounded to one decimal. Counts accumulated beyond the retained history can
// exceed historyLen, so the percentage is clamped to 100.
func Predict(historyLen int, freq Frequency) (Prediction, error) {
	if historyLen < MinPredictionHistory {
		return Prediction{}, ErrInsufficientData
	}
	hot := HotNumbers(freq, 1)
	if len(hot) == 0 {
		return Prediction{}, ErrInsufficientData
	}
	count := freq[hot[0]]
	pct := math.Round(float64(count)/float64(historyLen)*1000) / 10
	if pct > 100 {
		pct = 100
	}
	return Prediction{Label: hot[0], Count: count, Percent: pct}, nil
}

// ColorCounts tallies pocket colours.
type ColorCounts struct {
	Red   int `json:"red"`
	Black int `json:"black"`
	Green int `json:"green"`
}

// Colors counts colours over history.
func Colors(history []wheel.Slot) ColorCounts {
	var c ColorCounts
	for _, s := range history {
		switch s.Color() {
		case wheel.Red:
			c.Red++
		case wheel.Black:
			c.Black++
		default:
			c.Green++
		}
	}
	return c
}
