// Package session owns the spin state of a single roulette table: the bounded
// history, the frequency table, the active wheel, and the betting counter.
//
// A Session has an explicit lifecycle (New, Restore, Spin/Reset/SetVariant,
// Close). Every operation is serialized, so callers on different goroutines
// observe spins strictly one at a time.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/roulette-tracker-go/internal/engine"
	"github.com/MJE43/roulette-tracker-go/internal/progression"
	"github.com/MJE43/roulette-tracker-go/internal/stats"
	"github.com/MJE43/roulette-tracker-go/internal/store"
	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

// Options configures a Session.
type Options struct {
	// Source draws wheel indexes. Required.
	Source engine.Source
	// Variant is the wheel used until a persisted one is restored. Empty
	// means European.
	Variant wheel.Variant
	// Store persists state. nil keeps state in memory only.
	Store *store.StateStore
	// Strategy computes stakes. nil means Martingale.
	Strategy  progression.Strategy
	BaseStake decimal.Decimal
	// WindowedFrequency makes the frequency table count only the retained
	// history. By default counts accumulate past history eviction.
	WindowedFrequency bool
	Logger            *zap.Logger
}

// SpinResult describes one settled spin.
type SpinResult struct {
	Slot    wheel.Slot        `json:"slot"`
	Label   string            `json:"label"`
	Color   wheel.Color       `json:"color"`
	Index   int               `json:"index"`
	Variant wheel.Variant     `json:"variant"`
	Win     bool              `json:"win"`
	Stake   decimal.Decimal   `json:"stake"`
	Betting progression.State `json:"betting"`
	SpunAt  time.Time         `json:"spunAt"`
}

// State is a point-in-time copy of the session.
type State struct {
	Variant   wheel.Variant     `json:"variant"`
	History   []wheel.Slot      `json:"history"`
	Frequency stats.Frequency   `json:"frequency"`
	Betting   progression.State `json:"betting"`
}

// Session is the spin state controller.
type Session struct {
	mu sync.Mutex

	source   engine.Source
	store    *store.StateStore
	strategy progression.Strategy
	windowed bool
	logger   *zap.Logger

	variant wheel.Variant
	history []wheel.Slot
	freq    stats.Frequency
	betting progression.State
}

// New creates an empty session. Call Restore to load persisted state.
func New(opts Options) (*Session, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("session: rng source is required")
	}
	variant := wheel.European
	if opts.Variant != "" {
		v, err := wheel.ParseVariant(string(opts.Variant))
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		variant = v
	}
	betting, err := progression.NewState(opts.BaseStake)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = progression.Martingale{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		source:   opts.Source,
		store:    opts.Store,
		strategy: strategy,
		windowed: opts.WindowedFrequency,
		logger:   logger.Named("session"),
		variant:  variant,
		history:  make([]wheel.Slot, 0, stats.HistoryLimit),
		freq:     stats.Frequency{},
		betting:  betting,
	}, nil
}

// Restore replaces the in-memory state with the persisted one. Unreadable
// entries are logged and replaced by defaults; Restore never fails. Without
// a stored variant the session keeps its configured wheel.
func (s *Session) Restore(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.LoadWithVariant(ctx, s.variant)
	if err != nil {
		s.logger.Warn("persisted state partially unreadable, using defaults", zap.Error(err))
	}
	s.variant = snap.Variant
	s.history = append(make([]wheel.Slot, 0, stats.HistoryLimit), snap.History...)
	s.freq = snap.Frequency
	if s.windowed {
		s.freq = windowFrequency(s.history)
	}
	// lastWin is not persisted; it follows the most recent spin.
	lastWin := true
	if len(s.history) > 0 {
		lastWin = s.history[0].IsRed()
	}
	s.betting = progression.State{
		BaseStake:    s.betting.BaseStake,
		CurrentStake: snap.CurrentStake,
		LastWin:      lastWin,
	}
	s.logger.Info("session restored",
		zap.String("variant", string(s.variant)),
		zap.Int("history", len(s.history)),
		zap.Int("total_spins", s.freq.Total()),
		zap.String("current_stake", s.betting.CurrentStake.String()))
}

// Spin draws one pocket and updates history, frequency, and betting state.
// An RNG failure aborts the spin and leaves the state untouched.
func (s *Session) Spin(ctx context.Context) (SpinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.source.DrawIndex(s.variant.Size())
	if err != nil {
		s.logger.Error("rng draw failed", zap.Error(err))
		return SpinResult{}, fmt.Errorf("spin: %w", err)
	}
	slot, err := wheel.At(s.variant, idx)
	if err != nil {
		return SpinResult{}, fmt.Errorf("spin: %w", err)
	}

	s.history = append(s.history, 0)
	copy(s.history[1:], s.history)
	s.history[0] = slot
	if len(s.history) > stats.HistoryLimit {
		evicted := s.history[stats.HistoryLimit:]
		if s.windowed {
			for _, e := range evicted {
				s.decrement(e.Label())
			}
		}
		s.history = s.history[:stats.HistoryLimit]
	}
	s.freq[slot.Label()]++

	stake := s.betting.CurrentStake
	win := slot.IsRed()
	next, err := progression.Apply(s.betting, win, s.strategy)
	if err != nil {
		s.logger.Warn("stake strategy failed, using martingale",
			zap.String("strategy", s.strategy.Name()), zap.Error(err))
		next, _ = progression.Apply(s.betting, win, progression.Martingale{})
	}
	s.betting = next

	s.persistLocked(ctx)

	return SpinResult{
		Slot:    slot,
		Label:   slot.Label(),
		Color:   slot.Color(),
		Index:   idx,
		Variant: s.variant,
		Win:     win,
		Stake:   stake,
		Betting: s.betting,
		SpunAt:  time.Now().UTC(),
	}, nil
}

// Reset clears history and frequency and returns the stake to base.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.persistLocked(ctx)
}

// SetVariant switches the wheel. With clear set, the state is reset as well.
// Without it, history and frequency are kept as they are, including any 00
// recorded on an American wheel, and persist that way.
func (s *Session) SetVariant(ctx context.Context, v wheel.Variant, clear bool) error {
	if _, err := wheel.ParseVariant(string(v)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variant = v
	if clear {
		s.resetLocked()
	}
	s.persistLocked(ctx)
	return nil
}

// Close persists the final state and closes the store.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	s.persistLocked(ctx)
	return s.store.KV().Close()
}

// Variant returns the active wheel.
func (s *Session) Variant() wheel.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant
}

// History returns the retained spins, most recent first.
func (s *Session) History() []wheel.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wheel.Slot{}, s.history...)
}

// Frequency returns a copy of the frequency table.
func (s *Session) Frequency() stats.Frequency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freq.Clone()
}

// BettingState returns the betting counter.
func (s *Session) BettingState() progression.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.betting
}

// HotNumbers returns up to n most frequent labels.
func (s *Session) HotNumbers(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stats.HotNumbers(s.freq, n)
}

// ColdNumbers returns up to n least frequent labels of the active wheel.
func (s *Session) ColdNumbers(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stats.ColdNumbers(s.freq, s.variant, n)
}

// PredictNext returns the hottest number and its share of the history, or
// stats.ErrInsufficientData. The figure is descriptive, not a forecast.
func (s *Session) PredictNext() (stats.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stats.Predict(len(s.history), s.freq)
}

// Colors counts pocket colours over the retained history.
func (s *Session) Colors() stats.ColorCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stats.Colors(s.history)
}

// Snapshot returns a copy of the whole state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Variant:   s.variant,
		History:   append([]wheel.Slot{}, s.history...),
		Frequency: s.freq.Clone(),
		Betting:   s.betting,
	}
}

func (s *Session) resetLocked() {
	s.history = s.history[:0]
	s.freq = stats.Frequency{}
	s.betting = s.betting.Reset()
}

func (s *Session) decrement(label string) {
	if s.freq[label] <= 1 {
		delete(s.freq, label)
		return
	}
	s.freq[label]--
}

// persistLocked saves state best-effort; failures are logged only.
func (s *Session) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	err := s.store.Save(ctx, store.Snapshot{
		History:      s.history,
		Frequency:    s.freq,
		Variant:      s.variant,
		CurrentStake: s.betting.CurrentStake,
	})
	if err != nil {
		s.logger.Warn("failed to persist state", zap.Error(err))
	}
}

func windowFrequency(history []wheel.Slot) stats.Frequency {
	freq := stats.Frequency{}
	for _, slot := range history {
		freq[slot.Label()]++
	}
	return freq
}
