package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/roulette-tracker-go/internal/stats"
	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

// Persisted keys. Each is written independently.
const (
	KeyHistory      = "history"
	KeyFrequency    = "frequency"
	KeyWheelVariant = "wheelVariant"
	KeyCurrentStake = "currentStake"
)

var allKeys = []string{KeyHistory, KeyFrequency, KeyWheelVariant, KeyCurrentStake}

// Snapshot is the persisted subset of a session.
type Snapshot struct {
	History      []wheel.Slot
	Frequency    stats.Frequency
	Variant      wheel.Variant
	CurrentStake decimal.Decimal
}

// StateStore maps a Snapshot onto a KV.
type StateStore struct {
	kv        KV
	baseStake decimal.Decimal
}

// NewStateStore returns a store whose missing stake defaults to baseStake.
func NewStateStore(kv KV, baseStake decimal.Decimal) *StateStore {
	return &StateStore{kv: kv, baseStake: baseStake}
}

// KV returns the underlying store.
func (s *StateStore) KV() KV { return s.kv }

// Save writes every entry. Writes are not transactional: a failure leaves
// earlier entries updated. All failures are joined in the returned error.
func (s *StateStore) Save(ctx context.Context, snap Snapshot) error {
	history := snap.History
	if history == nil {
		history = []wheel.Slot{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	freq := snap.Frequency
	if freq == nil {
		freq = stats.Frequency{}
	}
	freqJSON, err := json.Marshal(freq)
	if err != nil {
		return fmt.Errorf("encode frequency: %w", err)
	}

	entries := []struct{ key, value string }{
		{KeyHistory, string(historyJSON)},
		{KeyFrequency, string(freqJSON)},
		{KeyWheelVariant, string(snap.Variant)},
		{KeyCurrentStake, snap.CurrentStake.String()},
	}
	var errs []error
	for _, e := range entries {
		if err := s.kv.Set(ctx, e.key, e.value); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", e.key, err))
		}
	}
	return errors.Join(errs...)
}

// Load reads every entry independently. The returned Snapshot is always
// usable: absent or corrupt entries fall back to defaults (empty history and
// table, European wheel, base stake). err joins the problems found with
// present entries; absent entries are not errors.
func (s *StateStore) Load(ctx context.Context) (Snapshot, error) {
	return s.LoadWithVariant(ctx, wheel.European)
}

// LoadWithVariant is Load with fallback as the wheel used when no valid
// variant is stored.
func (s *StateStore) LoadWithVariant(ctx context.Context, fallback wheel.Variant) (Snapshot, error) {
	snap := Snapshot{
		History:      []wheel.Slot{},
		Frequency:    stats.Frequency{},
		Variant:      fallback,
		CurrentStake: s.baseStake,
	}
	var errs []error

	if raw, ok, err := s.kv.Get(ctx, KeyWheelVariant); err != nil {
		errs = append(errs, fmt.Errorf("load %s: %w", KeyWheelVariant, err))
	} else if ok {
		if v, err := wheel.ParseVariant(raw); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", KeyWheelVariant, err))
		} else {
			snap.Variant = v
		}
	}

	if raw, ok, err := s.kv.Get(ctx, KeyHistory); err != nil {
		errs = append(errs, fmt.Errorf("load %s: %w", KeyHistory, err))
	} else if ok {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", KeyHistory, err))
		} else {
			snap.History = sanitizeHistory(items)
		}
	}

	if raw, ok, err := s.kv.Get(ctx, KeyFrequency); err != nil {
		errs = append(errs, fmt.Errorf("load %s: %w", KeyFrequency, err))
	} else if ok {
		var freq map[string]float64
		if err := json.Unmarshal([]byte(raw), &freq); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", KeyFrequency, err))
		} else {
			snap.Frequency = sanitizeFrequency(freq)
		}
	}

	if raw, ok, err := s.kv.Get(ctx, KeyCurrentStake); err != nil {
		errs = append(errs, fmt.Errorf("load %s: %w", KeyCurrentStake, err))
	} else if ok {
		stake, err := decimal.NewFromString(raw)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("load %s: %w", KeyCurrentStake, err))
		case !stake.IsPositive():
			errs = append(errs, fmt.Errorf("load %s: stake %s is not positive", KeyCurrentStake, stake))
		default:
			snap.CurrentStake = stake
		}
	}

	return snap, errors.Join(errs...)
}

// Clear deletes every persisted entry.
func (s *StateStore) Clear(ctx context.Context) error {
	var errs []error
	for _, k := range allKeys {
		if err := s.kv.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// sanitizeHistory drops entries that are not pockets of any wheel and keeps
// at most stats.HistoryLimit entries. 00 survives on a European wheel: a
// switch without clear keeps it in memory, and Load must agree.
func sanitizeHistory(items []json.RawMessage) []wheel.Slot {
	out := make([]wheel.Slot, 0, len(items))
	for _, item := range items {
		var slot wheel.Slot
		if err := json.Unmarshal(item, &slot); err != nil || !slot.Valid() {
			continue
		}
		out = append(out, slot)
		if len(out) == stats.HistoryLimit {
			break
		}
	}
	return out
}

// sanitizeFrequency keeps positive whole counts for valid labels.
func sanitizeFrequency(freq map[string]float64) stats.Frequency {
	out := make(stats.Frequency, len(freq))
	for label, n := range freq {
		slot, err := wheel.ParseSlot(label)
		if err != nil || n <= 0 || n != math.Trunc(n) || n > math.MaxInt32 {
			continue
		}
		out[slot.Label()] += int(n)
	}
	return out
}
