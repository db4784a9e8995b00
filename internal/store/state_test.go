package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/roulette-tracker-go/internal/stats"
	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

var one = decimal.NewFromInt(1)

// failingKV fails every operation on the keys listed in broken.
type failingKV struct {
	*MemoryKV
	broken map[string]bool
}

var errBroken = errors.New("disk on fire")

func (f *failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.broken[key] {
		return "", false, errBroken
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if f.broken[key] {
		return errBroken
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(NewMemoryKV(), one)

	in := Snapshot{
		History:      []wheel.Slot{wheel.DoubleZero, 5, 0, 36},
		Frequency:    stats.Frequency{"00": 1, "5": 2, "0": 1, "36": 4},
		Variant:      wheel.American,
		CurrentStake: decimal.RequireFromString("12.5"),
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(out.History, in.History) {
		t.Errorf("history = %v, want %v", out.History, in.History)
	}
	if !reflect.DeepEqual(out.Frequency, in.Frequency) {
		t.Errorf("frequency = %v, want %v", out.Frequency, in.Frequency)
	}
	if out.Variant != in.Variant {
		t.Errorf("variant = %v, want %v", out.Variant, in.Variant)
	}
	if !out.CurrentStake.Equal(in.CurrentStake) {
		t.Errorf("stake = %s, want %s", out.CurrentStake, in.CurrentStake)
	}
}

func TestStateStoreEncoding(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewStateStore(kv, one)
	err := s.Save(ctx, Snapshot{
		History:      []wheel.Slot{wheel.DoubleZero, 7},
		Frequency:    stats.Frequency{"7": 1},
		Variant:      wheel.American,
		CurrentStake: decimal.NewFromInt(4),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		KeyHistory:      `["00",7]`,
		KeyFrequency:    `{"7":1}`,
		KeyWheelVariant: "american",
		KeyCurrentStake: "4",
	}
	for k, v := range want {
		got, ok, _ := kv.Get(ctx, k)
		if !ok || got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestStateStoreLoadDefaults(t *testing.T) {
	s := NewStateStore(NewMemoryKV(), decimal.NewFromInt(3))
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load on empty store: %v", err)
	}
	if len(snap.History) != 0 || len(snap.Frequency) != 0 {
		t.Errorf("expected empty state, got %+v", snap)
	}
	if snap.Variant != wheel.European {
		t.Errorf("expected european default, got %s", snap.Variant)
	}
	if !snap.CurrentStake.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected base stake, got %s", snap.CurrentStake)
	}
}

func TestStateStoreLoadCorruptEntries(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	kv.Set(ctx, KeyHistory, `{not json`)
	kv.Set(ctx, KeyFrequency, `{"7": 2, "x": 4, "9": -1, "10": 1.5}`)
	kv.Set(ctx, KeyWheelVariant, `french`)
	kv.Set(ctx, KeyCurrentStake, `-8`)

	snap, err := NewStateStore(kv, one).Load(ctx)
	if err == nil {
		t.Fatal("expected load errors to be reported")
	}
	if snap.Variant != wheel.European {
		t.Errorf("expected european fallback, got %s", snap.Variant)
	}
	if len(snap.History) != 0 {
		t.Errorf("expected empty history, got %v", snap.History)
	}
	if !reflect.DeepEqual(snap.Frequency, stats.Frequency{"7": 2}) {
		t.Errorf("unexpected frequency %v", snap.Frequency)
	}
	if !snap.CurrentStake.Equal(one) {
		t.Errorf("expected base stake, got %s", snap.CurrentStake)
	}
}

func TestStateStoreLoadFiltersHistory(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	kv.Set(ctx, KeyWheelVariant, "european")
	kv.Set(ctx, KeyHistory, `["00", 1, 99, "x", "2", -1]`)

	snap, err := NewStateStore(kv, one).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// 00 is kept: history from an earlier American wheel survives a switch.
	if !reflect.DeepEqual(snap.History, []wheel.Slot{wheel.DoubleZero, 1, 2}) {
		t.Fatalf("unexpected history %v", snap.History)
	}
}

func TestStateStoreLoadWithVariant(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewStateStore(kv, one)

	snap, err := s.LoadWithVariant(ctx, wheel.American)
	if err != nil {
		t.Fatalf("LoadWithVariant: %v", err)
	}
	if snap.Variant != wheel.American {
		t.Errorf("expected fallback american, got %s", snap.Variant)
	}

	kv.Set(ctx, KeyWheelVariant, "european")
	snap, _ = s.LoadWithVariant(ctx, wheel.American)
	if snap.Variant != wheel.European {
		t.Errorf("stored variant must win over fallback, got %s", snap.Variant)
	}

	kv.Set(ctx, KeyWheelVariant, "french")
	snap, err = s.LoadWithVariant(ctx, wheel.American)
	if err == nil || snap.Variant != wheel.American {
		t.Errorf("expected fallback and error for bad variant, got %s, %v", snap.Variant, err)
	}
}

func TestStateStoreLoadTruncatesHistory(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewStateStore(kv, one)
	long := make([]wheel.Slot, 150)
	for i := range long {
		long[i] = wheel.Slot(i % 37)
	}
	if err := s.Save(ctx, Snapshot{History: long, Variant: wheel.European, CurrentStake: one}); err != nil {
		t.Fatal(err)
	}
	snap, _ := s.Load(ctx)
	if len(snap.History) != stats.HistoryLimit {
		t.Fatalf("expected %d entries, got %d", stats.HistoryLimit, len(snap.History))
	}
}

func TestStateStorePartialFailure(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{MemoryKV: NewMemoryKV(), broken: map[string]bool{KeyFrequency: true}}
	s := NewStateStore(kv, one)

	err := s.Save(ctx, Snapshot{
		History:      []wheel.Slot{3},
		Frequency:    stats.Frequency{"3": 1},
		Variant:      wheel.European,
		CurrentStake: decimal.NewFromInt(2),
	})
	if !errors.Is(err, errBroken) {
		t.Fatalf("expected broken write to surface, got %v", err)
	}

	snap, err := s.Load(ctx)
	if !errors.Is(err, errBroken) {
		t.Fatalf("expected broken read to surface, got %v", err)
	}
	// Entries written independently survive.
	if !reflect.DeepEqual(snap.History, []wheel.Slot{3}) {
		t.Errorf("unexpected history %v", snap.History)
	}
	if len(snap.Frequency) != 0 {
		t.Errorf("expected default frequency, got %v", snap.Frequency)
	}
	if !snap.CurrentStake.Equal(decimal.NewFromInt(2)) {
		t.Errorf("unexpected stake %s", snap.CurrentStake)
	}
}

func TestStateStoreClear(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewStateStore(kv, one)
	s.Save(ctx, Snapshot{History: []wheel.Slot{1}, Variant: wheel.American, CurrentStake: one})
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, k := range allKeys {
		if _, ok, _ := kv.Get(ctx, k); ok {
			t.Errorf("key %s survived Clear", k)
		}
	}
}
