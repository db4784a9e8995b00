package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/roulette-tracker-go/internal/engine"
	"github.com/MJE43/roulette-tracker-go/internal/progression"
	"github.com/MJE43/roulette-tracker-go/internal/stats"
	"github.com/MJE43/roulette-tracker-go/internal/store"
	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

// scriptedSource replays fixed indexes, cycling when exhausted.
type scriptedSource struct {
	indexes []int
	pos     int
	err     error
}

func (s *scriptedSource) DrawIndex(max int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	idx := s.indexes[s.pos%len(s.indexes)] % max
	s.pos++
	return idx, nil
}

type brokenKV struct{ *store.MemoryKV }

func (brokenKV) Set(context.Context, string, string) error { return errors.New("quota exceeded") }

var base = decimal.NewFromInt(1)

func newSession(t *testing.T, src engine.Source, st *store.StateStore) *Session {
	t.Helper()
	s, err := New(Options{Source: src, Store: st, BaseStake: base})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{BaseStake: base}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := New(Options{Source: engine.NewSecureSource(), BaseStake: decimal.Zero}); !errors.Is(err, progression.ErrInvalidStake) {
		t.Errorf("expected ErrInvalidStake, got %v", err)
	}
}

func TestSpinReturnsWheelSlot(t *testing.T) {
	ctx := context.Background()
	for _, v := range []wheel.Variant{wheel.European, wheel.American} {
		s := newSession(t, engine.NewSecureSource(), nil)
		if err := s.SetVariant(ctx, v, false); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 300; i++ {
			res, err := s.Spin(ctx)
			if err != nil {
				t.Fatalf("Spin: %v", err)
			}
			if !wheel.Contains(v, res.Slot) {
				t.Fatalf("%s spin returned %v", v, res.Slot)
			}
			if res.Label != res.Slot.Label() || res.Color != res.Slot.Color() {
				t.Fatalf("inconsistent result %+v", res)
			}
		}
	}
}

func TestHistoryBoundedMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	indexes := make([]int, 101)
	for i := range indexes {
		indexes[i] = i % 37
	}
	s := newSession(t, &scriptedSource{indexes: indexes}, nil)

	for i := 0; i < 100; i++ {
		if _, err := s.Spin(ctx); err != nil {
			t.Fatal(err)
		}
		if got := len(s.History()); got != i+1 {
			t.Fatalf("after %d spins history has %d entries", i+1, got)
		}
		// Frequency total matches history until truncation.
		if got := s.Frequency().Total(); got != i+1 {
			t.Fatalf("after %d spins frequency total is %d", i+1, got)
		}
	}
	first := s.History()[99]
	if first != wheel.Slot(0) {
		t.Fatalf("expected oldest entry 0, got %v", first)
	}

	if _, err := s.Spin(ctx); err != nil {
		t.Fatal(err)
	}
	h := s.History()
	if len(h) != stats.HistoryLimit {
		t.Fatalf("expected %d entries, got %d", stats.HistoryLimit, len(h))
	}
	// Spin #101 drew index 100 % 37 = 26; the oldest (spin #1, slot 0) is gone.
	if h[0] != wheel.Slot(26) {
		t.Fatalf("expected most recent 26, got %v", h[0])
	}
	if h[99] != wheel.Slot(1) {
		t.Fatalf("expected oldest retained spin #2 (slot 1), got %v", h[99])
	}
	for i := 0; i < len(h)-1; i++ {
		want := wheel.Slot((100 - i) % 37)
		if h[i] != want {
			t.Fatalf("history[%d] = %v, want %v", i, h[i], want)
		}
	}

	// Counts accumulate past eviction; history does not.
	if got := s.Frequency().Total(); got != 101 {
		t.Fatalf("expected accumulated frequency 101, got %d", got)
	}
}

func TestWindowedFrequencyTracksHistory(t *testing.T) {
	ctx := context.Background()
	s, err := New(Options{
		Source:            engine.NewSeededSource("server", "client", 0),
		BaseStake:         base,
		WindowedFrequency: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 250; i++ {
		if _, err := s.Spin(ctx); err != nil {
			t.Fatal(err)
		}
	}
	h := s.History()
	f := s.Frequency()
	if f.Total() != len(h) {
		t.Fatalf("windowed frequency total %d != history %d", f.Total(), len(h))
	}
	want := stats.Frequency{}
	for _, slot := range h {
		want[slot.Label()]++
	}
	if !reflect.DeepEqual(f, want) {
		t.Fatalf("windowed frequency %v, want %v", f, want)
	}
}

func TestColdNumbersFreshSession(t *testing.T) {
	s := newSession(t, engine.NewSecureSource(), nil)
	cold := s.ColdNumbers(8)
	if len(cold) != 8 {
		t.Fatalf("expected 8 cold numbers, got %v", cold)
	}
	freq := s.Frequency()
	for _, label := range cold {
		if freq[label] != 0 {
			t.Errorf("cold number %s has count %d", label, freq[label])
		}
	}
	if len(s.HotNumbers(8)) != 0 {
		t.Error("fresh session has no hot numbers")
	}
}

func TestBettingProgression(t *testing.T) {
	ctx := context.Background()
	// 2 black, 0 green, 37 -> 00 on american, 1 red
	s := newSession(t, &scriptedSource{indexes: []int{2, 0, 37, 1}}, nil)
	if err := s.SetVariant(ctx, wheel.American, false); err != nil {
		t.Fatal(err)
	}

	wantStakes := []int64{2, 4, 8, 1}
	wantWins := []bool{false, false, false, true}
	for i := range wantStakes {
		before := s.BettingState().CurrentStake
		res, err := s.Spin(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Stake.Equal(before) {
			t.Errorf("spin %d: reported stake %s, want pre-spin %s", i, res.Stake, before)
		}
		b := s.BettingState()
		if !b.CurrentStake.Equal(decimal.NewFromInt(wantStakes[i])) {
			t.Fatalf("spin %d (%s): stake %s, want %d", i, res.Label, b.CurrentStake, wantStakes[i])
		}
		if b.LastWin != wantWins[i] || res.Win != wantWins[i] {
			t.Fatalf("spin %d: lastWin %v, want %v", i, b.LastWin, wantWins[i])
		}
	}
	if !s.BettingState().CurrentStake.Equal(s.BettingState().BaseStake) {
		t.Fatal("red spin must reset stake to base")
	}
}

func TestPredictNext(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, &scriptedSource{indexes: []int{7, 7, 3, 7, 9}}, nil)
	for i := 0; i < 4; i++ {
		s.Spin(ctx)
	}
	if _, err := s.PredictNext(); !errors.Is(err, stats.ErrInsufficientData) {
		t.Fatalf("expected insufficient data after 4 spins, got %v", err)
	}
	s.Spin(ctx)
	p, err := s.PredictNext()
	if err != nil {
		t.Fatalf("PredictNext: %v", err)
	}
	if p.Label != "7" {
		t.Fatalf("expected 7, got %s", p.Label)
	}
	if p.Percent < 0 || p.Percent > 100 || p.Percent != 60 {
		t.Fatalf("unexpected percent %v", p.Percent)
	}
}

func TestResetIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	s := newSession(t, &scriptedSource{indexes: []int{2}}, store.NewStateStore(kv, base))
	for i := 0; i < 3; i++ {
		s.Spin(ctx)
	}
	for i := 0; i < 2; i++ {
		s.Reset(ctx)
		if len(s.History()) != 0 || len(s.Frequency()) != 0 {
			t.Fatal("reset left state behind")
		}
		b := s.BettingState()
		if !b.CurrentStake.Equal(b.BaseStake) || !b.LastWin {
			t.Fatalf("unexpected betting state after reset %+v", b)
		}
	}
	if v, _, _ := kv.Get(ctx, store.KeyHistory); v != "[]" {
		t.Errorf("reset not persisted, history = %q", v)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	src := &scriptedSource{indexes: []int{37, 4, 4, 18}}

	s := newSession(t, src, store.NewStateStore(kv, base))
	if err := s.SetVariant(ctx, wheel.American, false); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		s.Spin(ctx)
	}
	before := s.Snapshot()

	restored := newSession(t, engine.NewSecureSource(), store.NewStateStore(kv, base))
	restored.Restore(ctx)
	after := restored.Snapshot()

	if after.Variant != wheel.American {
		t.Errorf("variant = %s", after.Variant)
	}
	if !reflect.DeepEqual(after.History, before.History) {
		t.Errorf("history = %v, want %v", after.History, before.History)
	}
	if !reflect.DeepEqual(after.Frequency, before.Frequency) {
		t.Errorf("frequency = %v, want %v", after.Frequency, before.Frequency)
	}
	if !after.Betting.CurrentStake.Equal(before.Betting.CurrentStake) {
		t.Errorf("stake = %s, want %s", after.Betting.CurrentStake, before.Betting.CurrentStake)
	}
	if after.Betting.LastWin != before.Betting.LastWin {
		t.Errorf("lastWin = %v, want %v", after.Betting.LastWin, before.Betting.LastWin)
	}
}

func TestRestoreCorruptState(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	kv.Set(ctx, store.KeyHistory, "???")
	kv.Set(ctx, store.KeyWheelVariant, "triple-zero")
	kv.Set(ctx, store.KeyCurrentStake, "NaN")

	s := newSession(t, engine.NewSecureSource(), store.NewStateStore(kv, base))
	s.Restore(ctx)
	snap := s.Snapshot()
	if snap.Variant != wheel.European || len(snap.History) != 0 {
		t.Fatalf("expected defaults, got %+v", snap)
	}
	if !snap.Betting.CurrentStake.Equal(base) {
		t.Fatalf("expected base stake, got %s", snap.Betting.CurrentStake)
	}
}

func TestConfiguredVariant(t *testing.T) {
	ctx := context.Background()
	if _, err := New(Options{Source: engine.NewSecureSource(), BaseStake: base, Variant: "french"}); err == nil {
		t.Fatal("expected error for unknown variant")
	}

	kv := store.NewMemoryKV()
	s, err := New(Options{
		Source:    engine.NewSecureSource(),
		Store:     store.NewStateStore(kv, base),
		BaseStake: base,
		Variant:   wheel.American,
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Restore(ctx)
	if s.Variant() != wheel.American || len(s.ColdNumbers(100)) != 38 {
		t.Fatalf("empty store must keep configured wheel, got %s", s.Variant())
	}

	kv.Set(ctx, store.KeyWheelVariant, "european")
	s.Restore(ctx)
	if s.Variant() != wheel.European {
		t.Fatalf("stored variant must override configured wheel, got %s", s.Variant())
	}
}

func TestRoundTripAfterSwitchToEuropean(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	// American indexes: 5 then 37 (00); history is most recent first.
	s := newSession(t, &scriptedSource{indexes: []int{5, 37}}, store.NewStateStore(kv, base))
	if err := s.SetVariant(ctx, wheel.American, false); err != nil {
		t.Fatal(err)
	}
	s.Spin(ctx)
	s.Spin(ctx)
	if err := s.SetVariant(ctx, wheel.European, false); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()
	if !reflect.DeepEqual(before.History, []wheel.Slot{wheel.DoubleZero, 5}) {
		t.Fatalf("unexpected history before restart %v", before.History)
	}

	restored := newSession(t, engine.NewSecureSource(), store.NewStateStore(kv, base))
	restored.Restore(ctx)
	after := restored.Snapshot()
	if after.Variant != wheel.European {
		t.Errorf("variant = %s", after.Variant)
	}
	if !reflect.DeepEqual(after.History, before.History) {
		t.Errorf("history = %v, want %v", after.History, before.History)
	}
	if !reflect.DeepEqual(after.Frequency, before.Frequency) {
		t.Errorf("frequency = %v, want %v", after.Frequency, before.Frequency)
	}
}

func TestSpinRNGFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	src := &scriptedSource{indexes: []int{5}}
	s := newSession(t, src, nil)
	s.Spin(ctx)
	before := s.Snapshot()

	src.err = engine.ErrEntropyUnavailable
	if _, err := s.Spin(ctx); !errors.Is(err, engine.ErrEntropyUnavailable) {
		t.Fatalf("expected entropy error, got %v", err)
	}
	if !reflect.DeepEqual(s.Snapshot(), before) {
		t.Fatal("failed spin mutated state")
	}
}

func TestSpinSurvivesPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	kv := &brokenKV{MemoryKV: store.NewMemoryKV()}
	s := newSession(t, &scriptedSource{indexes: []int{1}}, store.NewStateStore(kv, base))
	if _, err := s.Spin(ctx); err != nil {
		t.Fatalf("persistence failure surfaced from Spin: %v", err)
	}
	s.Reset(ctx)
	if len(s.History()) != 0 {
		t.Fatal("reset did not apply in memory")
	}
}

func TestSetVariant(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, &scriptedSource{indexes: []int{3}}, nil)
	s.Spin(ctx)

	if err := s.SetVariant(ctx, "roulette-royale", false); err == nil {
		t.Fatal("expected error for unknown variant")
	}
	if err := s.SetVariant(ctx, wheel.American, false); err != nil {
		t.Fatal(err)
	}
	if len(s.History()) != 1 {
		t.Fatal("switch without clear must keep history")
	}
	if len(s.ColdNumbers(100)) != 38 {
		t.Fatal("cold numbers must cover the american wheel")
	}
	if err := s.SetVariant(ctx, wheel.European, true); err != nil {
		t.Fatal(err)
	}
	if len(s.History()) != 0 || s.Variant() != wheel.European {
		t.Fatal("switch with clear must reset")
	}
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "broken" }
func (failingStrategy) Next(progression.State, bool) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("boom")
}

func TestStrategyFailureFallsBackToMartingale(t *testing.T) {
	s, err := New(Options{
		Source:    &scriptedSource{indexes: []int{2}},
		BaseStake: base,
		Strategy:  failingStrategy{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Spin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.BettingState().CurrentStake.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected martingale fallback to double, got %s", s.BettingState().CurrentStake)
	}
}

func TestColors(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, &scriptedSource{indexes: []int{1, 2, 0}}, nil)
	for i := 0; i < 3; i++ {
		s.Spin(ctx)
	}
	if c := s.Colors(); c != (stats.ColorCounts{Red: 1, Black: 1, Green: 1}) {
		t.Fatalf("unexpected colours %+v", c)
	}
}

func TestCloseClosesStore(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	s := newSession(t, &scriptedSource{indexes: []int{1}}, store.NewStateStore(kv, base))
	s.Spin(ctx)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if v, ok, _ := kv.Get(ctx, store.KeyHistory); !ok || v != "[1]" {
		t.Fatalf("final state not persisted: %q", v)
	}
}
