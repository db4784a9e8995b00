package progression

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidStake is returned for stakes that are zero, negative, or not finite.
var ErrInvalidStake = errors.New("progression: stake must be positive")

// State is the betting-progression counter.
type State struct {
	BaseStake    decimal.Decimal `json:"baseStake"`
	CurrentStake decimal.Decimal `json:"currentStake"`
	LastWin      bool            `json:"lastWin"`
}

// NewState returns a state at its base stake, as after a win.
func NewState(base decimal.Decimal) (State, error) {
	if !base.IsPositive() {
		return State{}, fmt.Errorf("%w: base %s", ErrInvalidStake, base)
	}
	return State{BaseStake: base, CurrentStake: base, LastWin: true}, nil
}

// Reset returns s at its base stake with LastWin set.
func (s State) Reset() State {
	return State{BaseStake: s.BaseStake, CurrentStake: s.BaseStake, LastWin: true}
}

// Strategy computes the stake that follows a settled spin.
type Strategy interface {
	Name() string
	Next(s State, win bool) (decimal.Decimal, error)
}

// Martingale doubles after a loss and returns to base after a win.
type Martingale struct{}

var two = decimal.NewFromInt(2)

func (Martingale) Name() string { return "martingale" }

func (Martingale) Next(s State, win bool) (decimal.Decimal, error) {
	if win {
		return s.BaseStake, nil
	}
	return s.CurrentStake.Mul(two), nil
}

// Apply settles a spin against s using strategy.
func Apply(s State, win bool, strategy Strategy) (State, error) {
	next, err := strategy.Next(s, win)
	if err != nil {
		return s, err
	}
	if !next.IsPositive() {
		return s, fmt.Errorf("%w: %s returned %s", ErrInvalidStake, strategy.Name(), next)
	}
	return State{BaseStake: s.BaseStake, CurrentStake: next, LastWin: win}, nil
}
