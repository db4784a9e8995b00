package progression

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/shopspring/decimal"
)

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 250 * time.Millisecond
)

// ScriptStrategy delegates the stake calculation to a user JavaScript
// function next(current, base, win) returning the next stake.
type ScriptStrategy struct {
	mu      sync.Mutex
	runtime *goja.Runtime
	next    goja.Callable
}

// NewScriptStrategy runs source once in a sandboxed runtime and binds next().
func NewScriptStrategy(source string) (*ScriptStrategy, error) {
	rt := goja.New()
	// Block dangerous globals.
	rt.Set("require", goja.Undefined())
	rt.Set("eval", goja.Undefined())
	rt.Set("Function", goja.Undefined())

	if err := runWithTimeout(rt, scriptInitTimeout, func() error {
		_, err := rt.RunString(source)
		return err
	}); err != nil {
		return nil, fmt.Errorf("script execution error: %w", err)
	}

	fn := rt.Get("next")
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return nil, fmt.Errorf("script must define a next() function")
	}
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("next is not a function")
	}
	return &ScriptStrategy{runtime: rt, next: callable}, nil
}

func (s *ScriptStrategy) Name() string { return "script" }

// Next implements Strategy.
func (s *ScriptStrategy) Next(st State, win bool) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, _ := st.CurrentStake.Float64()
	base, _ := st.BaseStake.Float64()

	var out goja.Value
	err := runWithTimeout(s.runtime, scriptCallTimeout, func() error {
		v, err := s.next(goja.Undefined(),
			s.runtime.ToValue(current),
			s.runtime.ToValue(base),
			s.runtime.ToValue(win))
		out = v
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("next() error: %w", err)
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return decimal.Zero, fmt.Errorf("%w: next() returned nothing", ErrInvalidStake)
	}
	f := out.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero, fmt.Errorf("%w: next() returned %v", ErrInvalidStake, out)
	}
	return decimal.NewFromFloat(f), nil
}

// runWithTimeout interrupts a runaway script after timeout.
func runWithTimeout(rt *goja.Runtime, timeout time.Duration, fn func() error) error {
	timer := time.AfterFunc(timeout, func() {
		rt.Interrupt("script execution timeout")
	})
	defer func() {
		timer.Stop()
		rt.ClearInterrupt()
	}()
	return fn()
}
