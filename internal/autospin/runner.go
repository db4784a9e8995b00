// Package autospin runs a fixed number of spins at a fixed pace.
package autospin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MJE43/roulette-tracker-go/internal/session"
)

// Default run: five spins, two seconds apart.
const (
	DefaultCount    = 5
	DefaultInterval = 2 * time.Second
)

var (
	ErrAlreadyRunning = errors.New("autospin: a run is already in progress")
	ErrNotRunning     = errors.New("autospin: no run in progress")
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

// Spinner is the operation repeated by a run.
type Spinner interface {
	Spin(ctx context.Context) (session.SpinResult, error)
}

// Status is a snapshot of the current or last run.
type Status struct {
	ID         string              `json:"id,omitempty"`
	State      State               `json:"state"`
	Requested  int                 `json:"requested"`
	Completed  int                 `json:"completed"`
	IntervalMs int64               `json:"intervalMs"`
	Last       *session.SpinResult `json:"last,omitempty"`
	Error      string              `json:"error,omitempty"`
	StartedAt  *time.Time          `json:"startedAt,omitempty"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}

// Runner executes at most one run at a time.
type Runner struct {
	spinner Spinner
	logger  *zap.Logger

	mu     sync.RWMutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates an idle runner.
func NewRunner(spinner Spinner, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &Runner{
		spinner: spinner,
		logger:  logger.Named("autospin"),
		status:  Status{State: StateIdle},
		done:    done,
	}
}

// Start launches a run of count spins paced at interval. Each spin starts only
// after the previous spin and its onSpin callback have returned. onSpin may
// be nil.
func (r *Runner) Start(count int, interval time.Duration, onSpin func(session.SpinResult)) (Status, error) {
	if count <= 0 {
		return Status{}, fmt.Errorf("autospin: count must be positive, got %d", count)
	}
	if interval < 0 {
		return Status{}, fmt.Errorf("autospin: interval must not be negative, got %s", interval)
	}

	r.mu.Lock()
	if r.status.State == StateRunning {
		r.mu.Unlock()
		return Status{}, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	r.status = Status{
		ID:         uuid.NewString(),
		State:      StateRunning,
		Requested:  count,
		IntervalMs: interval.Milliseconds(),
		StartedAt:  &now,
	}
	r.cancel = cancel
	r.done = make(chan struct{})
	snap := r.status
	done := r.done
	r.mu.Unlock()

	r.logger.Info("autospin started",
		zap.String("run_id", snap.ID), zap.Int("count", count), zap.Duration("interval", interval))

	go r.loop(ctx, count, interval, onSpin, done)
	return snap, nil
}

// Stop cancels the current run. A spin in progress completes; spins already
// settled are kept.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State != StateRunning {
		return ErrNotRunning
	}
	r.cancel()
	return nil
}

// Done is closed when the current run finishes.
func (r *Runner) Done() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done
}

// Status returns the current snapshot.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) loop(ctx context.Context, count int, interval time.Duration, onSpin func(session.SpinResult), done chan struct{}) {
	defer close(done)

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i := 0; i < count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			r.finish(StateStopped, nil)
			return
		}
		if ctx.Err() != nil {
			r.finish(StateStopped, nil)
			return
		}

		// Stop only takes effect between spins; a spin in progress settles
		// and persists with a live context.
		res, err := r.spinner.Spin(context.WithoutCancel(ctx))
		if err != nil {
			r.finish(StateError, err)
			return
		}
		if onSpin != nil {
			onSpin(res)
		}

		r.mu.Lock()
		r.status.Completed++
		r.status.Last = &res
		r.mu.Unlock()
	}
	r.finish(StateCompleted, nil)
}

func (r *Runner) finish(state State, err error) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.status.State = state
	r.status.FinishedAt = &now
	if err != nil {
		r.status.Error = err.Error()
	}
	r.cancel()
	snap := r.status
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("run_id", snap.ID),
		zap.String("state", string(state)),
		zap.Int("completed", snap.Completed),
		zap.Int("requested", snap.Requested),
	}
	if err != nil {
		r.logger.Error("autospin failed", append(fields, zap.Error(err))...)
		return
	}
	r.logger.Info("autospin finished", fields...)
}
