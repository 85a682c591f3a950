// Package lifecycle runs the background sweep that ages out idle sessions
// and drives the graceful-shutdown transition of active sessions.
package lifecycle

import (
	"context"
	"sync"
	"time"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/logging"
)

// Store is the slice of the session store the scheduler drives
type Store interface {
	CleanupExpired(maxIdle time.Duration) (int, error)
	ShutdownAllActive() (int, error)
}

// Scheduler sweeps the session store at a fixed interval, transitioning
// active sessions idle longer than the configured window to timeout. The
// timer itself is never persisted: correctness across restarts rests on
// each session's lastActiveAt being durable, not on the sweep schedule.
type Scheduler struct {
	store    Store
	interval time.Duration
	maxIdle  time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewScheduler creates a scheduler sweeping every interval, timing out
// sessions idle longer than maxIdle.
func NewScheduler(store Store, interval, maxIdle time.Duration, logger *logging.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, lserrors.NewConfigurationError("lifecycle.sweep_interval_minutes", "sweep interval must be positive")
	}
	if maxIdle <= 0 {
		return nil, lserrors.NewConfigurationError("lifecycle.max_idle_minutes", "idle window must be positive")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Scheduler{
		store:    store,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logger,
	}, nil
}

// Start launches the sweep goroutine. It runs until Stop is called or ctx
// is cancelled, whichever comes first.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return lserrors.New("scheduler already stopped")
	}
	if s.cancel != nil {
		return lserrors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("lifecycle scheduler started",
		"interval", s.interval.String(), "max_idle", s.maxIdle.String())
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one cleanup pass and returns the number of sessions
// transitioned to timeout. Exposed so callers can force an off-schedule
// sweep.
func (s *Scheduler) Sweep() int {
	n, err := s.store.CleanupExpired(s.maxIdle)
	if err != nil {
		// The transitions stay in memory and dirty; the next persist or
		// the close flush writes them out.
		s.logger.Error("sweep persist failed", "count", n, "error", err)
	}
	if n > 0 {
		s.logger.Info("sweep timed out idle sessions", "count", n)
	}
	return n
}

// Stop halts the sweep and cancels every still-active session so the
// ledger never claims a session is active after a clean exit. It returns
// the number of sessions cancelled. Safe to call more than once.
func (s *Scheduler) Stop() (int, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, nil
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	n, err := s.store.ShutdownAllActive()
	if err != nil {
		s.logger.Error("shutdown persist failed", "cancelled", n, "error", err)
		return n, err
	}
	if n > 0 {
		s.logger.Info("active sessions cancelled on shutdown", "count", n)
	}
	return n, nil
}
