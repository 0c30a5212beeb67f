package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every due polling tick.
type TickFunc func(ctx context.Context, at time.Time) error

// WindowFunc reports whether an instant falls inside an active polling
// window (shortly before or after a known drawing time).
type WindowFunc func(at time.Time) bool

// Options tune scheduler behaviour. The active interval applies inside the
// polling window, the idle interval outside it.
type Options struct {
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	StartupDelay   time.Duration
}

// Scheduler drives the polling loop, tightening cadence around drawings.
// It wakes on active-interval boundaries so a window is entered promptly,
// but outside the window only idle-aligned wakeups fire the tick.
type Scheduler struct {
	opts   Options
	window WindowFunc
	logger zerolog.Logger

	mu      sync.Mutex
	nextRun time.Time
	running bool
}

// New constructs a Scheduler instance.
func New(opts Options, window WindowFunc, logger zerolog.Logger) *Scheduler {
	if opts.ActiveInterval <= 0 {
		panic("scheduler active interval must be positive")
	}
	if opts.IdleInterval < opts.ActiveInterval {
		opts.IdleInterval = opts.ActiveInterval
	}
	if window == nil {
		window = func(time.Time) bool { return true }
	}
	return &Scheduler{
		opts:   opts,
		window: window,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks, invoking the tick function on each due interval until ctx is
// cancelled. A tick that errors is logged; the loop carries on.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	s.setRunning(true)
	defer s.setRunning(false)

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := nextBoundary(time.Now().UTC(), s.opts.ActiveInterval)
	for {
		s.setNextRun(next)

		delay := time.Until(next)
		if delay < 0 {
			next = nextBoundary(time.Now().UTC(), s.opts.ActiveInterval)
			s.setNextRun(next)
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		if s.due(next) {
			s.logger.Info().Time("tick", next).Bool("active_window", s.window(next)).Msg("executing scheduled tick")
			if err := tick(ctx, next); err != nil {
				s.logger.Error().Err(err).Time("tick", next).Msg("tick execution failed")
			}
		} else {
			s.logger.Debug().Time("tick", next).Msg("idle wakeup, tick not due")
		}

		next = nextBoundary(time.Now().UTC(), s.opts.ActiveInterval)
	}
}

// due reports whether a wakeup should fire the tick: always inside the
// polling window, only on idle-aligned boundaries outside it.
func (s *Scheduler) due(at time.Time) bool {
	if s.window(at) {
		return true
	}
	return at.Truncate(s.opts.IdleInterval).Equal(at)
}

// Interval reports the cadence in force at the given instant.
func (s *Scheduler) Interval(at time.Time) time.Duration {
	if s.window(at) {
		return s.opts.ActiveInterval
	}
	return s.opts.IdleInterval
}

// NextRun reports the next scheduled wakeup, for the status surface.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Running reports whether the loop is live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func nextBoundary(now time.Time, interval time.Duration) time.Time {
	tick := now.Truncate(interval)
	if !tick.After(now) {
		tick = tick.Add(interval)
	}
	return tick
}
