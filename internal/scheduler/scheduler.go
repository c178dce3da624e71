// Package scheduler runs periodic tasks one after another on a coarse tick.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultTick     = time.Second
	DefaultCooldown = 10 * time.Second
)

// ErrRunning is returned when tasks are added after Run has started.
var ErrRunning = errors.New("scheduler already running")

// Clock tells the scheduler what time it is.
type Clock interface {
	Now() time.Time
}

// wallClock reads the wall clock without its monotonic component, so time
// spent in system sleep shows up as missed periods.
type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().Round(0) }

// Observer is notified about task executions.
type Observer interface {
	TaskFired(task string, missed int, took time.Duration)
	TaskFailed(task string)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(c Clock) Option            { return func(s *Scheduler) { s.clock = c } }
func WithTick(d time.Duration) Option     { return func(s *Scheduler) { s.tick = d } }
func WithCooldown(d time.Duration) Option { return func(s *Scheduler) { s.cooldown = d } }
func WithObserver(o Observer) Option      { return func(s *Scheduler) { s.observer = o } }

// Scheduler owns a fixed set of tasks and fires them sequentially in
// registration order. No two callbacks ever run at the same time.
type Scheduler struct {
	tasks    []*Task
	clock    Clock
	tick     time.Duration
	cooldown time.Duration
	observer Observer
	logger   *slog.Logger
	running  atomic.Bool
}

// New creates a new Scheduler. Pass nil logger to use the default logger.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		clock:    wallClock{},
		tick:     DefaultTick,
		cooldown: DefaultCooldown,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task that first fires on the next tick. Tasks can only be
// added before Run.
func (s *Scheduler) Add(name string, period time.Duration, fn Func) (*Task, error) {
	if s.running.Load() {
		return nil, ErrRunning
	}
	t, err := NewTask(name, period, fn, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.tasks = append(s.tasks, t)
	return t, nil
}

// Tasks returns the registered tasks in registration order.
func (s *Scheduler) Tasks() []*Task {
	out := make([]*Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Tick fires every due task once and returns how many callbacks failed.
// A failing callback is logged and does not stop the remaining tasks.
// Cancelling ctx skips the tasks not yet visited.
func (s *Scheduler) Tick(ctx context.Context) int {
	failures := 0
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		fired, missed, err := t.Fire(ctx, s.clock.Now())
		if !fired {
			continue
		}
		if missed > 0 {
			s.logger.Info("missed periods", "task", t.Name(), "missed_periods", missed)
		}
		if s.observer != nil {
			s.observer.TaskFired(t.Name(), missed, time.Since(start))
		}
		if err != nil {
			failures++
			if s.observer != nil {
				s.observer.TaskFailed(t.Name())
			}
			s.logCallbackError(t, err)
		}
	}
	return failures
}

func (s *Scheduler) logCallbackError(t *Task, err error) {
	attrs := []any{"task", t.Name(), "next_fire", t.NextFire(), "error", err}
	var cbErr *CallbackError
	if errors.As(err, &cbErr) && cbErr.Panic != nil {
		attrs = append(attrs, "stack", string(cbErr.Stack))
	}
	s.logger.Error("task callback failed", attrs...)
}

// Run ticks until ctx is cancelled. After a tick with failures it pauses for
// the cooldown before ticking again.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)

	s.logger.Info("scheduler started", "tasks", len(s.tasks), "tick", s.tick)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if s.Tick(ctx) > 0 {
			s.logger.Warn("pausing after callback failure", "cooldown", s.cooldown)
			if !sleep(ctx, s.cooldown) {
				break
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}

	s.logger.Info("scheduler stopped")
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
