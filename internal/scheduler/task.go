package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Func is a task callback.
type Func func(ctx context.Context) error

// CallbackError wraps a failure raised by a task callback, either a returned
// error or a recovered panic.
type CallbackError struct {
	Task  string
	Err   error
	Panic any
	Stack []byte
}

func (e *CallbackError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("task %q panicked: %v", e.Task, e.Panic)
	}
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Task fires a callback once per period. Its next fire time stays aligned
// with the phase it was created at: after a stall longer than one period the
// skipped periods are counted and jumped over, never replayed.
type Task struct {
	name   string
	period time.Duration
	fn     Func

	next   time.Time
	fires  int64
	missed int64
}

// NewTask creates a task that is due at now.
func NewTask(name string, period time.Duration, fn Func, now time.Time) (*Task, error) {
	if period <= 0 {
		return nil, fmt.Errorf("task %q: period must be positive, got %v", name, period)
	}
	if fn == nil {
		return nil, fmt.Errorf("task %q: callback is required", name)
	}
	return &Task{name: name, period: period, fn: fn, next: now}, nil
}

func (t *Task) Name() string           { return t.name }
func (t *Task) Period() time.Duration  { return t.period }
func (t *Task) NextFire() time.Time    { return t.next }
func (t *Task) Fires() int64           { return t.fires }
func (t *Task) MissedPeriods() int64   { return t.missed }
func (t *Task) Due(now time.Time) bool { return !now.Before(t.next) }

// Expired reports whether the task is due at now. When it is, the next fire
// time is advanced past now and missed is the number of whole periods that
// were skipped on the way.
func (t *Task) Expired(now time.Time) (due bool, missed int) {
	if !t.Due(now) {
		return false, 0
	}
	missed = t.advance(now)
	t.missed += int64(missed)
	return true, missed
}

func (t *Task) advance(now time.Time) int {
	t.next = t.next.Add(t.period)
	if t.next.After(now) {
		return 0
	}
	missed := int(now.Sub(t.next)/t.period) + 1
	t.next = t.next.Add(time.Duration(missed) * t.period)
	return missed
}

// Fire checks the task against now and runs the callback at most once. The
// next fire time is advanced before the callback runs, so a failing callback
// does not fire again until its next period.
func (t *Task) Fire(ctx context.Context, now time.Time) (fired bool, missed int, err error) {
	due, missed := t.Expired(now)
	if !due {
		return false, 0, nil
	}
	t.fires++
	return true, missed, t.call(ctx)
}

func (t *Task) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackError{Task: t.name, Panic: r, Stack: debug.Stack()}
		}
	}()
	if cbErr := t.fn(ctx); cbErr != nil {
		return &CallbackError{Task: t.name, Err: cbErr}
	}
	return nil
}
