package scheduler_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/hazz-dev/linkmon/internal/scheduler"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func counting(n *int) scheduler.Func {
	return func(ctx context.Context) error {
		*n++
		return nil
	}
}

func TestNewTask_Validation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	if _, err := scheduler.NewTask("zero", 0, noop, epoch); err == nil {
		t.Error("expected error for zero period")
	}
	if _, err := scheduler.NewTask("negative", -time.Second, noop, epoch); err == nil {
		t.Error("expected error for negative period")
	}
	if _, err := scheduler.NewTask("nil", time.Second, nil, epoch); err == nil {
		t.Error("expected error for nil callback")
	}
}

func TestTask_DueAtCreation(t *testing.T) {
	var calls int
	task, err := scheduler.NewTask("latency", 10*time.Second, counting(&calls), epoch)
	if err != nil {
		t.Fatal(err)
	}

	fired, missed, err := task.Fire(context.Background(), epoch)
	if err != nil || !fired || missed != 0 {
		t.Fatalf("expected clean fire at creation, got fired=%v missed=%d err=%v", fired, missed, err)
	}
	if !task.NextFire().Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("expected next fire at +10s, got %v", task.NextFire().Sub(epoch))
	}

	fired, _, _ = task.Fire(context.Background(), epoch.Add(9*time.Second))
	if fired {
		t.Error("task must not fire before its next period")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestTask_CatchUpAfterClockJump(t *testing.T) {
	var calls int
	task, err := scheduler.NewTask("latency", 10*time.Second, counting(&calls), epoch)
	if err != nil {
		t.Fatal(err)
	}

	now := epoch.Add(95 * time.Second)
	fired, missed, err := task.Fire(context.Background(), now)
	if err != nil || !fired {
		t.Fatalf("expected a fire after the jump, got fired=%v err=%v", fired, err)
	}
	if missed != 9 {
		t.Errorf("expected 9 missed periods, got %d", missed)
	}
	if calls != 1 {
		t.Errorf("expected exactly one callback, got %d", calls)
	}
	if want := epoch.Add(100 * time.Second); !task.NextFire().Equal(want) {
		t.Errorf("expected next fire at +100s, got +%v", task.NextFire().Sub(epoch))
	}

	// Same instant again: nothing left to do.
	if fired, _, _ := task.Fire(context.Background(), now); fired {
		t.Error("missed periods must not be replayed")
	}
	if task.MissedPeriods() != 9 {
		t.Errorf("expected 9 missed periods in total, got %d", task.MissedPeriods())
	}
}

func TestTask_ExactBoundary(t *testing.T) {
	task, _ := scheduler.NewTask("latency", 10*time.Second, func(context.Context) error { return nil }, epoch)
	task.Fire(context.Background(), epoch)

	// next == now is due; advancing by one period lands on now, which is
	// still not in the future.
	fired, missed, _ := task.Fire(context.Background(), epoch.Add(20*time.Second))
	if !fired {
		t.Fatal("expected fire at boundary")
	}
	if missed != 1 {
		t.Errorf("expected 1 missed period, got %d", missed)
	}
	if !task.NextFire().Equal(epoch.Add(30 * time.Second)) {
		t.Errorf("expected next fire at +30s, got +%v", task.NextFire().Sub(epoch))
	}
}

func TestTask_StaysOnPhase(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	period := 10 * time.Second
	task, _ := scheduler.NewTask("latency", period, func(context.Context) error { return nil }, epoch)

	now := epoch
	for i := 0; i < 500; i++ {
		now = now.Add(time.Duration(rng.Int63n(int64(5 * period))))
		task.Fire(context.Background(), now)

		next := task.NextFire()
		if (next.Sub(epoch) % period) != 0 {
			t.Fatalf("step %d: next fire %v drifted off phase", i, next.Sub(epoch))
		}
		if now.Before(next.Add(-period)) {
			t.Fatalf("step %d: next fire %v is more than one period past now %v", i, next.Sub(epoch), now.Sub(epoch))
		}
		if !next.After(now) {
			t.Fatalf("step %d: task still due right after firing", i)
		}
	}
}

func TestTask_CallbackErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	task, _ := scheduler.NewTask("bandwidth", time.Minute, func(context.Context) error { return boom }, epoch)

	_, _, err := task.Fire(context.Background(), epoch)
	var cbErr *scheduler.CallbackError
	if !errors.As(err, &cbErr) {
		t.Fatalf("expected CallbackError, got %T", err)
	}
	if cbErr.Task != "bandwidth" {
		t.Errorf("expected task name bandwidth, got %q", cbErr.Task)
	}
	if !errors.Is(err, boom) {
		t.Error("expected CallbackError to unwrap to the callback error")
	}
	if !task.NextFire().Equal(epoch.Add(time.Minute)) {
		t.Error("a failing callback must still advance the next fire time")
	}
}

func TestTask_PanicRecovered(t *testing.T) {
	task, _ := scheduler.NewTask("latency", time.Minute, func(context.Context) error { panic("nil map") }, epoch)

	_, _, err := task.Fire(context.Background(), epoch)
	var cbErr *scheduler.CallbackError
	if !errors.As(err, &cbErr) {
		t.Fatalf("expected CallbackError, got %v", err)
	}
	if cbErr.Panic != "nil map" {
		t.Errorf("expected recovered panic value, got %v", cbErr.Panic)
	}
	if len(cbErr.Stack) == 0 {
		t.Error("expected a stack trace")
	}
}
