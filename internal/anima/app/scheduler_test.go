package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bdobrica/Anima/internal/anima/sleep"
)

type countingSleeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSleeper) RunSleepCycle(context.Context) (sleep.Result, error) {
	c.calls.Add(1)
	return sleep.Result{Status: sleep.StatusNoop}, c.err
}

func TestScheduler_TicksUntilStopped(t *testing.T) {
	s := &countingSleeper{}
	sched := NewScheduler(s, 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		sched.Run(context.Background())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d ticks in 2s", s.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	sched.Stop()
	sched.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestScheduler_StopsOnContextAndSkipsBusyCycles(t *testing.T) {
	s := &countingSleeper{err: sleep.ErrRunning}
	sched := NewScheduler(s, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.calls.Load() == 0 {
		t.Error("scheduler never ticked")
	}
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	if got := NewScheduler(&countingSleeper{}, 0, nil).interval; got != time.Hour {
		t.Errorf("interval = %v, want 1h", got)
	}
}
