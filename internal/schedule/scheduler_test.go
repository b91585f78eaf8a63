package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func soonTrigger(every time.Duration) TriggerFunc {
	return func() time.Time { return time.Now().Add(every) }
}

func TestActionsOfGroupFireTogether(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var a, b atomic.Int32
	s := New(discardLogger())
	s.Schedule("tick", soonTrigger(10*time.Millisecond), "a", func(context.Context) error {
		a.Add(1)
		return nil
	})
	s.Schedule("tick", soonTrigger(10*time.Millisecond), "b", func(context.Context) error {
		b.Add(1)
		return nil
	})
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for a.Load() == 0 || b.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("actions did not fire: a=%d b=%d", a.Load(), b.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRearmsBeforeActionCompletes(t *testing.T) {
	// A blocking action must not delay the next firing of its own group.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var fires atomic.Int32

	s := New(discardLogger())
	s.Schedule("tick", soonTrigger(15*time.Millisecond), "block", func(context.Context) error {
		if fires.Add(1) == 1 {
			<-release // first invocation hangs until released
		}
		return nil
	})
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for fires.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("second firing never happened while first was blocked (fires=%d)", fires.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(release)
}

func TestFailureDoesNotStopSiblingsOrLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var healthy atomic.Int32
	s := New(discardLogger())
	s.Schedule("tick", soonTrigger(10*time.Millisecond), "failing", func(context.Context) error {
		return errors.New("boom")
	})
	s.Schedule("tick", soonTrigger(10*time.Millisecond), "panicking", func(context.Context) error {
		panic("boom")
	})
	s.Schedule("tick", soonTrigger(10*time.Millisecond), "healthy", func(context.Context) error {
		healthy.Add(1)
		return nil
	})
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for healthy.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("healthy action starved by failing siblings (runs=%d)", healthy.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestGroupsAreIndependent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocked := make(chan struct{})
	var fast atomic.Int32

	s := New(discardLogger())
	s.Schedule("slow", soonTrigger(5*time.Millisecond), "hang", func(context.Context) error {
		<-blocked
		return nil
	})
	s.Schedule("fast", soonTrigger(10*time.Millisecond), "count", func(context.Context) error {
		fast.Add(1)
		return nil
	})
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for fast.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("fast group delayed by slow group (runs=%d)", fast.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(blocked)
}

func TestInFlightActionOutlivesCancel(t *testing.T) {
	// Cancelling the scheduler stops the timer loops but must not cancel
	// the context of an action that is already running.
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	sawErr := make(chan error, 1)

	s := New(discardLogger())
	s.Schedule("tick", soonTrigger(5*time.Millisecond), "work", func(actx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
			return nil // a later firing; ignore
		}
		<-ctx.Done() // wait out the shutdown
		select {
		case sawErr <- actx.Err():
		default:
		}
		return nil
	})
	s.Start(ctx)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("action never started")
	}
	cancel()

	select {
	case err := <-sawErr:
		if err != nil {
			t.Fatalf("in-flight action saw cancellation: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("action did not finish after cancel")
	}
}

func TestStopArmsNoNewTimers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	runs := 0
	s := New(discardLogger())
	s.Schedule("tick", soonTrigger(10*time.Millisecond), "count", func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})
	s.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	after := runs
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	final := runs
	mu.Unlock()
	// One in-flight firing may land right around cancellation; beyond that
	// the count must not grow.
	if final > after+1 {
		t.Fatalf("actions kept firing after cancel: %d -> %d", after, final)
	}
}
