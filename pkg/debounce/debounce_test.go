package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDebounce_CoalescesToLatestAction(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var fired atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		n := int32(i)
		s.Debounce("rebuild", 40*time.Millisecond, func() {
			fired.Add(1)
			last.Store(n)
		})
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool { return fired.Load() > 0 })
	time.Sleep(100 * time.Millisecond) // give earlier (wrong) timers a chance to misfire

	if got := fired.Load(); got != 1 {
		t.Errorf("fired %d times, want exactly 1", got)
	}
	if got := last.Load(); got != 5 {
		t.Errorf("latest action = %d, want 5", got)
	}
}

func TestDebounce_IndependentLabels(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var a, b atomic.Int32
	s.Debounce("a", 20*time.Millisecond, func() { a.Add(1) })
	s.Debounce("b", 20*time.Millisecond, func() { b.Add(1) })

	waitFor(t, time.Second, func() bool { return a.Load() == 1 && b.Load() == 1 })
}

func TestDebounce_Cancel(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var fired atomic.Int32
	s.Debounce("doomed", 30*time.Millisecond, func() { fired.Add(1) })
	s.Cancel("doomed")

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("cancelled debounce still fired")
	}
}

func TestDebounce_CancelPrefix(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var kept, swept atomic.Int32
	s.Debounce("@1:rebuild", 30*time.Millisecond, func() { swept.Add(1) })
	s.Debounce("@1:revert", 30*time.Millisecond, func() { swept.Add(1) })
	s.Debounce("@2:rebuild", 30*time.Millisecond, func() { kept.Add(1) })
	s.CancelPrefix("@1:")

	waitFor(t, time.Second, func() bool { return kept.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if swept.Load() != 0 {
		t.Errorf("swept labels fired %d times, want 0", swept.Load())
	}
}

func TestDebounce_PanicDoesNotCorruptLabel(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var fired atomic.Int32
	s.Debounce("flaky", 10*time.Millisecond, func() { panic("boom") })
	time.Sleep(60 * time.Millisecond)

	s.Debounce("flaky", 10*time.Millisecond, func() { fired.Add(1) })
	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
}

func TestRepeat_FiresPeriodically(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var ticks atomic.Int32
	s.Repeat("poll", 10*time.Millisecond, 20*time.Millisecond, func() { ticks.Add(1) })

	waitFor(t, time.Second, func() bool { return ticks.Load() >= 3 })
}

func TestRepeat_DuplicateNamesNotDeduped(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var ticks atomic.Int32
	s.Repeat("dup", 5*time.Millisecond, 500*time.Millisecond, func() { ticks.Add(1) })
	s.Repeat("dup", 5*time.Millisecond, 500*time.Millisecond, func() { ticks.Add(1) })

	// Both initial fires should land well before the first interval tick.
	waitFor(t, time.Second, func() bool { return ticks.Load() == 2 })
}

func TestStopRepeats(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var ticks atomic.Int32
	s.Repeat("poll", 5*time.Millisecond, 10*time.Millisecond, func() { ticks.Add(1) })
	waitFor(t, time.Second, func() bool { return ticks.Load() >= 1 })

	s.StopRepeats()
	settled := ticks.Load()
	time.Sleep(80 * time.Millisecond)
	// Allow one in-flight tick that was already queued when we stopped.
	if ticks.Load() > settled+1 {
		t.Errorf("ticks kept advancing after StopRepeats: %d -> %d", settled, ticks.Load())
	}
}

func TestPost_RunsOnSchedulerContext(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	done := make(chan struct{})
	s.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted task never ran")
	}
}

func TestStop_Idempotent(t *testing.T) {
	s := New(nil)
	s.Stop()
	s.Stop()
	// Calls after Stop must be safe no-ops.
	s.Post(func() {})
	s.Debounce("late", time.Millisecond, func() {})
	s.Repeat("late", time.Millisecond, time.Millisecond, func() {})
}
