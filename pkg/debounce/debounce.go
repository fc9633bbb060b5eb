// Package debounce provides a single-consumer scheduler for deferred and
// periodic actions.
//
// Every action runs on one goroutine, so layout code that only executes
// inside scheduler tasks never needs locking. Debounce gives trailing-edge
// coalescing keyed by label: repeated arming under one label collapses to a
// single execution of the most recently supplied action. Repeat gives
// periodic invocation tracked in a process-wide registry; registering the
// same name twice creates two independent timers (callers must guard
// against double-registration themselves).
package debounce

import (
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Scheduler owns the task queue and all timer bookkeeping.
type Scheduler struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	pending map[string]*pendingTimer
	repeats []*repeatTimer

	logger *log.Logger
}

type pendingTimer struct {
	gen   uint64
	timer *time.Timer
}

type repeatTimer struct {
	name string
	stop chan struct{}
}

// New starts the scheduler's run loop. logger may be nil; it only receives
// recovered panics from scheduled actions.
func New(logger *log.Logger) *Scheduler {
	s := &Scheduler{
		tasks:   make(chan func(), 64),
		quit:    make(chan struct{}),
		pending: make(map[string]*pendingTimer),
		logger:  logger,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.tasks:
			s.invoke(fn)
		case <-s.quit:
			return
		}
	}
}

// invoke recovers panics so one failing action cannot take down the loop or
// corrupt label bookkeeping for later calls.
func (s *Scheduler) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Printf("panic in scheduled action: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

// Post queues fn for execution on the scheduler goroutine.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	select {
	case s.tasks <- fn:
	case <-s.quit:
	}
}

// Debounce arms action to run after the label has been idle for delay.
// Re-arming the same label before it fires restarts the clock and replaces
// the action; at most one invocation results from any burst.
func (s *Scheduler) Debounce(label string, delay time.Duration, action func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	entry, ok := s.pending[label]
	if ok {
		entry.timer.Stop()
		entry.gen++
	} else {
		entry = &pendingTimer{}
		s.pending[label] = entry
	}
	gen := entry.gen
	entry.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current, ok := s.pending[label]
		if !ok || current.gen != gen {
			// A newer arm superseded this timer.
			s.mu.Unlock()
			return
		}
		delete(s.pending, label)
		s.mu.Unlock()
		s.Post(action)
	})
}

// Cancel drops any pending debounced action under label.
func (s *Scheduler) Cancel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[label]; ok {
		entry.timer.Stop()
		delete(s.pending, label)
	}
}

// CancelPrefix drops every pending debounced action whose label starts with
// prefix. Sessions key their labels by surface ID so teardown can sweep them
// in one call.
func (s *Scheduler) CancelPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for label, entry := range s.pending {
		if strings.HasPrefix(label, prefix) {
			entry.timer.Stop()
			delete(s.pending, label)
		}
	}
}

// Repeat invokes action every interval after an initial delay. The timer
// lives until Stop; duplicate names are not deduped.
func (s *Scheduler) Repeat(name string, initialDelay, interval time.Duration, action func()) {
	rt := &repeatTimer{name: name, stop: make(chan struct{})}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.repeats = append(s.repeats, rt)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		initial := time.NewTimer(initialDelay)
		defer initial.Stop()
		select {
		case <-initial.C:
		case <-rt.stop:
			return
		case <-s.quit:
			return
		}
		s.Post(action)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Post(action)
			case <-rt.stop:
				return
			case <-s.quit:
				return
			}
		}
	}()
}

// StopRepeats cancels every registered periodic timer without stopping the
// run loop or pending debounces.
func (s *Scheduler) StopRepeats() {
	s.mu.Lock()
	repeats := s.repeats
	s.repeats = nil
	s.mu.Unlock()
	for _, rt := range repeats {
		close(rt.stop)
	}
}

// Stop cancels all timers and shuts down the run loop. Actions already
// queued may be dropped; Stop is process teardown, not a flush.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for label, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, label)
	}
	repeats := s.repeats
	s.repeats = nil
	s.mu.Unlock()

	for _, rt := range repeats {
		close(rt.stop)
	}
	close(s.quit)
	s.wg.Wait()
}
