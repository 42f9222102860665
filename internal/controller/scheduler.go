package controller

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on the wall clock.
type RealScheduler struct{}

// AfterFunc wraps time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualScheduler is a test double with a clock that only moves on Advance.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s   *ManualScheduler
	at  time.Time
	seq int
	f   func()
}

// NewManualScheduler creates a ManualScheduler whose clock starts at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// AfterFunc schedules f at Now()+d.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{s: s, at: s.now.Add(d), seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Now returns the scheduler clock.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of timers not yet fired or stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance moves the clock forward by d and runs every timer that falls due,
// in deadline order. Callbacks run on the caller's goroutine.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	end := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		sort.Slice(s.timers, func(i, j int) bool {
			if s.timers[i].at.Equal(s.timers[j].at) {
				return s.timers[i].seq < s.timers[j].seq
			}
			return s.timers[i].at.Before(s.timers[j].at)
		})
		if len(s.timers) == 0 || s.timers[0].at.After(end) {
			s.now = end
			s.mu.Unlock()
			return
		}
		t := s.timers[0]
		s.timers = s.timers[1:]
		s.now = t.at
		s.mu.Unlock()

		t.f()
	}
}

func (t *manualTimer) Stop() bool {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.timers {
		if p == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return true
		}
	}
	return false
}
