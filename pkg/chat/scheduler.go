package chat

import (
	"sync"
	"time"
)

// Scheduler owns the dispatcher's timers so that all of them can be stopped at once.
// A delay <= 0 runs the function inline.
type Scheduler struct {
	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[*time.Timer]struct{})}
}

// After runs fn once delay has elapsed, unless the scheduler is closed first.
// It reports false when fn will never run.
func (s *Scheduler) After(delay time.Duration, fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if delay <= 0 {
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()
		fn()
		return true
	}

	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		_, live := s.timers[t]
		delete(s.timers, t)
		closed := s.closed
		s.mu.Unlock()
		if live && !closed {
			fn()
		}
	})
	s.timers[t] = struct{}{}
	s.mu.Unlock()
	return true
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops every armed timer and waits for callbacks already running.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, t)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
