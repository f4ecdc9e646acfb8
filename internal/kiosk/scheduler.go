package kiosk

import "time"

// Scheduler runs named, cancellable delayed actions. Scheduling a name that is
// already pending replaces it. Implementations must invoke fn on the goroutine
// that owns the Machine.
type Scheduler interface {
	After(name string, d time.Duration, fn func())
	Cancel(name string)
	CancelAll()
}

// Timer names.
const (
	timerWarmup      = "warmup"
	timerGrace       = "grace"
	timerCountdown   = "countdown"
	timerDeadline    = "deadline"
	timerResults     = "results"
	timerLeaderboard = "leaderboard"
)

// loopScheduler backs Scheduler with time.AfterFunc and funnels expirations
// through the kiosk event queue. Its map is only touched from the loop
// goroutine; the AfterFunc goroutine only posts.
type loopScheduler struct {
	post   func(func()) bool
	timers map[string]loopTimer
	gen    uint64
}

type loopTimer struct {
	t   *time.Timer
	gen uint64
}

func newLoopScheduler(post func(func()) bool) *loopScheduler {
	return &loopScheduler{post: post, timers: map[string]loopTimer{}}
}

func (s *loopScheduler) After(name string, d time.Duration, fn func()) {
	s.Cancel(name)
	s.gen++
	gen := s.gen
	t := time.AfterFunc(d, func() {
		s.post(func() {
			// A cancelled timer may already have queued this closure.
			cur, ok := s.timers[name]
			if !ok || cur.gen != gen {
				return
			}
			delete(s.timers, name)
			fn()
		})
	})
	s.timers[name] = loopTimer{t: t, gen: gen}
}

func (s *loopScheduler) Cancel(name string) {
	if cur, ok := s.timers[name]; ok {
		cur.t.Stop()
		delete(s.timers, name)
	}
}

func (s *loopScheduler) CancelAll() {
	for name, cur := range s.timers {
		cur.t.Stop()
		delete(s.timers, name)
	}
}
