package ws

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// eventLimiter enforces a minimum inter-arrival interval per event name on a
// single connection. Events arriving faster are dropped, not queued: this is
// a defensive guard against accidental client loops, not a fairness
// mechanism.
type eventLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func newEventLimiter(minInterval time.Duration) *eventLimiter {
	return &eventLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: minInterval,
	}
}

// Allow reports whether an event with the given name may be processed now.
func (l *eventLimiter) Allow(event string) bool {
	if l.interval <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[event]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[event] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
