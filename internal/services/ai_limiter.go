package services

import (
	"sync"
	"time"
)

// CallLimiter enforces global per-minute and per-hour limits on AI calls.
type CallLimiter struct {
	mu           sync.Mutex
	perMinute    []time.Time
	perHour      []time.Time
	maxPerMinute int
	maxPerHour   int
}

// NewCallLimiter returns a limiter allowing perMinute calls per minute and
// perHour calls per hour. A zero limit disables that window.
func NewCallLimiter(perMinute, perHour int) *CallLimiter {
	return &CallLimiter{
		perMinute:    make([]time.Time, 0, 32),
		perHour:      make([]time.Time, 0, 64),
		maxPerMinute: perMinute,
		maxPerHour:   perHour,
	}
}

// DefaultCallLimiter returns a limiter: 20/min, 300/hour.
func DefaultCallLimiter() *CallLimiter {
	return NewCallLimiter(20, 300)
}

// Reserve checks both windows and, when there is room, counts a call at
// now. Checking and counting happen under one lock, so concurrent callers
// never overshoot a window. Failed requests keep their slot.
func (l *CallLimiter) Reserve(now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.perMinute = trimBefore(l.perMinute, now.Add(-time.Minute))
	l.perHour = trimBefore(l.perHour, now.Add(-time.Hour))

	if l.maxPerMinute > 0 && len(l.perMinute) >= l.maxPerMinute {
		return false
	}
	if l.maxPerHour > 0 && len(l.perHour) >= l.maxPerHour {
		return false
	}
	l.perMinute = append(l.perMinute, now)
	l.perHour = append(l.perHour, now)
	return true
}

func trimBefore(ts []time.Time, cut time.Time) []time.Time {
	var out []time.Time
	for _, t := range ts {
		if t.After(cut) {
			out = append(out, t)
		}
	}
	return out
}
