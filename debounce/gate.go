// Package debounce decides whether a candidate activation becomes an
// accepted trigger.
package debounce

import (
	"math"
	"sync/atomic"
	"time"
)

const never = math.MinInt64

// ShouldTrigger reports whether an activation at now is far enough from
// the last accepted one. A zero last means nothing was accepted yet.
func ShouldTrigger(now, last time.Time, window time.Duration) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= window
}

// Gate holds the last accepted trigger time in a single atomic word so
// concurrent detection paths serialize through it.
type Gate struct {
	window time.Duration
	epoch  time.Time
	last   atomic.Int64 // nanoseconds since epoch, or never
}

func New(window time.Duration) *Gate {
	if window < 0 {
		window = 0
	}
	g := &Gate{window: window, epoch: time.Now()}
	g.last.Store(never)
	return g
}

func (g *Gate) Window() time.Duration { return g.window }

// TryAccept accepts an activation at now if the window has elapsed, and
// records now as the last trigger in the same atomic step.
func (g *Gate) TryAccept(now time.Time) bool {
	cur := int64(now.Sub(g.epoch))
	for {
		prev := g.last.Load()
		if !ShouldTrigger(now, g.toTime(prev), g.window) {
			return false
		}
		if g.last.CompareAndSwap(prev, cur) {
			return true
		}
	}
}

// Last returns the last accepted trigger time, if any.
func (g *Gate) Last() (time.Time, bool) {
	v := g.last.Load()
	if v == never {
		return time.Time{}, false
	}
	return g.toTime(v), true
}

func (g *Gate) toTime(v int64) time.Time {
	if v == never {
		return time.Time{}
	}
	return g.epoch.Add(time.Duration(v))
}
