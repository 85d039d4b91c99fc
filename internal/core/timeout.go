package core

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimeoutGuard flags operations that run longer than a limit. It does not
// cancel them: a slow bulk write keeps going and its result is marked
// timed out so the caller can tell the user it may still be settling.
type TimeoutGuard struct {
	clock clockwork.Clock
	limit time.Duration
}

// NewTimeoutGuard creates a guard. A non-positive limit disables it.
func NewTimeoutGuard(clock clockwork.Clock, limit time.Duration) *TimeoutGuard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TimeoutGuard{clock: clock, limit: limit}
}

// Track starts timing op. The returned stop function must be called when
// op finishes; it reports whether the limit was exceeded.
func (g *TimeoutGuard) Track(op string) (stop func() bool) {
	if g == nil || g.limit <= 0 {
		return func() bool { return false }
	}

	var timedOut atomic.Bool
	start := g.clock.Now()
	timer := g.clock.AfterFunc(g.limit, func() {
		timedOut.Store(true)
		slog.Warn("operation exceeded timeout",
			"operation", op,
			"timeout", g.limit.String(),
		)
	})

	return func() bool {
		timer.Stop()
		if timedOut.Load() {
			slog.Warn("timed out operation finished",
				"operation", op,
				"duration_ms", g.clock.Since(start).Milliseconds(),
			)
			return true
		}
		return false
	}
}
