// internal/desktop/ratelimit.go
package desktop

import (
	"time"

	"golang.org/x/time/rate"
)

// windowLimiter is a fixed-window counter. The window restarts on the first
// check made more than window after it began.
type windowLimiter struct {
	max    int
	window time.Duration
	count  int
	start  time.Time
}

func newWindowLimiter(max int, window time.Duration, now time.Time) *windowLimiter {
	return &windowLimiter{max: max, window: window, start: now}
}

// allow consumes one slot if the window has room.
func (w *windowLimiter) allow(now time.Time) bool {
	if now.Sub(w.start) > w.window {
		w.count = 0
		w.start = now
	}
	if w.count >= w.max {
		return false
	}
	w.count++
	return true
}

// refund returns a slot consumed by allow.
func (w *windowLimiter) refund() {
	if w.count > 0 {
		w.count--
	}
}

// newHourlyLimiter returns a bucket that admits perHour actions per hour with
// the whole hour available as burst. A non-positive perHour disables it.
func newHourlyLimiter(perHour int) *rate.Limiter {
	if perHour <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)
}
