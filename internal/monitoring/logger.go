package monitoring

import (
	"log"
	"time"

	"tailscale.com/types/logger"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// limiterBurst is the number of messages of one format let through before
// rate limiting kicks in. The tailscale limiter only unblocks once two tokens
// have refilled, so a burst below 2 would never unblock.
const limiterBurst = 2

// Limiter rate-limits messages per format string before passing them to
// Logf. The control loop runs at 100Hz, so a persistent fault would otherwise
// flood the log. Dropped messages are reported with a [RATELIMIT] line once
// the format is let through again.
type Limiter struct {
	now  func() time.Time
	logf logger.Logf
}

// NewLimiter returns a Limiter that refills one message per interval for each
// format.
func NewLimiter(interval time.Duration) *Limiter {
	l := &Limiter{now: time.Now}
	l.logf = logger.RateLimitedFnWithClock(
		func(format string, args ...any) { Logf(format, args...) },
		interval, limiterBurst, 64,
		func() time.Time { return l.now() },
	)
	return l
}

// Logf logs the message unless its format is currently rate limited.
func (l *Limiter) Logf(format string, v ...interface{}) {
	l.logf(format, v...)
}
