package timer

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// countdown is anchored to a timestamp so late or missed ticks never drift it.
type countdown struct {
	anchor    time.Time
	remaining time.Duration // at anchor
	running   bool
}

func startCountdown(at time.Time, d time.Duration) countdown {
	return countdown{anchor: at, remaining: d, running: true}
}

func frozenCountdown(d time.Duration) countdown {
	return countdown{remaining: d}
}

// left returns the remaining time at now; it may be negative when a tick was late.
func (c countdown) left(now time.Time) time.Duration {
	if !c.running {
		return c.remaining
	}
	return c.remaining - now.Sub(c.anchor)
}

// deadline is the instant the countdown reaches zero.
func (c countdown) deadline() time.Time {
	return c.anchor.Add(c.remaining)
}

func (c countdown) freeze(now time.Time) countdown {
	left := c.left(now)
	if left < 0 {
		left = 0
	}
	return frozenCountdown(left)
}

func (c countdown) resume(now time.Time) countdown {
	return startCountdown(now, c.remaining)
}
