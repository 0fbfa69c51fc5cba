package app

import (
	"time"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/core"
)

// rateLimiter is a sliding-window counter of inbound messages per
// connection. It is only ever called with the relay mutex held, so it needs
// no locking of its own.
type rateLimiter struct {
	history  map[core.ConnID][]time.Time
	limit    int
	interval time.Duration
}

func newRateLimiter(limit int, interval time.Duration) *rateLimiter {
	return &rateLimiter{
		history:  make(map[core.ConnID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *rateLimiter) allow(id core.ConnID) bool {
	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]

	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	rl.history[id] = append(fresh, now)
	return true
}

func (rl *rateLimiter) forget(id core.ConnID) {
	delete(rl.history, id)
}
