package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/core"
)

// RunSweeper periodically evicts connections whose sockets died without a
// close event firing. It is a backstop behind the read/write pumps, not the
// primary cleanup path. Runs until the context is cancelled; a single
// goroutine drives the ticker, so sweeps never overlap.
func (r *Relay) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
			return
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				log.Info().Str("module", "app.sweeper").Int("evicted", n).Msg("swept dead connections")
			}
		}
	}
}

// sweep removes every connection whose socket is no longer open, cascading
// through the usual removal path. Returns the eviction count.
func (r *Relay) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Collect first: removal mutates the map and may cascade into further
	// removals through failed notification sends.
	var dead []core.ConnID
	for id, cs := range r.conns {
		if !cs.sock.Open() {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		r.removeLocked(id)
	}
	return len(dead)
}
