// Package app implements the signaling relay core: the connection registry,
// the channel subscription index, the per-meeting participant store and the
// message router that ties them together.
package app

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/core"
	"github.com/Instaresz90008/video-conferencing-sub001/internal/domain"
)

// Defaults applied by NewRelay for zero-valued options.
const (
	DefaultKickDelay     = time.Second
	DefaultSweepInterval = 30 * time.Second
	DefaultRateLimit     = 60
	DefaultRateInterval  = 10 * time.Second
)

type Options struct {
	// KickDelay is how long a kicked connection is given to receive the
	// participant_kicked notice before its socket is forced closed.
	KickDelay time.Duration
	// SweepInterval is the period of the liveness sweep.
	SweepInterval time.Duration
	// RateLimit caps inbound messages per connection per RateInterval.
	RateLimit    int
	RateInterval time.Duration
}

// connState is the registry record for one live connection.
type connState struct {
	id            core.ConnID
	sock          core.SignalConn
	authenticated bool
	userID        string
	channels      map[string]struct{}
	joinedAt      time.Time
	// kickTimer holds the pending forced-close task after a kick, so a
	// voluntary disconnect can cancel it instead of firing on a stale handle.
	kickTimer *time.Timer
}

// Relay owns all relay-side state. A single mutex guards the registry, the
// subscription index and the participant store together, because the
// consistency invariants between them span structures. Socket writes under
// the lock are non-blocking buffered-channel sends, so holding the mutex
// across a fan-out cannot block on a slow peer.
type Relay struct {
	mu       sync.Mutex
	conns    map[core.ConnID]*connState
	channels map[string]map[core.ConnID]struct{}
	rosters  map[domain.MeetingID]map[domain.ParticipantID]*domain.Participant
	limiter  *rateLimiter
	validate *validator.Validate
	opts     Options
}

func NewRelay(opts Options) *Relay {
	if opts.KickDelay <= 0 {
		opts.KickDelay = DefaultKickDelay
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = DefaultRateInterval
	}

	return &Relay{
		conns:    make(map[core.ConnID]*connState),
		channels: make(map[string]map[core.ConnID]struct{}),
		rosters:  make(map[domain.MeetingID]map[domain.ParticipantID]*domain.Participant),
		limiter:  newRateLimiter(opts.RateLimit, opts.RateInterval),
		validate: validator.New(),
		opts:     opts,
	}
}

// Stats reports live counts for the stats endpoint.
func (r *Relay) Stats() core.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return core.Stats{
		Connections: len(r.conns),
		Channels:    len(r.channels),
		Meetings:    len(r.rosters),
	}
}

// Shutdown closes every registered socket. Pending kick timers are cancelled
// as part of the per-connection removal.
func (r *Relay) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.conns {
		r.removeLocked(id)
	}
}
