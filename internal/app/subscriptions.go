package app

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/core"
	"github.com/Instaresz90008/video-conferencing-sub001/internal/domain"
)

// Invariant: a channel entry exists only while its subscriber set is
// non-empty, and a connection id appears in an entry iff the connection
// lists the channel in its own set.

const errNotAuthenticated = "Not authenticated"

// subscribeLocked adds the connection to the channel. Subscription requires
// a prior auth; unauthenticated attempts get an error reply and change no
// state. Subscribing to a participants channel whose roster is non-empty
// immediately pushes a current_participants snapshot.
func (r *Relay) subscribeLocked(cs *connState, channel string) {
	if !cs.authenticated {
		r.sendLocked(cs, domain.ServerMessage{Type: domain.MsgError, Error: errNotAuthenticated})
		return
	}

	subs, ok := r.channels[channel]
	if !ok {
		subs = make(map[core.ConnID]struct{})
		r.channels[channel] = subs
	}
	subs[cs.id] = struct{}{}
	cs.channels[channel] = struct{}{}

	log.Debug().Str("module", "app.subs").Str("conn", string(cs.id)).Str("channel", channel).Msg("subscribed")

	if !r.sendLocked(cs, domain.ServerMessage{Type: domain.MsgSubscriptionConfirmed, Channel: channel}) {
		return
	}

	if meetingID, topic, ok := domain.ParseMeetingChannel(channel); ok && topic == domain.TopicParticipants {
		if snapshot := r.snapshotLocked(meetingID); len(snapshot) > 0 {
			r.sendLocked(cs, domain.ServerMessage{
				Type:    domain.MsgCurrentParticipants,
				Channel: channel,
				Data:    snapshot,
			})
		}
	}
}

// unsubscribeLocked removes the connection from the channel, pruning the
// entry when its set empties. Intentionally requires no auth and stays
// idempotent: leaving a channel you never joined still confirms.
func (r *Relay) unsubscribeLocked(cs *connState, channel string) {
	if subs, ok := r.channels[channel]; ok {
		delete(subs, cs.id)
		if len(subs) == 0 {
			delete(r.channels, channel)
		}
	}
	delete(cs.channels, channel)

	log.Debug().Str("module", "app.subs").Str("conn", string(cs.id)).Str("channel", channel).Msg("unsubscribed")

	r.sendLocked(cs, domain.ServerMessage{Type: domain.MsgUnsubConfirmed, Channel: channel})
}

// broadcastLocked fans the message out to every subscriber of the channel
// except exclude. A failed write removes that one subscriber without
// aborting the rest of the fan-out. Returns the delivery count.
func (r *Relay) broadcastLocked(channel string, msg domain.ServerMessage, exclude core.ConnID) int {
	subs, ok := r.channels[channel]
	if !ok {
		return 0
	}
	msg.Channel = channel
	msg.Timestamp = time.Now()

	// Serialize once for the whole fan-out.
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.subs").Str("type", msg.Type).Msg("encode broadcast")
		return 0
	}

	// Copy the target set first: a send failure mutates the index mid-fan-out.
	targets := make([]core.ConnID, 0, len(subs))
	for id := range subs {
		if id != exclude {
			targets = append(targets, id)
		}
	}

	delivered := 0
	for _, id := range targets {
		if cs, ok := r.conns[id]; ok && r.writeRawLocked(cs, raw) {
			delivered++
		}
	}

	log.Debug().Str("module", "app.subs").Str("channel", channel).Str("type", msg.Type).
		Int("delivered", delivered).Int("targets", len(targets)).Msg("broadcast")
	return delivered
}
