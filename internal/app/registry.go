package app

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/core"
	"github.com/Instaresz90008/video-conferencing-sub001/internal/domain"
)

// Attach registers a new connection, assigns it a process-unique id and
// greets it with a connection_established message.
func (r *Relay) Attach(sock core.SignalConn) core.ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := core.ConnID(uuid.NewString())
	cs := &connState{
		id:       id,
		sock:     sock,
		channels: make(map[string]struct{}),
		joinedAt: time.Now(),
	}
	r.conns[id] = cs

	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("connection registered")

	r.sendLocked(cs, domain.ServerMessage{
		Type:         domain.MsgConnectionEstablished,
		ConnectionID: string(id),
	})
	return id
}

// Detach removes a connection and cascades cleanup through the subscription
// index and the participant store. Safe to call more than once; the second
// call is a no-op.
func (r *Relay) Detach(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

// removeLocked is the single removal path used by Detach, send failures, the
// kick timer and the liveness sweep. It prunes the subscription index,
// evicts the connection's participant records and notifies the affected
// participants channels.
func (r *Relay) removeLocked(id core.ConnID) {
	cs, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	r.limiter.forget(id)

	if cs.kickTimer != nil {
		cs.kickTimer.Stop()
		cs.kickTimer = nil
	}

	for name := range cs.channels {
		if subs, ok := r.channels[name]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(r.channels, name)
			}
		}
	}

	cs.sock.Close()

	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("connection removed")

	r.evictParticipantsLocked(id)
}

// sendLocked serializes the message, stamps the server timestamp and writes
// it iff the socket is still open. A write failure is treated as a
// disconnection and triggers removal; there is no retry.
func (r *Relay) sendLocked(cs *connState, msg domain.ServerMessage) bool {
	msg.Timestamp = time.Now()

	raw, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("type", msg.Type).Msg("encode outbound")
		return false
	}
	return r.writeRawLocked(cs, raw)
}

// writeRawLocked writes an already-encoded frame. On a closed socket or a
// refused write the connection is removed on the spot.
func (r *Relay) writeRawLocked(cs *connState, raw []byte) bool {
	if !cs.sock.Open() {
		r.removeLocked(cs.id)
		return false
	}
	if err := cs.sock.TrySend(raw); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("conn", string(cs.id)).Msg("send failed")
		r.removeLocked(cs.id)
		return false
	}
	return true
}

// sendToLocked is sendLocked for a connection known only by id.
func (r *Relay) sendToLocked(id core.ConnID, msg domain.ServerMessage) bool {
	cs, ok := r.conns[id]
	if !ok {
		return false
	}
	return r.sendLocked(cs, msg)
}
