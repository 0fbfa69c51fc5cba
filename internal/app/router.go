package app

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/core"
	"github.com/Instaresz90008/video-conferencing-sub001/internal/domain"
)

const (
	errMalformed   = "Invalid message format"
	errBadPayload  = "Invalid message payload"
	errRateLimited = "Too many messages"
)

// HandleInbound classifies one inbound frame by its type field and
// dispatches it. Protocol errors are reported back on the same connection;
// they never disconnect it. Unknown types are logged and dropped so newer
// clients keep working against older relays.
func (r *Relay) HandleInbound(id core.ConnID, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.conns[id]
	if !ok {
		log.Warn().Str("module", "app.router").Str("conn", string(id)).Msg("frame from unknown connection")
		return
	}

	if !r.limiter.allow(id) {
		r.sendLocked(cs, domain.ServerMessage{Type: domain.MsgError, Error: errRateLimited})
		return
	}

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		r.sendLocked(cs, domain.ServerMessage{Type: domain.MsgError, Error: errMalformed})
		return
	}

	switch env.Type {
	case domain.MsgAuth:
		r.handleAuth(cs, raw)
	case domain.MsgSubscribe:
		r.handleSubscribe(cs, raw)
	case domain.MsgUnsubscribe:
		r.handleUnsubscribe(cs, raw)
	case domain.MsgPing:
		r.sendLocked(cs, domain.ServerMessage{Type: domain.MsgPong})
	case domain.MsgWebRTCSignal:
		r.handleWebRTCSignal(cs, raw)
	case domain.MsgParticipantJoined:
		r.handleParticipantJoined(cs, raw)
	case domain.MsgParticipantLeft:
		r.handleParticipantLeft(cs, raw)
	case domain.MsgParticipantUpdated:
		r.handleParticipantUpdated(cs, raw)
	case domain.MsgScreenShareStarted, domain.MsgScreenShareStopped:
		r.handleScreenShare(cs, env.Type, raw)
	case domain.MsgParticipantKicked:
		r.handleParticipantKicked(cs, raw)
	case domain.MsgMeetingMessage:
		r.handleMeetingMessage(cs, raw)
	default:
		log.Warn().Str("module", "app.router").Str("conn", string(cs.id)).
			Str("type", env.Type).Msg("unknown message type")
	}
}

// decode unmarshals raw into the typed payload and validates its required
// fields. A failure is a protocol error reported to the sender.
func (r *Relay) decode(cs *connState, raw []byte, payload any) bool {
	if err := json.Unmarshal(raw, payload); err != nil {
		r.sendLocked(cs, domain.ServerMessage{Type: domain.MsgError, Error: errMalformed})
		return false
	}
	if err := r.validate.Struct(payload); err != nil {
		r.sendLocked(cs, domain.ServerMessage{Type: domain.MsgError, Error: errBadPayload})
		return false
	}
	return true
}

func (r *Relay) handleAuth(cs *connState, raw []byte) {
	var p domain.AuthPayload
	if !r.decode(cs, raw, &p) {
		return
	}

	cs.authenticated = true
	if p.UserID != "" {
		cs.userID = p.UserID
	} else {
		cs.userID = "user_" + string(cs.id)
	}

	log.Info().Str("module", "app.router").Str("conn", string(cs.id)).
		Str("user", cs.userID).Msg("authenticated")

	r.sendLocked(cs, domain.ServerMessage{
		Type:    domain.MsgAuthResponse,
		Success: true,
		UserID:  cs.userID,
	})
}

func (r *Relay) handleSubscribe(cs *connState, raw []byte) {
	var p domain.SubscribePayload
	if !r.decode(cs, raw, &p) {
		return
	}
	r.subscribeLocked(cs, p.Channel)
}

func (r *Relay) handleUnsubscribe(cs *connState, raw []byte) {
	var p domain.SubscribePayload
	if !r.decode(cs, raw, &p) {
		return
	}
	r.unsubscribeLocked(cs, p.Channel)
}

// handleWebRTCSignal unicasts to the target participant's connection when a
// target is named, otherwise fans out on the meeting's webrtc channel. The
// signal body is relayed opaquely; the relay never parses SDP or ICE.
func (r *Relay) handleWebRTCSignal(cs *connState, raw []byte) {
	var p domain.WebRTCSignalPayload
	if !r.decode(cs, raw, &p) {
		return
	}

	from := p.ParticipantID
	if from == "" {
		if sender, ok := r.findBySenderLocked(p.MeetingID, cs.id); ok {
			from = sender.ID
		}
	}

	if p.TargetParticipantID != "" {
		target, ok := r.findByParticipantLocked(p.MeetingID, p.TargetParticipantID)
		if !ok {
			log.Warn().Str("module", "app.router").Str("meeting", string(p.MeetingID)).
				Str("target", string(p.TargetParticipantID)).Msg("signal target not in roster")
			return
		}
		r.sendToLocked(core.ConnID(target.ConnID), domain.ServerMessage{
			Type:              domain.MsgWebRTCSignal,
			Signal:            p.Signal,
			FromParticipantID: from,
		})
		return
	}

	r.broadcastLocked(
		domain.MeetingChannel(p.MeetingID, domain.TopicWebRTC),
		domain.ServerMessage{
			Type:              domain.MsgWebRTCSignal,
			Signal:            p.Signal,
			FromParticipantID: from,
		},
		cs.id,
	)
}

func (r *Relay) handleParticipantJoined(cs *connState, raw []byte) {
	var p domain.ParticipantEventPayload
	if !r.decode(cs, raw, &p) {
		return
	}

	fields := decodeFields(p.Data)
	r.joinLocked(p.MeetingID, domain.NewParticipant(p.ParticipantID, string(cs.id), fields))

	r.broadcastLocked(
		domain.MeetingChannel(p.MeetingID, domain.TopicParticipants),
		domain.ServerMessage{
			Type:          domain.MsgParticipantJoined,
			ParticipantID: p.ParticipantID,
			Data:          rawData(p.Data),
		},
		cs.id,
	)
}

func (r *Relay) handleParticipantLeft(cs *connState, raw []byte) {
	var p domain.ParticipantEventPayload
	if !r.decode(cs, raw, &p) {
		return
	}

	r.leaveLocked(p.MeetingID, p.ParticipantID)

	r.broadcastLocked(
		domain.MeetingChannel(p.MeetingID, domain.TopicParticipants),
		domain.ServerMessage{
			Type:          domain.MsgParticipantLeft,
			ParticipantID: p.ParticipantID,
			Data:          rawData(p.Data),
		},
		cs.id,
	)
}

func (r *Relay) handleParticipantUpdated(cs *connState, raw []byte) {
	var p domain.ParticipantEventPayload
	if !r.decode(cs, raw, &p) {
		return
	}

	r.updateLocked(p.MeetingID, p.ParticipantID, decodeFields(p.Data))

	r.broadcastLocked(
		domain.MeetingChannel(p.MeetingID, domain.TopicParticipants),
		domain.ServerMessage{
			Type:          domain.MsgParticipantUpdated,
			ParticipantID: p.ParticipantID,
			Data:          rawData(p.Data),
		},
		cs.id,
	)
}

func (r *Relay) handleScreenShare(cs *connState, msgType string, raw []byte) {
	var p domain.ParticipantEventPayload
	if !r.decode(cs, raw, &p) {
		return
	}

	r.broadcastLocked(
		domain.MeetingChannel(p.MeetingID, domain.TopicEvents),
		domain.ServerMessage{
			Type: msgType,
			Data: map[string]any{"participantId": p.ParticipantID},
		},
		cs.id,
	)
}

// handleParticipantKicked notifies the target first and forces its socket
// closed only after the kick delay, so the notice has a chance to be
// delivered. The pending close is cancelled if the target disconnects on
// its own in the meantime.
func (r *Relay) handleParticipantKicked(cs *connState, raw []byte) {
	var p domain.ParticipantEventPayload
	if !r.decode(cs, raw, &p) {
		return
	}

	if target, ok := r.resolveKickTargetLocked(p.MeetingID, p.ParticipantID); ok {
		r.sendLocked(target, domain.ServerMessage{
			Type:   domain.MsgParticipantKicked,
			Reason: domain.ReasonKicked,
		})

		id := target.id
		target.kickTimer = time.AfterFunc(r.opts.KickDelay, func() {
			r.Detach(id)
		})
	}

	// Drop the roster record now so the disconnect cleanup does not emit a
	// second, contradictory participant_left.
	r.leaveLocked(p.MeetingID, p.ParticipantID)

	r.broadcastLocked(
		domain.MeetingChannel(p.MeetingID, domain.TopicParticipants),
		domain.ServerMessage{
			Type:          domain.MsgParticipantLeft,
			ParticipantID: p.ParticipantID,
			Reason:        domain.ReasonKicked,
		},
		cs.id,
	)
}

func (r *Relay) handleMeetingMessage(cs *connState, raw []byte) {
	var p domain.MeetingMessagePayload
	if !r.decode(cs, raw, &p) {
		return
	}

	data := decodeFields(p.Data)
	if data == nil {
		data = make(map[string]any, 2)
	}
	data["timestamp"] = time.Now()
	data["senderConnectionId"] = string(cs.id)

	r.broadcastLocked(
		domain.MeetingChannel(p.MeetingID, domain.TopicChat),
		domain.ServerMessage{
			Type: domain.MsgChatMessage,
			Data: data,
		},
		cs.id,
	)
}

// resolveKickTargetLocked finds the kicked connection either through the
// meeting roster or, failing that, by matching the participant id against an
// authenticated user id.
func (r *Relay) resolveKickTargetLocked(meetingID domain.MeetingID, id domain.ParticipantID) (*connState, bool) {
	if p, ok := r.findByParticipantLocked(meetingID, id); ok {
		if cs, ok := r.conns[core.ConnID(p.ConnID)]; ok {
			return cs, true
		}
	}
	for _, cs := range r.conns {
		if cs.userID != "" && cs.userID == string(id) {
			return cs, true
		}
	}
	return nil, false
}

// findBySenderLocked resolves the roster record owned by a connection within
// one meeting.
func (r *Relay) findBySenderLocked(meetingID domain.MeetingID, connID core.ConnID) (*domain.Participant, bool) {
	roster, ok := r.rosters[meetingID]
	if !ok {
		return nil, false
	}
	for _, p := range roster {
		if p.ConnID == string(connID) {
			return p, true
		}
	}
	return nil, false
}

// rawData passes a raw payload through untouched, collapsing an absent one
// to a nil interface so omitempty drops it.
func rawData(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// decodeFields tolerantly decodes a raw JSON object into a field map,
// returning nil for absent or non-object payloads.
func decodeFields(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}
