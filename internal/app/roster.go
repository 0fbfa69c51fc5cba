package app

import (
	"github.com/rs/zerolog/log"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/core"
	"github.com/Instaresz90008/video-conferencing-sub001/internal/domain"
)

// The roster is keyed by participant id, which makes a repeated join a
// natural upsert. The owning connection id is carried on each record and is
// consulted only by disconnect-triggered cleanup.

// joinLocked creates the meeting roster on first join and upserts the
// participant record.
func (r *Relay) joinLocked(meetingID domain.MeetingID, p *domain.Participant) {
	roster, ok := r.rosters[meetingID]
	if !ok {
		roster = make(map[domain.ParticipantID]*domain.Participant)
		r.rosters[meetingID] = roster
	}
	roster[p.ID] = p

	log.Info().Str("module", "app.roster").Str("meeting", string(meetingID)).
		Str("participant", string(p.ID)).Msg("participant joined")
}

// leaveLocked removes a participant by id. An empty roster is pruned so a
// later participants-channel subscriber gets no stale snapshot push.
func (r *Relay) leaveLocked(meetingID domain.MeetingID, id domain.ParticipantID) bool {
	roster, ok := r.rosters[meetingID]
	if !ok {
		return false
	}
	if _, ok := roster[id]; !ok {
		return false
	}
	delete(roster, id)
	if len(roster) == 0 {
		delete(r.rosters, meetingID)
	}

	log.Info().Str("module", "app.roster").Str("meeting", string(meetingID)).
		Str("participant", string(id)).Msg("participant left")
	return true
}

// updateLocked merges caller-supplied fields into an existing record, so
// roster snapshots reflect the latest participant state. Unknown
// participants are left alone; the update event is still broadcast by the
// router.
func (r *Relay) updateLocked(meetingID domain.MeetingID, id domain.ParticipantID, fields map[string]any) {
	roster, ok := r.rosters[meetingID]
	if !ok {
		return
	}
	p, ok := roster[id]
	if !ok {
		return
	}
	if p.Fields == nil {
		p.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		p.Fields[k] = v
	}
}

// evictParticipantsLocked scans every roster for records owned by the
// disconnected connection, removes them and tells the remaining subscribers
// of each affected participants channel, one broadcast per removed record.
func (r *Relay) evictParticipantsLocked(connID core.ConnID) {
	for meetingID, roster := range r.rosters {
		for id, p := range roster {
			if p.ConnID != string(connID) {
				continue
			}
			delete(roster, id)
			if len(roster) == 0 {
				delete(r.rosters, meetingID)
			}

			log.Info().Str("module", "app.roster").Str("meeting", string(meetingID)).
				Str("participant", string(id)).Msg("participant evicted on disconnect")

			r.broadcastLocked(
				domain.MeetingChannel(meetingID, domain.TopicParticipants),
				domain.ServerMessage{
					Type:          domain.MsgParticipantLeft,
					ParticipantID: id,
					Reason:        domain.ReasonDisconnected,
				},
				connID,
			)
		}
	}
}

// findByParticipantLocked resolves a participant record across one meeting.
func (r *Relay) findByParticipantLocked(meetingID domain.MeetingID, id domain.ParticipantID) (*domain.Participant, bool) {
	roster, ok := r.rosters[meetingID]
	if !ok {
		return nil, false
	}
	p, ok := roster[id]
	return p, ok
}

// snapshotLocked returns the current roster as a sequence; order is
// unspecified.
func (r *Relay) snapshotLocked(meetingID domain.MeetingID) []*domain.Participant {
	roster, ok := r.rosters[meetingID]
	if !ok {
		return nil
	}
	out := make([]*domain.Participant, 0, len(roster))
	for _, p := range roster {
		out = append(out, p)
	}
	return out
}
