package domain

import (
	"encoding/json"
	"time"
)

// Client message types.
const (
	MsgAuth               = "auth"
	MsgSubscribe          = "subscribe"
	MsgUnsubscribe        = "unsubscribe"
	MsgPing               = "ping"
	MsgWebRTCSignal       = "webrtc_signal"
	MsgParticipantJoined  = "participant_joined"
	MsgParticipantLeft    = "participant_left"
	MsgParticipantUpdated = "participant_updated"
	MsgScreenShareStarted = "screen_share_started"
	MsgScreenShareStopped = "screen_share_stopped"
	MsgParticipantKicked  = "participant_kicked"
	MsgMeetingMessage     = "meeting_message"
)

// Server message types.
const (
	MsgConnectionEstablished = "connection_established"
	MsgAuthResponse          = "auth_response"
	MsgSubscriptionConfirmed = "subscription_confirmed"
	MsgUnsubConfirmed        = "unsubscription_confirmed"
	MsgCurrentParticipants   = "current_participants"
	MsgPong                  = "pong"
	MsgError                 = "error"
	MsgChatMessage           = "chat_message"
)

// Disconnect reasons carried on participant_left broadcasts.
const (
	ReasonDisconnected = "disconnected"
	ReasonKicked       = "kicked"
)

// Envelope is the minimal shape every inbound frame must match before it
// can be dispatched to a typed payload.
type Envelope struct {
	Type string `json:"type" validate:"required"`
}

// AuthPayload carries an optional caller-chosen identity.
type AuthPayload struct {
	UserID string `json:"userId"`
}

type SubscribePayload struct {
	Channel string `json:"channel" validate:"required"`
}

type WebRTCSignalPayload struct {
	MeetingID           MeetingID       `json:"meetingId" validate:"required"`
	Signal              json.RawMessage `json:"signal" validate:"required"`
	ParticipantID       ParticipantID   `json:"participantId"`
	TargetParticipantID ParticipantID   `json:"targetParticipantId"`
}

// ParticipantEventPayload covers join/leave/update and screen share events.
type ParticipantEventPayload struct {
	MeetingID     MeetingID       `json:"meetingId" validate:"required"`
	ParticipantID ParticipantID   `json:"participantId" validate:"required"`
	Data          json.RawMessage `json:"data"`
}

type MeetingMessagePayload struct {
	MeetingID MeetingID       `json:"meetingId" validate:"required"`
	Data      json.RawMessage `json:"data" validate:"required"`
}

// ServerMessage is the single outbound envelope. Fields not used by a given
// message type stay empty and are dropped by omitempty. Timestamp is stamped
// by the connection registry right before the frame is written; Channel is
// set on broadcasts only.
type ServerMessage struct {
	Type              string          `json:"type"`
	Channel           string          `json:"channel,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	ConnectionID      string          `json:"connectionId,omitempty"`
	Success           bool            `json:"success,omitempty"`
	UserID            string          `json:"userId,omitempty"`
	Error             string          `json:"error,omitempty"`
	Signal            json.RawMessage `json:"signal,omitempty"`
	FromParticipantID ParticipantID   `json:"fromParticipantId,omitempty"`
	ParticipantID     ParticipantID   `json:"participantId,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Data              any             `json:"data,omitempty"`
}
