package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Instaresz90008/video-conferencing-sub001/internal/domain"
)

func TestAuthDefaultsUserID(t *testing.T) {
	r := newTestRelay()
	id, c := attach(r)

	r.HandleInbound(id, []byte(`{"type":"auth"}`))

	res := c.byType(t, domain.MsgAuthResponse)
	require.Len(t, res, 1)
	assert.True(t, res[0].Success)
	assert.Equal(t, "user_"+string(id), res[0].UserID)
}

func TestAuthKeepsSuppliedUserID(t *testing.T) {
	r := newTestRelay()
	id, c := attach(r)

	r.HandleInbound(id, []byte(`{"type":"auth","userId":"alice"}`))

	res := c.byType(t, domain.MsgAuthResponse)
	require.Len(t, res, 1)
	assert.Equal(t, "alice", res[0].UserID)
}

func TestPingPong(t *testing.T) {
	r := newTestRelay()
	id, c := attach(r)

	r.HandleInbound(id, []byte(`{"type":"ping"}`))

	assert.Len(t, c.byType(t, domain.MsgPong), 1)
}

func TestMalformedJSONKeepsConnectionOpen(t *testing.T) {
	r := newTestRelay()
	id, c := attach(r)

	r.HandleInbound(id, []byte(`{not json`))

	errs := c.byType(t, domain.MsgError)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, r.Stats().Connections)
}

func TestMissingRequiredFieldIsProtocolError(t *testing.T) {
	r := newTestRelay()
	id, c := authedConn(t, r)

	r.HandleInbound(id, []byte(`{"type":"subscribe"}`))

	require.Len(t, c.byType(t, domain.MsgError), 1)
	assert.Empty(t, c.byType(t, domain.MsgSubscriptionConfirmed))
}

func TestUnknownTypeIsSilentlyDropped(t *testing.T) {
	r := newTestRelay()
	id, c := attach(r)
	before := len(c.received(t))

	r.HandleInbound(id, []byte(`{"type":"time_travel"}`))

	assert.Len(t, c.received(t), before)
	assert.Equal(t, 1, r.Stats().Connections)
}

// Full happy path from the wire protocol: register, auth, subscribe, then a
// chat message from a second connection fans out with the server stamp.
func TestChatEndToEnd(t *testing.T) {
	r := newTestRelay()

	x, cx := attach(r)
	welcome := cx.byType(t, domain.MsgConnectionEstablished)
	require.Len(t, welcome, 1)
	require.Equal(t, string(x), welcome[0].ConnectionID)

	r.HandleInbound(x, []byte(`{"type":"auth"}`))
	require.True(t, cx.byType(t, domain.MsgAuthResponse)[0].Success)

	subscribe(t, r, x, "meeting:m1:chat")
	require.Len(t, cx.byType(t, domain.MsgSubscriptionConfirmed), 1)

	y, cy := authedConn(t, r)
	subscribe(t, r, y, "meeting:m1:chat")

	r.HandleInbound(y, []byte(`{"type":"meeting_message","meetingId":"m1","data":{"text":"hi"}}`))

	chats := cx.byType(t, domain.MsgChatMessage)
	require.Len(t, chats, 1)
	assert.Equal(t, "meeting:m1:chat", chats[0].Channel)
	assert.False(t, chats[0].Timestamp.IsZero())

	data, ok := chats[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", data["text"])
	assert.Equal(t, string(y), data["senderConnectionId"])
	assert.NotEmpty(t, data["timestamp"])

	assert.Empty(t, cy.byType(t, domain.MsgChatMessage), "sender must be excluded")
}

func TestWebRTCSignalUnicast(t *testing.T) {
	r := newTestRelay()
	a, _ := authedConn(t, r)
	b, cb := authedConn(t, r)

	r.HandleInbound(a, []byte(`{"type":"participant_joined","meetingId":"m1","participantId":"p1"}`))
	r.HandleInbound(b, []byte(`{"type":"participant_joined","meetingId":"m1","participantId":"p2"}`))

	r.HandleInbound(a, []byte(`{"type":"webrtc_signal","meetingId":"m1","targetParticipantId":"p2","signal":{"sdp":"offer"}}`))

	signals := cb.byType(t, domain.MsgWebRTCSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.ParticipantID("p1"), signals[0].FromParticipantID)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(signals[0].Signal))
	assert.Empty(t, signals[0].Channel, "unicast must not carry a channel")
}

func TestWebRTCSignalBroadcastExcludesSender(t *testing.T) {
	r := newTestRelay()
	a, ca := authedConn(t, r)
	b, cb := authedConn(t, r)

	subscribe(t, r, a, "meeting:m1:webrtc")
	subscribe(t, r, b, "meeting:m1:webrtc")

	r.HandleInbound(a, []byte(`{"type":"webrtc_signal","meetingId":"m1","participantId":"p1","signal":{"candidate":"c"}}`))

	signals := cb.byType(t, domain.MsgWebRTCSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, "meeting:m1:webrtc", signals[0].Channel)
	assert.Empty(t, ca.byType(t, domain.MsgWebRTCSignal))
}

func TestScreenShareBroadcastsOnEventsChannel(t *testing.T) {
	r := newTestRelay()
	a, _ := authedConn(t, r)
	b, cb := authedConn(t, r)
	subscribe(t, r, b, "meeting:m1:events")

	r.HandleInbound(a, []byte(`{"type":"screen_share_started","meetingId":"m1","participantId":"p1"}`))
	r.HandleInbound(a, []byte(`{"type":"screen_share_stopped","meetingId":"m1","participantId":"p1"}`))

	started := cb.byType(t, "screen_share_started")
	require.Len(t, started, 1)
	data, ok := started[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "p1", data["participantId"])
	require.Len(t, cb.byType(t, "screen_share_stopped"), 1)
}

func TestKickNotifiesThenCloses(t *testing.T) {
	r := newTestRelay()
	host, chost := authedConn(t, r)
	victim, cvictim := authedConn(t, r)
	watcher, cwatcher := authedConn(t, r)

	r.HandleInbound(victim, []byte(`{"type":"participant_joined","meetingId":"m1","participantId":"p2"}`))
	subscribe(t, r, watcher, "meeting:m1:participants")
	subscribe(t, r, host, "meeting:m1:participants")

	r.HandleInbound(host, []byte(`{"type":"participant_kicked","meetingId":"m1","participantId":"p2"}`))

	kicked := cvictim.byType(t, domain.MsgParticipantKicked)
	require.Len(t, kicked, 1)
	assert.Equal(t, domain.ReasonKicked, kicked[0].Reason)
	// The notice lands before the socket is forced closed.
	assert.True(t, cvictim.Open())

	left := cwatcher.byType(t, domain.MsgParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.ParticipantID("p2"), left[0].ParticipantID)
	assert.Equal(t, domain.ReasonKicked, left[0].Reason)
	assert.Empty(t, chost.byType(t, domain.MsgParticipantLeft), "kicker is excluded")

	require.Eventually(t, func() bool {
		return !cvictim.Open() && r.Stats().Connections == 2
	}, time.Second, 5*time.Millisecond, "victim socket should be forced closed after the delay")

	// Eviction must not emit a second participant_left: the roster record
	// was already dropped during the kick.
	assert.Len(t, cwatcher.byType(t, domain.MsgParticipantLeft), 1)
}

func TestKickTimerCancelledOnVoluntaryDisconnect(t *testing.T) {
	r := newTestRelay()
	host, _ := authedConn(t, r)
	victim, _ := authedConn(t, r)

	r.HandleInbound(victim, []byte(`{"type":"participant_joined","meetingId":"m1","participantId":"p2"}`))
	r.HandleInbound(host, []byte(`{"type":"participant_kicked","meetingId":"m1","participantId":"p2"}`))

	r.Detach(victim)
	require.Equal(t, 1, r.Stats().Connections)

	time.Sleep(3 * r.opts.KickDelay)
	assert.Equal(t, 1, r.Stats().Connections)
}

func TestKickResolvesTargetByUserID(t *testing.T) {
	r := newTestRelay()
	host, _ := authedConn(t, r)
	victim, cvictim := attach(r)
	r.HandleInbound(victim, []byte(`{"type":"auth","userId":"bob"}`))

	// No roster record for "bob": resolution falls back to the
	// authenticated user id.
	r.HandleInbound(host, []byte(`{"type":"participant_kicked","meetingId":"m1","participantId":"bob"}`))

	require.Len(t, cvictim.byType(t, domain.MsgParticipantKicked), 1)
}

func TestRateLimitRepliesWithError(t *testing.T) {
	r := NewRelay(Options{RateLimit: 2, RateInterval: time.Minute})
	id, c := attach(r)

	for range 3 {
		r.HandleInbound(id, []byte(`{"type":"ping"}`))
	}

	assert.Len(t, c.byType(t, domain.MsgPong), 2)
	errs := c.byType(t, domain.MsgError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Too many messages", errs[0].Error)
}

func TestOutboundOmitsEmptyFields(t *testing.T) {
	r := newTestRelay()
	id, c := attach(r)
	r.HandleInbound(id, []byte(`{"type":"ping"}`))

	c.mu.Lock()
	raw := c.frames[len(c.frames)-1]
	c.mu.Unlock()

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "type")
	assert.Contains(t, fields, "timestamp")
	assert.NotContains(t, fields, "error")
	assert.NotContains(t, fields, "data")
	assert.NotContains(t, fields, "channel")
}
