// Package domain contains entity without logic, just meta-data
package domain

import "strings"

type (
	MeetingID     string
	ParticipantID string
)

// Topic is the suffix of a meeting channel name.
type Topic string

const (
	TopicParticipants Topic = "participants"
	TopicWebRTC       Topic = "webrtc"
	TopicEvents       Topic = "events"
	TopicChat         Topic = "chat"
)

const channelPrefix = "meeting:"

// MeetingChannel builds the canonical channel name "meeting:<id>:<topic>".
func MeetingChannel(id MeetingID, t Topic) string {
	return channelPrefix + string(id) + ":" + string(t)
}

// ParseMeetingChannel splits a channel name back into meeting id and topic.
// Returns ok=false for names that do not follow the meeting channel scheme.
func ParseMeetingChannel(name string) (MeetingID, Topic, bool) {
	rest, found := strings.CutPrefix(name, channelPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return MeetingID(rest[:i]), Topic(rest[i+1:]), true
}
