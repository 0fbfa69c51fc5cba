package domain

import "encoding/json"

// Participant represents one member of a meeting roster.
// No transport or lifecycle logic here; the owning connection is referenced
// by id only.
type Participant struct {
	ID     ParticipantID
	ConnID string
	// Fields holds caller-supplied metadata (name, audio/video flags, ...).
	Fields map[string]any
}

// NewParticipant avoids raw literals in the relay core and keeps
// construction obvious.
func NewParticipant(id ParticipantID, connID string, fields map[string]any) *Participant {
	return &Participant{ID: id, ConnID: connID, Fields: fields}
}

// MarshalJSON flattens the caller-supplied fields into the record so a
// roster snapshot serializes the same shape the join event carried.
func (p *Participant) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+2)
	for k, v := range p.Fields {
		out[k] = v
	}
	out["participantId"] = p.ID
	out["connectionId"] = p.ConnID
	return json.Marshal(out)
}
