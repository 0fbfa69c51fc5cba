package core

// Frame is a single serialized signaling message.
type Frame []byte

// ConnID uniquely identifies one live connection for the life of the process.
type ConnID string

// SignalConn abstracts the messaging transport for one client.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	TrySend(Frame) error
	// Open reports whether the underlying socket can still accept writes.
	// The liveness sweeper evicts connections for which this turns false
	// without a close event having fired.
	Open() bool
	Close()
}

// Stats is a read-only view of the relay for APIs (no transport fields).
type Stats struct {
	Connections int `json:"connections"`
	Channels    int `json:"channels"`
	Meetings    int `json:"meetings"`
}
