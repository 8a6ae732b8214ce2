package domain

import "time"

// PeerID is the opaque identifier the signaling server assigns a remote viewer.
type PeerID string

// SessionState tracks one viewer's negotiation lifecycle.
type SessionState string

const (
	StateNew         SessionState = "new"
	StateNegotiating SessionState = "negotiating"
	StateConnected   SessionState = "connected"
	StateFailed      SessionState = "failed"
	StateClosed      SessionState = "closed"
)

// SessionStats carries the counters sampled from the negotiation engine.
type SessionStats struct {
	BytesSent   uint64
	PacketsSent uint64
	Bitrate     float64 // bits per second, smoothed
}

// SessionInfo is the registry's read-model of one session.
type SessionInfo struct {
	PeerID       PeerID
	Source       Source
	State        SessionState
	Port         int
	CreatedAt    time.Time
	LastActivity time.Time
	Stats        SessionStats
}

// GatewayStats aggregates across all live sessions.
type GatewayStats struct {
	TotalPeers     int
	ConnectedPeers int
	TotalBytesSent uint64
	AverageBitrate float64
}
