package ports

import (
	"context"

	"camgate/internal/core/domain"
)

// SessionManager owns the per-viewer session collection.
type SessionManager interface {
	AddPeer(ctx context.Context, peerID domain.PeerID, source string) bool
	RemovePeer(ctx context.Context, peerID domain.PeerID) bool
	RemoveAll(ctx context.Context)
	RouteRemoteAnswer(peerID domain.PeerID, sdp string)
	RouteRemoteOffer(peerID domain.PeerID, sdp string)
	RouteRemoteCandidate(peerID domain.PeerID, candidate string, mlineIndex int)
	PeerInfo(peerID domain.PeerID) (domain.SessionInfo, bool)
	Peers() []domain.SessionInfo
	Stats() domain.GatewayStats
}

// BranchController manages dynamic per-viewer branches on the shared graph.
type BranchController interface {
	Attach(peerID domain.PeerID, source domain.Source) (int, error)
	Detach(peerID domain.PeerID) bool
	Query(peerID domain.PeerID) (domain.BranchInfo, bool)
	DetachAll() int
}

// SignalSender publishes outbound messages to the signaling server.
type SignalSender interface {
	Send(msg domain.Outbound) error
}

// CommandHandler consumes control commands relayed through signaling.
type CommandHandler interface {
	Handle(cmd domain.Command)
}

// EventSink observes session lifecycle outcomes. Sinks run outside the
// negotiation state machine; implementations must not call back into the
// manager synchronously.
type EventSink interface {
	PeerConnected(peerID domain.PeerID, source domain.Source)
	PeerDisconnected(peerID domain.PeerID)
	PeerFailed(peerID domain.PeerID, reason string)
}
