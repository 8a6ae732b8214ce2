package ports

import "camgate/internal/core/domain"

// PeerHandlers receive negotiation completions. The engine may invoke them
// from its own threads; consumers must serialize before touching shared state.
type PeerHandlers struct {
	OnOfferCreated  func(sdp string)
	OnAnswerCreated func(sdp string)
	OnICECandidate  func(candidate string, mlineIndex int)
	OnConnected     func()
	OnError         func(err error)
}

// NegotiationEngine creates per-viewer negotiation peers. localPort is the
// UDP port the peer's media branch feeds.
type NegotiationEngine interface {
	NewPeer(peerID domain.PeerID, localPort int, handlers PeerHandlers) (NegotiationPeer, error)
}

// NegotiationPeer wraps one offer/answer exchange. CreateOffer, CreateAnswer
// and SetRemoteDescription enqueue work and return immediately; results
// arrive through the PeerHandlers. Close is idempotent and suppresses any
// callback that would fire afterwards.
type NegotiationPeer interface {
	CreateOffer() error
	CreateAnswer() error
	SetRemoteDescription(kind, sdp string) error
	AddICECandidate(candidate string, mlineIndex int) error
	Stats() domain.SessionStats
	Close() error
}
