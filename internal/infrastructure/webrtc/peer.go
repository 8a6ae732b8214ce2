package webrtc

import (
	"errors"
	"io"
	"sync"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"
	apperrors "camgate/pkg/errors"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// peer is the engine-side half of one session. The session layer serializes
// negotiation calls; closed is checked so engine callbacks racing Close stay
// quiet.
type peer struct {
	id       domain.PeerID
	pc       *webrtc.PeerConnection
	bridge   *rtpBridge
	handlers ports.PeerHandlers
	log      *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// CreateOffer produces the local description and delivers it through
// OnOfferCreated. The offer is sent before ICE gathering completes;
// candidates trickle separately.
func (p *peer) CreateOffer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "create offer failed")
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "set local description failed")
	}

	if p.isClosed() {
		return domain.ErrSessionClosed
	}
	if cb := p.handlers.OnOfferCreated; cb != nil {
		cb(p.pc.LocalDescription().SDP)
	}
	return nil
}

// CreateAnswer answers a previously applied remote offer.
func (p *peer) CreateAnswer() error {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "create answer failed")
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "set local description failed")
	}

	if p.isClosed() {
		return domain.ErrSessionClosed
	}
	if cb := p.handlers.OnAnswerCreated; cb != nil {
		cb(p.pc.LocalDescription().SDP)
	}
	return nil
}

func (p *peer) SetRemoteDescription(kind, sdp string) error {
	var sdpType webrtc.SDPType
	switch kind {
	case "offer":
		sdpType = webrtc.SDPTypeOffer
	case "answer":
		sdpType = webrtc.SDPTypeAnswer
	default:
		return apperrors.NewNegotiationError("unknown description kind: " + kind)
	}

	desc := webrtc.SessionDescription{Type: sdpType, SDP: sdp}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "set remote description failed")
	}
	return nil
}

func (p *peer) AddICECandidate(candidate string, mlineIndex int) error {
	index := uint16(mlineIndex)
	init := webrtc.ICECandidateInit{Candidate: candidate, SDPMLineIndex: &index}
	if err := p.pc.AddICECandidate(init); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "add ice candidate failed")
	}
	return nil
}

func (p *peer) Stats() domain.SessionStats {
	return p.bridge.stats()
}

// Close releases the connection and the media bridge. Idempotent.
func (p *peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.bridge.stop()
	if err := p.pc.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "peer connection close failed")
	}
	return nil
}

func (p *peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// drainRTCP keeps the receive side of the sender alive and surfaces keyframe
// requests from the viewer.
func (p *peer) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !p.isClosed() {
				p.log.Debugw("rtcp read ended", "error", err)
			}
			return
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range packets {
			if _, ok := pkt.(*rtcp.PictureLossIndication); ok {
				// The shared encoder inserts keyframes on an interval;
				// per-viewer PLI is informational only.
				p.log.Debugw("viewer requested keyframe")
			}
		}
	}
}
