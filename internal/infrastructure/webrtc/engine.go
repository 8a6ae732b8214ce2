package webrtc

import (
	"fmt"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"
	apperrors "camgate/pkg/errors"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// EngineConfig carries the ICE server settings for every peer connection.
type EngineConfig struct {
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPassword string
}

// Engine creates pion peer connections that stream the camera's H264
// elementary stream. One engine serves all sessions; each peer gets its own
// connection and local track fed from the branch's UDP port.
type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    *zap.SugaredLogger
}

func NewEngine(cfg EngineConfig, log *zap.SugaredLogger) (*Engine, error) {
	m := &webrtc.MediaEngine{}

	// The camera encoder emits baseline H264; offering exactly that codec
	// keeps the SDP small and avoids transcoding on answer.
	h264 := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 96,
	}
	if err := m.RegisterCodec(h264, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "codec registration failed")
	}

	var iceServers []webrtc.ICEServer
	if cfg.STUNServer != "" {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{cfg.STUNServer}})
	}
	if cfg.TURNServer != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNServer},
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPassword,
		})
	}

	return &Engine{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: webrtc.Configuration{ICEServers: iceServers},
		log:    log,
	}, nil
}

// NewPeer builds the peer connection, its outbound video track and the UDP
// bridge pumping the media branch into that track.
func (e *Engine) NewPeer(peerID domain.PeerID, localPort int, handlers ports.PeerHandlers) (ports.NegotiationPeer, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "peer connection create failed")
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video",
		fmt.Sprintf("camgate-%s", peerID),
	)
	if err != nil {
		pc.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "local track create failed")
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "add track failed")
	}

	bridge, err := newRTPBridge(localPort, track, e.log.With("peer_id", string(peerID)))
	if err != nil {
		pc.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNegotiation, "rtp bridge failed").
			WithContext("port", localPort)
	}

	p := &peer{
		id:       peerID,
		pc:       pc,
		bridge:   bridge,
		handlers: handlers,
		log:      e.log.With("peer_id", string(peerID)),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// Gathering complete marker.
			return
		}
		init := c.ToJSON()
		index := 0
		if init.SDPMLineIndex != nil {
			index = int(*init.SDPMLineIndex)
		}
		if cb := handlers.OnICECandidate; cb != nil {
			cb(init.Candidate, index)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debugw("connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if cb := handlers.OnConnected; cb != nil {
				cb()
			}
		case webrtc.PeerConnectionStateFailed:
			if cb := handlers.OnError; cb != nil {
				cb(fmt.Errorf("peer connection failed: %w", domain.ErrNegotiationFailed))
			}
		}
	})

	go p.drainRTCP(sender)
	bridge.start()

	return p, nil
}
