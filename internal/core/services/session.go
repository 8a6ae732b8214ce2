package services

import (
	"context"
	"sync"
	"time"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	eventNegotiate = "negotiate"
	eventEstablish = "establish"
	eventFail      = "fail"
	eventClose     = "close"
)

// SessionCallbacks deliver session outcomes to the manager. They are invoked
// without any session lock held and may be called from engine goroutines.
type SessionCallbacks struct {
	OnLocalOffer     func(sdp string)
	OnLocalAnswer    func(sdp string)
	OnLocalCandidate func(candidate string, mlineIndex int)
	OnStateChange    func(old, new domain.SessionState)
	OnError          func(err error)
}

type pendingCandidate struct {
	candidate  string
	mlineIndex int
}

// Session wraps one viewer's negotiation exchange. Signaling inputs for a
// session arrive in order from the router; engine completions may arrive on
// arbitrary goroutines and are tolerated after close.
type Session struct {
	peerID domain.PeerID
	source domain.Source
	port   int

	machine   *fsm.FSM
	callbacks SessionCallbacks
	peer      ports.NegotiationPeer
	log       *zap.SugaredLogger

	mu            sync.Mutex
	pending       []pendingCandidate
	remoteApplied bool
	offerInFlight bool
	createdAt     time.Time
	lastActivity  time.Time
}

// NewSession constructs a session in the "new" state and creates its
// negotiation peer bound to the branch's UDP port.
func NewSession(
	peerID domain.PeerID,
	source domain.Source,
	port int,
	engine ports.NegotiationEngine,
	callbacks SessionCallbacks,
	log *zap.SugaredLogger,
) (*Session, error) {
	s := &Session{
		peerID:       peerID,
		source:       source,
		port:         port,
		callbacks:    callbacks,
		log:          log.With("peer_id", string(peerID)),
		createdAt:    time.Now(),
		lastActivity: time.Now(),
	}

	s.machine = fsm.NewFSM(
		string(domain.StateNew),
		fsm.Events{
			{Name: eventNegotiate, Src: []string{string(domain.StateNew)}, Dst: string(domain.StateNegotiating)},
			{Name: eventEstablish, Src: []string{string(domain.StateNegotiating)}, Dst: string(domain.StateConnected)},
			{Name: eventFail, Src: []string{string(domain.StateNew), string(domain.StateNegotiating), string(domain.StateConnected)}, Dst: string(domain.StateFailed)},
			{Name: eventClose, Src: []string{string(domain.StateNew), string(domain.StateNegotiating), string(domain.StateConnected), string(domain.StateFailed)}, Dst: string(domain.StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if cb := s.callbacks.OnStateChange; cb != nil {
					cb(domain.SessionState(e.Src), domain.SessionState(e.Dst))
				}
			},
		},
	)

	peer, err := engine.NewPeer(peerID, port, ports.PeerHandlers{
		OnOfferCreated:  s.handleOfferCreated,
		OnAnswerCreated: s.handleAnswerCreated,
		OnICECandidate:  s.handleLocalCandidate,
		OnError:         s.handleEngineError,
	})
	if err != nil {
		return nil, err
	}
	s.peer = peer

	return s, nil
}

// Start moves the session into negotiation and requests the local offer.
func (s *Session) Start() error {
	if err := s.machine.Event(context.Background(), eventNegotiate); err != nil {
		return err
	}
	return s.CreateLocalOffer()
}

// CreateLocalOffer asks the engine for a local description. At most one
// offer request may be outstanding per session.
func (s *Session) CreateLocalOffer() error {
	if s.terminal() {
		return domain.ErrSessionClosed
	}

	s.mu.Lock()
	if s.offerInFlight {
		s.mu.Unlock()
		return domain.ErrOfferInFlight
	}
	s.offerInFlight = true
	s.mu.Unlock()

	if err := s.peer.CreateOffer(); err != nil {
		s.mu.Lock()
		s.offerInFlight = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// ApplyRemoteDescription applies a remote offer or answer, then drains every
// candidate buffered before the description arrived, in arrival order.
func (s *Session) ApplyRemoteDescription(kind, sdp string) error {
	if s.terminal() {
		return domain.ErrSessionClosed
	}
	if kind == "answer" && s.State() != domain.StateNegotiating {
		return domain.ErrUnexpectedAnswer
	}

	if err := s.peer.SetRemoteDescription(kind, sdp); err != nil {
		return err
	}

	s.mu.Lock()
	s.remoteApplied = true
	s.lastActivity = time.Now()
	drained := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range drained {
		if err := s.peer.AddICECandidate(c.candidate, c.mlineIndex); err != nil {
			s.log.Warnw("failed to apply buffered candidate", "error", err)
		}
	}
	if len(drained) > 0 {
		s.log.Debugw("drained buffered candidates", "count", len(drained))
	}

	switch kind {
	case "answer":
		// Applying the answer is treated as connection established; ICE
		// connectivity is not awaited.
		if err := s.machine.Event(context.Background(), eventEstablish); err != nil {
			return err
		}
	case "offer":
		if err := s.peer.CreateAnswer(); err != nil {
			return err
		}
	}
	return nil
}

// AddRemoteCandidate applies a trickle-ICE candidate, buffering it when the
// remote description has not arrived yet. Buffered candidates are never
// dropped while the session lives.
func (s *Session) AddRemoteCandidate(candidate string, mlineIndex int) error {
	if s.terminal() {
		return domain.ErrSessionClosed
	}

	s.mu.Lock()
	s.lastActivity = time.Now()
	if !s.remoteApplied {
		s.pending = append(s.pending, pendingCandidate{candidate: candidate, mlineIndex: mlineIndex})
		n := len(s.pending)
		s.mu.Unlock()
		s.log.Debugw("buffered early candidate", "buffered", n)
		return nil
	}
	s.mu.Unlock()

	return s.peer.AddICECandidate(candidate, mlineIndex)
}

// Fail marks the session failed. The manager removes failed sessions.
func (s *Session) Fail() {
	_ = s.machine.Event(context.Background(), eventFail)
}

// Disconnect closes the session and releases the negotiation peer.
// Idempotent; late engine callbacks after close are ignored.
func (s *Session) Disconnect() {
	if s.State() == domain.StateClosed {
		return
	}
	_ = s.machine.Event(context.Background(), eventClose)

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	if err := s.peer.Close(); err != nil {
		s.log.Warnw("negotiation peer close failed", "error", err)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	return domain.SessionState(s.machine.Current())
}

// Info snapshots the session for the registry's read model.
func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	created := s.createdAt
	activity := s.lastActivity
	s.mu.Unlock()

	return domain.SessionInfo{
		PeerID:       s.peerID,
		Source:       s.source,
		State:        s.State(),
		Port:         s.port,
		CreatedAt:    created,
		LastActivity: activity,
		Stats:        s.peer.Stats(),
	}
}

// IdleSince reports how long the session has gone without signaling input.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

func (s *Session) terminal() bool {
	cur := s.State()
	return cur == domain.StateClosed || cur == domain.StateFailed
}

func (s *Session) handleOfferCreated(sdp string) {
	if s.terminal() {
		s.log.Debugw("ignoring offer completion for closed session")
		return
	}

	s.mu.Lock()
	s.offerInFlight = false
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if cb := s.callbacks.OnLocalOffer; cb != nil {
		cb(sdp)
	}
}

func (s *Session) handleAnswerCreated(sdp string) {
	if s.terminal() {
		return
	}

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if cb := s.callbacks.OnLocalAnswer; cb != nil {
		cb(sdp)
	}
}

func (s *Session) handleLocalCandidate(candidate string, mlineIndex int) {
	if s.terminal() {
		return
	}
	if cb := s.callbacks.OnLocalCandidate; cb != nil {
		cb(candidate, mlineIndex)
	}
}

func (s *Session) handleEngineError(err error) {
	if s.terminal() {
		// Completion racing teardown; benign.
		s.log.Debugw("ignoring engine error for closed session", "error", err)
		return
	}
	s.Fail()
	if cb := s.callbacks.OnError; cb != nil {
		cb(err)
	}
}
