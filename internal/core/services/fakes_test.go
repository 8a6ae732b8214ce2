package services

import (
	"fmt"
	"sync"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"
)

// fakeGraph is an in-memory ports.MediaGraph. It starts ready with the four
// distribution points the default graph exposes.
type fakeGraph struct {
	mu         sync.Mutex
	ready      bool
	elements   map[string]struct{}
	attachErr  error
	detachErr  error
	attached   []*fakeBranch
	detachLog  []string
	attachOrds []string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		ready: true,
		elements: map[string]struct{}{
			"dist_main_enc_0": {},
			"dist_main_enc_1": {},
			"dist_sub_enc_0":  {},
			"dist_sub_enc_1":  {},
		},
	}
}

type fakeBranch struct {
	point string
	port  int
}

func (b *fakeBranch) DistributionPoint() string { return b.point }
func (b *fakeBranch) Port() int                 { return b.port }

type fakeElement struct{ name string }

func (e fakeElement) Name() string { return e.name }

func (g *fakeGraph) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *fakeGraph) AttachBranch(point string, port int) (ports.BranchHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attachErr != nil {
		return nil, g.attachErr
	}
	b := &fakeBranch{point: point, port: port}
	g.attached = append(g.attached, b)
	g.attachOrds = append(g.attachOrds, fmt.Sprintf("%s:%d", point, port))
	return b, nil
}

func (g *fakeGraph) DetachBranch(handle ports.BranchHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detachLog = append(g.detachLog, fmt.Sprintf("%s:%d", handle.DistributionPoint(), handle.Port()))
	if g.detachErr != nil {
		return g.detachErr
	}
	for i, b := range g.attached {
		if b == handle {
			g.attached = append(g.attached[:i], g.attached[i+1:]...)
			break
		}
	}
	return nil
}

func (g *fakeGraph) QueryElement(name string) (ports.ElementHandle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.elements[name]; ok {
		return fakeElement{name: name}, true
	}
	return nil, false
}

func (g *fakeGraph) AddProbe(element, pad string, cb ports.ProbeCallback) error {
	return nil
}

func (g *fakeGraph) liveBranches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.attached)
}

// fakeEngine hands out synchronous fakePeers: CreateOffer and CreateAnswer
// complete inline through the handlers, which mimics an engine completing on
// the caller's goroutine and exercises the strictest reentrancy case.
type fakeEngine struct {
	mu         sync.Mutex
	newPeerErr error
	peers      map[domain.PeerID]*fakePeer
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{peers: make(map[domain.PeerID]*fakePeer)}
}

func (e *fakeEngine) NewPeer(peerID domain.PeerID, localPort int, handlers ports.PeerHandlers) (ports.NegotiationPeer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.newPeerErr != nil {
		return nil, e.newPeerErr
	}
	p := &fakePeer{peerID: peerID, localPort: localPort, handlers: handlers}
	e.peers[peerID] = p
	return p, nil
}

func (e *fakeEngine) peer(peerID domain.PeerID) *fakePeer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peers[peerID]
}

type fakePeer struct {
	peerID    domain.PeerID
	localPort int
	handlers  ports.PeerHandlers

	mu         sync.Mutex
	calls      []string
	candidates []string
	closed     bool

	offerErr   error
	answerErr  error
	remoteErr  error
	iceErr     error
	deferOffer bool
	stats      domain.SessionStats
	onClose    func()
}

func (p *fakePeer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePeer) CreateOffer() error {
	p.record("create_offer")
	if p.offerErr != nil {
		return p.offerErr
	}
	if p.deferOffer {
		return nil
	}
	if p.handlers.OnOfferCreated != nil {
		p.handlers.OnOfferCreated("v=0 offer " + string(p.peerID))
	}
	return nil
}

// completeOffer fires the deferred offer completion.
func (p *fakePeer) completeOffer() {
	if p.handlers.OnOfferCreated != nil {
		p.handlers.OnOfferCreated("v=0 offer " + string(p.peerID))
	}
}

func (p *fakePeer) CreateAnswer() error {
	p.record("create_answer")
	if p.answerErr != nil {
		return p.answerErr
	}
	if p.handlers.OnAnswerCreated != nil {
		p.handlers.OnAnswerCreated("v=0 answer " + string(p.peerID))
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(kind, sdp string) error {
	p.record("set_remote_" + kind)
	return p.remoteErr
}

func (p *fakePeer) AddICECandidate(candidate string, mlineIndex int) error {
	p.record("add_candidate")
	if p.iceErr != nil {
		return p.iceErr
	}
	p.mu.Lock()
	p.candidates = append(p.candidates, candidate)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Stats() domain.SessionStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	hook := p.onClose
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *fakePeer) appliedCandidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.candidates))
	copy(out, p.candidates)
	return out
}

// fakeSender records outbound signaling messages.
type fakeSender struct {
	mu   sync.Mutex
	sent []domain.Outbound
	err  error
}

func (s *fakeSender) Send(msg domain.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) messages() []domain.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Outbound, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSender) offers() []domain.Offer {
	var out []domain.Offer
	for _, m := range s.messages() {
		if o, ok := m.(domain.Offer); ok {
			out = append(out, o)
		}
	}
	return out
}

// fakeSink records lifecycle notifications.
type fakeSink struct {
	mu           sync.Mutex
	connected    []domain.PeerID
	disconnected []domain.PeerID
	failed       map[domain.PeerID]string
}

func newFakeSink() *fakeSink {
	return &fakeSink{failed: make(map[domain.PeerID]string)}
}

func (s *fakeSink) PeerConnected(peerID domain.PeerID, source domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = append(s.connected, peerID)
}

func (s *fakeSink) PeerDisconnected(peerID domain.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = append(s.disconnected, peerID)
}

func (s *fakeSink) PeerFailed(peerID domain.PeerID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[peerID] = reason
}

func (s *fakeSink) failReason(peerID domain.PeerID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.failed[peerID]
	return r, ok
}

func (s *fakeSink) disconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.disconnected)
}
