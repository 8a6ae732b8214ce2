package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"
	"camgate/pkg/tracing"

	"go.uber.org/zap"
)

// ManagerMetrics receives session lifecycle counters. Implemented by the
// prometheus collector; nil disables metric reporting.
type ManagerMetrics interface {
	PeerAdded()
	PeerRemoved()
	PeerConnected()
	NegotiationDuration(d time.Duration)
}

// Manager owns the session registry: it serializes mutations of the
// collection, routes signaling to sessions and drives the branch controller
// in lockstep with session lifecycle. Branch attach/detach runs outside the
// registry lock; every out-of-lock step revalidates registry state and rolls
// back when it lost a race.
type Manager struct {
	engine   ports.NegotiationEngine
	branches ports.BranchController
	sender   ports.SignalSender
	sink     ports.EventSink // optional
	metrics  ManagerMetrics  // optional
	log      *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[domain.PeerID]*Session
	joining  map[domain.PeerID]struct{}
}

func NewManager(
	engine ports.NegotiationEngine,
	branches ports.BranchController,
	sender ports.SignalSender,
	sink ports.EventSink,
	metrics ManagerMetrics,
	log *zap.SugaredLogger,
) *Manager {
	return &Manager{
		engine:   engine,
		branches: branches,
		sender:   sender,
		sink:     sink,
		metrics:  metrics,
		log:      log,
		sessions: make(map[domain.PeerID]*Session),
		joining:  make(map[domain.PeerID]struct{}),
	}
}

// AddPeer creates the media branch and session for a newly joined viewer.
// Returns false on duplicate join or any setup failure; a failed join leaves
// no session reachable and no port held.
func (m *Manager) AddPeer(ctx context.Context, peerID domain.PeerID, selector string) bool {
	ctx, span := tracing.StartSpan(ctx, "manager.add_peer")
	defer span.End()
	span.SetAttributes(tracing.PeerIDKey.String(string(peerID)), tracing.SourceKey.String(selector))

	m.mu.Lock()
	_, live := m.sessions[peerID]
	_, inFlight := m.joining[peerID]
	if live || inFlight {
		m.mu.Unlock()
		m.log.Warnw("duplicate join ignored", "peer_id", peerID)
		return false
	}
	m.joining[peerID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.joining, peerID)
		m.mu.Unlock()
	}()

	source := domain.ParseSource(selector)
	start := time.Now()

	port, err := m.branches.Attach(peerID, source)
	if err != nil {
		tracing.RecordError(ctx, err)
		m.log.Warnw("branch attach rejected", "peer_id", peerID, "source", selector, "error", err)
		return false
	}

	sess, err := NewSession(peerID, source, port, m.engine, m.sessionCallbacks(peerID, start), m.log)
	if err != nil {
		m.branches.Detach(peerID)
		tracing.RecordError(ctx, err)
		m.log.Errorw("negotiation peer creation failed", "peer_id", peerID, "error", err)
		return false
	}

	m.mu.Lock()
	m.sessions[peerID] = sess
	m.mu.Unlock()

	if err := sess.Start(); err != nil {
		m.mu.Lock()
		delete(m.sessions, peerID)
		m.mu.Unlock()
		sess.Disconnect()
		m.branches.Detach(peerID)
		tracing.RecordError(ctx, err)
		m.log.Errorw("session start failed", "peer_id", peerID, "error", err)
		return false
	}

	if m.metrics != nil {
		m.metrics.PeerAdded()
	}
	m.log.Infow("peer added",
		"peer_id", peerID,
		"device", source.Device.String(),
		"quality", source.Quality.String(),
		"port", port,
	)
	return true
}

// RemovePeer tears a viewer down: session disconnect first, branch detach
// second, so the negotiation engine stops referencing the media endpoints
// before they disappear. Duplicate removal is tolerated.
func (m *Manager) RemovePeer(ctx context.Context, peerID domain.PeerID) bool {
	return m.remove(ctx, peerID, "")
}

func (m *Manager) remove(ctx context.Context, peerID domain.PeerID, failReason string) bool {
	_, span := tracing.StartSpan(ctx, "manager.remove_peer")
	defer span.End()
	span.SetAttributes(tracing.PeerIDKey.String(string(peerID)))

	m.mu.Lock()
	sess, ok := m.sessions[peerID]
	if ok {
		delete(m.sessions, peerID)
	}
	m.mu.Unlock()

	if !ok {
		m.log.Warnw("remove for unknown peer ignored", "peer_id", peerID)
		return false
	}

	sess.Disconnect()
	m.branches.Detach(peerID)

	if m.metrics != nil {
		m.metrics.PeerRemoved()
	}
	if m.sink != nil {
		if failReason != "" {
			m.sink.PeerFailed(peerID, failReason)
		} else {
			m.sink.PeerDisconnected(peerID)
		}
	}
	m.log.Infow("peer removed", "peer_id", peerID, "failed", failReason != "")
	return true
}

// RemoveAll removes every session. Iterates over a snapshot so that
// callback-driven removals during teardown cannot corrupt the walk.
func (m *Manager) RemoveAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]domain.PeerID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	m.log.Infow("removing all peers", "count", len(ids))
	for _, id := range ids {
		m.RemovePeer(ctx, id)
	}
}

// RouteRemoteAnswer delivers a remote answer to the viewer's session. An
// unknown viewer is an expected race with removal, not an error.
func (m *Manager) RouteRemoteAnswer(peerID domain.PeerID, sdp string) {
	sess := m.lookup(peerID)
	if sess == nil {
		m.log.Debugw("answer for unknown peer dropped", "peer_id", peerID)
		return
	}
	if err := sess.ApplyRemoteDescription("answer", sdp); err != nil {
		m.routeFailure(peerID, sess, err)
	}
}

// RouteRemoteOffer delivers a remote offer, triggering local answer creation.
func (m *Manager) RouteRemoteOffer(peerID domain.PeerID, sdp string) {
	sess := m.lookup(peerID)
	if sess == nil {
		m.log.Debugw("offer for unknown peer dropped", "peer_id", peerID)
		return
	}
	if err := sess.ApplyRemoteDescription("offer", sdp); err != nil {
		m.routeFailure(peerID, sess, err)
	}
}

// RouteRemoteCandidate delivers a trickle-ICE candidate.
func (m *Manager) RouteRemoteCandidate(peerID domain.PeerID, candidate string, mlineIndex int) {
	sess := m.lookup(peerID)
	if sess == nil {
		m.log.Debugw("candidate for unknown peer dropped", "peer_id", peerID)
		return
	}
	if err := sess.AddRemoteCandidate(candidate, mlineIndex); err != nil {
		m.log.Warnw("candidate rejected", "peer_id", peerID, "error", err)
	}
}

// PeerInfo returns the registry's view of one session.
func (m *Manager) PeerInfo(peerID domain.PeerID) (domain.SessionInfo, bool) {
	sess := m.lookup(peerID)
	if sess == nil {
		return domain.SessionInfo{}, false
	}
	return sess.Info(), true
}

// Peers snapshots all live sessions.
func (m *Manager) Peers() []domain.SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]domain.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Stats aggregates counters across live sessions.
func (m *Manager) Stats() domain.GatewayStats {
	var stats domain.GatewayStats
	for _, info := range m.Peers() {
		stats.TotalPeers++
		if info.State == domain.StateConnected {
			stats.ConnectedPeers++
			stats.TotalBytesSent += info.Stats.BytesSent
			stats.AverageBitrate += info.Stats.Bitrate
		}
	}
	if stats.ConnectedPeers > 0 {
		stats.AverageBitrate /= float64(stats.ConnectedPeers)
	}
	return stats
}

// StartReaper launches the idle-session sweep: sessions stuck in negotiation
// beyond idleTimeout are removed. Disabled when either duration is zero.
func (m *Manager) StartReaper(ctx context.Context, interval, idleTimeout time.Duration) {
	if interval <= 0 || idleTimeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.reapIdle(ctx, now, idleTimeout)
			}
		}
	}()
}

func (m *Manager) reapIdle(ctx context.Context, now time.Time, idleTimeout time.Duration) {
	m.mu.Lock()
	stale := make([]domain.PeerID, 0)
	for id, sess := range m.sessions {
		if sess.State() == domain.StateNegotiating && sess.IdleSince(now) > idleTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.log.Warnw("reaping idle negotiating session", "peer_id", id)
		m.RemovePeer(ctx, id)
	}
}

func (m *Manager) lookup(peerID domain.PeerID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[peerID]
}

// routeFailure handles errors from applying routed signaling. Inputs that
// are merely out of order or late are logged and dropped; engine failures
// fail the session and tear it down.
func (m *Manager) routeFailure(peerID domain.PeerID, sess *Session, err error) {
	if errors.Is(err, domain.ErrSessionClosed) || errors.Is(err, domain.ErrUnexpectedAnswer) {
		m.log.Warnw("signaling input dropped", "peer_id", peerID, "error", err)
		return
	}
	m.log.Errorw("negotiation failed", "peer_id", peerID, "error", err)
	sess.Fail()
	m.remove(context.Background(), peerID, err.Error())
}

func (m *Manager) sessionCallbacks(peerID domain.PeerID, start time.Time) SessionCallbacks {
	return SessionCallbacks{
		OnLocalOffer: func(sdp string) {
			if err := m.sender.Send(domain.Offer{PeerID: peerID, SDP: sdp}); err != nil {
				m.log.Errorw("offer send failed", "peer_id", peerID, "error", err)
			}
		},
		OnLocalAnswer: func(sdp string) {
			if err := m.sender.Send(domain.LocalAnswer{PeerID: peerID, SDP: sdp}); err != nil {
				m.log.Errorw("answer send failed", "peer_id", peerID, "error", err)
			}
		},
		OnLocalCandidate: func(candidate string, mlineIndex int) {
			if err := m.sender.Send(domain.IceCandidate{PeerID: peerID, Candidate: candidate, MLineIndex: mlineIndex}); err != nil {
				m.log.Errorw("candidate send failed", "peer_id", peerID, "error", err)
			}
		},
		OnStateChange: func(old, new domain.SessionState) {
			m.log.Infow("session state changed", "peer_id", peerID, "from", old, "to", new)
			if new == domain.StateConnected {
				if m.metrics != nil {
					m.metrics.PeerConnected()
					m.metrics.NegotiationDuration(time.Since(start))
				}
				if m.sink != nil {
					if info, ok := m.PeerInfo(peerID); ok {
						m.sink.PeerConnected(peerID, info.Source)
					}
				}
			}
		},
		OnError: func(err error) {
			m.log.Errorw("session error, scheduling teardown", "peer_id", peerID, "error", err)
			// The callback may fire while session-internal locks are held;
			// removal happens on a fresh goroutine.
			go m.remove(context.Background(), peerID, err.Error())
		},
	}
}
