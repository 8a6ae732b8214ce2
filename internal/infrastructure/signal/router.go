package signal

import (
	"context"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"

	"go.uber.org/zap"
)

// Router decodes inbound frames and drives the session manager and command
// handler. HandleFrame is called from the client's single read loop, which
// gives every session an ordered stream of signaling inputs.
type Router struct {
	codec    Codec
	sessions ports.SessionManager
	commands ports.CommandHandler // nil drops commands
	log      *zap.SugaredLogger
}

func NewRouter(sessions ports.SessionManager, commands ports.CommandHandler, log *zap.SugaredLogger) *Router {
	return &Router{sessions: sessions, commands: commands, log: log}
}

// HandleFrame processes one raw frame. Frame-level failures are logged and
// swallowed; a bad frame must never take the transport down.
func (r *Router) HandleFrame(ctx context.Context, data []byte) {
	event, err := r.codec.Decode(data)
	if err != nil {
		r.log.Warnw("dropping malformed frame", "error", err)
		return
	}

	switch e := event.(type) {
	case domain.PeerJoined:
		r.sessions.AddPeer(ctx, e.PeerID, e.Source)
	case domain.PeerLeft:
		r.sessions.RemovePeer(ctx, e.PeerID)
	case domain.RemoteAnswer:
		r.sessions.RouteRemoteAnswer(e.PeerID, e.SDP)
	case domain.RemoteOffer:
		r.sessions.RouteRemoteOffer(e.PeerID, e.SDP)
	case domain.RemoteCandidate:
		r.sessions.RouteRemoteCandidate(e.PeerID, e.Candidate, e.MLineIndex)
	case domain.Command:
		if r.commands != nil {
			r.commands.Handle(e)
		}
	case domain.Ack:
		r.log.Debugw("ignoring server ack", "action", e.Action)
	}
}
