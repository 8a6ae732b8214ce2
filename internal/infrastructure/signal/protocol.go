package signal

import (
	"encoding/json"

	"camgate/internal/core/domain"
	apperrors "camgate/pkg/errors"
)

// Wire actions used by the signaling server. The envelope is shared by both
// directions; peerType is always "camera" for messages this gateway sends.
const (
	actionRegister       = "register"
	actionCamStatus      = "camstatus"
	actionCamStatusReply = "camstatus_reply"
	actionOffer          = "offer"
	actionAnswer         = "answer"
	actionCandidate      = "candidate"
	actionPeerJoined     = "ROOM_PEER_JOINED"
	actionPeerLeft       = "ROOM_PEER_LEFT"
	actionSendCamera     = "send_camera"
)

const peerTypeCamera = "camera"

type envelope struct {
	PeerType string          `json:"peerType"`
	Action   string          `json:"action"`
	Message  json.RawMessage `json:"message,omitempty"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

type peerJoinedMessage struct {
	PeerID string `json:"peer_id"`
	Source string `json:"source,omitempty"`
}

type peerLeftMessage struct {
	PeerID string `json:"peer_id"`
}

type descriptionMessage struct {
	PeerID string     `json:"peer_id"`
	SDP    sdpPayload `json:"sdp"`
}

type candidateMessage struct {
	PeerID string     `json:"peer_id"`
	ICE    icePayload `json:"ice"`
}

// inboundCandidateMessage keeps the index as a pointer so a frame that omits
// sdpMLineIndex is distinguishable from index 0 and can be rejected.
type inboundCandidateMessage struct {
	PeerID string `json:"peer_id"`
	ICE    struct {
		Candidate     string `json:"candidate"`
		SDPMLineIndex *int   `json:"sdpMLineIndex"`
	} `json:"ice"`
}

// Command subsystems the server addresses by nested key inside a send_camera
// message, in the order they are probed.
var commandSubsystems = []string{"ptz", "record", "custom_command"}

type registerMessage struct {
	Name      string `json:"name"`
	FWVersion string `json:"fw_version"`
	AIVersion string `json:"ai_version"`
	Token     string `json:"token,omitempty"`
}

type camStatusMessage struct {
	RecStatus       string `json:"rec_status"`
	RecUsage        int    `json:"rec_usage"`
	CPUTemp         int    `json:"cpu_temp"`
	GPUTemp         int    `json:"gpu_temp"`
	RGBSnapshot     string `json:"rgb_snapshot,omitempty"`
	ThermalSnapshot string `json:"thermal_snapshot,omitempty"`
}

// Codec translates between wire frames and domain signaling values.
// Stateless; safe for concurrent use.
type Codec struct{}

// Decode parses one inbound frame. Frames with an action the gateway does
// not act on decode to domain.Ack so that callers can drop them uniformly;
// malformed JSON is a parse error.
func (Codec) Decode(data []byte) (domain.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeParse, "malformed signaling frame")
	}

	switch env.Action {
	case actionPeerJoined:
		var msg peerJoinedMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeParse, "malformed peer join")
		}
		if msg.PeerID == "" {
			return nil, apperrors.NewParseError("peer join without peer_id")
		}
		return domain.PeerJoined{PeerID: domain.PeerID(msg.PeerID), Source: msg.Source}, nil

	case actionPeerLeft:
		var msg peerLeftMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeParse, "malformed peer leave")
		}
		if msg.PeerID == "" {
			return nil, apperrors.NewParseError("peer leave without peer_id")
		}
		return domain.PeerLeft{PeerID: domain.PeerID(msg.PeerID)}, nil

	case actionAnswer:
		var msg descriptionMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeParse, "malformed answer")
		}
		if msg.PeerID == "" || msg.SDP.SDP == "" {
			return nil, apperrors.NewParseError("answer without peer_id or sdp")
		}
		return domain.RemoteAnswer{PeerID: domain.PeerID(msg.PeerID), SDP: msg.SDP.SDP}, nil

	case actionOffer:
		var msg descriptionMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeParse, "malformed offer")
		}
		if msg.PeerID == "" || msg.SDP.SDP == "" {
			return nil, apperrors.NewParseError("offer without peer_id or sdp")
		}
		return domain.RemoteOffer{PeerID: domain.PeerID(msg.PeerID), SDP: msg.SDP.SDP}, nil

	case actionCandidate:
		var msg inboundCandidateMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeParse, "malformed candidate")
		}
		if msg.PeerID == "" || msg.ICE.Candidate == "" {
			return nil, apperrors.NewParseError("candidate without peer_id or ice")
		}
		if msg.ICE.SDPMLineIndex == nil || *msg.ICE.SDPMLineIndex < 0 {
			return nil, apperrors.NewParseError("candidate without valid sdpMLineIndex")
		}
		return domain.RemoteCandidate{
			PeerID:     domain.PeerID(msg.PeerID),
			Candidate:  msg.ICE.Candidate,
			MLineIndex: *msg.ICE.SDPMLineIndex,
		}, nil

	case actionSendCamera:
		var msg map[string]json.RawMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeParse, "malformed camera command")
		}
		var peerID string
		if raw, ok := msg["peer_id"]; ok {
			json.Unmarshal(raw, &peerID)
		}
		for _, name := range commandSubsystems {
			raw, ok := msg[name]
			if !ok {
				continue
			}
			return domain.Command{
				PeerID:     domain.PeerID(peerID),
				Name:       name,
				Parameters: commandParameters(raw),
			}, nil
		}
		return nil, apperrors.NewParseError("camera command without known subsystem")

	default:
		// camstatus_reply and anything newer than this gateway.
		return domain.Ack{Action: env.Action}, nil
	}
}

// commandParameters normalizes the subsystem payload. Servers usually send an
// object; a scalar payload (the legacy PTZ string form) is kept under "value".
func commandParameters(raw json.RawMessage) map[string]any {
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err == nil {
		return params
	}
	var scalar any
	if err := json.Unmarshal(raw, &scalar); err == nil && scalar != nil {
		return map[string]any{"value": scalar}
	}
	return map[string]any{}
}

// Encode renders one outbound message as a wire frame.
func (Codec) Encode(msg domain.Outbound) ([]byte, error) {
	var (
		action  string
		payload any
	)

	switch m := msg.(type) {
	case domain.Registration:
		action = actionRegister
		payload = registerMessage{
			Name:      m.CameraID,
			FWVersion: m.FirmwareVersion,
			AIVersion: m.AIVersion,
			Token:     m.Token,
		}
	case domain.StatusReport:
		action = actionCamStatus
		payload = camStatusMessage{
			RecStatus:       m.RecordStatus,
			RecUsage:        m.RecordUsage,
			CPUTemp:         m.CPUTemp,
			GPUTemp:         m.GPUTemp,
			RGBSnapshot:     m.RGBSnapshot,
			ThermalSnapshot: m.ThermalSnapshot,
		}
	case domain.Offer:
		action = actionOffer
		payload = descriptionMessage{
			PeerID: string(m.PeerID),
			SDP:    sdpPayload{Type: "offer", SDP: m.SDP},
		}
	case domain.LocalAnswer:
		action = actionAnswer
		payload = descriptionMessage{
			PeerID: string(m.PeerID),
			SDP:    sdpPayload{Type: "answer", SDP: m.SDP},
		}
	case domain.IceCandidate:
		action = actionCandidate
		payload = candidateMessage{
			PeerID: string(m.PeerID),
			ICE:    icePayload{Candidate: m.Candidate, SDPMLineIndex: m.MLineIndex},
		}
	default:
		return nil, apperrors.NewInternalError("unsupported outbound message type")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "payload marshal failed")
	}
	return json.Marshal(envelope{PeerType: peerTypeCamera, Action: action, Message: raw})
}
