package signal

import (
	"encoding/json"
	"testing"

	"camgate/internal/core/domain"
	apperrors "camgate/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePeerJoined(t *testing.T) {
	frame := `{"peerType":"server","action":"ROOM_PEER_JOINED","message":{"peer_id":"viewer-7","source":"thermal/sub"}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)

	joined, ok := event.(domain.PeerJoined)
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("viewer-7"), joined.PeerID)
	assert.Equal(t, "thermal/sub", joined.Source)
}

func TestDecodePeerJoinedWithoutSource(t *testing.T) {
	frame := `{"action":"ROOM_PEER_JOINED","message":{"peer_id":"viewer-1"}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, domain.PeerJoined{PeerID: "viewer-1"}, event)
}

func TestDecodePeerLeft(t *testing.T) {
	frame := `{"action":"ROOM_PEER_LEFT","message":{"peer_id":"viewer-7"}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, domain.PeerLeft{PeerID: "viewer-7"}, event)
}

func TestDecodeAnswerNestedSDP(t *testing.T) {
	frame := `{"action":"answer","message":{"peer_id":"viewer-7","sdp":{"type":"answer","sdp":"v=0\r\nremote"}}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)

	answer, ok := event.(domain.RemoteAnswer)
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("viewer-7"), answer.PeerID)
	assert.Equal(t, "v=0\r\nremote", answer.SDP)
}

func TestDecodeCandidate(t *testing.T) {
	frame := `{"action":"candidate","message":{"peer_id":"viewer-7","ice":{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 5000 typ host","sdpMLineIndex":1}}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)

	cand, ok := event.(domain.RemoteCandidate)
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("viewer-7"), cand.PeerID)
	assert.Equal(t, 1, cand.MLineIndex)
	assert.Contains(t, cand.Candidate, "typ host")
}

func TestDecodeCandidateRequiresIndex(t *testing.T) {
	frame := `{"action":"candidate","message":{"peer_id":"viewer-7","ice":{"candidate":"candidate:1"}}}`

	_, err := Codec{}.Decode([]byte(frame))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeParse))
}

func TestDecodeCandidateRejectsNegativeIndex(t *testing.T) {
	frame := `{"action":"candidate","message":{"peer_id":"viewer-7","ice":{"candidate":"candidate:1","sdpMLineIndex":-1}}}`

	_, err := Codec{}.Decode([]byte(frame))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeParse))
}

func TestDecodePtzCommand(t *testing.T) {
	frame := `{"action":"send_camera","message":{"peer_id":"op-1","ptz":{"direction":"left","speed":40}}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)

	cmd, ok := event.(domain.Command)
	require.True(t, ok)
	assert.Equal(t, "ptz", cmd.Name)
	assert.Equal(t, domain.PeerID("op-1"), cmd.PeerID)
	assert.Equal(t, "left", cmd.Parameters["direction"])
	assert.Equal(t, float64(40), cmd.Parameters["speed"])
}

func TestDecodeRecordCommand(t *testing.T) {
	frame := `{"action":"send_camera","message":{"peer_id":"op-1","record":{"action":"start","reason":"intrusion"}}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)

	cmd, ok := event.(domain.Command)
	require.True(t, ok)
	assert.Equal(t, "record", cmd.Name)
	assert.Equal(t, "start", cmd.Parameters["action"])
	assert.Equal(t, "intrusion", cmd.Parameters["reason"])
}

func TestDecodeCustomCommand(t *testing.T) {
	frame := `{"action":"send_camera","message":{"peer_id":"op-1","custom_command":{"command":"restart_encoder"}}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)

	cmd, ok := event.(domain.Command)
	require.True(t, ok)
	assert.Equal(t, "custom_command", cmd.Name)
	assert.Equal(t, "restart_encoder", cmd.Parameters["command"])
}

func TestDecodeScalarCommandPayload(t *testing.T) {
	frame := `{"action":"send_camera","message":{"peer_id":"op-1","ptz":"stop"}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)

	cmd, ok := event.(domain.Command)
	require.True(t, ok)
	assert.Equal(t, "ptz", cmd.Name)
	assert.Equal(t, "stop", cmd.Parameters["value"])
}

func TestDecodeStatusReplyIsAck(t *testing.T) {
	frame := `{"action":"camstatus_reply","message":{"ok":true}}`

	event, err := Codec{}.Decode([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, domain.Ack{Action: "camstatus_reply"}, event)
}

func TestDecodeUnknownActionIsAck(t *testing.T) {
	event, err := Codec{}.Decode([]byte(`{"action":"future_thing","message":{}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.Ack{Action: "future_thing"}, event)
}

func TestDecodeMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"not json":           `{"action":`,
		"join no peer":       `{"action":"ROOM_PEER_JOINED","message":{}}`,
		"leave no peer":      `{"action":"ROOM_PEER_LEFT","message":{}}`,
		"answer no sdp":      `{"action":"answer","message":{"peer_id":"x"}}`,
		"candidate no ice":   `{"action":"candidate","message":{"peer_id":"x"}}`,
		"candidate no index": `{"action":"candidate","message":{"peer_id":"x","ice":{"candidate":"candidate:1"}}}`,
		"command no subsys":  `{"action":"send_camera","message":{"peer_id":"x"}}`,
		"answer message num": `{"action":"answer","message":42}`,
	}

	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Codec{}.Decode([]byte(frame))
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeParse))
		})
	}
}

func TestEncodeRegistration(t *testing.T) {
	data, err := Codec{}.Encode(domain.Registration{
		CameraID:        "cam-042",
		FirmwareVersion: "2.4.1",
		AIVersion:       "1.9.0",
		Token:           "jwt-token",
	})
	require.NoError(t, err)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &env))
	assert.JSONEq(t, `"camera"`, string(env["peerType"]))
	assert.JSONEq(t, `"register"`, string(env["action"]))
	assert.JSONEq(t, `{"name":"cam-042","fw_version":"2.4.1","ai_version":"1.9.0","token":"jwt-token"}`, string(env["message"]))
}

func TestEncodeOfferNestsSDP(t *testing.T) {
	data, err := Codec{}.Encode(domain.Offer{PeerID: "viewer-7", SDP: "v=0 local"})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"peerType":"camera",
		"action":"offer",
		"message":{"peer_id":"viewer-7","sdp":{"type":"offer","sdp":"v=0 local"}}
	}`, string(data))
}

func TestEncodeCandidate(t *testing.T) {
	data, err := Codec{}.Encode(domain.IceCandidate{PeerID: "viewer-7", Candidate: "candidate:1", MLineIndex: 2})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"peerType":"camera",
		"action":"candidate",
		"message":{"peer_id":"viewer-7","ice":{"candidate":"candidate:1","sdpMLineIndex":2}}
	}`, string(data))
}

func TestEncodeStatusReport(t *testing.T) {
	data, err := Codec{}.Encode(domain.StatusReport{
		RecordStatus: "recording",
		RecordUsage:  63,
		CPUTemp:      55,
		GPUTemp:      61,
	})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "camstatus", env.Action)
	assert.JSONEq(t, `{"rec_status":"recording","rec_usage":63,"cpu_temp":55,"gpu_temp":61}`, string(env.Message))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// What the gateway sends as a candidate must decode back to the same
	// values on a peer that speaks the same protocol.
	data, err := Codec{}.Encode(domain.IceCandidate{PeerID: "p", Candidate: "candidate:9", MLineIndex: 0})
	require.NoError(t, err)

	event, err := Codec{}.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteCandidate{PeerID: "p", Candidate: "candidate:9", MLineIndex: 0}, event)
}
