package domain

// Event is the decoded form of one inbound signaling message. The router
// produces exactly one variant per wire message; fields are immutable after
// decode.
type Event interface{ isEvent() }

type PeerJoined struct {
	PeerID PeerID
	Source string
}

type PeerLeft struct {
	PeerID PeerID
}

type RemoteAnswer struct {
	PeerID PeerID
	SDP    string
}

type RemoteOffer struct {
	PeerID PeerID
	SDP    string
}

type RemoteCandidate struct {
	PeerID     PeerID
	Candidate  string
	MLineIndex int
}

// Command carries a control instruction relayed through signaling
// (PTZ movement, recording control, ad-hoc device commands).
type Command struct {
	PeerID     PeerID
	Name       string
	Parameters map[string]any
}

// Ack covers server replies that carry no work for the gateway.
type Ack struct {
	Action string
}

func (PeerJoined) isEvent()      {}
func (PeerLeft) isEvent()        {}
func (RemoteAnswer) isEvent()    {}
func (RemoteOffer) isEvent()     {}
func (RemoteCandidate) isEvent() {}
func (Command) isEvent()         {}
func (Ack) isEvent()             {}

// Outbound is a message the gateway asks the router to encode and send.
type Outbound interface{ isOutbound() }

type Offer struct {
	PeerID PeerID
	SDP    string
}

type LocalAnswer struct {
	PeerID PeerID
	SDP    string
}

type IceCandidate struct {
	PeerID     PeerID
	Candidate  string
	MLineIndex int
}

// Registration is sent once after (re)connecting to the signaling server.
type Registration struct {
	CameraID        string
	FirmwareVersion string
	AIVersion       string
	Token           string
}

// StatusReport is the periodic camera health message.
type StatusReport struct {
	RecordStatus    string
	RecordUsage     int
	CPUTemp         int
	GPUTemp         int
	RGBSnapshot     string
	ThermalSnapshot string
}

func (Offer) isOutbound()        {}
func (LocalAnswer) isOutbound()  {}
func (IceCandidate) isOutbound() {}
func (Registration) isOutbound() {}
func (StatusReport) isOutbound() {}
