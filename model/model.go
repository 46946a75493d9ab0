package model

import "encoding/json"

// Message types carried in Envelope.Type.
//
// Client to server.
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeSignal       = "signal"
	TypeCallInvite   = "call-invite"
	TypeCallAccepted = "call-accepted"
	TypeCallRejected = "call-rejected"
	TypeEndCall      = "end-call"
)

// Server to client.
const (
	TypeAck          = "ack"
	TypePeerJoined   = "peer-joined"
	TypePeerLeft     = "peer-left"
	TypeRoomFull     = "room-full"
	TypeIncomingCall = "incoming-call"
	TypeCalling      = "calling"
	TypeBusy         = "busy"
)

// Signal payload kinds relayed verbatim between peers.
const (
	SignalOffer  = "offer"
	SignalAnswer = "answer"
	SignalICE    = "ice"
)

const (
	CallKindVoice = "voice"
	CallKindVideo = "video"
)

// Well-known reasons attached to peer-left / call-rejected / end-call.
const (
	ReasonBusy       = "busy"
	ReasonOffline    = "offline"
	ReasonTimeout    = "timeout"
	ReasonRejected   = "rejected"
	ReasonDisconnect = "disconnect"
	ReasonHangup     = "hangup"
	ReasonRoomFull   = "room-full"
	ReasonMedia      = "media-failure"
	ReasonInCall     = "callee-in-call"
)

// Envelope is the single wire shape for both directions. ID correlates a
// client request with its ack; for inbound messages the server re-assigns
// From based on the authenticated connection.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Room    string          `json:"room_id,omitempty"`
	To      string          `json:"to,omitempty"`
	From    string          `json:"from,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Member identifies one room member as seen by the relay.
type Member struct {
	ConnID string `json:"conn_id"`
	UserID string `json:"user_id"`
}

// JoinAck answers a join-room request.
type JoinAck struct {
	OK          bool     `json:"ok"`
	Error       string   `json:"error,omitempty"`
	IsInitiator bool     `json:"is_initiator,omitempty"`
	Peers       []Member `json:"peers,omitempty"`
}

// Ack answers leave-room and other fire-and-ack requests.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Signal is the negotiation payload relayed between two room members.
// SDP is set for offer/answer, Candidate for ice.
type Signal struct {
	Type       string          `json:"type"`
	SDP        string          `json:"sdp,omitempty"`
	ICERestart bool            `json:"ice_restart,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// Invite is the call-invite request payload.
type Invite struct {
	ToUser   string `json:"to_user"`
	ChatID   string `json:"chat_id"`
	CallKind string `json:"call_kind"`
}

// CallEvent is pushed for incoming-call, calling, call-accepted,
// call-rejected and busy. PeerConn carries the resolved connection id of
// the other side where known, so signals can be targeted directly.
type CallEvent struct {
	ChatID   string `json:"chat_id,omitempty"`
	FromUser string `json:"from_user,omitempty"`
	PeerConn string `json:"peer_conn,omitempty"`
	CallKind string `json:"call_kind,omitempty"`
}

// Stats is the read-only relay snapshot served by the status API.
type Stats struct {
	OnlineUsers int `json:"online_users"`
	OpenRooms   int `json:"open_rooms"`
	RoomMembers int `json:"room_members"`
}

type Wire struct {
	RX chan Envelope
	TX chan Envelope
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Envelope),
		TX: make(chan Envelope),
	}
}

// RawPayload marshals a payload struct for embedding into an Envelope.
// All payload types in this package marshal without error.
func RawPayload(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
