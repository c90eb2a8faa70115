package models

import "encoding/json"

// SignalType is the "type" field of a message the relay itself originates.
// Everything peers send to each other is opaque and never decoded.
type SignalType string

const (
	SignalTypePeerJoined SignalType = "peer-joined"
	SignalTypePeerLeft   SignalType = "peer-left"
	SignalTypeRole       SignalType = "role"
)

// Role is the negotiation role handed to a peer when it joins a room
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// SignalMessage is a server-originated notification
type SignalMessage struct {
	Type SignalType `json:"type"`
	Role Role       `json:"role,omitempty"`
}

// Encode marshals the message for the wire
func (m SignalMessage) Encode() []byte {
	data, _ := json.Marshal(m)
	return data
}

// PeerJoinedMessage is sent to existing members when someone joins
func PeerJoinedMessage() []byte {
	return SignalMessage{Type: SignalTypePeerJoined}.Encode()
}

// PeerLeftMessage is sent to remaining members when someone leaves
func PeerLeftMessage() []byte {
	return SignalMessage{Type: SignalTypePeerLeft}.Encode()
}

// RoleMessage tells a newly joined peer which role it plays
func RoleMessage(role Role) []byte {
	return SignalMessage{Type: SignalTypeRole, Role: role}.Encode()
}
