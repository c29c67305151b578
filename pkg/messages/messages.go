package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/cuesync/pkg/game/types"
)

const (
	// MessageBufferSize is the maximum size of a serialized message
	MessageBufferSize = 4096
)

// MessageType is the closed set of envelope kinds.
type MessageType uint8

const (
	// MessageTypeSnapshot carries a live binary snapshot of one entity
	MessageTypeSnapshot MessageType = iota
	// MessageTypePrepareShoot announces that the sender is about to shoot
	MessageTypePrepareShoot
	// MessageTypeOwnershipClaim asks the arbiter to make the sender owner of an entity
	MessageTypeOwnershipClaim
	// MessageTypeOwnershipTransfer is the arbiter's decision about an entity owner
	MessageTypeOwnershipTransfer
	// MessageTypePeerJoined announces a newly connected peer
	MessageTypePeerJoined
	// MessageTypePeerLeft announces a disconnected peer
	MessageTypePeerLeft
	// MessageTypeWelcome is sent to a peer when it connects
	MessageTypeWelcome

	messageTypeCount
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeSnapshot:
		return "snapshot"
	case MessageTypePrepareShoot:
		return "prepare_shoot"
	case MessageTypeOwnershipClaim:
		return "ownership_claim"
	case MessageTypeOwnershipTransfer:
		return "ownership_transfer"
	case MessageTypePeerJoined:
		return "peer_joined"
	case MessageTypePeerLeft:
		return "peer_left"
	case MessageTypeWelcome:
		return "welcome"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t < messageTypeCount
}

// Message is one envelope exchanged between peers.
type Message struct {
	Sender  types.PeerID
	Type    MessageType
	Entity  types.EntityID
	Payload []byte
}

// OwnershipTransfer is the payload of MessageTypeOwnershipTransfer.
type OwnershipTransfer struct {
	Previous types.PeerID `json:"previous"`
	Owner    types.PeerID `json:"owner"`
}

// PeerNotice is the payload of MessageTypePeerJoined and MessageTypePeerLeft.
type PeerNotice struct {
	Peer types.PeerID `json:"peer"`
}

// Welcome is the payload of MessageTypeWelcome.
type Welcome struct {
	Peer   types.PeerID                    `json:"peer"`
	Peers  []types.PeerID                  `json:"peers"`
	Owners map[types.EntityID]types.PeerID `json:"owners"`
}

// PrepareShoot is the payload of MessageTypePrepareShoot.
type PrepareShoot struct {
	TeamID uint8 `json:"teamId"`
}

// NewControlMessage builds a message with a JSON payload.
func NewControlMessage(sender types.PeerID, t MessageType, entity types.EntityID, payload interface{}) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %v", t, err)
	}
	return &Message{
		Sender:  sender,
		Type:    t,
		Entity:  entity,
		Payload: b,
	}, nil
}

// DecodePayload unmarshals a JSON control payload into v.
func (m *Message) DecodePayload(v interface{}) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v", m.Type, err)
	}
	return nil
}
