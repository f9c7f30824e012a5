// Package envelope defines the wire-level container carried between pods:
// an EntityAddress paired with a protocol-encoded message, plus the
// MessageState variant persisted alongside it in MailboxStorage.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shardmesh/cluster/internal/identity"
)

// Message is anything an entity protocol can hand to an Envelope: it
// carries its own primary key and is encoded with encoding/json. Each
// EntityType supplies an entity.Decoder when it is registered, which
// EntityManager.Send uses to turn raw bytes back into a Message.
type Message interface {
	PrimaryKey() string
}

// Envelope is the serializable container routed from Messenger through
// Sharding to the owning pod's EntityManager.
type Envelope struct {
	Address identity.EntityAddress `json:"address"`
	Message json.RawMessage        `json:"message"`
}

// wireAddress mirrors identity.EntityAddress's JSON shape exactly as
// specified: shardId, entityType, entityId.
type wireAddress struct {
	ShardID    int    `json:"shardId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

// Encode builds the wire-format envelope for address and msg, marshaling
// msg with encoding/json. It only fails if msg cannot be marshaled, which
// is reported as identity.ErrMalformedMessage since it means the message
// violates its own protocol's encoded form.
func Encode(address identity.EntityAddress, msg Message) (Envelope, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encoding message for %s: %v", identity.ErrMalformedMessage, address, err)
	}
	return Envelope{Address: address, Message: raw}, nil
}

// MarshalJSON renders the envelope in the pinned wire shape.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Address wireAddress     `json:"address"`
		Message json.RawMessage `json:"message"`
	}{
		Address: wireAddress{
			ShardID:    int(e.Address.ShardID),
			EntityType: string(e.Address.EntityType),
			EntityID:   string(e.Address.EntityID),
		},
		Message: e.Message,
	})
}

// UnmarshalJSON parses the pinned wire shape back into an Envelope. It
// does not decode Message against any protocol schema — that happens in
// EntityManager.Send, which applies the entity.Decoder registered for the
// envelope's EntityType.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire struct {
		Address wireAddress     `json:"address"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: decoding envelope: %v", identity.ErrMalformedMessage, err)
	}
	e.Address = identity.EntityAddress{
		ShardID:    identity.ShardID(wire.Address.ShardID),
		EntityType: identity.EntityType(wire.Address.EntityType),
		EntityID:   identity.EntityID(wire.Address.EntityID),
	}
	e.Message = wire.Message
	return nil
}

// NewPrimaryKey returns a fresh opaque primary key for protocols that
// don't derive one naturally from their own fields.
func NewPrimaryKey() string {
	return uuid.NewString()
}
