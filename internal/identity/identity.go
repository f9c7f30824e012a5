package identity

import (
	"errors"
	"fmt"
)

// EntityType is a process-global, stable name identifying a class of
// entities and their message protocol. Example: "Counter", "Cart".
type EntityType string

// EntityID is a user-chosen opaque string identifying a single entity
// instance within a type.
type EntityID string

// ShardID is a non-negative integer in [0, numberOfShards).
type ShardID int

// PodAddress is a (host, port) pair; equality is structural.
type PodAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String renders the address as "host:port", the canonical form used as a
// map key and log field throughout the runtime.
func (p PodAddress) String() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// IsZero reports whether p is the zero PodAddress.
func (p PodAddress) IsZero() bool {
	return p.Host == "" && p.Port == 0
}

// EntityAddress is the triple (shardId, entityType, entityId). Invariant:
// ShardID == ShardOf(EntityID, numberOfShards) for whatever numberOfShards
// the cluster was constructed with.
type EntityAddress struct {
	ShardID    ShardID    `json:"shardId"`
	EntityType EntityType `json:"entityType"`
	EntityID   EntityID   `json:"entityId"`
}

// String renders the address for logging: "type/id@shard".
func (a EntityAddress) String() string {
	return fmt.Sprintf("%s/%s@%d", a.EntityType, a.EntityID, a.ShardID)
}

// Errors shared across the sharding runtime's layers. Callers should
// compare with errors.Is; some are wrapped with additional context by the
// layer that raised them.
var (
	// ErrEntityNotManagedByPod is returned when routing determines the
	// local pod does not currently own the shard for an address, or when
	// a manager is shutting down and cannot accept new entities.
	ErrEntityNotManagedByPod = errors.New("identity: entity not managed by this pod")

	// ErrMalformedMessage is returned when an envelope's message fails to
	// decode against its protocol schema. Never retried.
	ErrMalformedMessage = errors.New("identity: malformed message")

	// ErrMessagePersistence is returned by MailboxStorage.SaveMessage when
	// the underlying store fails. Swallowed (logged) at the EntityManager
	// boundary per the runtime's durability policy.
	ErrMessagePersistence = errors.New("identity: message persistence error")

	// ErrPodUnavailable is returned by the Pods transport when a
	// destination pod cannot be reached.
	ErrPodUnavailable = errors.New("identity: pod unavailable")

	// ErrNoSuchEntry is returned by storage lookups for an address the
	// store has never heard of. Callers treat it as absence, not failure.
	ErrNoSuchEntry = errors.New("identity: no such entry")
)

// ShardOf derives the ShardID for entityID under numberOfShards using the
// cluster's normative hash function (djb2 variant, reversed, high-bit
// smoothed). All pods MUST compute the same value for the same inputs; see
// the hash.go file in this package for the algorithm itself.
func ShardOf(entityID EntityID, numberOfShards int) ShardID {
	return ShardID(shardHash(string(entityID), numberOfShards))
}
