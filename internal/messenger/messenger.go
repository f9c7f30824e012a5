// Package messenger implements Messenger: the per-entity-type tell/ask
// facade client code uses instead of talking to Sharding directly.
package messenger

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/mailbox"
	"github.com/shardmesh/cluster/internal/sharding"
)

// Messenger routes messages for one EntityType, deriving each target's
// address and owning pod from the runtime's locally cached assignment map.
type Messenger struct {
	entityType     identity.EntityType
	numberOfShards int
	runtime        *sharding.Runtime
	storage        mailbox.Storage
	log            logrus.FieldLogger
}

// New returns a Messenger that addresses entities of entityType.
func New(entityType identity.EntityType, numberOfShards int, runtime *sharding.Runtime, storage mailbox.Storage, log logrus.FieldLogger) *Messenger {
	return &Messenger{
		entityType:     entityType,
		numberOfShards: numberOfShards,
		runtime:        runtime,
		storage:        storage,
		log:            log.WithField("entity_type", string(entityType)),
	}
}

// route derives entityId's address and resolves its owning pod from the
// runtime's assignment cache. A cache miss (shard unassigned, or assigned
// to a pod the caller hasn't learned about yet) is reported as
// identity.ErrEntityNotManagedByPod, exactly as a misrouted send would be.
func (msgr *Messenger) route(entityID identity.EntityID) (identity.EntityAddress, identity.PodAddress, error) {
	shard := identity.ShardOf(entityID, msgr.numberOfShards)
	address := identity.EntityAddress{ShardID: shard, EntityType: msgr.entityType, EntityID: entityID}

	pod, ok := msgr.runtime.PodForShard(shard)
	if !ok {
		return address, identity.PodAddress{}, identity.ErrEntityNotManagedByPod
	}
	return address, pod, nil
}

// Tell sends msg to entityID and returns once it has been handed off for
// delivery — it does not wait for the entity to process it.
func (msgr *Messenger) Tell(ctx context.Context, entityID identity.EntityID, msg envelope.Message) error {
	address, pod, err := msgr.route(entityID)
	if err != nil {
		return err
	}

	env, err := envelope.Encode(address, msg)
	if err != nil {
		return err
	}

	if err := msgr.runtime.SendEnvelope(ctx, pod, env); err != nil {
		return fmt.Errorf("messenger: tell %s: %w", address, err)
	}
	return nil
}

// Ask sends msg to entityID and blocks until its terminal MessageState is
// available, or ctx is done. The core imposes no ask timeout; callers
// wanting one should derive ctx with context.WithTimeout.
func (msgr *Messenger) Ask(ctx context.Context, entityID identity.EntityID, msg envelope.Message) (envelope.MessageState, error) {
	address, pod, err := msgr.route(entityID)
	if err != nil {
		return envelope.MessageState{}, err
	}

	env, err := envelope.Encode(address, msg)
	if err != nil {
		return envelope.MessageState{}, err
	}

	if err := msgr.runtime.SendEnvelope(ctx, pod, env); err != nil {
		return envelope.MessageState{}, fmt.Errorf("messenger: ask %s: %w", address, err)
	}

	return msgr.storage.Await(ctx, address, msg.PrimaryKey())
}
