package entity

import (
	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/identity"
)

// Replier is handed to a behavior for completing one specific message.
// The manager never infers completion from the behavior returning;
// unreplied messages stay Pending and may be re-delivered on recovery.
type Replier interface {
	Succeed(value any)
	Fail(cause string)
	FailCause(err error)
	Complete(exit envelope.Exit)
}

// replier is the concrete Replier bound to one (address, primaryKey)
// pair. Completing it writes the terminal MessageState to storage and
// advances the entity's lastActiveTimes — the "reset on processed, not
// received" policy this runtime uses for idle expiration.
type replier struct {
	manager    *Manager
	address    identity.EntityAddress
	primaryKey string
}

func (r *replier) Succeed(value any) {
	r.Complete(envelope.Succeeded(value))
}

func (r *replier) Fail(cause string) {
	r.Complete(envelope.Failed(cause))
}

func (r *replier) FailCause(err error) {
	r.Complete(envelope.Failed(err.Error()))
}

func (r *replier) Complete(exit envelope.Exit) {
	if err := r.manager.storage.UpdateMessage(r.address, r.primaryKey, envelope.Processed(exit)); err != nil {
		r.manager.log.WithError(err).WithField("address", r.address).Warn("entity: updating message state")
	}
	r.manager.touch(r.address)
}
