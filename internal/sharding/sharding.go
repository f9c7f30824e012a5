// Package sharding implements the per-pod runtime: the local registry of
// EntityManagers, the assignment-map cache, and local/remote envelope
// routing.
package sharding

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shardmesh/cluster/internal/assignment"
	"github.com/shardmesh/cluster/internal/entity"
	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/mailbox"
	"github.com/shardmesh/cluster/internal/podtransport"
	"github.com/shardmesh/cluster/internal/shardmanager"
)

// Options configures a single entity-type registration.
type Options struct {
	MaxIdleTime        time.Duration
	TerminationTimeout time.Duration
}

// Runtime is Sharding: the pod's local routing table and EntityManager
// registry.
type Runtime struct {
	localAddr      identity.PodAddress
	numberOfShards int
	storage        mailbox.Storage
	pods           podtransport.Pods
	shardManager   shardmanager.Client
	log            logrus.FieldLogger
	group          *errgroup.Group
	ctx            context.Context

	localEvents *localStream

	mu             sync.RWMutex
	isShutdown     bool
	assignments    assignment.Map
	entityManagers map[identity.EntityType]*entity.Manager
}

// New returns a Runtime bound to localAddr. group/ctx is the pod's root
// scope; closing ctx (via the errgroup's cancellation) tears down every
// EntityManager's entity scopes transitively.
func New(
	localAddr identity.PodAddress,
	numberOfShards int,
	storage mailbox.Storage,
	pods podtransport.Pods,
	shardManager shardmanager.Client,
	group *errgroup.Group,
	ctx context.Context,
	log logrus.FieldLogger,
) *Runtime {
	return &Runtime{
		localAddr:      localAddr,
		numberOfShards: numberOfShards,
		storage:        storage,
		pods:           pods,
		shardManager:   shardManager,
		log:            log.WithField("pod", localAddr.String()),
		group:          group,
		ctx:            ctx,
		localEvents:    newLocalStream(),
		assignments:    make(assignment.Map),
		entityManagers: make(map[identity.EntityType]*entity.Manager),
	}
}

// Start registers the local pod with the ShardManager and performs an
// initial assignment-map pull.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.shardManager.Register(ctx, r.localAddr); err != nil {
		return err
	}
	return r.RefreshAssignments(ctx)
}

// RefreshAssignments pulls the latest AssignmentMap from the
// ShardManagerClient into the local cache.
func (r *Runtime) RefreshAssignments(ctx context.Context) error {
	m, err := r.shardManager.GetAssignments(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.assignments = m
	r.mu.Unlock()
	return nil
}

// RunAssignmentRefresh polls RefreshAssignments on interval until ctx is
// cancelled, the background half of keeping the local cache
// eventually-consistent with the control plane (the other half is
// ReceiveEvent reacting to ShardsAssigned/ShardsUnassigned pushes).
func (r *Runtime) RunAssignmentRefresh(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshAssignments(ctx); err != nil {
				r.log.WithError(err).Warn("sharding: refreshing assignment map")
			}
		}
	}
}

// RegisterEntity builds an EntityManager for entityType and records it,
// publishing EntityRegistered on the local events stream.
func (r *Runtime) RegisterEntity(entityType identity.EntityType, behavior entity.Behavior, decoder entity.Decoder, opts Options) {
	mgr := entity.New(entityType, behavior, decoder, r.storage, r.group, r.ctx, opts.MaxIdleTime, opts.TerminationTimeout, r.log)

	r.mu.Lock()
	r.entityManagers[entityType] = mgr
	r.mu.Unlock()

	r.localEvents.Publish(EntityRegistered{EntityType: string(entityType)})
	r.log.WithField("entity_type", entityType).Info("sharding: entity type registered")
}

// GetShardID derives the ShardID for entityID under this runtime's
// configured shard count.
func (r *Runtime) GetShardID(entityID identity.EntityID) identity.ShardID {
	return identity.ShardOf(entityID, r.numberOfShards)
}

// podFor returns the pod owning shard, per the locally cached assignment
// map.
func (r *Runtime) podFor(shard identity.ShardID) (identity.PodAddress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pod, ok := r.assignments[shard]
	return pod, ok && !pod.IsZero()
}

// isEntityOnLocalShards reports whether address's shard is currently
// assigned to this pod.
func (r *Runtime) isEntityOnLocalShards(address identity.EntityAddress) bool {
	pod, ok := r.podFor(address.ShardID)
	return ok && pod == r.localAddr
}

// PodForShard exposes the local assignment cache lookup Messenger uses to
// route a tell/ask before calling SendEnvelope.
func (r *Runtime) PodForShard(shard identity.ShardID) (identity.PodAddress, bool) {
	return r.podFor(shard)
}

// SendEnvelope dispatches env to pod: locally if pod is this runtime's
// own address, remotely via Pods otherwise.
func (r *Runtime) SendEnvelope(ctx context.Context, pod identity.PodAddress, env envelope.Envelope) error {
	if pod == r.localAddr {
		return r.SendToLocalEntityManager(env)
	}

	if err := r.pods.Send(ctx, pod, env); err != nil {
		if nerr := r.shardManager.NotifyUnhealthyPod(ctx, pod); nerr != nil {
			r.log.WithError(nerr).WithField("pod", pod).Warn("sharding: notifying unhealthy pod")
		}
		return err
	}
	return nil
}

// SendToLocalEntityManager routes env to the local EntityManager for its
// address's EntityType, failing with ErrEntityNotManagedByPod if this
// pod does not currently own the shard.
func (r *Runtime) SendToLocalEntityManager(env envelope.Envelope) error {
	if !r.isEntityOnLocalShards(env.Address) {
		return identity.ErrEntityNotManagedByPod
	}

	r.mu.RLock()
	mgr, ok := r.entityManagers[env.Address.EntityType]
	r.mu.RUnlock()
	if !ok {
		return identity.ErrEntityNotManagedByPod
	}

	return mgr.Send(env)
}

// ReceiveEnvelope implements podtransport.Receiver for incoming
// pod-to-pod RPC.
func (r *Runtime) ReceiveEnvelope(env envelope.Envelope) error {
	return r.SendToLocalEntityManager(env)
}

// ReceiveEvent implements podtransport.Receiver: ShardsAssigned/
// ShardsUnassigned update the local assignment cache immediately rather
// than waiting for the next periodic refresh.
func (r *Runtime) ReceiveEvent(ev events.Event) error {
	switch e := ev.(type) {
	case events.ShardsAssigned:
		r.mu.Lock()
		for _, shard := range e.ShardID {
			r.assignments[shard] = e.Pod
		}
		r.mu.Unlock()
	case events.ShardsUnassigned:
		r.mu.Lock()
		for _, shard := range e.ShardID {
			if r.assignments[shard] == e.Pod {
				delete(r.assignments, shard)
			}
		}
		r.mu.Unlock()
		if e.Pod == r.localAddr {
			r.terminateShards(e.ShardID)
		}
	}
	return nil
}

// terminateShards asks every EntityManager to drop entities whose
// address falls in shards; a manager only tracks entities for its own
// type, so this is a best-effort sweep rather than a targeted lookup.
func (r *Runtime) terminateShards(shards []identity.ShardID) {
	shardSet := make(map[identity.ShardID]bool, len(shards))
	for _, s := range shards {
		shardSet[s] = true
	}

	r.mu.RLock()
	managers := make([]*entity.Manager, 0, len(r.entityManagers))
	for _, mgr := range r.entityManagers {
		managers = append(managers, mgr)
	}
	r.mu.RUnlock()

	for _, mgr := range managers {
		mgr.TerminateShards(shardSet)
	}
}

// Healthy implements podtransport.Receiver.
func (r *Runtime) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.isShutdown
}

// Shutdown implements the §4.8 registration lifecycle: mark shutdown,
// mark every EntityManager as shutting down so none creates new
// entities, then unregister from the ShardManager, logging (and
// swallowing) failures so the pod can still exit. Entities already live
// are not terminated here; they stop when the root scope (group/ctx
// passed to New) is cancelled.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.isShutdown = true
	managers := make([]*entity.Manager, 0, len(r.entityManagers))
	for _, mgr := range r.entityManagers {
		managers = append(managers, mgr)
	}
	r.mu.Unlock()

	for _, mgr := range managers {
		mgr.Shutdown()
	}

	if err := r.shardManager.Unregister(ctx, r.localAddr); err != nil {
		r.log.WithError(err).Warn("sharding: unregistering from shard manager during shutdown")
	}
}


// LocalEvents subscribes to the pod-local registration stream.
func (r *Runtime) LocalEvents() (<-chan LocalEvent, func()) {
	return r.localEvents.Subscribe()
}
