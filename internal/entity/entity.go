// Package entity implements EntityManager: the per-pod, per-entity-type
// supervisor that spawns, feeds, idles-out, and terminates entities
// while persisting every message through a mailbox.Storage before
// delivery.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/mailbox"
	"github.com/shardmesh/cluster/internal/metrics"
)

// Decoder turns a message's wire bytes into the Go value a Behavior
// expects. A decode failure is reported to EntityManager.Send's caller
// as identity.ErrMalformedMessage and never retried.
type Decoder func(raw json.RawMessage) (envelope.Message, error)

// Behavior is the user-supplied entity logic, run once per live entity
// inside its own child scope. It pulls Deliveries from inbox until ctx is
// done or the mailbox drains, replying to each via its Replier. Behavior
// returning at all — for any reason — closes the entity's scope; the
// entity may be recreated by the next message addressed to it.
type Behavior func(ctx context.Context, inbox *Mailbox)

type entityState struct {
	mailbox *Mailbox
	cancel  context.CancelFunc
}

// Manager is EntityManager for one EntityType on one pod.
type Manager struct {
	entityType         identity.EntityType
	behavior           Behavior
	decoder            Decoder
	storage            mailbox.Storage
	log                logrus.FieldLogger
	maxIdleTime        time.Duration
	terminationTimeout time.Duration

	group *errgroup.Group
	ctx   context.Context
	sem   *semaphore.Weighted

	mu              sync.RWMutex
	entities        map[identity.EntityAddress]*entityState
	lastActiveTimes map[identity.EntityAddress]time.Time
	isShutdown      bool
}

// New returns a Manager for entityType, forking its entity scopes from
// group/ctx (the caller's Sharding runtime owns that scope and cancels it
// on pod shutdown).
func New(
	entityType identity.EntityType,
	behavior Behavior,
	decoder Decoder,
	storage mailbox.Storage,
	group *errgroup.Group,
	ctx context.Context,
	maxIdleTime, terminationTimeout time.Duration,
	log logrus.FieldLogger,
) *Manager {
	return &Manager{
		entityType:         entityType,
		behavior:           behavior,
		decoder:            decoder,
		storage:            storage,
		log:                log.WithField("entity_type", string(entityType)),
		maxIdleTime:        maxIdleTime,
		terminationTimeout: terminationTimeout,
		group:              group,
		ctx:                ctx,
		sem:                semaphore.NewWeighted(1),
		entities:           make(map[identity.EntityAddress]*entityState),
		lastActiveTimes:    make(map[identity.EntityAddress]time.Time),
	}
}

// Send runs the §4.6 pipeline: decode, persist, resolve-or-create the
// entity, and enqueue the delivery.
func (m *Manager) Send(env envelope.Envelope) error {
	msg, err := m.decoder(env.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrMalformedMessage, err)
	}

	entry, err := m.storage.SaveMessage(env.Address, msg)
	if err != nil {
		metrics.MailboxPersistErrorsTotal.Inc()
		m.log.WithError(err).WithField("address", env.Address).Warn("entity: message persistence failed; continuing per durability policy")
	}

	delivery := Delivery{
		Entry: entry,
		Replier: &replier{
			manager:    m,
			address:    env.Address,
			primaryKey: msg.PrimaryKey(),
		},
	}

	return m.offer(env.Address, delivery)
}

// offer resolves (or creates) the entity's mailbox and enqueues delivery,
// retrying after 100ms if the offer loses a race with shutdown, exactly
// as §4.6 prescribes.
func (m *Manager) offer(address identity.EntityAddress, delivery Delivery) error {
	for {
		state, err := m.resolve(address)
		if err != nil {
			return err
		}
		if state.mailbox.Offer(delivery) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// resolve returns the live entity state for address, creating it under
// the manager's single-permit semaphore if absent.
func (m *Manager) resolve(address identity.EntityAddress) (*entityState, error) {
	m.mu.RLock()
	state, ok := m.entities[address]
	m.mu.RUnlock()
	if ok {
		return state, nil
	}

	if err := m.sem.Acquire(m.ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrEntityNotManagedByPod, err)
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	if state, ok := m.entities[address]; ok {
		m.mu.Unlock()
		return state, nil
	}
	if m.isShutdown {
		m.mu.Unlock()
		return nil, identity.ErrEntityNotManagedByPod
	}

	entityCtx, cancel := context.WithCancel(m.ctx)
	mb := NewMailbox()
	state = &entityState{mailbox: mb, cancel: cancel}
	m.entities[address] = state
	m.lastActiveTimes[address] = time.Now()
	m.mu.Unlock()

	metrics.Entities.WithLabelValues(string(m.entityType)).Inc()

	m.group.Go(func() error {
		m.behavior(entityCtx, mb)
		m.finalize(address, mb, cancel)
		return nil
	})

	m.group.Go(func() error {
		m.runExpiration(entityCtx, address)
		return nil
	})

	return state, nil
}

// finalize runs the LIFO teardown for one entity: shut its mailbox,
// cancel its scope, decrement the gauge, then remove it from the map so
// the next message addressed to it creates a fresh entity.
func (m *Manager) finalize(address identity.EntityAddress, mb *Mailbox, cancel context.CancelFunc) {
	mb.Shutdown()
	cancel()
	metrics.Entities.WithLabelValues(string(m.entityType)).Dec()

	m.mu.Lock()
	delete(m.entities, address)
	delete(m.lastActiveTimes, address)
	m.mu.Unlock()
}

// touch records that address's message was just processed, which is
// what the idle-expiration task measures against — not message receipt.
func (m *Manager) touch(address identity.EntityAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, live := m.entities[address]; live {
		m.lastActiveTimes[address] = time.Now()
	}
}

func (m *Manager) lastActive(address identity.EntityAddress) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastActiveTimes[address]
}

// Shutdown marks the manager as shutting down: new entity creation fails
// with ErrEntityNotManagedByPod. Entities already live are not terminated
// by this call; they keep running until the manager's parent scope is
// cancelled, and no termination timeout is applied to them.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.isShutdown = true
	m.mu.Unlock()
}

// LiveEntities returns the number of entities currently tracked, for
// tests and observability.
func (m *Manager) LiveEntities() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// TerminateShards terminates every live entity whose address falls in
// shards, used when a rebalance move unassigns shards from this pod.
func (m *Manager) TerminateShards(shards map[identity.ShardID]bool) {
	m.mu.RLock()
	var matching []identity.EntityAddress
	for address := range m.entities {
		if shards[address.ShardID] {
			matching = append(matching, address)
		}
	}
	m.mu.RUnlock()

	for _, address := range matching {
		m.terminateEntity(address)
	}
}
