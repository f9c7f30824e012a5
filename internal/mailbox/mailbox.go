// Package mailbox defines MailboxStorage, the durable per-entity message
// log consumed by EntityManager, and provides an in-memory implementation
// suitable for single-process deployments and tests.
package mailbox

import (
	"context"
	"sync"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/identity"
)

// Entry is one durable record in an entity's mailbox log: the address it
// belongs to, its decoded message, and the dense, monotonically
// increasing sequence number storage assigned it at save time.
//
// SequenceNumber is unique and gap-free per (EntityType, EntityID); it is
// the caller's evidence that saveMessage ran exactly once for this call.
type Entry struct {
	Address        identity.EntityAddress
	Message        envelope.Message
	SequenceNumber uint64
}

// Storage is the durable log MailboxStorage implementations provide.
//
// SaveMessage must be atomic per call: it appends message under address
// with a freshly assigned SequenceNumber, persists it, and returns the
// resulting Entry. If the underlying store fails, it returns an error
// wrapping identity.ErrMessagePersistence. SaveMessage must happen-before
// the caller's in-memory mailbox offer, so that a crash between the two
// leaves a replayable Pending record rather than a silently dropped one.
//
// UpdateMessage marks message as Processed with the given state. It is
// idempotent: applying the same terminal state twice has no additional
// effect. If address is unknown to the store, implementations return an
// error wrapping identity.ErrNoSuchEntry, which callers treat as a
// non-fatal absence rather than a failure.
type Storage interface {
	SaveMessage(address identity.EntityAddress, message envelope.Message) (Entry, error)
	UpdateMessage(address identity.EntityAddress, primaryKey string, state envelope.MessageState) error

	// Await blocks until the MessageState for primaryKey under address
	// becomes Processed, or ctx is done. It backs Messenger.Ask; Tell
	// never calls it. Implementations that only ever see the state
	// change through UpdateMessage should treat this as a subscription,
	// not a poll, so Ask doesn't impose storage load proportional to
	// wait time.
	Await(ctx context.Context, address identity.EntityAddress, primaryKey string) (envelope.MessageState, error)
}

// sequenceKey identifies the per-(entityType, entityId) sequence counter
// an Entry's SequenceNumber is drawn from.
type sequenceKey struct {
	entityType identity.EntityType
	entityID   identity.EntityID
}

// Memory is an in-memory Storage implementation: one log per entity
// address, an independent dense sequence counter per (entityType,
// entityId), and a waiter table Await subscribes against. It never
// persists across process restarts, which is acceptable for the core's
// pluggable-storage contract — durability guarantees are the concern of
// whichever Storage implementation a deployment chooses.
type Memory struct {
	mu        sync.Mutex
	sequences map[sequenceKey]uint64
	entries   map[identity.EntityAddress]map[string]Entry
	states    map[identity.EntityAddress]map[string]envelope.MessageState
	waiters   map[identity.EntityAddress]map[string][]chan envelope.MessageState
}

// NewMemory returns an empty Memory store ready for immediate use.
func NewMemory() *Memory {
	return &Memory{
		sequences: make(map[sequenceKey]uint64),
		entries:   make(map[identity.EntityAddress]map[string]Entry),
		states:    make(map[identity.EntityAddress]map[string]envelope.MessageState),
		waiters:   make(map[identity.EntityAddress]map[string][]chan envelope.MessageState),
	}
}

// SaveMessage appends message to address's log under a freshly assigned,
// gap-free sequence number and records it Pending.
func (m *Memory) SaveMessage(address identity.EntityAddress, message envelope.Message) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sequenceKey{entityType: address.EntityType, entityID: address.EntityID}
	m.sequences[key]++
	entry := Entry{
		Address:        address,
		Message:        message,
		SequenceNumber: m.sequences[key],
	}

	if m.entries[address] == nil {
		m.entries[address] = make(map[string]Entry)
		m.states[address] = make(map[string]envelope.MessageState)
	}
	m.entries[address][message.PrimaryKey()] = entry
	m.states[address][message.PrimaryKey()] = envelope.Pending()

	return entry, nil
}

// UpdateMessage records state for primaryKey under address and wakes any
// goroutine blocked in Await for that message. Repeating the same
// terminal state is a no-op beyond re-notifying waiters.
func (m *Memory) UpdateMessage(address identity.EntityAddress, primaryKey string, state envelope.MessageState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.states[address] == nil {
		return identity.ErrNoSuchEntry
	}
	m.states[address][primaryKey] = state

	if state.IsProcessed() {
		for _, ch := range m.waiters[address][primaryKey] {
			ch <- state
			close(ch)
		}
		delete(m.waiters[address], primaryKey)
	}
	return nil
}

// Await blocks until primaryKey's state under address is Processed, or
// ctx is cancelled. If the state is already Processed by the time Await
// is called, it returns immediately without registering a waiter.
func (m *Memory) Await(ctx context.Context, address identity.EntityAddress, primaryKey string) (envelope.MessageState, error) {
	m.mu.Lock()
	if states := m.states[address]; states != nil {
		if state, ok := states[primaryKey]; ok && state.IsProcessed() {
			m.mu.Unlock()
			return state, nil
		}
	}

	ch := make(chan envelope.MessageState, 1)
	if m.waiters[address] == nil {
		m.waiters[address] = make(map[string][]chan envelope.MessageState)
	}
	m.waiters[address][primaryKey] = append(m.waiters[address][primaryKey], ch)
	m.mu.Unlock()

	select {
	case state := <-ch:
		return state, nil
	case <-ctx.Done():
		return envelope.MessageState{}, ctx.Err()
	}
}
