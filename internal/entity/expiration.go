package entity

import (
	"context"
	"time"

	"github.com/shardmesh/cluster/internal/identity"
)

// runExpiration implements §4.7: sleep maxIdleTime, read lastActiveTimes,
// then either re-sleep the remainder or terminate. Using time.Timer
// rather than time.Sleep lets the loop observe ctx cancellation (entity
// already closed by some other path) without leaking.
func (m *Manager) runExpiration(ctx context.Context, address identity.EntityAddress) {
	timer := time.NewTimer(m.maxIdleTime)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			remaining := m.maxIdleTime - time.Since(m.lastActive(address))
			if remaining <= 0 {
				m.terminateEntity(address)
				return
			}
			timer.Reset(remaining)
		}
	}
}

// terminateEntity acquires the manager's semaphore, cancels the entity's
// scope (which drives the behavior loop and finalizers to run), and is a
// no-op if address is already gone.
func (m *Manager) terminateEntity(address identity.EntityAddress) {
	if err := m.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer m.sem.Release(1)

	m.mu.RLock()
	state, ok := m.entities[address]
	m.mu.RUnlock()
	if !ok {
		return
	}
	state.cancel()
}
