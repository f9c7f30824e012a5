// Package assignment defines AssignmentStore, the persisted shard → pod
// map ShardManager reads at startup and writes after every rebalance
// pass, plus an in-memory default and an optional etcd-backed
// implementation.
package assignment

import (
	"context"
	"sync"

	"github.com/shardmesh/cluster/internal/identity"
)

// Map is a snapshot of ShardID → PodAddress. A shard absent from the map,
// or present with a zero PodAddress, means unassigned — a transient
// state during rebalancing, never the steady-state for a live cluster.
type Map map[identity.ShardID]identity.PodAddress

// Clone returns an independent copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is the persisted backing for ShardManager's authoritative
// AssignmentMap. Write must be atomic: a reader calling Read concurrently
// with a Write never observes a partially applied map.
type Store interface {
	Read(ctx context.Context) (Map, error)
	Write(ctx context.Context, m Map) error
}

// Memory is a process-local Store, the default for single-binary
// deployments and tests. It never survives a process restart.
type Memory struct {
	mu sync.RWMutex
	m  Map
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{m: make(Map)}
}

// Read returns a snapshot of the stored map.
func (s *Memory) Read(_ context.Context) (Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.Clone(), nil
}

// Write atomically replaces the stored map with a copy of m.
func (s *Memory) Write(_ context.Context, m Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m.Clone()
	return nil
}
