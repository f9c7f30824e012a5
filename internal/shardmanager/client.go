package shardmanager

import (
	"context"

	"github.com/shardmesh/cluster/internal/assignment"
	"github.com/shardmesh/cluster/internal/identity"
)

// Client is the per-pod handle Sharding uses to reach the control plane.
type Client interface {
	Register(ctx context.Context, pod identity.PodAddress) error
	Unregister(ctx context.Context, pod identity.PodAddress) error
	NotifyUnhealthyPod(ctx context.Context, pod identity.PodAddress) error
	GetAssignments(ctx context.Context) (assignment.Map, error)
}

// LocalClient is the degenerate single-pod Client: every shard is always
// owned by the one local pod, and registration calls are no-ops. It's
// the default for single-pod deployments that don't run a separate
// ShardManager process.
type LocalClient struct {
	Local          identity.PodAddress
	NumberOfShards int
}

// NewLocalClient returns a Client whose GetAssignments always reports
// every shard owned by local.
func NewLocalClient(local identity.PodAddress, numberOfShards int) *LocalClient {
	return &LocalClient{Local: local, NumberOfShards: numberOfShards}
}

func (c *LocalClient) Register(context.Context, identity.PodAddress) error           { return nil }
func (c *LocalClient) Unregister(context.Context, identity.PodAddress) error         { return nil }
func (c *LocalClient) NotifyUnhealthyPod(context.Context, identity.PodAddress) error { return nil }

func (c *LocalClient) GetAssignments(context.Context) (assignment.Map, error) {
	m := make(assignment.Map, c.NumberOfShards)
	for shard := 0; shard < c.NumberOfShards; shard++ {
		m[identity.ShardID(shard)] = c.Local
	}
	return m, nil
}
