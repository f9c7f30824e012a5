// Package podtransport implements pod-to-pod RPC: delivering envelopes,
// probing liveness, and fanning out sharding events, over HTTP.
package podtransport

import (
	"context"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/identity"
)

// Pods is the transport client Sharding uses to reach peer pods.
// Implementations MAY batch but must preserve per-destination ordering of
// Send calls issued by a single caller goroutine. Every operation
// returns an error wrapping identity.ErrPodUnavailable when pod cannot be
// reached.
type Pods interface {
	Send(ctx context.Context, pod identity.PodAddress, env envelope.Envelope) error
	Ping(ctx context.Context, pod identity.PodAddress) error
	Notify(ctx context.Context, pod identity.PodAddress, ev events.Event) error
}

// PodsHealth is the liveness probe ShardManager consults before evicting
// a pod that failed its periodic health sweep.
type PodsHealth interface {
	IsAlive(ctx context.Context, pod identity.PodAddress) bool
}
