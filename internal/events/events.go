// Package events defines the cluster-wide sharding event shapes
// published by ShardManager and delivered to pods via Pods.Notify, plus
// a small broadcast stream both the control plane and podtransport
// depend on without depending on each other.
package events

import "github.com/shardmesh/cluster/internal/identity"

// Event is the marker interface implemented by every sharding event
// shape. The set is closed: ShardsAssigned, ShardsUnassigned,
// PodRegistered, PodUnregistered, PodHealthChecked.
type Event interface {
	isEvent()
}

// ShardsAssigned announces that the listed shards are now owned by pod.
type ShardsAssigned struct {
	Pod     identity.PodAddress
	ShardID []identity.ShardID
}

// ShardsUnassigned announces that pod no longer owns the listed shards.
type ShardsUnassigned struct {
	Pod     identity.PodAddress
	ShardID []identity.ShardID
}

// PodRegistered announces a new pod joined the cluster.
type PodRegistered struct {
	Pod identity.PodAddress
}

// PodUnregistered announces a pod left the cluster, voluntarily or by
// eviction.
type PodUnregistered struct {
	Pod identity.PodAddress
}

// PodHealthChecked announces the outcome of a health sweep probe.
type PodHealthChecked struct {
	Pod     identity.PodAddress
	Healthy bool
}

func (ShardsAssigned) isEvent()    {}
func (ShardsUnassigned) isEvent()  {}
func (PodRegistered) isEvent()     {}
func (PodUnregistered) isEvent()   {}
func (PodHealthChecked) isEvent()  {}
