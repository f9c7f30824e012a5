// Package metrics registers the prometheus collectors the sharding
// runtime exposes: live entity counts, shard ownership, health-check
// outcomes, rebalance activity, and mailbox persistence failures.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Entities is the live entity count per entity type, incremented
	// when EntityManager creates state for a fresh address and
	// decremented when the entity is finalized.
	Entities = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shardmesh_entities",
		Help: "Number of live entities managed by this pod, by entity type.",
	}, []string{"entity_type"})

	// ShardAssignments is the per-pod shard-count gauge. It is registered
	// by Register, but no component of this module sets it, so it exports
	// no series.
	ShardAssignments = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shardmesh_shard_assignments",
		Help: "Number of shards currently assigned to a pod.",
	}, []string{"pod"})

	// PodHealthChecksTotal counts health-sweep probe outcomes.
	PodHealthChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shardmesh_pod_health_checks_total",
		Help: "Total pod health-check probes performed by the ShardManager, by result.",
	}, []string{"pod", "result"})

	// RebalanceMovesTotal counts shard moves applied across all
	// rebalance passes.
	RebalanceMovesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shardmesh_rebalance_moves_total",
		Help: "Total shard moves applied by the ShardManager's rebalancing algorithm.",
	})

	// MailboxPersistErrorsTotal counts MessagePersistenceError
	// occurrences swallowed at the EntityManager.Send boundary.
	MailboxPersistErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shardmesh_mailbox_persist_errors_total",
		Help: "Total MessagePersistenceError occurrences swallowed by EntityManager.Send.",
	})
)

// Register adds every collector in this package to reg. Call once at
// process startup; a second call against the same registry would panic
// on the duplicate registration, so cmd/shardmanager and cmd/pod each
// call it exactly once against their own prometheus.Registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(Entities, ShardAssignments, PodHealthChecksTotal, RebalanceMovesTotal, MailboxPersistErrorsTotal)
}
