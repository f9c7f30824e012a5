// Package identity defines the typed addresses that thread through every
// layer of the sharding runtime — entity types, entity ids, shard ids, pod
// addresses, and the shard-assignment hash function that derives one from
// another.
//
// # Overview
//
// A cluster partitions a keyspace of entities into a fixed number of
// shards. Every pod in the cluster must compute the same ShardID for the
// same EntityID, so the hash function here is pinned byte-for-byte to the
// algorithm in the design spec: a djb2-style hash folded back-to-front over
// UTF-16 code units, lightly re-mixed to smooth its high bit, then reduced
// modulo the shard count. Changing this function is a cluster-wide,
// version-bumped event — it is never tuned for "better" distribution.
//
// # Errors
//
// The sentinel errors in this package (ErrEntityNotManagedByPod,
// ErrMalformedMessage, ErrMessagePersistence, ErrPodUnavailable,
// ErrNoSuchEntry) are shared across internal/mailbox, internal/entity,
// internal/sharding, and internal/shardmanager to avoid import cycles
// between those packages and to give callers a single errors.Is target
// regardless of which layer produced the failure.
package identity
