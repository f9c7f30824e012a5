package assignment

import (
	"context"
	"encoding/json"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/shardmesh/cluster/internal/identity"
)

// EtcdStore is an AssignmentStore backed by a single etcd key: the whole
// Map is read and written as one JSON document under prefix+"/assignments".
// This is deliberately simple — ShardManager is the sole writer, so there
// is no need for per-shard keys or a watch-based cache here the way a
// multi-writer system would require.
type EtcdStore struct {
	client *clientv3.Client
	key    string
}

// NewEtcdStore returns a Store that persists the assignment map under
// prefix+"/assignments" in the given etcd client.
func NewEtcdStore(client *clientv3.Client, prefix string) *EtcdStore {
	return &EtcdStore{client: client, key: prefix + "/assignments"}
}

type wireEntry struct {
	ShardID int    `json:"shardId"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// Read fetches and decodes the assignment map. A missing key is treated
// as an empty map, matching the state of a freshly bootstrapped cluster
// that has never rebalanced.
func (s *EtcdStore) Read(ctx context.Context) (Map, error) {
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("assignment: etcd get %s: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return make(Map), nil
	}

	var entries []wireEntry
	if err := json.Unmarshal(resp.Kvs[0].Value, &entries); err != nil {
		return nil, fmt.Errorf("assignment: decoding %s: %w", s.key, err)
	}

	m := make(Map, len(entries))
	for _, e := range entries {
		m[identity.ShardID(e.ShardID)] = identity.PodAddress{Host: e.Host, Port: e.Port}
	}
	return m, nil
}

// Write encodes m and puts it under the store's key in a single etcd
// transaction, so a concurrent Read never observes a partial map.
func (s *EtcdStore) Write(ctx context.Context, m Map) error {
	entries := make([]wireEntry, 0, len(m))
	for shardID, pod := range m {
		entries = append(entries, wireEntry{ShardID: int(shardID), Host: pod.Host, Port: pod.Port})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("assignment: encoding map: %w", err)
	}

	if _, err := s.client.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("assignment: etcd put %s: %w", s.key, err)
	}
	return nil
}
