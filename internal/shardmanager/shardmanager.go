// Package shardmanager implements the cluster-wide control plane: the
// authoritative shard→pod AssignmentMap, the rebalancing algorithm, pod
// registration, and the periodic health sweep that evicts unresponsive
// pods.
package shardmanager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/shardmesh/cluster/internal/assignment"
	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/metrics"
	"github.com/shardmesh/cluster/internal/podtransport"
)

// Config holds the ShardManager.Config settings named in the design:
// shard count, rebalance cadence/bound, persistence retry policy, and
// health-sweep cadence.
type Config struct {
	NumberOfShards         int
	RebalanceInterval      time.Duration
	RebalanceRetryInterval time.Duration
	RebalanceRate          float64
	PersistRetryInterval   time.Duration
	PersistRetryCount      int
	PodHealthCheckInterval time.Duration
	PodPingTimeout         time.Duration
	PodMaxConsecutiveFails int
}

// Server is the authoritative ShardManager.
type Server struct {
	cfg     Config
	store   assignment.Store
	pods    podtransport.Pods
	health  podtransport.PodsHealth
	events  *events.Stream
	log     logrus.FieldLogger
	sem     *semaphore.Weighted

	mu          sync.RWMutex
	podSet      map[identity.PodAddress]struct{}
	assignments assignment.Map
	failures    map[identity.PodAddress]int
}

// NewServer constructs a Server with an empty assignment map. The store
// is not read here but by LoadAssignments, so construction never fails
// on a transient store outage.
func NewServer(cfg Config, store assignment.Store, pods podtransport.Pods, health podtransport.PodsHealth, log logrus.FieldLogger) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		pods:        pods,
		health:      health,
		events:      events.NewStream(),
		log:         log,
		sem:         semaphore.NewWeighted(1),
		podSet:      make(map[identity.PodAddress]struct{}),
		assignments: make(assignment.Map),
		failures:    make(map[identity.PodAddress]int),
	}
}

// Register adds pod to the live set and triggers a non-immediate
// rebalance pass.
func (s *Server) Register(ctx context.Context, pod identity.PodAddress) error {
	s.mu.Lock()
	s.podSet[pod] = struct{}{}
	delete(s.failures, pod)
	s.mu.Unlock()

	s.events.Publish(events.PodRegistered{Pod: pod})
	s.log.WithField("pod", pod).Info("shardmanager: pod registered")

	return s.Rebalance(ctx, false)
}

// Unregister removes pod from the live set, releasing any shards it
// owned, and triggers an immediate rebalance.
func (s *Server) Unregister(ctx context.Context, pod identity.PodAddress) error {
	s.mu.Lock()
	delete(s.podSet, pod)
	delete(s.failures, pod)
	var released []identity.ShardID
	for shard, owner := range s.assignments {
		if owner == pod {
			delete(s.assignments, shard)
			released = append(released, shard)
		}
	}
	s.mu.Unlock()

	if len(released) > 0 {
		sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
		s.events.Publish(events.ShardsUnassigned{Pod: pod, ShardID: released})
	}
	s.events.Publish(events.PodUnregistered{Pod: pod})
	s.log.WithField("pod", pod).Info("shardmanager: pod unregistered")

	return s.Rebalance(ctx, true)
}

// NotifyUnhealthyPod validates pod's liveness and, if it's truly dead,
// unregisters it.
func (s *Server) NotifyUnhealthyPod(ctx context.Context, pod identity.PodAddress) error {
	if s.health.IsAlive(ctx, pod) {
		return nil
	}
	return s.Unregister(ctx, pod)
}

// LoadAssignments seeds the in-memory assignment map from the
// AssignmentStore, for a ShardManager process resuming after a restart.
// Call once at startup, before serving traffic or running Rebalance.
func (s *Server) LoadAssignments(ctx context.Context) error {
	m, err := s.store.Read(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.assignments = m
	s.mu.Unlock()
	return nil
}

// RunRebalanceLoop ticks every RebalanceInterval, triggering a
// non-immediate rebalance pass. It blocks until ctx is cancelled,
// matching the run.Group actor shape cmd/shardmanager assembles its
// process lifecycle from.
func (s *Server) RunRebalanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RebalanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Rebalance(ctx, false); err != nil {
				s.log.WithError(err).Warn("shardmanager: periodic rebalance pass")
			}
		}
	}
}

// GetAssignments returns a snapshot of the current assignment map.
func (s *Server) GetAssignments() assignment.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignments.Clone()
}

// GetShardingEvents subscribes to the infinite broadcast stream of
// sharding events; call the returned function to unsubscribe.
func (s *Server) GetShardingEvents() (<-chan events.Event, func()) {
	return s.events.Subscribe()
}

// livePods returns the registered pods, sorted by PodAddress for
// deterministic tie-breaking in the rebalancing algorithm.
func (s *Server) livePods() []identity.PodAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pods := make([]identity.PodAddress, 0, len(s.podSet))
	for pod := range s.podSet {
		pods = append(pods, pod)
	}
	sortPods(pods)
	return pods
}

func sortPods(pods []identity.PodAddress) {
	sort.Slice(pods, func(i, j int) bool {
		if pods[i].Host != pods[j].Host {
			return pods[i].Host < pods[j].Host
		}
		return pods[i].Port < pods[j].Port
	})
}

// persist writes m through the AssignmentStore, retrying up to
// PersistRetryCount times at PersistRetryInterval before giving up.
func (s *Server) persist(ctx context.Context, m assignment.Map) error {
	attempt := 0
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.PersistRetryInterval), uint64(s.cfg.PersistRetryCount))
	return backoff.Retry(func() error {
		attempt++
		err := s.store.Write(ctx, m)
		if err != nil {
			s.log.WithError(err).WithField("attempt", attempt).Warn("shardmanager: persisting assignment map")
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
