package shardmanager

import (
	"context"
	"math"
	"sort"

	"github.com/shardmesh/cluster/internal/assignment"
	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/metrics"
)

// move is one planned shard relocation: shard currently at from (or
// unassigned, if from is the zero PodAddress) migrating to to.
type move struct {
	shard identity.ShardID
	from  identity.PodAddress
	to    identity.PodAddress
}

// targetCounts computes §4.5 step 1: floor(numberOfShards/|pods|) per
// pod, with the remainder distributed one-per-pod in sorted PodAddress
// order so the distribution is deterministic across runs.
func targetCounts(pods []identity.PodAddress, numberOfShards int) map[identity.PodAddress]int {
	targets := make(map[identity.PodAddress]int, len(pods))
	if len(pods) == 0 {
		return targets
	}
	base := numberOfShards / len(pods)
	remainder := numberOfShards % len(pods)
	for i, pod := range pods {
		targets[pod] = base
		if i < remainder {
			targets[pod]++
		}
	}
	return targets
}

// ownedShards groups currently assigned shards by owning pod, each list
// sorted ascending so "lexicographically smallest shard" picks are
// deterministic.
func ownedShards(assignments assignment.Map) map[identity.PodAddress][]identity.ShardID {
	owned := make(map[identity.PodAddress][]identity.ShardID)
	for shard, pod := range assignments {
		owned[pod] = append(owned[pod], shard)
	}
	for pod := range owned {
		sort.Slice(owned[pod], func(i, j int) bool { return owned[pod][i] < owned[pod][j] })
	}
	return owned
}

// planMoves implements §4.5 steps 2-4: identify over/underloaded pods,
// produce a movement plan moving the lexicographically smallest
// above-target shards from each overloaded pod to the least-loaded pod,
// bounded to at most ceil(rebalanceRate*numberOfShards) moves total.
//
// Unassigned shards (present in neither assignments nor any pod's target
// deficit accounting) are treated as belonging to the most-deficient pod
// first, so a freshly registered pod or a newly unregistered one's
// orphaned shards get placed before any pod-to-pod rebalancing happens.
func planMoves(assignments assignment.Map, pods []identity.PodAddress, numberOfShards int, rebalanceRate float64) []move {
	if len(pods) == 0 {
		return nil
	}

	targets := targetCounts(pods, numberOfShards)
	owned := ownedShards(assignments)

	var unassigned []identity.ShardID
	for shard := identity.ShardID(0); shard < identity.ShardID(numberOfShards); shard++ {
		if _, ok := assignments[shard]; !ok {
			unassigned = append(unassigned, shard)
		}
	}
	sort.Slice(unassigned, func(i, j int) bool { return unassigned[i] < unassigned[j] })

	counts := make(map[identity.PodAddress]int, len(pods))
	for _, pod := range pods {
		counts[pod] = len(owned[pod])
	}

	maxMoves := int(math.Ceil(rebalanceRate * float64(numberOfShards)))
	if maxMoves < 1 {
		maxMoves = 1
	}

	var moves []move

	leastLoaded := func() identity.PodAddress {
		best := pods[0]
		for _, pod := range pods[1:] {
			if counts[pod] < counts[best] {
				best = pod
			}
		}
		return best
	}

	// Step: place unassigned shards first.
	for _, shard := range unassigned {
		if len(moves) >= maxMoves {
			return moves
		}
		dest := leastLoaded()
		moves = append(moves, move{shard: shard, from: identity.PodAddress{}, to: dest})
		counts[dest]++
	}

	// Step: migrate from overloaded pods to the least-loaded pod until
	// both are within ±1 of target, bounded by maxMoves overall.
	overloaded := make([]identity.PodAddress, 0)
	for _, pod := range pods {
		if counts[pod] > targets[pod] {
			overloaded = append(overloaded, pod)
		}
	}
	sortPods(overloaded)

	for _, pod := range overloaded {
		shards := owned[pod]
		idx := 0
		for counts[pod]-targets[pod] > 1 {
			if len(moves) >= maxMoves {
				return moves
			}
			if idx >= len(shards) {
				break
			}
			shard := shards[idx]
			idx++
			if _, alreadyMoved := assignments[shard]; !alreadyMoved {
				continue
			}

			dest := leastLoaded()
			if dest == pod || counts[dest] >= targets[dest]+1 {
				break
			}
			moves = append(moves, move{shard: shard, from: pod, to: dest})
			counts[pod]--
			counts[dest]++
		}
	}

	return moves
}

// Rebalance (re)computes assignments and applies a bounded movement
// plan. immediate only affects logging/observability — the move bound
// and algorithm are identical either way, per §4.5.
func (s *Server) Rebalance(ctx context.Context, immediate bool) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	pods := s.livePods()
	if len(pods) == 0 {
		return nil
	}

	s.mu.RLock()
	current := s.assignments.Clone()
	s.mu.RUnlock()

	moves := planMoves(current, pods, s.cfg.NumberOfShards, s.cfg.RebalanceRate)
	if len(moves) == 0 {
		return nil
	}

	for _, mv := range moves {
		if err := s.applyMove(ctx, mv); err != nil {
			s.log.WithError(err).WithField("shard", mv.shard).Warn("shardmanager: applying rebalance move")
			continue
		}
		metrics.RebalanceMovesTotal.Inc()
	}

	s.log.WithField("moves", len(moves)).WithField("immediate", immediate).Info("shardmanager: rebalance pass applied")
	return nil
}

// applyMove implements §4.5 step 5: unassign and persist, publish,
// instruct the source pod (via notify, to which it reacts by terminating
// local entities on the shard), then reassign and persist, publish. Each
// change is persisted before it is published.
func (s *Server) applyMove(ctx context.Context, mv move) error {
	s.mu.Lock()
	delete(s.assignments, mv.shard)
	snapshot := s.assignments.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}

	if !mv.from.IsZero() {
		s.events.Publish(events.ShardsUnassigned{Pod: mv.from, ShardID: []identity.ShardID{mv.shard}})
		if err := s.pods.Notify(ctx, mv.from, events.ShardsUnassigned{Pod: mv.from, ShardID: []identity.ShardID{mv.shard}}); err != nil {
			s.log.WithError(err).WithField("pod", mv.from).Warn("shardmanager: notifying source pod of unassignment")
		}
	}

	s.mu.Lock()
	s.assignments[mv.shard] = mv.to
	snapshot = s.assignments.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}

	s.events.Publish(events.ShardsAssigned{Pod: mv.to, ShardID: []identity.ShardID{mv.shard}})
	if err := s.pods.Notify(ctx, mv.to, events.ShardsAssigned{Pod: mv.to, ShardID: []identity.ShardID{mv.shard}}); err != nil {
		s.log.WithError(err).WithField("pod", mv.to).Warn("shardmanager: notifying destination pod of assignment")
	}

	return nil
}
