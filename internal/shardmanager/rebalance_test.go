package shardmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardmesh/cluster/internal/assignment"
	"github.com/shardmesh/cluster/internal/identity"
)

func pod(n int) identity.PodAddress {
	return identity.PodAddress{Host: "pod", Port: n}
}

func TestTargetCountsDistributesRemainderDeterministically(t *testing.T) {
	pods := []identity.PodAddress{pod(1), pod(2), pod(3)}
	sortPods(pods)
	targets := targetCounts(pods, 10)

	total := 0
	for _, c := range targets {
		total += c
	}
	assert.Equal(t, 10, total)
	// 10/3 = 3 remainder 1: exactly one pod gets 4, the rest get 3.
	counts := []int{targets[pods[0]], targets[pods[1]], targets[pods[2]]}
	assert.ElementsMatch(t, []int{4, 3, 3}, counts)
}

func TestPlanMovesAssignsAllUnassignedShardsFirst(t *testing.T) {
	pods := []identity.PodAddress{pod(1), pod(2)}
	moves := planMoves(assignment.Map{}, pods, 8, 1)

	seen := make(map[identity.ShardID]bool)
	for _, mv := range moves {
		seen[mv.shard] = true
		assert.True(t, mv.from.IsZero())
	}
	assert.Len(t, seen, 8)
}

func TestPlanMovesRateOneMovesEveryOutOfPlaceShard(t *testing.T) {
	pods := []identity.PodAddress{pod(1), pod(2)}
	// All 8 shards on pod(1): wildly imbalanced.
	current := assignment.Map{}
	for i := 0; i < 8; i++ {
		current[identity.ShardID(i)] = pod(1)
	}

	moves := planMoves(current, pods, 8, 1)
	require.NotEmpty(t, moves)
	// Target is 4/4; pod(1) should shed down toward 4, i.e. ~4 moves.
	assert.GreaterOrEqual(t, len(moves), 3)
}

func TestPlanMovesRateNearZeroBoundsToOneMove(t *testing.T) {
	pods := []identity.PodAddress{pod(1), pod(2)}
	current := assignment.Map{}
	for i := 0; i < 8; i++ {
		current[identity.ShardID(i)] = pod(1)
	}

	moves := planMoves(current, pods, 8, 0.001)
	assert.Len(t, moves, 1)
}

func TestPlanMovesNoPodsReturnsNil(t *testing.T) {
	moves := planMoves(assignment.Map{}, nil, 8, 1)
	assert.Nil(t, moves)
}

func TestPlanMovesBalancedInputProducesNoMoves(t *testing.T) {
	pods := []identity.PodAddress{pod(1), pod(2)}
	current := assignment.Map{
		0: pod(1), 1: pod(1), 2: pod(1), 3: pod(1),
		4: pod(2), 5: pod(2), 6: pod(2), 7: pod(2),
	}
	moves := planMoves(current, pods, 8, 1)
	assert.Empty(t, moves)
}
