package shardmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnceEvictsOnlyAfterMaxConsecutiveFails(t *testing.T) {
	s, pods := newTestServer()
	s.cfg.PodMaxConsecutiveFails = 3
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, pod(1)))
	pods.unhealthy[pod(1)] = true

	s.sweepOnce(ctx)
	assert.Len(t, s.GetAssignments(), 8, "first failed ping should not evict")

	s.sweepOnce(ctx)
	assert.Len(t, s.GetAssignments(), 8, "second failed ping should not evict")

	s.sweepOnce(ctx)
	assert.Empty(t, s.GetAssignments(), "third consecutive failure should evict")
}

func TestSweepOnceResetsFailureCountOnRecovery(t *testing.T) {
	s, pods := newTestServer()
	s.cfg.PodMaxConsecutiveFails = 2
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, pod(1)))
	pods.unhealthy[pod(1)] = true
	s.sweepOnce(ctx)

	pods.unhealthy[pod(1)] = false
	s.sweepOnce(ctx)

	pods.unhealthy[pod(1)] = true
	s.sweepOnce(ctx)
	assert.Len(t, s.GetAssignments(), 8, "recovery should reset the failure streak")
}

func TestRunHealthSweepStopsOnContextCancel(t *testing.T) {
	s, _ := newTestServer()
	s.cfg.PodHealthCheckInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunHealthSweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
