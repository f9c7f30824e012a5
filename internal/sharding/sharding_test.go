package sharding

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/shardmesh/cluster/internal/assignment"
	"github.com/shardmesh/cluster/internal/entity"
	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/mailbox"
	"github.com/shardmesh/cluster/internal/shardmanager"
)

type counterMsg struct {
	Key string `json:"key"`
	Op  string `json:"op"`
}

func (m counterMsg) PrimaryKey() string { return m.Key + ":" + m.Op }

func decodeCounter(raw json.RawMessage) (envelope.Message, error) {
	var m counterMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func countingBehavior(count *int) entity.Behavior {
	return func(ctx context.Context, inbox *entity.Mailbox) {
		for {
			d, ok := inbox.Take(ctx.Done())
			if !ok {
				return
			}
			*count++
			d.Replier.Succeed("ok")
		}
	}
}

func newRuntime(t *testing.T, local identity.PodAddress, client shardmanager.Client) *Runtime {
	t.Helper()
	group, ctx := errgroup.WithContext(context.Background())
	return New(local, 8, mailbox.NewMemory(), nil, client, group, ctx, logrus.New())
}

func TestSendToLocalEntityManagerRoutesWhenShardOwnedLocally(t *testing.T) {
	local := identity.PodAddress{Host: "a", Port: 1}
	client := shardmanager.NewLocalClient(local, 8)
	rt := newRuntime(t, local, client)
	require.NoError(t, rt.Start(context.Background()))

	var count int
	rt.RegisterEntity("Counter", countingBehavior(&count), decodeCounter, Options{MaxIdleTime: time.Minute, TerminationTimeout: time.Second})

	address := identity.EntityAddress{ShardID: rt.GetShardID("x"), EntityType: "Counter", EntityID: "x"}
	env, err := envelope.Encode(address, counterMsg{Key: "x", Op: "inc"})
	require.NoError(t, err)

	require.NoError(t, rt.SendToLocalEntityManager(env))
	require.Eventually(t, func() bool { return count == 1 }, time.Second, 5*time.Millisecond)
}

func TestSendToLocalEntityManagerFailsWhenShardNotOwned(t *testing.T) {
	local := identity.PodAddress{Host: "a", Port: 1}
	rt := newRuntime(t, local, shardmanager.NewLocalClient(local, 8))
	// Never started / refreshed: assignment cache is empty, so every
	// shard is unowned locally.

	address := identity.EntityAddress{ShardID: 0, EntityType: "Counter", EntityID: "x"}
	env, _ := envelope.Encode(address, counterMsg{Key: "x", Op: "inc"})

	err := rt.SendToLocalEntityManager(env)
	assert.ErrorIs(t, err, identity.ErrEntityNotManagedByPod)
}

func TestSendEnvelopeDispatchesLocallyForLocalAddress(t *testing.T) {
	local := identity.PodAddress{Host: "a", Port: 1}
	client := shardmanager.NewLocalClient(local, 8)
	rt := newRuntime(t, local, client)
	require.NoError(t, rt.Start(context.Background()))

	var count int
	rt.RegisterEntity("Counter", countingBehavior(&count), decodeCounter, Options{MaxIdleTime: time.Minute, TerminationTimeout: time.Second})

	address := identity.EntityAddress{ShardID: rt.GetShardID("x"), EntityType: "Counter", EntityID: "x"}
	env, _ := envelope.Encode(address, counterMsg{Key: "x", Op: "inc"})

	require.NoError(t, rt.SendEnvelope(context.Background(), local, env))
	require.Eventually(t, func() bool { return count == 1 }, time.Second, 5*time.Millisecond)
}

func TestReceiveEventShardsAssignedUpdatesCache(t *testing.T) {
	local := identity.PodAddress{Host: "a", Port: 1}
	rt := newRuntime(t, local, shardmanager.NewLocalClient(local, 8))

	require.NoError(t, rt.ReceiveEvent(events.ShardsAssigned{Pod: local, ShardID: []identity.ShardID{3}}))
	assert.True(t, rt.isEntityOnLocalShards(identity.EntityAddress{ShardID: 3}))
}

func TestReceiveEventShardsUnassignedClearsCache(t *testing.T) {
	local := identity.PodAddress{Host: "a", Port: 1}
	rt := newRuntime(t, local, shardmanager.NewLocalClient(local, 8))
	require.NoError(t, rt.ReceiveEvent(events.ShardsAssigned{Pod: local, ShardID: []identity.ShardID{3}}))
	require.NoError(t, rt.ReceiveEvent(events.ShardsUnassigned{Pod: local, ShardID: []identity.ShardID{3}}))

	assert.False(t, rt.isEntityOnLocalShards(identity.EntityAddress{ShardID: 3}))
}

func TestHealthyReflectsShutdownState(t *testing.T) {
	local := identity.PodAddress{Host: "a", Port: 1}
	client := shardmanager.NewLocalClient(local, 8)
	rt := newRuntime(t, local, client)

	assert.True(t, rt.Healthy())
	rt.Shutdown(context.Background())
	assert.False(t, rt.Healthy())
}

func TestAssignmentStoreMapClone(t *testing.T) {
	m := assignment.Map{0: identity.PodAddress{Host: "a", Port: 1}}
	clone := m.Clone()
	clone[0] = identity.PodAddress{Host: "b", Port: 2}
	assert.Equal(t, "a", m[0].Host)
}
