package counter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/mailbox"
	"github.com/shardmesh/cluster/internal/messenger"
	"github.com/shardmesh/cluster/internal/shardmanager"
	"github.com/shardmesh/cluster/internal/sharding"
)

// decodeValue unmarshals a Processed state's success value into a
// float64 for comparison (json.Unmarshal renders a Go int64 this way).
func decodeValue(t *testing.T, state envelope.MessageState) float64 {
	t.Helper()
	require.Equal(t, envelope.ExitSuccess, state.Exit.Tag)
	var v float64
	require.NoError(t, json.Unmarshal(state.Exit.Value, &v))
	return v
}

func newTestMessenger(t *testing.T) *messenger.Messenger {
	t.Helper()
	local := identity.PodAddress{Host: "a", Port: 8080}
	store := mailbox.NewMemory()
	group, ctx := errgroup.WithContext(context.Background())
	rt := sharding.New(local, 16, store, nil, shardmanager.NewLocalClient(local, 16), group, ctx, logrus.New())
	require.NoError(t, rt.Start(context.Background()))
	rt.RegisterEntity(EntityType, Behavior(), Decode, sharding.Options{MaxIdleTime: time.Minute, TerminationTimeout: time.Second})

	return messenger.New(EntityType, 16, rt, store, logrus.New())
}

// Scenario 1 from the control-plane's end-to-end test matrix: two tells
// followed by an ask observe the increments in order.
func TestSingleCounterTellThenAsk(t *testing.T) {
	m := newTestMessenger(t)
	ctx := context.Background()

	require.NoError(t, m.Tell(ctx, "x", Inc()))
	require.NoError(t, m.Tell(ctx, "x", Inc()))

	state, err := m.Ask(ctx, "x", Get())
	require.NoError(t, err)
	require.True(t, state.IsProcessed())
	assert.Equal(t, decodeValue(t, state), float64(2))
}

func TestDecLowersValue(t *testing.T) {
	m := newTestMessenger(t)
	ctx := context.Background()

	require.NoError(t, m.Tell(ctx, "y", Inc()))
	require.NoError(t, m.Tell(ctx, "y", Dec()))
	require.NoError(t, m.Tell(ctx, "y", Dec()))

	state, err := m.Ask(ctx, "y", Get())
	require.NoError(t, err)
	assert.Equal(t, decodeValue(t, state), float64(-1))
}

func TestIndependentKeysDoNotShareState(t *testing.T) {
	m := newTestMessenger(t)
	ctx := context.Background()

	require.NoError(t, m.Tell(ctx, "a", Inc()))

	state, err := m.Ask(ctx, "b", Get())
	require.NoError(t, err)
	assert.Equal(t, decodeValue(t, state), float64(0))
}
