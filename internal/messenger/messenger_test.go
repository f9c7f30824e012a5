package messenger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/shardmesh/cluster/internal/entity"
	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/mailbox"
	"github.com/shardmesh/cluster/internal/shardmanager"
	"github.com/shardmesh/cluster/internal/sharding"
)

type pingMsg struct {
	Key string `json:"key"`
}

func (m pingMsg) PrimaryKey() string { return m.Key }

func decodePing(raw json.RawMessage) (envelope.Message, error) {
	var m pingMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func echoBehavior(ctx context.Context, inbox *entity.Mailbox) {
	for {
		d, ok := inbox.Take(ctx.Done())
		if !ok {
			return
		}
		d.Replier.Succeed("pong")
	}
}

func newTestMessenger(t *testing.T) (*Messenger, *sharding.Runtime, mailbox.Storage) {
	t.Helper()
	local := identity.PodAddress{Host: "a", Port: 1}
	store := mailbox.NewMemory()
	group, ctx := errgroup.WithContext(context.Background())
	rt := sharding.New(local, 8, store, nil, shardmanager.NewLocalClient(local, 8), group, ctx, logrus.New())
	require.NoError(t, rt.Start(context.Background()))
	rt.RegisterEntity("Ping", echoBehavior, decodePing, sharding.Options{MaxIdleTime: time.Minute, TerminationTimeout: time.Second})

	return New("Ping", 8, rt, store, logrus.New()), rt, store
}

func TestTellDeliversMessageToLocalEntity(t *testing.T) {
	msgr, _, _ := newTestMessenger(t)
	require.NoError(t, msgr.Tell(context.Background(), "x", pingMsg{Key: "x"}))
}

func TestAskReturnsProcessedState(t *testing.T) {
	msgr, _, _ := newTestMessenger(t)

	state, err := msgr.Ask(context.Background(), "x", pingMsg{Key: "x"})
	require.NoError(t, err)
	assert.True(t, state.IsProcessed())
	assert.Equal(t, envelope.ExitSuccess, state.Exit.Tag)
}

func TestAskTimesOutWhenEntityNeverReplies(t *testing.T) {
	_, rt, store := newTestMessenger(t)
	rt.RegisterEntity("Silent", func(ctx context.Context, inbox *entity.Mailbox) {
		<-ctx.Done()
	}, decodePing, sharding.Options{MaxIdleTime: time.Minute, TerminationTimeout: time.Second})
	silent := New("Silent", 8, rt, store, logrus.New())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := silent.Ask(ctx, "x", pingMsg{Key: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRouteFailsWhenShardUnassigned(t *testing.T) {
	local := identity.PodAddress{Host: "a", Port: 1}
	store := mailbox.NewMemory()
	group, ctx := errgroup.WithContext(context.Background())
	rt := sharding.New(local, 8, store, nil, shardmanager.NewLocalClient(local, 8), group, ctx, logrus.New())
	// Not started: assignment cache is empty.

	msgr := New("Ping", 8, rt, store, logrus.New())
	err := msgr.Tell(context.Background(), "x", pingMsg{Key: "x"})
	assert.ErrorIs(t, err, identity.ErrEntityNotManagedByPod)
}
