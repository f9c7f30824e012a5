package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/identity"
)

type testMessage struct {
	Key   string
	Value int
}

func (m testMessage) PrimaryKey() string { return m.Key }

func addr(id string) identity.EntityAddress {
	return identity.EntityAddress{ShardID: 0, EntityType: "Counter", EntityID: identity.EntityID(id)}
}

func TestSaveMessageSequenceNumbersAreGapFreeAndIncreasing(t *testing.T) {
	store := NewMemory()
	a := addr("x")

	var last uint64
	for i := 0; i < 5; i++ {
		entry, err := store.SaveMessage(a, testMessage{Key: "m" + string(rune('0'+i)), Value: i})
		require.NoError(t, err)
		assert.Equal(t, last+1, entry.SequenceNumber)
		last = entry.SequenceNumber
	}
}

func TestSaveMessageSequencesAreIndependentPerAddress(t *testing.T) {
	store := NewMemory()
	a, b := addr("x"), addr("y")

	entryA, err := store.SaveMessage(a, testMessage{Key: "m1"})
	require.NoError(t, err)
	entryB, err := store.SaveMessage(b, testMessage{Key: "m1"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), entryA.SequenceNumber)
	assert.Equal(t, uint64(1), entryB.SequenceNumber)
}

func TestUpdateMessageOnUnknownAddressIsNoSuchEntry(t *testing.T) {
	store := NewMemory()
	err := store.UpdateMessage(addr("never-saved"), "m1", envelope.Processed(envelope.Succeeded(1)))
	assert.ErrorIs(t, err, identity.ErrNoSuchEntry)
}

func TestAwaitReturnsImmediatelyIfAlreadyProcessed(t *testing.T) {
	store := NewMemory()
	a := addr("x")
	_, err := store.SaveMessage(a, testMessage{Key: "m1"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateMessage(a, "m1", envelope.Processed(envelope.Succeeded(42))))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	state, err := store.Await(ctx, a, "m1")
	require.NoError(t, err)
	assert.True(t, state.IsProcessed())
}

func TestAwaitUnblocksOnUpdateMessage(t *testing.T) {
	store := NewMemory()
	a := addr("x")
	_, err := store.SaveMessage(a, testMessage{Key: "m1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan envelope.MessageState, 1)
	go func() {
		state, err := store.Await(ctx, a, "m1")
		require.NoError(t, err)
		done <- state
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.UpdateMessage(a, "m1", envelope.Processed(envelope.Succeeded(7))))

	select {
	case state := <-done:
		assert.True(t, state.IsProcessed())
	case <-time.After(time.Second):
		t.Fatal("Await did not unblock after UpdateMessage")
	}
}

func TestAwaitReturnsContextErrorOnCancellation(t *testing.T) {
	store := NewMemory()
	a := addr("x")
	_, err := store.SaveMessage(a, testMessage{Key: "m1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = store.Await(ctx, a, "m1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUpdateMessageIsIdempotentForRepeatedTerminalState(t *testing.T) {
	store := NewMemory()
	a := addr("x")
	_, err := store.SaveMessage(a, testMessage{Key: "m1"})
	require.NoError(t, err)

	exit := envelope.Succeeded(99)
	require.NoError(t, store.UpdateMessage(a, "m1", envelope.Processed(exit)))
	require.NoError(t, store.UpdateMessage(a, "m1", envelope.Processed(exit)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := store.Await(ctx, a, "m1")
	require.NoError(t, err)
	assert.True(t, state.IsProcessed())
}
