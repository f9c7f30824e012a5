package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardmesh/cluster/internal/identity"
)

func TestMemoryWriteThenReadRoundTrips(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	m := Map{
		0: {Host: "a", Port: 1},
		1: {Host: "b", Port: 2},
	}
	require.NoError(t, store.Write(ctx, m))

	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMemoryReadBeforeAnyWriteIsEmpty(t *testing.T) {
	store := NewMemory()
	got, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryReadReturnsIndependentCopy(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, Map{0: {Host: "a", Port: 1}}))

	got, err := store.Read(ctx)
	require.NoError(t, err)
	got[0] = identity.PodAddress{Host: "mutated", Port: 99}

	second, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", second[0].Host)
}

func TestMapCloneIsIndependent(t *testing.T) {
	m := Map{0: {Host: "a", Port: 1}}
	clone := m.Clone()
	clone[0] = identity.PodAddress{Host: "b", Port: 2}
	assert.Equal(t, "a", m[0].Host)
}
