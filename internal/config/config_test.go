package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadShardingDefaults(t *testing.T) {
	cfg, err := LoadSharding()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.NumberOfShards)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadShardingEnvOverride(t *testing.T) {
	t.Setenv("TORUA_SHARD_PORT", "9191")
	cfg, err := LoadSharding()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Port)
}

func TestLoadShardManagerDefaults(t *testing.T) {
	cfg, err := LoadShardManager()
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.RebalanceRate)
	assert.Equal(t, 5, cfg.PersistRetryCount)
}

func TestLoadShardManagerEnvOverride(t *testing.T) {
	t.Setenv("TORUA_SHARD_REBALANCE_RATE", "1")
	cfg, err := LoadShardManager()
	require.NoError(t, err)
	assert.Equal(t, float64(1), cfg.RebalanceRate)
}

