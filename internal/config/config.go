// Package config loads the runtime's two configuration surfaces —
// ShardingConfig for a pod process and ShardManager.Config for the
// control-plane process — from environment variables and an optional
// file, via viper.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment-variable prefix every recognized setting
// is read under, mirroring the teacher's COORDINATOR_ADDR/NODE_ID
// convention generalized to a single namespaced prefix.
const EnvPrefix = "TORUA_SHARD"

// Sharding holds a pod process's configuration: its own address, the
// cluster-wide shard count, and the idle/termination timeouts governing
// its EntityManagers.
type Sharding struct {
	Host                     string        `mapstructure:"host"`
	Port                     int           `mapstructure:"port"`
	NumberOfShards           int           `mapstructure:"number_of_shards"`
	EntityMaxIdleTime        time.Duration `mapstructure:"entity_max_idle_time"`
	EntityTerminationTimeout time.Duration `mapstructure:"entity_termination_timeout"`
	ShardManagerAddr         string        `mapstructure:"shard_manager_addr"`
}

// ShardManagerConfig holds the control-plane process's configuration.
type ShardManagerConfig struct {
	Port                   int           `mapstructure:"port"`
	NumberOfShards         int           `mapstructure:"number_of_shards"`
	RebalanceInterval      time.Duration `mapstructure:"rebalance_interval"`
	RebalanceRetryInterval time.Duration `mapstructure:"rebalance_retry_interval"`
	RebalanceRate          float64       `mapstructure:"rebalance_rate"`
	PersistRetryInterval   time.Duration `mapstructure:"persist_retry_interval"`
	PersistRetryCount      int           `mapstructure:"persist_retry_count"`
	PodHealthCheckInterval time.Duration `mapstructure:"pod_health_check_interval"`
	PodPingTimeout         time.Duration `mapstructure:"pod_ping_timeout"`
	PodMaxConsecutiveFails int           `mapstructure:"pod_max_consecutive_fails"`
}

// NewViper returns a viper instance bound to EnvPrefix's environment
// variables and, if present, a config file named "shardmesh" on the
// current path. cmd/shardmanager and cmd/pod bind their cobra flags
// into the returned instance with viper.BindPFlag before calling
// LoadShardingFromViper/LoadShardManagerFromViper, so a flag, an env
// var, or the config file can each supply a value with cobra taking
// precedence per viper's normal resolution order.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetConfigName("shardmesh")
	v.AddConfigPath(".")
	return v
}

func shardingDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("number_of_shards", 16)
	v.SetDefault("entity_max_idle_time", 5*time.Minute)
	v.SetDefault("entity_termination_timeout", 10*time.Second)
	v.SetDefault("shard_manager_addr", "localhost:7070")
}

func shardManagerDefaults(v *viper.Viper) {
	v.SetDefault("port", 7070)
	v.SetDefault("number_of_shards", 16)
	v.SetDefault("rebalance_interval", 30*time.Second)
	v.SetDefault("rebalance_retry_interval", 5*time.Second)
	v.SetDefault("rebalance_rate", 0.5)
	v.SetDefault("persist_retry_interval", time.Second)
	v.SetDefault("persist_retry_count", 5)
	v.SetDefault("pod_health_check_interval", 10*time.Second)
	v.SetDefault("pod_ping_timeout", 2*time.Second)
	v.SetDefault("pod_max_consecutive_fails", 3)
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return err
		}
	}
	return nil
}

// LoadSharding reads a Sharding config from a fresh viper instance,
// applying defaults, then the optional config file, then environment
// overrides.
func LoadSharding() (Sharding, error) {
	return LoadShardingFromViper(NewViper())
}

// LoadShardingFromViper reads a Sharding config from v, which the
// caller may have already populated with cobra-bound flags.
func LoadShardingFromViper(v *viper.Viper) (Sharding, error) {
	shardingDefaults(v)
	if err := readConfigFile(v); err != nil {
		return Sharding{}, err
	}

	var cfg Sharding
	if err := v.Unmarshal(&cfg); err != nil {
		return Sharding{}, err
	}
	return cfg, nil
}

// LoadShardManager reads a ShardManagerConfig the same way LoadSharding
// reads a Sharding config.
func LoadShardManager() (ShardManagerConfig, error) {
	return LoadShardManagerFromViper(NewViper())
}

// LoadShardManagerFromViper reads a ShardManagerConfig from v, which the
// caller may have already populated with cobra-bound flags.
func LoadShardManagerFromViper(v *viper.Viper) (ShardManagerConfig, error) {
	shardManagerDefaults(v)
	if err := readConfigFile(v); err != nil {
		return ShardManagerConfig{}, err
	}

	var cfg ShardManagerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ShardManagerConfig{}, err
	}
	return cfg, nil
}
