// Command shardmanager runs the cluster's control plane: the
// authoritative shard-to-pod assignment map, the rebalancing algorithm,
// and the periodic health sweep that evicts unresponsive pods.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/shardmesh/cluster/internal/assignment"
	"github.com/shardmesh/cluster/internal/config"
	"github.com/shardmesh/cluster/internal/metrics"
	"github.com/shardmesh/cluster/internal/podtransport"
	"github.com/shardmesh/cluster/internal/shardmanager"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Fatal("shardmanager: exiting")
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "shardmanager",
		Short: "Run the cluster sharding control plane",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run_(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 7070, "listen port")
	flags.Int("number-of-shards", 16, "cluster-wide shard count")
	flags.Duration("rebalance-interval", 30*time.Second, "periodic rebalance cadence")
	flags.Duration("rebalance-retry-interval", 5*time.Second, "rebalance-terminate retry interval (stored in the config; a failed source-pod notification is logged, not retried)")
	flags.Float64("rebalance-rate", 0.5, "fraction of shards eligible to move per rebalance pass")
	flags.Duration("persist-retry-interval", time.Second, "delay between assignment-persist retries")
	flags.Int("persist-retry-count", 5, "max assignment-persist retries")
	flags.Duration("pod-health-check-interval", 10*time.Second, "health-sweep cadence")
	flags.Duration("pod-ping-timeout", 2*time.Second, "per-pod health-check timeout")
	flags.Int("pod-max-consecutive-fails", 3, "consecutive failed health checks before a pod is evicted")
	flags.String("etcd-endpoints", "", "comma-separated etcd endpoints for the assignment store (memory store if empty)")

	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("number_of_shards", flags.Lookup("number-of-shards"))
	_ = v.BindPFlag("rebalance_interval", flags.Lookup("rebalance-interval"))
	_ = v.BindPFlag("rebalance_retry_interval", flags.Lookup("rebalance-retry-interval"))
	_ = v.BindPFlag("rebalance_rate", flags.Lookup("rebalance-rate"))
	_ = v.BindPFlag("persist_retry_interval", flags.Lookup("persist-retry-interval"))
	_ = v.BindPFlag("persist_retry_count", flags.Lookup("persist-retry-count"))
	_ = v.BindPFlag("pod_health_check_interval", flags.Lookup("pod-health-check-interval"))
	_ = v.BindPFlag("pod_ping_timeout", flags.Lookup("pod-ping-timeout"))
	_ = v.BindPFlag("pod_max_consecutive_fails", flags.Lookup("pod-max-consecutive-fails"))
	_ = v.BindPFlag("etcd_endpoints", flags.Lookup("etcd-endpoints"))

	return cmd
}

func run_(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.LoadShardManagerFromViper(v)
	if err != nil {
		return fmt.Errorf("shardmanager: loading config: %w", err)
	}

	log := logrus.New()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	store, err := newAssignmentStore(v)
	if err != nil {
		return fmt.Errorf("shardmanager: building assignment store: %w", err)
	}

	pods := podtransport.NewHTTPPods()
	smCfg := shardmanager.Config{
		NumberOfShards:         cfg.NumberOfShards,
		RebalanceInterval:      cfg.RebalanceInterval,
		RebalanceRetryInterval: cfg.RebalanceRetryInterval,
		RebalanceRate:          cfg.RebalanceRate,
		PersistRetryInterval:   cfg.PersistRetryInterval,
		PersistRetryCount:      cfg.PersistRetryCount,
		PodHealthCheckInterval: cfg.PodHealthCheckInterval,
		PodPingTimeout:         cfg.PodPingTimeout,
		PodMaxConsecutiveFails: cfg.PodMaxConsecutiveFails,
	}
	server := shardmanager.NewServer(smCfg, store, pods, pods, log)

	loadCtx, cancelLoad := context.WithTimeout(ctx, 5*time.Second)
	err = server.LoadAssignments(loadCtx)
	cancelLoad()
	if err != nil {
		log.WithError(err).Warn("shardmanager: loading persisted assignment map; starting empty")
	}

	mux := http.NewServeMux()
	mux.Handle("/", server.Router())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g run.Group

	g.Add(func() error {
		log.WithField("port", cfg.Port).Info("shardmanager: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	g.Add(func() error {
		return server.RunHealthSweep(sweepCtx)
	}, func(error) {
		cancelSweep()
	})

	rebalanceCtx, cancelRebalance := context.WithCancel(ctx)
	g.Add(func() error {
		return server.RunRebalanceLoop(rebalanceCtx)
	}, func(error) {
		cancelRebalance()
	})

	signalCtx, cancelSignal := context.WithCancel(ctx)
	g.Add(run.SignalHandler(signalCtx, os.Interrupt, syscall.SIGTERM))
	defer cancelSignal()

	return g.Run()
}

func newAssignmentStore(v *viper.Viper) (assignment.Store, error) {
	endpoints := v.GetString("etcd_endpoints")
	if endpoints == "" {
		return assignment.NewMemory(), nil
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   splitEndpoints(endpoints),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("shardmanager: connecting to etcd: %w", err)
	}
	return assignment.NewEtcdStore(client, "/shardmesh"), nil
}

func splitEndpoints(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
