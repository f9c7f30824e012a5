// Command pod runs a single pod process: a Sharding runtime, its
// registered entity types, and the HTTP RPC surface peer pods and
// clients reach it through.
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
	"golang.org/x/sync/errgroup"

	"github.com/shardmesh/cluster/internal/config"
	"github.com/shardmesh/cluster/internal/examples/counter"
	"github.com/shardmesh/cluster/internal/identity"
	"github.com/shardmesh/cluster/internal/mailbox"
	"github.com/shardmesh/cluster/internal/metrics"
	"github.com/shardmesh/cluster/internal/podtransport"
	"github.com/shardmesh/cluster/internal/shardmanager"
	"github.com/shardmesh/cluster/internal/sharding"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Fatal("pod: exiting")
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "pod",
		Short: "Run a sharding runtime pod",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run_(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "0.0.0.0", "address this pod advertises to the cluster")
	flags.Int("port", 8080, "listen port")
	flags.Int("number-of-shards", 16, "cluster-wide shard count; must match every pod and the ShardManager")
	flags.Duration("entity-max-idle-time", 5*time.Minute, "default per-entity idle TTL")
	flags.Duration("entity-termination-timeout", 10*time.Second, "bound on graceful entity close during shutdown/rebalance")
	flags.String("shard-manager-addr", "localhost:7070", "host:port of the ShardManager process (empty runs this pod standalone, owning every shard)")

	_ = v.BindPFlag("host", flags.Lookup("host"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("number_of_shards", flags.Lookup("number-of-shards"))
	_ = v.BindPFlag("entity_max_idle_time", flags.Lookup("entity-max-idle-time"))
	_ = v.BindPFlag("entity_termination_timeout", flags.Lookup("entity-termination-timeout"))
	_ = v.BindPFlag("shard_manager_addr", flags.Lookup("shard-manager-addr"))

	return cmd
}

func run_(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.LoadShardingFromViper(v)
	if err != nil {
		return fmt.Errorf("pod: loading config: %w", err)
	}

	log := logrus.New()
	local := identity.PodAddress{Host: cfg.Host, Port: cfg.Port}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	store := mailbox.NewMemory()
	pods := podtransport.NewHTTPPods()

	var client shardmanager.Client
	if cfg.ShardManagerAddr == "" {
		client = shardmanager.NewLocalClient(local, cfg.NumberOfShards)
	} else {
		client = shardmanager.NewHTTPClient(cfg.ShardManagerAddr)
	}

	group, runtimeCtx := errgroup.WithContext(ctx)
	rt := sharding.New(local, cfg.NumberOfShards, store, pods, client, group, runtimeCtx, log)

	rt.RegisterEntity(counter.EntityType, counter.Behavior(), counter.Decode, sharding.Options{
		MaxIdleTime:        cfg.EntityMaxIdleTime,
		TerminationTimeout: cfg.EntityTerminationTimeout,
	})

	startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
	err = rt.Start(startCtx)
	cancelStart()
	if err != nil {
		return fmt.Errorf("pod: registering with shard manager: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", podtransport.Router(rt, log))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g run.Group

	g.Add(func() error {
		log.WithField("pod", local.String()).Info("pod: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.EntityTerminationTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		rt.Shutdown(shutdownCtx)
	})

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	g.Add(func() error {
		return rt.RunAssignmentRefresh(refreshCtx, 5*time.Second)
	}, func(error) {
		cancelRefresh()
	})

	signalCtx, cancelSignal := context.WithCancel(ctx)
	g.Add(run.SignalHandler(signalCtx, os.Interrupt, syscall.SIGTERM))
	defer cancelSignal()

	return g.Run()
}
