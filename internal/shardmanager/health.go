package shardmanager

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/metrics"
)

// RunHealthSweep ticks every PodHealthCheckInterval, probing every live
// pod with a PodPingTimeout bound and evicting those that fail
// PodMaxConsecutiveFails checks in a row (see sweepOnce). It
// blocks until ctx is cancelled, matching the run.Group actor shape
// cmd/shardmanager assembles its process lifecycle from.
func (s *Server) RunHealthSweep(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PodHealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce pings every live pod and evicts one only after it has failed
// PodMaxConsecutiveFails checks in a row, so a single dropped ping on an
// otherwise healthy pod doesn't trigger a rebalance.
func (s *Server) sweepOnce(ctx context.Context) {
	for _, pod := range s.livePods() {
		checkCtx, cancel := context.WithTimeout(ctx, s.cfg.PodPingTimeout)
		alive := s.health.IsAlive(checkCtx, pod)
		cancel()

		result := "healthy"
		if !alive {
			result = "unhealthy"
		}
		metrics.PodHealthChecksTotal.WithLabelValues(pod.String(), result).Inc()
		s.events.Publish(events.PodHealthChecked{Pod: pod, Healthy: alive})

		if alive {
			s.mu.Lock()
			delete(s.failures, pod)
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		s.failures[pod]++
		fails := s.failures[pod]
		s.mu.Unlock()

		if fails < s.cfg.PodMaxConsecutiveFails {
			s.log.WithFields(logrus.Fields{"pod": pod, "fails": fails}).Warn("shardmanager: pod failed health check")
			continue
		}

		s.log.WithField("pod", pod).Warn("shardmanager: pod exceeded max consecutive failures, evicting")
		if err := s.Unregister(ctx, pod); err != nil {
			s.log.WithError(err).WithField("pod", pod).Warn("shardmanager: evicting unhealthy pod")
		}
	}
}
