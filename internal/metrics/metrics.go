// Package metrics exposes the agent's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the number of actions waiting for delivery.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "civic_sync_queue_depth",
		Help: "Number of queued actions awaiting delivery",
	})

	// ItemsTotal counts settled queue items by type and outcome
	// (delivered, retried, dropped, retained).
	ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_sync_items_total",
		Help: "Queue items settled by the sync engine",
	}, []string{"type", "outcome"})

	// DrainCycles counts drain cycles by result (completed, not_attempted, busy).
	DrainCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_sync_drain_cycles_total",
		Help: "Drain cycles by result",
	}, []string{"result"})

	DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "civic_sync_drain_duration_seconds",
		Help:    "Duration of completed drain cycles",
		Buckets: prometheus.DefBuckets,
	})

	// ReadTier counts which fallback tier served each read.
	ReadTier = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_read_tier_total",
		Help: "Reads served by each fallback tier",
	}, []string{"resource", "tier"})

	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "civic_connectivity_online",
		Help: "1 when the remote endpoint is reachable and configured",
	})
)

// ObserveDrain records the latency of a completed drain cycle.
func ObserveDrain(start time.Time) {
	DrainDuration.Observe(time.Since(start).Seconds())
}

// SetOnline records the connectivity state.
func SetOnline(online bool) {
	if online {
		Online.Set(1)
		return
	}
	Online.Set(0)
}
