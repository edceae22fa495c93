package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grove_connections_accepted_total",
		Help: "Total client connections accepted",
	})
	ConnectionsThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grove_connections_throttled_total",
		Help: "Total connections refused by the accept throttle",
	})
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grove_active_connections",
		Help: "Connections currently owned by the event loop",
	})
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grove_requests_total",
		Help: "Total requests dispatched, by status class",
	}, []string{"status"})
	RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grove_request_duration_seconds",
		Help:    "Worker time from dispatch to encoded response",
		Buckets: prometheus.DefBuckets,
	})
	RewardCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grove_reward_cycles_total",
		Help: "Completed reward cycles",
	})
	RewardsPaid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grove_rewards_paid_total",
		Help: "Total wallet currency credited by reward cycles",
	})
	SnapshotDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grove_snapshot_duration_seconds",
		Help:    "Time spent inside the exclusive section taking snapshots",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsAccepted, ConnectionsThrottled, ActiveConnections,
		Requests, RequestDuration, RewardCycles, RewardsPaid, SnapshotDuration,
	)
}

// ObserveRequest records one completed dispatch.
func ObserveRequest(status string, start time.Time) {
	Requests.WithLabelValues(status).Inc()
	RequestDuration.Observe(time.Since(start).Seconds())
}
