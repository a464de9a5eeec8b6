// Package metrics exposes the control plane's Prometheus metric vars and a
// small Timer helper, registered against the default registry and served
// at /metrics via Handler().
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardctl_nodes_total",
			Help: "Total number of nodes by status",
		},
		[]string{"status"},
	)

	IndicesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardctl_indices_total",
			Help: "Total number of indices",
		},
	)

	ShardsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardctl_shards_total",
			Help: "Total number of shard copies by routing state",
		},
		[]string{"state"},
	)

	UnassignedShardsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardctl_unassigned_shards_total",
			Help: "Total number of unassigned shard copies by reason",
		},
		[]string{"status"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardctl_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardctl_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardctl_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardctl_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardctl_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardctl_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Master task queue metrics
	TaskQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardctl_task_queue_depth",
			Help: "Number of tasks currently queued by priority",
		},
		[]string{"priority"},
	)

	TasksSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardctl_tasks_superseded_total",
			Help: "Total number of tasks superseded by a newer task before executing",
		},
	)

	// Desired-balance computer metrics
	BalanceComputationsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardctl_balance_computations_submitted_total",
			Help: "Total number of desired-balance computations submitted",
		},
	)

	BalanceComputationsExecutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardctl_balance_computations_executed_total",
			Help: "Total number of desired-balance computations actually run",
		},
	)

	BalanceComputationsConvergedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardctl_balance_computations_converged_total",
			Help: "Total number of desired-balance computations that converged before budget exhaustion",
		},
	)

	BalanceComputationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardctl_balance_computation_duration_seconds",
			Help:    "Time taken for a single desired-balance computation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardctl_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardctl_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ShardMovesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardctl_shard_moves_total",
			Help: "Total number of shard moves by phase",
		},
		[]string{"phase"},
	)

	// Cluster-info collector metrics
	ClusterInfoRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardctl_cluster_info_refresh_duration_seconds",
			Help:    "Time taken for a cluster-info refresh pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ClusterInfoRefreshFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardctl_cluster_info_refresh_failures_total",
			Help: "Total number of per-node cluster-info fetches that failed, by category",
		},
		[]string{"category"},
	)

	// Indexing-pressure controller metrics
	IndexingPressureBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardctl_indexing_pressure_bytes",
			Help: "Current indexing-pressure bytes in flight by role",
		},
		[]string{"role"},
	)

	IndexingRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardctl_indexing_rejections_total",
			Help: "Total number of indexing admission rejections by role",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		IndicesTotal,
		ShardsTotal,
		UnassignedShardsTotal,
		RaftLeader,
		RaftPeers,
		RaftAppliedIndex,
		RaftApplyDuration,
		APIRequestsTotal,
		APIRequestDuration,
		TaskQueueDepth,
		TasksSupersededTotal,
		BalanceComputationsSubmittedTotal,
		BalanceComputationsExecutedTotal,
		BalanceComputationsConvergedTotal,
		BalanceComputationDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		ShardMovesTotal,
		ClusterInfoRefreshDuration,
		ClusterInfoRefreshFailuresTotal,
		IndexingPressureBytes,
		IndexingRejectionsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
