package metrics

import (
	"time"

	"github.com/shardctl/shardctl/pkg/types"
)

// ClusterView is the read-only accessor the Collector polls on each tick.
// It is satisfied by pkg/controlplane.Manager; kept as a narrow interface
// here so pkg/metrics never needs to import pkg/controlplane.
type ClusterView interface {
	ListNodes() []*types.RoutingNode
	ListIndices() []*types.Index
	IsLeader() bool
	RaftAppliedIndex() uint64
	RaftPeerCount() int
}

// Collector polls a ClusterView on a timer and updates the Prometheus gauge
// vars declared in metrics.go.
type Collector struct {
	view   ClusterView
	stopCh chan struct{}
}

// NewCollector creates a Collector over view.
func NewCollector(view ClusterView) *Collector {
	return &Collector{
		view:   view,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	c.collectShardMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectNodeMetrics() {
	nodes := c.view.ListNodes()
	counts := make(map[string]int)
	for _, node := range nodes {
		counts[string(node.Status)]++
	}
	for status, count := range counts {
		NodesTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectShardMetrics() {
	indices := c.view.ListIndices()
	IndicesTotal.Set(float64(len(indices)))

	nodes := c.view.ListNodes()
	shardCounts := make(map[types.ShardRoutingState]int)
	unassignedCounts := make(map[types.UnassignedStatus]int)
	for _, node := range nodes {
		for _, shard := range node.Shards {
			shardCounts[shard.State]++
			if shard.Unassigned != nil {
				unassignedCounts[shard.Unassigned.Status]++
			}
		}
	}
	for state, count := range shardCounts {
		ShardsTotal.WithLabelValues(string(state)).Set(float64(count))
	}
	for status, count := range unassignedCounts {
		UnassignedShardsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.view.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	RaftAppliedIndex.Set(float64(c.view.RaftAppliedIndex()))
	RaftPeers.Set(float64(c.view.RaftPeerCount()))
}
