// Package clusterinfo implements the periodic fan-out collector of spec
// §4.4: it refreshes per-node disk usage and shard-size information on a
// timer, coalesces any refresh requests that arrive while one is already
// running into exactly one follow-up refresh, and serves a cached snapshot
// to readers in between.
package clusterinfo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shardctl/shardctl/pkg/log"
	"github.com/shardctl/shardctl/pkg/types"
)

// State is the collector's lifecycle state.
type State int

const (
	Idle State = iota
	Refreshing
	Stopped
)

// NodeInfoClient is how the collector talks to a single cluster node. Both
// methods are expected to respect ctx's deadline; a node that times out or
// errors is simply dropped from that refresh's snapshot (partial-failure
// tolerant), not treated as fatal to the whole pass.
type NodeInfoClient interface {
	FetchDiskUsage(ctx context.Context, node *types.RoutingNode) (types.NodeDiskUsage, error)
	FetchShardSizes(ctx context.Context, node *types.RoutingNode) (map[string]int64, error)
}

// Collector runs the refresh loop. At most one refresh is ever in flight;
// a request that arrives mid-refresh is recorded and served by the very
// next refresh rather than starting a second one concurrently.
type Collector struct {
	client   NodeInfoClient
	nodesFn  func() []*types.RoutingNode
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu            sync.Mutex
	state         State
	snapshot      types.ClusterInfoSnapshot
	queuedRefresh bool

	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a Collector. nodesFn returns the current node set each time
// it's called, so membership changes between refreshes are picked up
// automatically.
func New(client NodeInfoClient, nodesFn func() []*types.RoutingNode, interval, timeout time.Duration) *Collector {
	return &Collector{
		client:    client,
		nodesFn:   nodesFn,
		interval:  interval,
		timeout:   timeout,
		logger:    log.WithComponent("clusterinfo"),
		snapshot:  types.EmptyClusterInfoSnapshot(),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Snapshot returns the most recently completed refresh's result.
func (c *Collector) Snapshot() types.ClusterInfoSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// State reports the collector's current lifecycle state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TriggerRefresh requests an off-cycle refresh, e.g. on a node join. If a
// refresh is already running, this request is coalesced into the single
// follow-up refresh that runs immediately after — it does not queue a
// second one on top.
func (c *Collector) TriggerRefresh() {
	c.mu.Lock()
	if c.state == Refreshing {
		c.queuedRefresh = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	select {
	case c.triggerCh <- struct{}{}:
	default:
	}
}

// OnNodeJoin handles a node join by triggering an off-cycle refresh instead
// of waiting for the next tick.
func (c *Collector) OnNodeJoin(*types.RoutingNode) {
	c.TriggerRefresh()
}

// Run is the collector's single loop; it blocks until Stop is called or ctx
// is done. Callers should run it in its own goroutine.
func (c *Collector) Run(ctx context.Context) {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-c.triggerCh:
		case <-c.stopCh:
			c.mu.Lock()
			c.state = Stopped
			c.mu.Unlock()
			return
		case <-ctx.Done():
			c.mu.Lock()
			c.state = Stopped
			c.mu.Unlock()
			return
		}
		c.refresh(ctx)
	}
}

// Stop signals Run to exit and blocks until it has returned.
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Collector) refresh(ctx context.Context) {
	c.mu.Lock()
	c.state = Refreshing
	c.mu.Unlock()

	result := c.collect(ctx)

	c.mu.Lock()
	c.snapshot = result
	c.state = Idle
	queued := c.queuedRefresh
	c.queuedRefresh = false
	c.mu.Unlock()

	if queued {
		c.TriggerRefresh()
	}
}

// collect runs the two-fan-out pass: disk usage and shard sizes are
// gathered concurrently as two independent categories (the "counted latch
// of 2"), each itself fanning out one goroutine per node.
func (c *Collector) collect(ctx context.Context) types.ClusterInfoSnapshot {
	nodes := c.nodesFn()
	snapshot := types.EmptyClusterInfoSnapshot()
	var mu sync.Mutex
	var categories sync.WaitGroup
	categories.Add(2)

	go func() {
		defer categories.Done()
		var perNode sync.WaitGroup
		for _, n := range nodes {
			perNode.Add(1)
			go func(n *types.RoutingNode) {
				defer perNode.Done()
				reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
				defer cancel()
				usage, err := c.client.FetchDiskUsage(reqCtx, n)
				if err != nil {
					c.logger.Warn().Err(err).Str("node_id", n.ID).Msg("disk usage fetch failed")
					return
				}
				mu.Lock()
				snapshot.LeastAvailablePath[n.ID] = usage
				snapshot.MostAvailablePath[n.ID] = usage
				mu.Unlock()
			}(n)
		}
		perNode.Wait()
	}()

	go func() {
		defer categories.Done()
		var perNode sync.WaitGroup
		for _, n := range nodes {
			perNode.Add(1)
			go func(n *types.RoutingNode) {
				defer perNode.Done()
				reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
				defer cancel()
				sizes, err := c.client.FetchShardSizes(reqCtx, n)
				if err != nil {
					c.logger.Warn().Err(err).Str("node_id", n.ID).Msg("shard size fetch failed")
					return
				}
				mu.Lock()
				for key, size := range sizes {
					snapshot.ShardSizeBytes[key] = size
				}
				mu.Unlock()
			}(n)
		}
		perNode.Wait()
	}()

	categories.Wait()
	snapshot.Timestamp = time.Now()
	return snapshot
}
