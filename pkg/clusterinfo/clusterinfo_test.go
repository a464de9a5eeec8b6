package clusterinfo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardctl/shardctl/pkg/types"
)

type fakeClient struct {
	mu       sync.Mutex
	calls    int
	block    chan struct{}
	failNode string
}

func (f *fakeClient) FetchDiskUsage(ctx context.Context, node *types.RoutingNode) (types.NodeDiskUsage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if node.ID == f.failNode {
		return types.NodeDiskUsage{}, context.DeadlineExceeded
	}
	return types.NodeDiskUsage{NodeID: node.ID, TotalBytes: 1000, AvailableBytes: 500}, nil
}

func (f *fakeClient) FetchShardSizes(ctx context.Context, node *types.RoutingNode) (map[string]int64, error) {
	return map[string]int64{node.ID + "/0": 42}, nil
}

func twoNodes() []*types.RoutingNode {
	return []*types.RoutingNode{{ID: "n1"}, {ID: "n2"}}
}

func TestCollectProducesSnapshotTolerantOfPartialFailure(t *testing.T) {
	client := &fakeClient{failNode: "n2"}
	c := New(client, twoNodes, time.Hour, time.Second)

	snap := c.collect(context.Background())
	assert.Len(t, snap.LeastAvailablePath, 1)
	assert.Contains(t, snap.LeastAvailablePath, "n1")
	assert.NotContains(t, snap.LeastAvailablePath, "n2")
	assert.Len(t, snap.ShardSizeBytes, 2)
}

// Scenario F: a node-join arriving while a refresh is in flight enqueues
// exactly one more refresh, not one per join event.
func TestNodeJoinDuringRefreshEnqueuesExactlyOneFollowUp(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	c := New(client, twoNodes, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Stop()

	c.TriggerRefresh()
	assert.Eventually(t, func() bool { return c.State() == Refreshing }, time.Second, time.Millisecond)

	c.OnNodeJoin(&types.RoutingNode{ID: "n3"})
	c.OnNodeJoin(&types.RoutingNode{ID: "n4"})
	c.OnNodeJoin(&types.RoutingNode{ID: "n5"})

	c.mu.Lock()
	queued := c.queuedRefresh
	c.mu.Unlock()
	assert.True(t, queued)

	close(client.block)

	assert.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.calls >= 4 // 2 nodes x (initial refresh + 1 follow-up)
	}, time.Second, time.Millisecond)
}

func TestTriggerRefreshWhileIdleRunsImmediately(t *testing.T) {
	client := &fakeClient{}
	c := New(client, twoNodes, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Stop()

	c.TriggerRefresh()

	require.Eventually(t, func() bool {
		return len(c.Snapshot().LeastAvailablePath) == 2
	}, time.Second, time.Millisecond)
}
