package balance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardctl/shardctl/pkg/decider"
	"github.com/shardctl/shardctl/pkg/types"
)

func twoNodeInput(index int64) *Input {
	return &Input{
		Nodes: map[string]*types.RoutingNode{
			"n1": {ID: "n1", Status: types.NodeStatusReady},
			"n2": {ID: "n2", Status: types.NodeStatusReady},
		},
		Indices: map[string]*types.Index{
			"idx-1": {Name: "logs", UUID: "idx-1", State: types.IndexStateOpen, ShardCount: 1, ReplicaCount: 1},
		},
		Deciders: decider.New(decider.NodeExistsDecider{}, decider.SameShardDecider{}),
		Index:    index,
	}
}

func TestComputeOnceAssignsPrimaryAndReplicaToDistinctNodes(t *testing.T) {
	var published types.DesiredBalance
	c := New(func(b types.DesiredBalance) { published = b })

	result, converged := c.computeOnce(context.Background(), twoNodeInput(1))
	assert.True(t, converged)

	assign := result.Assignments[types.ShardId{IndexUUID: "idx-1", ShardNum: 0}]
	require.Len(t, assign.NodeIDs, 2)
	assert.NotEqual(t, assign.NodeIDs[0], assign.NodeIDs[1])
	assert.Equal(t, 2, assign.Total)
	_ = published
}

func TestOnNewInputIgnoresStaleIndex(t *testing.T) {
	c := New(nil)
	c.OnNewInput(twoNodeInput(5))
	c.OnNewInput(twoNodeInput(3))

	c.mu.Lock()
	got := c.pending.Index
	c.mu.Unlock()
	assert.Equal(t, int64(5), got)
}

func TestRunPublishesConvergedBalance(t *testing.T) {
	var published types.DesiredBalance
	c := New(func(b types.DesiredBalance) { published = b })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Stop()

	c.OnNewInput(twoNodeInput(1))

	assert.Eventually(t, func() bool {
		assign, ok := published.Assignments[types.ShardId{IndexUUID: "idx-1", ShardNum: 0}]
		return ok && len(assign.NodeIDs) == 2
	}, time.Second, time.Millisecond)

	assert.False(t, c.IsActive())
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.ComputationsSubmitted)
	assert.Equal(t, int64(1), stats.ComputationsExecuted)
	assert.Equal(t, int64(1), stats.ComputationsConverged)
}

func TestNoEligibleNodeMarksIgnored(t *testing.T) {
	in := &Input{
		Nodes: map[string]*types.RoutingNode{
			"n1": {ID: "n1", Status: types.NodeStatusDown},
		},
		Indices: map[string]*types.Index{
			"idx-1": {Name: "logs", UUID: "idx-1", State: types.IndexStateOpen, ShardCount: 1, ReplicaCount: 0},
		},
		Deciders: decider.New(decider.NodeExistsDecider{}),
		Index:    1,
	}
	c := New(nil)
	result, converged := c.computeOnce(context.Background(), in)
	assert.True(t, converged)
	assign := result.Assignments[types.ShardId{IndexUUID: "idx-1", ShardNum: 0}]
	assert.Empty(t, assign.NodeIDs)
	assert.True(t, assign.PrimaryIgnored)
}
