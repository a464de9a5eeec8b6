package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/shardctl/shardctl/pkg/types"
)

type fakeView struct {
	nodes    []*types.RoutingNode
	indices  []*types.Index
	isLeader bool
}

func (f fakeView) ListNodes() []*types.RoutingNode { return f.nodes }
func (f fakeView) ListIndices() []*types.Index     { return f.indices }
func (f fakeView) IsLeader() bool                  { return f.isLeader }
func (f fakeView) RaftAppliedIndex() uint64         { return 7 }
func (f fakeView) RaftPeerCount() int               { return 3 }

func TestCollectUpdatesGauges(t *testing.T) {
	view := fakeView{
		nodes: []*types.RoutingNode{
			{ID: "n1", Status: types.NodeStatusReady, Shards: []types.ShardRouting{
				{State: types.ShardStateStarted},
				{State: types.ShardStateUnassigned, Unassigned: &types.UnassignedInfo{Status: types.UnassignedDecidersNo}},
			}},
		},
		indices:  []*types.Index{{Name: "logs"}},
		isLeader: true,
	}
	c := NewCollector(view)
	c.collect()

	assert.Equal(t, float64(1), testutil.ToFloat64(NodesTotal.WithLabelValues("ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(IndicesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(RaftLeader))
	assert.Equal(t, float64(1), testutil.ToFloat64(ShardsTotal.WithLabelValues(string(types.ShardStateStarted))))
	assert.Equal(t, float64(1), testutil.ToFloat64(UnassignedShardsTotal.WithLabelValues(string(types.UnassignedDecidersNo))))
}
