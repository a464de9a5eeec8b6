package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardctl/shardctl/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIndexCRUDRoundTrips(t *testing.T) {
	s := newTestStore(t)
	idx := &types.Index{Name: "logs", UUID: "idx-1", State: types.IndexStateOpen, ShardCount: 3, ReplicaCount: 1}
	require.NoError(t, s.CreateIndex(idx))

	got, err := s.GetIndex("idx-1")
	require.NoError(t, err)
	assert.Equal(t, "logs", got.Name)

	byName, err := s.GetIndexByName("logs")
	require.NoError(t, err)
	assert.Equal(t, "idx-1", byName.UUID)

	idx.ShardCount = 5
	require.NoError(t, s.UpdateIndex(idx))
	got, err = s.GetIndex("idx-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.ShardCount)

	all, err := s.ListIndices()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteIndex("idx-1"))
	_, err = s.GetIndex("idx-1")
	assert.Error(t, err)
}

func TestNodeCRUDRoundTrips(t *testing.T) {
	s := newTestStore(t)
	node := &types.RoutingNode{ID: "n1", Address: "10.0.0.1:9200", Status: types.NodeStatusReady, JoinedAt: time.Now()}
	require.NoError(t, s.CreateNode(node))

	got, err := s.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusReady, got.Status)

	node.Status = types.NodeStatusDown
	require.NoError(t, s.UpdateNode(node))
	got, err = s.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusDown, got.Status)

	all, err := s.ListNodes()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteNode("n1"))
	_, err = s.GetNode("n1")
	assert.Error(t, err)
}

func TestUnassignedIsReplacedWholesale(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.GetUnassigned()
	require.NoError(t, err)
	assert.Empty(t, empty)

	shards := []types.ShardRouting{
		{Shard: types.ShardId{IndexUUID: "idx-1", ShardNum: 0}, Role: types.ShardRolePrimary, State: types.ShardStateUnassigned},
	}
	require.NoError(t, s.SetUnassigned(shards))

	got, err := s.GetUnassigned()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "idx-1", got[0].Shard.IndexUUID)

	require.NoError(t, s.SetUnassigned(nil))
	got, err = s.GetUnassigned()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDesiredBalanceDefaultsToEmpty(t *testing.T) {
	s := newTestStore(t)

	balance, err := s.GetDesiredBalance()
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.LastConvergedIndex)
	assert.Empty(t, balance.Assignments)

	shard := types.ShardId{IndexUUID: "idx-1", ShardNum: 0}
	balance = types.DesiredBalance{
		Assignments:        map[types.ShardId]types.ShardAssignment{shard: {NodeIDs: []string{"n1"}, Total: 1}},
		LastConvergedIndex: 7,
	}
	require.NoError(t, s.SetDesiredBalance(balance))

	got, err := s.GetDesiredBalance()
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.LastConvergedIndex)
}

func TestClusterInfoDefaultsToEmpty(t *testing.T) {
	s := newTestStore(t)

	snap, err := s.GetClusterInfo()
	require.NoError(t, err)
	assert.Empty(t, snap.ShardSizeBytes)

	snap.ShardSizeBytes["idx-1/0"] = 1024
	require.NoError(t, s.SetClusterInfo(snap))

	got, err := s.GetClusterInfo()
	require.NoError(t, err)
	assert.Equal(t, int64(1024), got.ShardSizeBytes["idx-1/0"])
}
