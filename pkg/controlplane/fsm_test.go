package controlplane

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardctl/shardctl/pkg/storage"
	"github.com/shardctl/shardctl/pkg/types"
)

// testSnapshotSink adapts a bytes.Buffer to raft.SnapshotSink for exercising
// FSM.Snapshot/Restore without a running raft.Raft instance.
type testSnapshotSink struct {
	*bytes.Buffer
}

func (s *testSnapshotSink) ID() string      { return "test-snapshot" }
func (s *testSnapshotSink) Cancel() error   { return nil }
func (s *testSnapshotSink) Close() error    { return nil }

func newTestFSM(t *testing.T) *FSM {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewFSM(store)
}

func applyCommand(t *testing.T, f *FSM, op string, payload interface{}) interface{} {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	cmdData, err := json.Marshal(Command{Op: op, Data: data})
	require.NoError(t, err)
	return f.Apply(&raft.Log{Data: cmdData})
}

func TestApplyCreateIndexSeedsUnassignedShards(t *testing.T) {
	f := newTestFSM(t)

	index := types.Index{UUID: "idx-1", Name: "products", ShardCount: 2, ReplicaCount: 1, State: types.IndexStateOpen}
	resp := applyCommand(t, f, "create_index", index)
	require.Nil(t, resp)

	unassigned, err := f.store.GetUnassigned()
	require.NoError(t, err)
	require.Len(t, unassigned, 4) // 2 shards * (1 primary + 1 replica)

	primaries, replicas := 0, 0
	for _, s := range unassigned {
		assert.Equal(t, "idx-1", s.Shard.IndexUUID)
		assert.Equal(t, types.ShardStateUnassigned, s.State)
		if s.Role == types.ShardRolePrimary {
			primaries++
		} else {
			replicas++
		}
	}
	assert.Equal(t, 2, primaries)
	assert.Equal(t, 2, replicas)
}

func TestApplyDeleteIndexPurgesRouting(t *testing.T) {
	f := newTestFSM(t)

	index := types.Index{UUID: "idx-1", Name: "products", ShardCount: 1, ReplicaCount: 0, State: types.IndexStateOpen}
	applyCommand(t, f, "create_index", index)

	other := types.Index{UUID: "idx-2", Name: "orders", ShardCount: 1, ReplicaCount: 0, State: types.IndexStateOpen}
	applyCommand(t, f, "create_index", other)

	node := &types.RoutingNode{ID: "n1", Status: types.NodeStatusReady, Shards: []types.ShardRouting{
		{Shard: types.ShardId{IndexUUID: "idx-1", ShardNum: 0}, Role: types.ShardRolePrimary, State: types.ShardStateStarted, CurrentNodeID: "n1"},
	}}
	require.NoError(t, f.store.CreateNode(node))

	resp := applyCommand(t, f, "delete_index", "idx-1")
	require.Nil(t, resp)

	unassigned, err := f.store.GetUnassigned()
	require.NoError(t, err)
	for _, s := range unassigned {
		assert.NotEqual(t, "idx-1", s.Shard.IndexUUID)
	}

	got, err := f.store.GetNode("n1")
	require.NoError(t, err)
	assert.Empty(t, got.Shards)
}

func TestApplyUpsertAndDeleteNode(t *testing.T) {
	f := newTestFSM(t)

	node := types.RoutingNode{ID: "n1", Status: types.NodeStatusReady}
	resp := applyCommand(t, f, "upsert_node", node)
	require.Nil(t, resp)

	got, err := f.store.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusReady, got.Status)

	resp = applyCommand(t, f, "delete_node", "n1")
	require.Nil(t, resp)

	_, err = f.store.GetNode("n1")
	assert.Error(t, err)
}

func TestApplyUnknownCommandReturnsError(t *testing.T) {
	f := newTestFSM(t)
	resp := applyCommand(t, f, "not_a_real_op", struct{}{})
	err, ok := resp.(error)
	require.True(t, ok)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestSnapshotRestoreRoundTrips(t *testing.T) {
	f := newTestFSM(t)

	index := types.Index{UUID: "idx-1", Name: "products", ShardCount: 1, ReplicaCount: 0, State: types.IndexStateOpen}
	applyCommand(t, f, "create_index", index)
	applyCommand(t, f, "upsert_node", types.RoutingNode{ID: "n1", Status: types.NodeStatusReady})
	applyCommand(t, f, "publish_desired_balance", types.DesiredBalance{
		Assignments:        map[types.ShardId]types.ShardAssignment{{IndexUUID: "idx-1", ShardNum: 0}: {NodeIDs: []string{"n1"}, Total: 1}},
		LastConvergedIndex: 5,
	})

	snap, err := f.Snapshot()
	require.NoError(t, err)

	sink := &testSnapshotSink{Buffer: &bytes.Buffer{}}
	require.NoError(t, snap.Persist(sink))

	fresh := newTestFSM(t)
	require.NoError(t, fresh.Restore(io.NopCloser(sink.Buffer)))

	indices, err := fresh.store.ListIndices()
	require.NoError(t, err)
	require.Len(t, indices, 1)
	assert.Equal(t, "products", indices[0].Name)

	db, err := fresh.store.GetDesiredBalance()
	require.NoError(t, err)
	assert.Equal(t, int64(5), db.LastConvergedIndex)
}
