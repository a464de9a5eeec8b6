package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardctl/shardctl/pkg/decider"
	"github.com/shardctl/shardctl/pkg/types"
)

func readyNode(id string) *types.RoutingNode {
	return &types.RoutingNode{ID: id, Status: types.NodeStatusReady}
}

func unassignedShard(idx string, n int, role types.ShardRole) types.ShardRouting {
	return types.ShardRouting{
		Shard:      types.ShardId{IndexUUID: idx, ShardNum: n},
		Role:       role,
		State:      types.ShardStateUnassigned,
		Unassigned: &types.UnassignedInfo{Status: types.UnassignedNoAttempt},
	}
}

// Scenario A: two-node cluster, primary then replica bring-up. Pass 1
// initializes only the primary; the replica stays unassigned with
// NO_ATTEMPT until the primary is observed started, at which point pass 2
// initializes it.
func TestScenarioATwoNodeBringUp(t *testing.T) {
	shardID := types.ShardId{IndexUUID: "idx-1", ShardNum: 0}
	desired := types.DesiredBalance{
		Assignments: map[types.ShardId]types.ShardAssignment{
			shardID: {NodeIDs: []string{"n1", "n2"}, Total: 2},
		},
	}
	deciders := decider.New(decider.NodeExistsDecider{}, decider.SameShardDecider{})

	alloc := &RoutingAllocation{
		Nodes: map[string]*types.RoutingNode{
			"n1": readyNode("n1"),
			"n2": readyNode("n2"),
		},
		Unassigned: []types.ShardRouting{
			unassignedShard("idx-1", 0, types.ShardRolePrimary),
			unassignedShard("idx-1", 0, types.ShardRoleReplica),
		},
		Desired:  desired,
		Deciders: deciders,
	}

	r := New()
	res := r.Reconcile(alloc)

	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.AllocatedPrimary)
	assert.Equal(t, 0, res.AllocatedReplica)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, types.ShardRoleReplica, res.Unassigned[0].Role)
	assert.Equal(t, types.UnassignedNoAttempt, res.Unassigned[0].Unassigned.Status)

	assigned, ignored := CountAssignedAndIgnored(res.Nodes, res.Unassigned, shardID)
	assert.Equal(t, 1, assigned)
	assert.Equal(t, 1, ignored)

	require.Len(t, res.Nodes["n1"].Shards, 1)
	assert.Equal(t, types.ShardRolePrimary, res.Nodes["n1"].Shards[0].Role)
	assert.Equal(t, types.ShardStateInitializing, res.Nodes["n1"].Shards[0].State)

	// Simulate the primary reporting started, then reconcile again: the
	// replica is now eligible and initializes on the other node.
	res.Nodes["n1"].Shards[0].State = types.ShardStateStarted

	alloc2 := &RoutingAllocation{
		Nodes:      res.Nodes,
		Unassigned: res.Unassigned,
		Desired:    desired,
		Deciders:   deciders,
	}
	res2 := r.Reconcile(alloc2)

	assert.True(t, res2.Changed)
	assert.Equal(t, 0, res2.AllocatedPrimary)
	assert.Equal(t, 1, res2.AllocatedReplica)
	assert.Empty(t, res2.Unassigned)

	n1Roles := rolesOn(res2.Nodes["n1"])
	n2Roles := rolesOn(res2.Nodes["n2"])
	assert.ElementsMatch(t, append(n1Roles, n2Roles...), []types.ShardRole{types.ShardRolePrimary, types.ShardRoleReplica})
}

// Scenario E: node departs mid-reconciliation; the primary falls back to the
// remaining node. TestScenarioEDeniesWhenNoNodeAvailable covers the case
// where every node is exhausted and the primary is reported DECIDERS_NO.
func TestScenarioENodeDepartsFallsBackToRemainingNode(t *testing.T) {
	shardID := types.ShardId{IndexUUID: "idx-1", ShardNum: 0}
	alloc := &RoutingAllocation{
		Nodes: map[string]*types.RoutingNode{
			"n1": readyNode("n1"),
		},
		Unassigned: []types.ShardRouting{
			unassignedShard("idx-1", 0, types.ShardRolePrimary),
		},
		Desired: types.DesiredBalance{
			Assignments: map[types.ShardId]types.ShardAssignment{
				// n2 was desired but has left the cluster entirely.
				shardID: {NodeIDs: []string{"n2"}, Total: 1},
			},
		},
		Deciders: decider.New(decider.NodeExistsDecider{}, decider.SameShardDecider{}),
	}

	r := New()
	res := r.Reconcile(alloc)

	// n1 isn't in the desired set but is picked up by the force-allocate
	// primary fallback since nothing else is available.
	require.Len(t, res.Unassigned, 0)
	assert.Equal(t, 1, res.AllocatedPrimary)
	assert.Equal(t, "n1", res.Nodes["n1"].Shards[0].CurrentNodeID)
}

func TestScenarioEDeniesWhenNoNodeAvailable(t *testing.T) {
	shardID := types.ShardId{IndexUUID: "idx-1", ShardNum: 0}
	alloc := &RoutingAllocation{
		Nodes: map[string]*types.RoutingNode{},
		Unassigned: []types.ShardRouting{
			unassignedShard("idx-1", 0, types.ShardRolePrimary),
		},
		Desired: types.DesiredBalance{
			Assignments: map[types.ShardId]types.ShardAssignment{
				shardID: {NodeIDs: []string{"n2"}, Total: 1},
			},
		},
		Deciders: decider.New(decider.NodeExistsDecider{}),
	}

	r := New()
	res := r.Reconcile(alloc)

	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, types.UnassignedDecidersNo, res.Unassigned[0].Unassigned.Status)
}

func TestForcedMovesPullsShardsOffDownNode(t *testing.T) {
	shardID := types.ShardId{IndexUUID: "idx-1", ShardNum: 0}
	down := &types.RoutingNode{ID: "n1", Status: types.NodeStatusDown, Shards: []types.ShardRouting{
		{Shard: shardID, Role: types.ShardRolePrimary, State: types.ShardStateStarted, CurrentNodeID: "n1"},
	}}
	alloc := &RoutingAllocation{
		Nodes:    map[string]*types.RoutingNode{"n1": down},
		Deciders: decider.New(decider.NodeExistsDecider{}),
	}

	r := New()
	res := r.Reconcile(alloc)

	assert.Equal(t, 1, res.Moves)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, types.ShardStateUnassigned, res.Unassigned[0].State)
	assert.Empty(t, res.Nodes["n1"].Shards)
}

func TestVoluntaryRebalanceMovesTowardsDesired(t *testing.T) {
	shardID := types.ShardId{IndexUUID: "idx-1", ShardNum: 0}
	n1 := &types.RoutingNode{ID: "n1", Status: types.NodeStatusReady, Shards: []types.ShardRouting{
		{Shard: shardID, Role: types.ShardRolePrimary, State: types.ShardStateStarted, CurrentNodeID: "n1"},
	}}
	n2 := &types.RoutingNode{ID: "n2", Status: types.NodeStatusReady}

	alloc := &RoutingAllocation{
		Nodes: map[string]*types.RoutingNode{"n1": n1, "n2": n2},
		Desired: types.DesiredBalance{
			Assignments: map[types.ShardId]types.ShardAssignment{
				shardID: {NodeIDs: []string{"n2"}, Total: 1},
			},
		},
		Deciders:         decider.New(decider.NodeExistsDecider{}, decider.SameShardDecider{}),
		RebalanceEnabled: true,
	}

	r := New()
	res := r.Reconcile(alloc)

	assert.Equal(t, 1, res.Moves)
	require.Len(t, res.Nodes["n1"].Shards, 1)
	assert.Equal(t, types.ShardStateRelocating, res.Nodes["n1"].Shards[0].State)
	require.Len(t, res.Nodes["n2"].Shards, 1)
	assert.Equal(t, types.ShardStateInitializing, res.Nodes["n2"].Shards[0].State)
}

func TestRebalanceDisabledSkipsPhaseC(t *testing.T) {
	shardID := types.ShardId{IndexUUID: "idx-1", ShardNum: 0}
	n1 := &types.RoutingNode{ID: "n1", Status: types.NodeStatusReady, Shards: []types.ShardRouting{
		{Shard: shardID, Role: types.ShardRolePrimary, State: types.ShardStateStarted, CurrentNodeID: "n1"},
	}}
	n2 := &types.RoutingNode{ID: "n2", Status: types.NodeStatusReady}

	alloc := &RoutingAllocation{
		Nodes: map[string]*types.RoutingNode{"n1": n1, "n2": n2},
		Desired: types.DesiredBalance{
			Assignments: map[types.ShardId]types.ShardAssignment{
				shardID: {NodeIDs: []string{"n2"}, Total: 1},
			},
		},
		Deciders:         decider.New(decider.NodeExistsDecider{}),
		RebalanceEnabled: false,
	}

	r := New()
	res := r.Reconcile(alloc)

	assert.Equal(t, 0, res.Moves)
	assert.False(t, res.Changed)
}

func rolesOn(rn *types.RoutingNode) []types.ShardRole {
	var out []types.ShardRole
	for _, s := range rn.Shards {
		out = append(out, s.Role)
	}
	return out
}
