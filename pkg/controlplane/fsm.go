package controlplane

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/shardctl/shardctl/pkg/storage"
	"github.com/shardctl/shardctl/pkg/types"
)

// FSM implements the Raft finite state machine that replicates cluster
// state (indices, nodes, routing, desired balance, cluster info) across
// every manager in the quorum. Every Manager.Apply call is committed here
// exactly once, in log order, on every node.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM creates an FSM backed by store.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Command is one Raft log entry: an operation name plus its JSON payload.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// routingResultPayload is the Data shape for "apply_routing_result": the
// reconciler's Result, flattened to what the FSM needs to persist.
type routingResultPayload struct {
	Nodes      map[string]*types.RoutingNode `json:"nodes"`
	Unassigned []types.ShardRouting          `json:"unassigned"`
}

// Apply applies one committed Raft log entry to local storage.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "create_index":
		var index types.Index
		if err := json.Unmarshal(cmd.Data, &index); err != nil {
			return err
		}
		if err := f.store.CreateIndex(&index); err != nil {
			return err
		}
		return f.seedUnassignedShards(&index)

	case "update_index":
		var index types.Index
		if err := json.Unmarshal(cmd.Data, &index); err != nil {
			return err
		}
		return f.store.CreateIndex(&index)

	case "delete_index":
		var indexUUID string
		if err := json.Unmarshal(cmd.Data, &indexUUID); err != nil {
			return err
		}
		if err := f.store.DeleteIndex(indexUUID); err != nil {
			return err
		}
		return f.purgeIndexRouting(indexUUID)

	case "upsert_node":
		var node types.RoutingNode
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.UpdateNode(&node)

	case "delete_node":
		var nodeID string
		if err := json.Unmarshal(cmd.Data, &nodeID); err != nil {
			return err
		}
		if node, err := f.store.GetNode(nodeID); err == nil && len(node.Shards) > 0 {
			unassigned, err := f.store.GetUnassigned()
			if err != nil {
				return err
			}
			for _, s := range node.Shards {
				s.State = types.ShardStateUnassigned
				s.CurrentNodeID = ""
				s.RelocatingToNodeID = ""
				s.Unassigned = &types.UnassignedInfo{Status: types.UnassignedNoAttempt}
				unassigned = append(unassigned, s)
			}
			if err := f.store.SetUnassigned(unassigned); err != nil {
				return err
			}
		}
		return f.store.DeleteNode(nodeID)

	case "apply_routing_result":
		var payload routingResultPayload
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			return err
		}
		for _, node := range payload.Nodes {
			if err := f.store.UpdateNode(node); err != nil {
				return err
			}
		}
		return f.store.SetUnassigned(payload.Unassigned)

	case "publish_desired_balance":
		var balance types.DesiredBalance
		if err := json.Unmarshal(cmd.Data, &balance); err != nil {
			return err
		}
		return f.store.SetDesiredBalance(balance)

	case "publish_cluster_info":
		var snapshot types.ClusterInfoSnapshot
		if err := json.Unmarshal(cmd.Data, &snapshot); err != nil {
			return err
		}
		return f.store.SetClusterInfo(snapshot)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// seedUnassignedShards drops one unassigned ShardRouting per primary and
// replica copy of a newly created index into the unassigned pool, so the
// reconciler's Phase A has something to place.
func (f *FSM) seedUnassignedShards(index *types.Index) error {
	existing, err := f.store.GetUnassigned()
	if err != nil {
		return err
	}

	for shardNum := 0; shardNum < index.ShardCount; shardNum++ {
		shardID := types.ShardId{IndexUUID: index.UUID, ShardNum: shardNum}
		existing = append(existing, types.ShardRouting{
			Shard:      shardID,
			Role:       types.ShardRolePrimary,
			State:      types.ShardStateUnassigned,
			Unassigned: &types.UnassignedInfo{Status: types.UnassignedNoAttempt},
		})
		for r := 0; r < index.ReplicaCount; r++ {
			existing = append(existing, types.ShardRouting{
				Shard:      shardID,
				Role:       types.ShardRoleReplica,
				State:      types.ShardStateUnassigned,
				Unassigned: &types.UnassignedInfo{Status: types.UnassignedNoAttempt},
			})
		}
	}

	return f.store.SetUnassigned(existing)
}

// purgeIndexRouting drops every unassigned entry and hosted shard copy that
// belongs to indexUUID, so a deleted index leaves no routing residue for
// the reconciler or balance computer to trip over.
func (f *FSM) purgeIndexRouting(indexUUID string) error {
	unassigned, err := f.store.GetUnassigned()
	if err != nil {
		return err
	}
	var keptUnassigned []types.ShardRouting
	for _, shard := range unassigned {
		if shard.Shard.IndexUUID != indexUUID {
			keptUnassigned = append(keptUnassigned, shard)
		}
	}
	if err := f.store.SetUnassigned(keptUnassigned); err != nil {
		return err
	}

	nodes, err := f.store.ListNodes()
	if err != nil {
		return err
	}
	for _, node := range nodes {
		var keptShards []types.ShardRouting
		changed := false
		for _, shard := range node.Shards {
			if shard.Shard.IndexUUID == indexUUID {
				changed = true
				continue
			}
			keptShards = append(keptShards, shard)
		}
		if changed {
			node.Shards = keptShards
			if err := f.store.UpdateNode(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// Snapshot captures a point-in-time copy of all replicated state for Raft
// log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	indices, err := f.store.ListIndices()
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}
	nodes, err := f.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	unassigned, err := f.store.GetUnassigned()
	if err != nil {
		return nil, fmt.Errorf("failed to get unassigned: %w", err)
	}
	balance, err := f.store.GetDesiredBalance()
	if err != nil {
		return nil, fmt.Errorf("failed to get desired balance: %w", err)
	}
	clusterInfo, err := f.store.GetClusterInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster info: %w", err)
	}

	return &Snapshot{
		Indices:       indices,
		Nodes:         nodes,
		Unassigned:    unassigned,
		DesiredBalance: balance,
		ClusterInfo:   clusterInfo,
	}, nil
}

// Restore replaces local state with the contents of a snapshot. Called on
// startup when the local log is behind the leader's.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, index := range snapshot.Indices {
		if err := f.store.CreateIndex(index); err != nil {
			return fmt.Errorf("failed to restore index: %w", err)
		}
	}
	for _, node := range snapshot.Nodes {
		if err := f.store.CreateNode(node); err != nil {
			return fmt.Errorf("failed to restore node: %w", err)
		}
	}
	if err := f.store.SetUnassigned(snapshot.Unassigned); err != nil {
		return fmt.Errorf("failed to restore unassigned: %w", err)
	}
	if err := f.store.SetDesiredBalance(snapshot.DesiredBalance); err != nil {
		return fmt.Errorf("failed to restore desired balance: %w", err)
	}
	if err := f.store.SetClusterInfo(snapshot.ClusterInfo); err != nil {
		return fmt.Errorf("failed to restore cluster info: %w", err)
	}

	return nil
}

// Snapshot is the serialized form of all replicated cluster state.
type Snapshot struct {
	Indices        []*types.Index
	Nodes          []*types.RoutingNode
	Unassigned     []types.ShardRouting
	DesiredBalance types.DesiredBalance
	ClusterInfo    types.ClusterInfoSnapshot
}

// Persist writes the snapshot to sink.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op; Snapshot holds no resources that need releasing.
func (s *Snapshot) Release() {}
