// Package storage persists the control plane's replicated cluster state —
// indices, nodes and their shard routings, the unassigned set, the latest
// desired balance, and the latest cluster-info snapshot — in a local BoltDB
// file. Every manager node keeps its own copy; the FSM is what keeps them
// in sync via Raft.
package storage

import (
	"github.com/shardctl/shardctl/pkg/types"
)

// Store is the local persistence interface the FSM applies committed Raft
// log entries against, and the rest of the control plane reads from.
type Store interface {
	// Indices
	CreateIndex(index *types.Index) error
	GetIndex(uuid string) (*types.Index, error)
	GetIndexByName(name string) (*types.Index, error)
	ListIndices() ([]*types.Index, error)
	UpdateIndex(index *types.Index) error
	DeleteIndex(uuid string) error

	// Nodes, each carrying its currently-hosted ShardRoutings
	CreateNode(node *types.RoutingNode) error
	GetNode(id string) (*types.RoutingNode, error)
	ListNodes() ([]*types.RoutingNode, error)
	UpdateNode(node *types.RoutingNode) error
	DeleteNode(id string) error

	// Unassigned is the set of shard copies not currently hosted by any
	// node; it is replaced wholesale after every reconcile pass.
	SetUnassigned(shards []types.ShardRouting) error
	GetUnassigned() ([]types.ShardRouting, error)

	// DesiredBalance is replaced wholesale whenever the balance computer
	// publishes a fresh result.
	SetDesiredBalance(balance types.DesiredBalance) error
	GetDesiredBalance() (types.DesiredBalance, error)

	// ClusterInfo is replaced wholesale after every collector refresh.
	SetClusterInfo(snapshot types.ClusterInfoSnapshot) error
	GetClusterInfo() (types.ClusterInfoSnapshot, error)

	Close() error
}
