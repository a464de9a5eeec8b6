// Package types defines the core data structures shared by every component
// of the cluster control plane: indices, shards, routing tables, the desired
// balance, cluster-info snapshots, and allocation commands.
//
// All types here are plain, JSON-serializable Go structs so that they can
// travel both as a Raft log payload and as a BoltDB record.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IndexState is the lifecycle state of an Index.
type IndexState string

const (
	IndexStateOpen   IndexState = "open"
	IndexStateClosed IndexState = "closed"
)

// Index is a named collection of shards.
type Index struct {
	Name         string            `json:"name"`
	UUID         string            `json:"uuid"`
	State        IndexState        `json:"state"`
	ShardCount   int               `json:"shard_count"`
	ReplicaCount int               `json:"replica_count"`
	Priority     int               `json:"priority"`
	Settings     map[string]string `json:"settings,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ShardId identifies one shard of one index. It is not itself persisted as
// a row; it is the key into ShardRouting and DesiredBalance.
type ShardId struct {
	IndexUUID string `json:"index_uuid"`
	ShardNum  int    `json:"shard_num"`
}

// MarshalText renders the ShardId as "<indexUUID>/<shardNum>" so it can be
// used as a JSON object key (encoding/json only allows string-keyed or
// TextMarshaler-keyed maps).
func (s ShardId) MarshalText() ([]byte, error) {
	return []byte(s.IndexUUID + "/" + strconv.Itoa(s.ShardNum)), nil
}

// UnmarshalText parses the ShardId format written by MarshalText.
func (s *ShardId) UnmarshalText(text []byte) error {
	str := string(text)
	idx := strings.LastIndexByte(str, '/')
	if idx < 0 {
		return fmt.Errorf("invalid shard id %q", str)
	}
	n, err := strconv.Atoi(str[idx+1:])
	if err != nil {
		return fmt.Errorf("invalid shard id %q: %w", str, err)
	}
	s.IndexUUID = str[:idx]
	s.ShardNum = n
	return nil
}

// ShardRole distinguishes the write-owning copy from a follower copy.
type ShardRole string

const (
	ShardRolePrimary ShardRole = "primary"
	ShardRoleReplica ShardRole = "replica"
)

// ShardRoutingState is where a shard copy sits in its lifecycle.
type ShardRoutingState string

const (
	ShardStateUnassigned ShardRoutingState = "unassigned"
	ShardStateInitializing ShardRoutingState = "initializing"
	ShardStateStarted     ShardRoutingState = "started"
	ShardStateRelocating  ShardRoutingState = "relocating"
)

// UnassignedStatus records why a shard copy could not be placed.
// UnassignedNoAttempt means the shard has not been offered to the deciders.
type UnassignedStatus string

const (
	UnassignedNoAttempt        UnassignedStatus = "NO_ATTEMPT"
	UnassignedDecidersThrottled UnassignedStatus = "DECIDERS_THROTTLED"
	UnassignedDecidersNo        UnassignedStatus = "DECIDERS_NO"
)

// UnassignedInfo explains why a shard copy is sitting in the unassigned set.
type UnassignedInfo struct {
	Status    UnassignedStatus `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ShardRouting is one copy (primary or replica) of one shard and where it
// currently lives.
type ShardRouting struct {
	Shard             ShardId           `json:"shard"`
	Role              ShardRole         `json:"role"`
	State             ShardRoutingState `json:"state"`
	CurrentNodeID     string            `json:"current_node_id,omitempty"`
	RelocatingToNodeID string           `json:"relocating_to_node_id,omitempty"`
	AllocationID      string            `json:"allocation_id,omitempty"`
	ExpectedSizeBytes int64             `json:"expected_size_bytes,omitempty"`
	Unassigned        *UnassignedInfo   `json:"unassigned_info,omitempty"`
}

// Key returns a stable string key for use in maps, "<indexUUID>/<shardNum>/<role>".
func (r ShardRouting) Key() string {
	return r.Shard.IndexUUID + "/" + strconv.Itoa(r.Shard.ShardNum) + "/" + string(r.Role)
}

// IsAssigned reports whether this copy currently occupies a node.
func (r ShardRouting) IsAssigned() bool {
	return r.State == ShardStateStarted || r.State == ShardStateInitializing || r.State == ShardStateRelocating
}

// NodeStatus is the liveness state of a data node as seen by the control
// plane.
type NodeStatus string

const (
	NodeStatusReady   NodeStatus = "ready"
	NodeStatusDown    NodeStatus = "down"
	NodeStatusUnknown NodeStatus = "unknown"
)

// RoutingNode is a data node together with the ShardRoutings it currently
// hosts. Every hosted ShardRouting has CurrentNodeID == ID.
type RoutingNode struct {
	ID       string         `json:"id"`
	Address  string         `json:"address"`
	Status   NodeStatus     `json:"status"`
	Shards   []ShardRouting `json:"shards"`
	JoinedAt time.Time      `json:"joined_at"`
}

// ShardAssignment is the desired placement for one shard: which nodes should
// hold a copy, and whether the computer had to give up on placing the
// primary or a replica entirely.
type ShardAssignment struct {
	NodeIDs        []string `json:"node_ids"`
	Total          int      `json:"total"`
	PrimaryIgnored bool     `json:"primary_ignored,omitempty"`
	ReplicaIgnored bool     `json:"replica_ignored,omitempty"`
}

// DesiredBalance is the target shard-to-node mapping the computer currently
// believes in. Keys are exactly the shards of currently-open (or
// recoverable closed) indices.
type DesiredBalance struct {
	Assignments        map[ShardId]ShardAssignment `json:"assignments"`
	LastConvergedIndex int64                        `json:"last_converged_index"`
}

// EmptyDesiredBalance is the sentinel value held before any computation has
// completed.
func EmptyDesiredBalance() DesiredBalance {
	return DesiredBalance{Assignments: map[ShardId]ShardAssignment{}, LastConvergedIndex: 0}
}

// NodeDiskUsage is the filesystem stats reported by one data node for one
// data path.
type NodeDiskUsage struct {
	NodeID         string `json:"node_id"`
	Path           string `json:"path"`
	TotalBytes     int64  `json:"total_bytes"`
	AvailableBytes int64  `json:"available_bytes"`
}

// ClusterInfoSnapshot is the immutable, periodically-refreshed view of disk
// usage and shard sizes used by the desired-balance computer and reconciler.
// It is replaced wholesale on each refresh.
type ClusterInfoSnapshot struct {
	// LeastAvailablePath and MostAvailablePath are keyed by node ID.
	LeastAvailablePath map[string]NodeDiskUsage `json:"least_available_path"`
	MostAvailablePath  map[string]NodeDiskUsage `json:"most_available_path"`
	// ShardSizeBytes is keyed by "<indexUUID>/<shardNum>" and holds the max
	// size observed across that shard's copies.
	ShardSizeBytes map[string]int64 `json:"shard_size_bytes"`
	// ReservedBytes is keyed by "<nodeID>/<path>".
	ReservedBytes map[string]int64 `json:"reserved_bytes"`
	Timestamp     time.Time        `json:"timestamp"`
}

// EmptyClusterInfoSnapshot is the snapshot held before any refresh has
// completed: every map is allocated and empty.
func EmptyClusterInfoSnapshot() ClusterInfoSnapshot {
	return ClusterInfoSnapshot{
		LeastAvailablePath: map[string]NodeDiskUsage{},
		MostAvailablePath:  map[string]NodeDiskUsage{},
		ShardSizeBytes:     map[string]int64{},
		ReservedBytes:      map[string]int64{},
	}
}

// AllocationCommandKind enumerates administrator-issued allocation hints.
type AllocationCommandKind string

const (
	AllocationCommandMove     AllocationCommandKind = "move"
	AllocationCommandAllocate AllocationCommandKind = "allocate"
	AllocationCommandCancel   AllocationCommandKind = "cancel"
)

// AllocationCommand is an administrator-issued hint fed into the desired
// balance computer as a constraint on its next computation.
type AllocationCommand struct {
	Kind         AllocationCommandKind `json:"kind"`
	Shard        ShardId               `json:"shard"`
	Role         ShardRole             `json:"role,omitempty"`
	FromNodeID   string                `json:"from_node_id,omitempty"`
	ToNodeID     string                `json:"to_node_id,omitempty"`
	SubmittedAt  time.Time             `json:"submitted_at"`
}

// IndexingPressureCounters is the per-node, in-flight write accounting used
// by the indexing-pressure controller. All counters are >= 0 and return to
// 0 once every reference taken against them has been released.
type IndexingPressureCounters struct {
	CoordinatingBytes int64 `json:"coordinating_bytes"`
	CoordinatingOps   int64 `json:"coordinating_ops"`
	PrimaryBytes      int64 `json:"primary_bytes"`
	PrimaryOps        int64 `json:"primary_ops"`
	ReplicaBytes      int64 `json:"replica_bytes"`
	ReplicaOps        int64 `json:"replica_ops"`

	CoordinatingRejections int64 `json:"coordinating_rejections"`
	PrimaryRejections      int64 `json:"primary_rejections"`
}

// Combined returns the coordinating+primary byte total consulted for
// admission at the coordinating and primary roles.
func (c IndexingPressureCounters) Combined() int64 {
	return c.CoordinatingBytes + c.PrimaryBytes
}
