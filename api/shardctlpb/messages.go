// Package shardctlpb defines the wire messages and gRPC service for the
// shardctl control-plane API. It is adapted from the teacher's generated
// api/proto package, but since no protoc toolchain runs here the messages
// are hand-written plain structs carried over the wire by the JSON codec
// registered in codec.go instead of protobuf wire encoding.
package shardctlpb

// ShardID identifies one shard copy's parent shard (index UUID + shard
// number); the role (primary/replica) is carried alongside it, not in it.
type ShardID struct {
	IndexUUID string `json:"index_uuid"`
	ShardNum  int32  `json:"shard_num"`
}

// SubmitAllocationCommandRequest is Kind one of "move", "allocate", "cancel".
type SubmitAllocationCommandRequest struct {
	Kind       string  `json:"kind"`
	Shard      ShardID `json:"shard"`
	Role       string  `json:"role,omitempty"`
	FromNodeID string  `json:"from_node_id,omitempty"`
	ToNodeID   string  `json:"to_node_id,omitempty"`
}

type SubmitAllocationCommandResponse struct {
	Status string `json:"status"`
}

type GetDesiredBalanceRequest struct{}

type ShardAssignment struct {
	Shard          ShardID  `json:"shard"`
	NodeIDs        []string `json:"node_ids"`
	Total          int32    `json:"total"`
	PrimaryIgnored bool     `json:"primary_ignored"`
	ReplicaIgnored bool     `json:"replica_ignored"`
}

type GetDesiredBalanceResponse struct {
	Assignments        []ShardAssignment `json:"assignments"`
	LastConvergedIndex int64             `json:"last_converged_index"`
}

// GenerateJoinTokenRequest asks the leader to mint a join token scoped to
// Role ("manager" or "worker").
type GenerateJoinTokenRequest struct {
	Role string `json:"role"`
}

type GenerateJoinTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// AddVoterRequest asks the leader to add a joining node as a Raft voter.
// Token must be a valid "manager" join token issued by GenerateJoinToken.
type AddVoterRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
	Token   string `json:"token"`
}

type AddVoterResponse struct {
	Status string `json:"status"`
}

type GetIndexingPressureStatsRequest struct{}

type GetIndexingPressureStatsResponse struct {
	CoordinatingBytes      int64 `json:"coordinating_bytes"`
	CoordinatingOps        int64 `json:"coordinating_ops"`
	PrimaryBytes           int64 `json:"primary_bytes"`
	PrimaryOps             int64 `json:"primary_ops"`
	ReplicaBytes           int64 `json:"replica_bytes"`
	ReplicaOps             int64 `json:"replica_ops"`
	CoordinatingRejections int64 `json:"coordinating_rejections"`
	PrimaryRejections      int64 `json:"primary_rejections"`
}

// StreamClusterEventsRequest optionally restricts the stream to a set of
// event type names (see pkg/events); an empty Types subscribes to everything.
type StreamClusterEventsRequest struct {
	Types []string `json:"types,omitempty"`
}

// ClusterEvent mirrors pkg/events.Event over the wire; Payload is a
// JSON-encoded blob whose shape depends on Type.
type ClusterEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Payload   string `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
