package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/shardctl/shardctl/api/shardctlpb"
	"github.com/shardctl/shardctl/pkg/controlplane"
	"github.com/shardctl/shardctl/pkg/events"
	"github.com/shardctl/shardctl/pkg/log"
	"github.com/shardctl/shardctl/pkg/types"
)

// Server implements the shardctlpb.ControlPlane gRPC service over a
// controlplane.Manager. It is the administrative channel: submitting
// allocation commands and reading desired-balance/indexing-pressure state,
// not a data-plane query API.
type Server struct {
	shardctlpb.UnimplementedControlPlaneServer
	manager *controlplane.Manager
	grpc    *grpc.Server
	health  *health.Server
}

// NewServer creates a gRPC server wrapping mgr. Unlike the teacher, this
// server does not terminate mTLS itself: it is meant to run behind the
// cluster's internal network, with join tokens (controlplane.TokenManager)
// as the admission control for administrative RPCs.
func NewServer(mgr *controlplane.Manager) *Server {
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		manager: mgr,
		grpc:    grpcServer,
		health:  healthServer,
	}
}

func (s *Server) ensureLeader() error {
	if !s.manager.IsLeader() {
		leaderAddr := s.manager.LeaderAddr()
		if leaderAddr == "" {
			return status.Error(codes.Unavailable, "no leader elected yet")
		}
		return status.Errorf(codes.FailedPrecondition, "not the leader, current leader is at: %s", leaderAddr)
	}
	return nil
}

// Start starts the gRPC server and blocks serving connections on addr.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	shardctlpb.RegisterControlPlaneServer(s.grpc, s)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	log.WithComponent("api").Info().Str("addr", addr).Msg("gRPC API listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

// SubmitAllocationCommand records an administrator-issued move/allocate/cancel
// command for the balance computer and reconciler's deciders to pick up.
func (s *Server) SubmitAllocationCommand(ctx context.Context, req *shardctlpb.SubmitAllocationCommandRequest) (*shardctlpb.SubmitAllocationCommandResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return nil, err
	}

	kind, err := parseCommandKind(req.Kind)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	cmd := types.AllocationCommand{
		Kind:       kind,
		Shard:      types.ShardId{IndexUUID: req.Shard.IndexUUID, ShardNum: int(req.Shard.ShardNum)},
		FromNodeID: req.FromNodeID,
		ToNodeID:   req.ToNodeID,
	}
	if req.Role == "replica" {
		cmd.Role = types.ShardRoleReplica
	} else {
		cmd.Role = types.ShardRolePrimary
	}

	if err := s.manager.SubmitAllocationCommand(cmd); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to submit allocation command: %v", err)
	}

	return &shardctlpb.SubmitAllocationCommandResponse{Status: "accepted"}, nil
}

// GetDesiredBalance returns the most recently published desired balance.
func (s *Server) GetDesiredBalance(ctx context.Context, req *shardctlpb.GetDesiredBalanceRequest) (*shardctlpb.GetDesiredBalanceResponse, error) {
	balance := s.manager.CurrentDesiredBalance()

	assignments := make([]shardctlpb.ShardAssignment, 0, len(balance.Assignments))
	for shardID, assignment := range balance.Assignments {
		assignments = append(assignments, shardctlpb.ShardAssignment{
			Shard:          shardctlpb.ShardID{IndexUUID: shardID.IndexUUID, ShardNum: int32(shardID.ShardNum)},
			NodeIDs:        assignment.NodeIDs,
			Total:          int32(assignment.Total),
			PrimaryIgnored: assignment.PrimaryIgnored,
			ReplicaIgnored: assignment.ReplicaIgnored,
		})
	}

	return &shardctlpb.GetDesiredBalanceResponse{
		Assignments:        assignments,
		LastConvergedIndex: balance.LastConvergedIndex,
	}, nil
}

// GetIndexingPressureStats returns the combined indexing-pressure counters
// across coordinating/primary/replica roles for this node.
func (s *Server) GetIndexingPressureStats(ctx context.Context, req *shardctlpb.GetIndexingPressureStatsRequest) (*shardctlpb.GetIndexingPressureStatsResponse, error) {
	c := s.manager.IndexingPressureCounters()
	return &shardctlpb.GetIndexingPressureStatsResponse{
		CoordinatingBytes:      c.CoordinatingBytes,
		CoordinatingOps:        c.CoordinatingOps,
		PrimaryBytes:           c.PrimaryBytes,
		PrimaryOps:             c.PrimaryOps,
		ReplicaBytes:           c.ReplicaBytes,
		ReplicaOps:             c.ReplicaOps,
		CoordinatingRejections: c.CoordinatingRejections,
		PrimaryRejections:      c.PrimaryRejections,
	}, nil
}

// GenerateJoinToken mints a join token scoped to req.Role ("manager" or
// "worker"). It must be called on the leader.
func (s *Server) GenerateJoinToken(ctx context.Context, req *shardctlpb.GenerateJoinTokenRequest) (*shardctlpb.GenerateJoinTokenResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return nil, err
	}

	token, err := s.manager.GenerateJoinToken(req.Role)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to generate join token: %v", err)
	}

	return &shardctlpb.GenerateJoinTokenResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt.UnixNano(),
	}, nil
}

// AddVoter validates a manager join token and adds the joining node as a
// Raft voter. It must be called on the leader.
func (s *Server) AddVoter(ctx context.Context, req *shardctlpb.AddVoterRequest) (*shardctlpb.AddVoterResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return nil, err
	}

	role, err := s.manager.ValidateJoinToken(req.Token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if role != "manager" {
		return nil, status.Errorf(codes.PermissionDenied, "token is scoped to role %q, not manager", role)
	}

	if err := s.manager.AddVoter(req.NodeID, req.Address); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to add voter: %v", err)
	}

	return &shardctlpb.AddVoterResponse{Status: "accepted"}, nil
}

// StreamClusterEvents subscribes the caller to the manager's event broker and
// forwards every matching event until the stream's context is canceled.
func (s *Server) StreamClusterEvents(req *shardctlpb.StreamClusterEventsRequest, stream shardctlpb.ControlPlane_StreamClusterEventsServer) error {
	wanted := make(map[events.EventType]bool, len(req.Types))
	for _, t := range req.Types {
		wanted[events.EventType(t)] = true
	}

	sub := s.manager.EventBroker().Subscribe()
	defer s.manager.EventBroker().Unsubscribe(sub)

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if len(wanted) > 0 && !wanted[ev.Type] {
				continue
			}
			payload, err := json.Marshal(struct {
				Message  string            `json:"message,omitempty"`
				Metadata map[string]string `json:"metadata,omitempty"`
			}{Message: ev.Message, Metadata: ev.Metadata})
			if err != nil {
				return status.Errorf(codes.Internal, "failed to marshal event payload: %v", err)
			}
			if err := stream.Send(&shardctlpb.ClusterEvent{
				ID:        ev.ID,
				Type:      string(ev.Type),
				Payload:   string(payload),
				Timestamp: ev.Timestamp.UnixNano(),
			}); err != nil {
				return err
			}
		}
	}
}

func parseCommandKind(kind string) (types.AllocationCommandKind, error) {
	switch kind {
	case "move":
		return types.AllocationCommandMove, nil
	case "allocate":
		return types.AllocationCommandAllocate, nil
	case "cancel":
		return types.AllocationCommandCancel, nil
	default:
		return "", fmt.Errorf("unknown allocation command kind: %s", kind)
	}
}
