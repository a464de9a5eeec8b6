package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/shardctl/shardctl/api/shardctlpb"
	"github.com/shardctl/shardctl/pkg/controlplane"
	"github.com/shardctl/shardctl/pkg/types"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func bootstrapManager(t *testing.T) *controlplane.Manager {
	t.Helper()
	cfg := &controlplane.Config{
		NodeID:   "node-1",
		BindAddr: freeAddr(t),
		DataDir:  t.TempDir(),
	}
	m, err := controlplane.New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Bootstrap())
	require.Eventually(t, m.IsLeader, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

// testServer spins up a Server over an in-memory bufconn listener and
// returns a connected shardctlpb.ControlPlaneClient.
func testServer(t *testing.T, mgr *controlplane.Manager) shardctlpb.ControlPlaneClient {
	t.Helper()

	srv := NewServer(mgr)
	shardctlpb.RegisterControlPlaneServer(srv.grpc, srv)

	lis := bufconn.Listen(1024 * 1024)
	go func() {
		_ = srv.grpc.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return shardctlpb.NewControlPlaneClient(conn)
}

func TestSubmitAllocationCommandAcceptedOnLeader(t *testing.T) {
	mgr := bootstrapManager(t)
	client := testServer(t, mgr)

	resp, err := client.SubmitAllocationCommand(context.Background(), &shardctlpb.SubmitAllocationCommandRequest{
		Kind:       "move",
		Shard:      shardctlpb.ShardID{IndexUUID: "idx-1", ShardNum: 0},
		FromNodeID: "n1",
		ToNodeID:   "n2",
	})
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)

	pending := mgr.ListAllocationCommands()
	require.Len(t, pending, 1)
	assert.Equal(t, types.AllocationCommandMove, pending[0].Kind)
}

func TestSubmitAllocationCommandRejectsUnknownKind(t *testing.T) {
	mgr := bootstrapManager(t)
	client := testServer(t, mgr)

	_, err := client.SubmitAllocationCommand(context.Background(), &shardctlpb.SubmitAllocationCommandRequest{
		Kind:  "not-a-kind",
		Shard: shardctlpb.ShardID{IndexUUID: "idx-1", ShardNum: 0},
	})
	assert.Error(t, err)
}

func TestGetDesiredBalanceReturnsCurrentAssignments(t *testing.T) {
	mgr := bootstrapManager(t)
	client := testServer(t, mgr)

	resp, err := client.GetDesiredBalance(context.Background(), &shardctlpb.GetDesiredBalanceRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Assignments)
	assert.Equal(t, int64(0), resp.LastConvergedIndex)
}

func TestGetIndexingPressureStatsReflectsMarks(t *testing.T) {
	mgr := bootstrapManager(t)
	client := testServer(t, mgr)

	_, err := mgr.MarkCoordinating(2048)
	require.NoError(t, err)

	resp, err := client.GetIndexingPressureStats(context.Background(), &shardctlpb.GetIndexingPressureStatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2048), resp.CoordinatingBytes)
}

func TestStreamClusterEventsDeliversIndexCreated(t *testing.T) {
	mgr := bootstrapManager(t)
	client := testServer(t, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := client.StreamClusterEvents(ctx, &shardctlpb.StreamClusterEventsRequest{
		Types: []string{"index.created"},
	})
	require.NoError(t, err)

	require.NoError(t, mgr.CreateIndex(&types.Index{Name: "events", ShardCount: 1, State: types.IndexStateOpen}))

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "index.created", ev.Type)
}
