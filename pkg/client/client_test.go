package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shardctl/shardctl/api/shardctlpb"
	"github.com/shardctl/shardctl/pkg/api"
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

// runServer bootstraps a single-node manager and an api.Server listening on
// a real loopback port, returning a Client already dialed to it.
func runServer(t *testing.T) (*controlplane.Manager, *Client) {
	t.Helper()

	cfg := &controlplane.Config{
		NodeID:   "node-1",
		BindAddr: freeAddr(t),
		DataDir:  t.TempDir(),
	}
	mgr, err := controlplane.New(cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.Bootstrap())
	require.Eventually(t, mgr.IsLeader, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { _ = mgr.Shutdown() })

	srv := api.NewServer(mgr)
	addr := freeAddr(t)
	go func() { _ = srv.Start(addr) }()
	t.Cleanup(srv.Stop)

	var c *Client
	require.Eventually(t, func() bool {
		var dialErr error
		c, dialErr = New(addr)
		return dialErr == nil
	}, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })

	return mgr, c
}

func TestClientSubmitAllocationCommand(t *testing.T) {
	_, c := runServer(t)

	err := c.SubmitAllocationCommand(&shardctlpb.SubmitAllocationCommandRequest{
		Kind:       "allocate",
		Shard:      shardctlpb.ShardID{IndexUUID: "idx-1", ShardNum: 0},
		ToNodeID:   "n1",
		FromNodeID: "",
	})
	require.NoError(t, err)
}

func TestClientGetDesiredBalance(t *testing.T) {
	_, c := runServer(t)

	resp, err := c.GetDesiredBalance()
	require.NoError(t, err)
	require.NotNil(t, resp)
}

func TestClientGetIndexingPressureStats(t *testing.T) {
	mgr, c := runServer(t)

	_, err := mgr.MarkPrimary(1024)
	require.NoError(t, err)

	resp, err := c.GetIndexingPressureStats()
	require.NoError(t, err)
	require.Equal(t, int64(1024), resp.PrimaryBytes)
}

func TestClientStreamClusterEvents(t *testing.T) {
	mgr, c := runServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := c.StreamClusterEvents(ctx, "index.created")
	require.NoError(t, err)

	require.NoError(t, mgr.CreateIndex(&types.Index{Name: "logs", ShardCount: 1, State: types.IndexStateOpen}))

	ev, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "index.created", ev.Type)
}
