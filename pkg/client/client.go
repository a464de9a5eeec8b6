// Package client is a thin Go wrapper around the shardctlpb.ControlPlane
// gRPC client, used by the shardctl admin CLI subcommands and available to
// any external service (e.g. an ingest pipeline) that wants to submit
// allocation commands or read cluster state as a client of the running
// master.
package client

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/shardctl/shardctl/api/shardctlpb"
)

// Client wraps a ControlPlane gRPC connection.
type Client struct {
	conn   *grpc.ClientConn
	client shardctlpb.ControlPlaneClient
}

// New dials addr and returns a ready-to-use Client. The control plane is
// assumed to run on a trusted internal network; transport is plaintext.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:   conn,
		client: shardctlpb.NewControlPlaneClient(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SubmitAllocationCommand submits an administrator-issued move/allocate/cancel
// command to the running master.
func (c *Client) SubmitAllocationCommand(req *shardctlpb.SubmitAllocationCommandRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := c.client.SubmitAllocationCommand(ctx, req)
	return err
}

// GetDesiredBalance returns the master's most recently published desired
// balance.
func (c *Client) GetDesiredBalance() (*shardctlpb.GetDesiredBalanceResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return c.client.GetDesiredBalance(ctx, &shardctlpb.GetDesiredBalanceRequest{})
}

// GetIndexingPressureStats returns the master's indexing-pressure counters.
func (c *Client) GetIndexingPressureStats() (*shardctlpb.GetIndexingPressureStatsResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return c.client.GetIndexingPressureStats(ctx, &shardctlpb.GetIndexingPressureStatsRequest{})
}

// GenerateJoinToken requests a join token scoped to role ("manager" or
// "worker") from the leader.
func (c *Client) GenerateJoinToken(role string) (*shardctlpb.GenerateJoinTokenResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return c.client.GenerateJoinToken(ctx, &shardctlpb.GenerateJoinTokenRequest{Role: role})
}

// AddVoter asks the leader at the other end of this connection to add
// (nodeID, addr) as a Raft voter, authenticated by a manager join token.
func (c *Client) AddVoter(nodeID, addr, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := c.client.AddVoter(ctx, &shardctlpb.AddVoterRequest{NodeID: nodeID, Address: addr, Token: token})
	return err
}

// StreamClusterEvents opens a server-streaming subscription to cluster
// events, optionally filtered to eventTypes (empty means all). The returned
// stream must be drained by the caller; canceling ctx ends the subscription.
func (c *Client) StreamClusterEvents(ctx context.Context, eventTypes ...string) (shardctlpb.ControlPlane_StreamClusterEventsClient, error) {
	return c.client.StreamClusterEvents(ctx, &shardctlpb.StreamClusterEventsRequest{Types: eventTypes})
}
