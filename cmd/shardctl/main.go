package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shardctl/shardctl/api/shardctlpb"
	"github.com/shardctl/shardctl/pkg/api"
	"github.com/shardctl/shardctl/pkg/client"
	"github.com/shardctl/shardctl/pkg/config"
	"github.com/shardctl/shardctl/pkg/controlplane"
	"github.com/shardctl/shardctl/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shardctl",
	Short: "shardctl - shard-allocation control plane for a distributed search cluster",
	Long: `shardctl runs and administers the control plane that decides which
node hosts which shard: a Raft-replicated master, a continuous
desired-balance computer, a reconciler that converges routing onto that
balance, and the indexing-pressure admission counters that bound a node's
in-flight write memory.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"shardctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(adminCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// Master commands: run a control-plane node.
var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run a shardctl master (control-plane) node",
}

func loadNodeConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.NodeID = v
	}
	if v, _ := cmd.Flags().GetString("bind-addr"); v != "" {
		cfg.BindAddr = v
	}
	if v, _ := cmd.Flags().GetString("api-addr"); v != "" {
		cfg.APIAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	return cfg, nil
}

func managerConfig(cfg *config.Config) *controlplane.Config {
	return &controlplane.Config{
		NodeID:                 cfg.NodeID,
		BindAddr:               cfg.BindAddr,
		DataDir:                cfg.DataDir,
		RebalanceEnabled:       cfg.RebalanceEnabled,
		ReconcileInterval:      cfg.ClusterInfo.UpdateInterval,
		CoordinatingLimitBytes: cfg.Indexing.CoordinatingMemLimit,
		PrimaryLimitBytes:      cfg.Indexing.PrimaryMemoryLimit,
		ReplicaLimitBytes:      cfg.Indexing.ReplicaMemoryLimit,
		DiskLowWatermark:       cfg.Routing.DiskLowWatermark,
		DiskFloodWatermark:     cfg.Routing.DiskFloodWatermark,
		ClusterInfoInterval:    cfg.ClusterInfo.UpdateInterval,
		ClusterInfoTimeout:     cfg.ClusterInfo.UpdateTimeout,
	}
}

// runMaster starts mgr's background loops, the gRPC API, and blocks until
// interrupted, shared by bootstrap and join.
func runMaster(mgr *controlplane.Manager, apiAddr string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	fmt.Println("✓ Control-plane loops started (task queue, balance computer, reconcile ticker)")

	apiServer := api.NewServer(mgr)
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(apiAddr); err != nil {
			errCh <- fmt.Errorf("API server error: %v", err)
		}
	}()
	time.Sleep(200 * time.Millisecond)
	fmt.Printf("✓ gRPC API listening on %s\n", apiAddr)
	fmt.Println()
	fmt.Println("Master is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	apiServer.Stop()
	if err := mgr.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown: %v", err)
	}
	fmt.Println("✓ Shutdown complete")
	return nil
}

var masterBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize a new cluster with this node as the first master",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadNodeConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Println("Bootstrapping cluster...")
		fmt.Printf("  Node ID: %s\n", cfg.NodeID)
		fmt.Printf("  Raft Address: %s\n", cfg.BindAddr)
		fmt.Printf("  API Address: %s\n", cfg.APIAddr)
		fmt.Printf("  Data Directory: %s\n", cfg.DataDir)
		fmt.Println()

		mgr, err := controlplane.New(managerConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to create manager: %v", err)
		}

		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %v", err)
		}
		fmt.Println("✓ Raft cluster bootstrapped, this node is the leader")

		return runMaster(mgr, cfg.APIAddr)
	},
}

var masterJoinCmd = &cobra.Command{
	Use:   "join <leader-api-addr>",
	Short: "Join this node to an existing cluster as a master",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		leaderAddr := args[0]
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			return fmt.Errorf("--token is required")
		}

		cfg, err := loadNodeConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Println("Joining cluster...")
		fmt.Printf("  Node ID: %s\n", cfg.NodeID)
		fmt.Printf("  Leader:  %s\n", leaderAddr)
		fmt.Println()

		leaderClient, err := client.New(leaderAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to leader: %v", err)
		}
		defer leaderClient.Close()

		if err := leaderClient.AddVoter(cfg.NodeID, cfg.BindAddr, token); err != nil {
			return fmt.Errorf("leader rejected join: %v", err)
		}
		fmt.Println("✓ Leader accepted this node as a voter")

		mgr, err := controlplane.New(managerConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to create manager: %v", err)
		}
		if err := mgr.Join(); err != nil {
			return fmt.Errorf("failed to join raft cluster: %v", err)
		}
		fmt.Println("✓ Raft joined")

		return runMaster(mgr, cfg.APIAddr)
	},
}

func init() {
	masterCmd.AddCommand(masterBootstrapCmd)
	masterCmd.AddCommand(masterJoinCmd)

	for _, c := range []*cobra.Command{masterBootstrapCmd, masterJoinCmd} {
		c.Flags().String("node-id", "", "Unique node ID")
		c.Flags().String("bind-addr", "127.0.0.1:7947", "Address for Raft communication")
		c.Flags().String("api-addr", "127.0.0.1:8080", "Address for the gRPC admin API")
		c.Flags().String("data-dir", "./shardctl-data", "Data directory for cluster state")
		c.Flags().String("config", "", "Path to a YAML config file")
	}
	masterJoinCmd.Flags().String("token", "", "Manager join token issued by the leader")
	_ = masterJoinCmd.MarkFlagRequired("token")
}

// Admin commands: talk to a running master over gRPC.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer a running shardctl cluster",
}

func dialMaster(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("master")
	return client.New(addr)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage cluster join tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create [manager|worker]",
	Short: "Generate a join token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := args[0]
		if role != "manager" && role != "worker" {
			return fmt.Errorf("role must be 'manager' or 'worker'")
		}

		c, err := dialMaster(cmd)
		if err != nil {
			return fmt.Errorf("failed to connect to master: %v", err)
		}
		defer c.Close()

		resp, err := c.GenerateJoinToken(role)
		if err != nil {
			return fmt.Errorf("failed to generate token: %v", err)
		}

		fmt.Printf("Join token for %s:\n\n", role)
		fmt.Printf("    %s\n\n", resp.Token)
		if role == "manager" {
			fmt.Println("To join a master to the cluster, run:")
			fmt.Printf("    shardctl master join <leader-api-addr> --token %s\n", resp.Token)
		}
		return nil
	},
}

var allocationCmd = &cobra.Command{
	Use:   "allocation",
	Short: "Submit administrator allocation commands",
}

func submitAllocationCommand(cmd *cobra.Command, kind string) error {
	indexUUID, _ := cmd.Flags().GetString("index-uuid")
	shardNum, _ := cmd.Flags().GetInt32("shard-num")
	role, _ := cmd.Flags().GetString("role")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	c, err := dialMaster(cmd)
	if err != nil {
		return fmt.Errorf("failed to connect to master: %v", err)
	}
	defer c.Close()

	req := &shardctlpb.SubmitAllocationCommandRequest{
		Kind:       kind,
		Shard:      shardctlpb.ShardID{IndexUUID: indexUUID, ShardNum: shardNum},
		Role:       role,
		FromNodeID: from,
		ToNodeID:   to,
	}
	if err := c.SubmitAllocationCommand(req); err != nil {
		return fmt.Errorf("failed to submit %s command: %v", kind, err)
	}

	fmt.Printf("✓ %s command accepted for %s/%d\n", capitalize(kind), indexUUID, shardNum)
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var allocationMoveCmd = &cobra.Command{
	Use:   "move",
	Short: "Move a shard copy from one node to another",
	RunE:  func(cmd *cobra.Command, args []string) error { return submitAllocationCommand(cmd, "move") },
}

var allocationAllocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Force-allocate an unassigned shard copy to a node",
	RunE:  func(cmd *cobra.Command, args []string) error { return submitAllocationCommand(cmd, "allocate") },
}

var allocationCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel an in-flight shard relocation",
	RunE:  func(cmd *cobra.Command, args []string) error { return submitAllocationCommand(cmd, "cancel") },
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Inspect the desired-balance computer",
}

var balanceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the most recently published desired balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialMaster(cmd)
		if err != nil {
			return fmt.Errorf("failed to connect to master: %v", err)
		}
		defer c.Close()

		resp, err := c.GetDesiredBalance()
		if err != nil {
			return fmt.Errorf("failed to get desired balance: %v", err)
		}

		fmt.Printf("Last converged index: %d\n", resp.LastConvergedIndex)
		fmt.Printf("Assignments: %d\n\n", len(resp.Assignments))
		for _, a := range resp.Assignments {
			fmt.Printf("  %s/%d -> %v (total=%d, primary_ignored=%v, replica_ignored=%v)\n",
				a.Shard.IndexUUID, a.Shard.ShardNum, a.NodeIDs, a.Total, a.PrimaryIgnored, a.ReplicaIgnored)
		}
		return nil
	},
}

var pressureCmd = &cobra.Command{
	Use:   "pressure",
	Short: "Inspect indexing-pressure counters",
}

var pressureShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print this master's indexing-pressure counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialMaster(cmd)
		if err != nil {
			return fmt.Errorf("failed to connect to master: %v", err)
		}
		defer c.Close()

		stats, err := c.GetIndexingPressureStats()
		if err != nil {
			return fmt.Errorf("failed to get indexing pressure stats: %v", err)
		}

		fmt.Printf("Coordinating: bytes=%d ops=%d rejections=%d\n", stats.CoordinatingBytes, stats.CoordinatingOps, stats.CoordinatingRejections)
		fmt.Printf("Primary:      bytes=%d ops=%d rejections=%d\n", stats.PrimaryBytes, stats.PrimaryOps, stats.PrimaryRejections)
		fmt.Printf("Replica:      bytes=%d ops=%d\n", stats.ReplicaBytes, stats.ReplicaOps)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Subscribe to cluster events",
}

var eventsStreamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream cluster events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		typesFlag, _ := cmd.Flags().GetString("types")
		var types []string
		if typesFlag != "" {
			types = strings.Split(typesFlag, ",")
		}

		c, err := dialMaster(cmd)
		if err != nil {
			return fmt.Errorf("failed to connect to master: %v", err)
		}
		defer c.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		stream, err := c.StreamClusterEvents(ctx, types...)
		if err != nil {
			return fmt.Errorf("failed to open event stream: %v", err)
		}

		for {
			ev, err := stream.Recv()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("event stream closed: %v", err)
			}
			fmt.Printf("[%s] %s %s\n", time.Unix(0, ev.Timestamp).Format(time.RFC3339), ev.Type, ev.Payload)
		}
	},
}

func init() {
	adminCmd.PersistentFlags().String("master", "127.0.0.1:8080", "Master gRPC admin API address")

	adminCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenCreateCmd)

	adminCmd.AddCommand(allocationCmd)
	allocationCmd.AddCommand(allocationMoveCmd, allocationAllocateCmd, allocationCancelCmd)
	for _, c := range []*cobra.Command{allocationMoveCmd, allocationAllocateCmd, allocationCancelCmd} {
		c.Flags().String("index-uuid", "", "Index UUID")
		c.Flags().Int32("shard-num", 0, "Shard number")
		c.Flags().String("role", "primary", "Shard role (primary|replica)")
		_ = c.MarkFlagRequired("index-uuid")
	}
	allocationMoveCmd.Flags().String("from", "", "Source node ID")
	allocationMoveCmd.Flags().String("to", "", "Destination node ID")
	_ = allocationMoveCmd.MarkFlagRequired("from")
	_ = allocationMoveCmd.MarkFlagRequired("to")
	allocationAllocateCmd.Flags().String("to", "", "Destination node ID")
	_ = allocationAllocateCmd.MarkFlagRequired("to")

	adminCmd.AddCommand(balanceCmd)
	balanceCmd.AddCommand(balanceShowCmd)

	adminCmd.AddCommand(pressureCmd)
	pressureCmd.AddCommand(pressureShowCmd)

	adminCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsStreamCmd)
	eventsStreamCmd.Flags().String("types", "", "Comma-separated event types to filter on (empty means all)")
}
