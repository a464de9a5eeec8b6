// Package controlplane wires the Raft-backed replicated store together with
// the master task queue, the desired-balance computer, the reconciler, the
// cluster-info collector and the indexing-pressure controller into a single
// Manager: the control plane of one cluster node.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/shardctl/shardctl/pkg/balance"
	"github.com/shardctl/shardctl/pkg/clusterinfo"
	"github.com/shardctl/shardctl/pkg/decider"
	"github.com/shardctl/shardctl/pkg/events"
	"github.com/shardctl/shardctl/pkg/indexing"
	"github.com/shardctl/shardctl/pkg/log"
	"github.com/shardctl/shardctl/pkg/metrics"
	"github.com/shardctl/shardctl/pkg/queue"
	"github.com/shardctl/shardctl/pkg/reconciler"
	"github.com/shardctl/shardctl/pkg/storage"
	"github.com/shardctl/shardctl/pkg/types"
)

// Config holds the settings needed to create a Manager. Zero values for the
// tunables fall back to the defaults noted on each field.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// RebalanceEnabled toggles reconciler Phase C (voluntary rebalance).
	RebalanceEnabled bool

	// BalanceIterationBudget and BalanceComputeBudget bound a single
	// desired-balance computation (both apply; whichever is hit first
	// ends the pass). Zero means the package defaults (1000 iterations,
	// 2s) apply.
	BalanceIterationBudget int
	BalanceComputeBudget   time.Duration

	// ReconcileInterval is how often a reconcile pass runs even absent a
	// triggering event (desired-balance publish, node join/leave).
	ReconcileInterval time.Duration

	// Indexing-pressure limits in bytes; 0 means unbounded.
	CoordinatingLimitBytes int64
	PrimaryLimitBytes      int64
	ReplicaLimitBytes      int64

	// Disk watermarks consulted by DiskThresholdDecider, as fractions
	// (0..1) of total disk space.
	DiskLowWatermark   float64
	DiskFloodWatermark float64

	// ClusterInfoClient, when non-nil, is used to fetch per-node disk
	// usage and shard sizes; the cluster-info collector is only started
	// if one is supplied.
	ClusterInfoClient   clusterinfo.NodeInfoClient
	ClusterInfoInterval time.Duration
	ClusterInfoTimeout  time.Duration
}

func (c *Config) setDefaults() {
	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = 30 * time.Second
	}
	if c.DiskLowWatermark == 0 {
		c.DiskLowWatermark = 0.85
	}
	if c.DiskFloodWatermark == 0 {
		c.DiskFloodWatermark = 0.95
	}
	if c.ClusterInfoInterval == 0 {
		c.ClusterInfoInterval = 30 * time.Second
	}
	if c.ClusterInfoTimeout == 0 {
		c.ClusterInfoTimeout = 5 * time.Second
	}
}

// reconcileToken is the queue's generic state, used only for its pointer
// identity: the "reconcile" executor returns a fresh token when a pass
// actually changed routing, and the same token back when it didn't, so the
// queue's identity check can tell the two apart without the control plane
// keeping a second, queue-private copy of cluster state.
type reconcileToken struct{}

// Manager is the control plane of one cluster node: a Raft member that
// replicates cluster state, runs the master task queue against it, and
// hosts the desired-balance computer, reconciler, cluster-info collector
// and indexing-pressure controller.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string
	cfg      Config

	raftNode *raft.Raft
	fsm      *FSM
	store    storage.Store

	tokenManager *TokenManager
	eventBroker  *events.Broker

	taskQueue   *queue.Queue
	balancer    *balance.Computer
	recon       *reconciler.Reconciler
	clusterInfo *clusterinfo.Collector
	indexingCtl *indexing.Controller

	cmdMu           sync.Mutex
	pendingCommands []types.AllocationCommand

	runCancel context.CancelFunc
}

// New creates a Manager. Call Bootstrap or Join to start Raft, then Start
// to begin running the queue, balancer, reconciler ticker and (if
// configured) the cluster-info collector.
func New(cfg *Config) (*Manager, error) {
	cfg.setDefaults()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	fsm := NewFSM(store)
	eventBroker := events.NewBroker()
	eventBroker.Start()

	m := &Manager{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		cfg:          *cfg,
		fsm:          fsm,
		store:        store,
		tokenManager: NewTokenManager(),
		eventBroker:  eventBroker,
		indexingCtl:  indexing.New(cfg.CoordinatingLimitBytes, cfg.PrimaryLimitBytes, cfg.ReplicaLimitBytes),
		recon:        reconciler.New(),
	}

	m.balancer = balance.New(m.onDesiredBalance,
		balance.WithIterationBudget(orDefault(cfg.BalanceIterationBudget, 1000)),
		balance.WithComputeBudget(orDefaultDuration(cfg.BalanceComputeBudget, 2*time.Second)),
	)

	m.taskQueue = queue.New(&reconcileToken{}, nil, m.IsLeader)
	m.taskQueue.RegisterExecutor("reconcile", queue.ExecutorFunc(m.runReconcile))

	if cfg.ClusterInfoClient != nil {
		m.clusterInfo = clusterinfo.New(cfg.ClusterInfoClient, m.listRoutingNodes, cfg.ClusterInfoInterval, cfg.ClusterInfoTimeout)
	}

	return m, nil
}

func orDefault(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

func orDefaultDuration(v, d time.Duration) time.Duration {
	if v == 0 {
		return d
	}
	return v
}

// raftConfig builds the tuned Raft configuration shared by Bootstrap and
// Join: followers call an election after 500ms without contact from the
// leader (the leader heartbeats at a tenth of that), candidates wait 500ms
// for an election to complete, the leader steps down after 250ms without a
// quorum, and commits are flushed at least every 50ms.
func (m *Manager) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (m *Manager) newRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	config := m.raftConfig()

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create raft: %w", err)
	}
	return r, transport, nil
}

// Bootstrap initializes a brand-new single-node Raft cluster with this node
// as the only member.
func (m *Manager) Bootstrap() error {
	r, transport, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raftNode = r

	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(m.nodeID), Address: transport.LocalAddr()}},
	}
	future := m.raftNode.BootstrapCluster(configuration)
	return future.Error()
}

// Join starts Raft for a node that is joining an existing cluster. The
// caller is expected to have already added this node as a voter on the
// leader (e.g. via the admin RPC surface) before calling Join.
func (m *Manager) Join() error {
	r, _, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raftNode = r
	return nil
}

// AddVoter adds a new manager node to the Raft cluster. Must be called on
// the leader.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raftNode == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}
	future := m.raftNode.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// RemoveServer removes a server from the Raft cluster. Must be called on
// the leader.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raftNode == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	future := m.raftNode.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this node currently holds the Raft leadership.
func (m *Manager) IsLeader() bool {
	return m.raftNode != nil && m.raftNode.State() == raft.Leader
}

// LeaderAddr returns the current Raft leader's address, or "" if unknown.
func (m *Manager) LeaderAddr() string {
	if m.raftNode == nil {
		return ""
	}
	return string(m.raftNode.Leader())
}

// RaftAppliedIndex satisfies metrics.ClusterView.
func (m *Manager) RaftAppliedIndex() uint64 {
	if m.raftNode == nil {
		return 0
	}
	return m.raftNode.AppliedIndex()
}

// RaftPeerCount satisfies metrics.ClusterView.
func (m *Manager) RaftPeerCount() int {
	if m.raftNode == nil {
		return 0
	}
	future := m.raftNode.GetConfiguration()
	if err := future.Error(); err != nil {
		return 0
	}
	return len(future.Configuration().Servers)
}

// apply submits cmd to Raft and waits for it to commit.
func (m *Manager) apply(op string, payload interface{}) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	if m.raftNode == nil {
		return fmt.Errorf("raft not initialized")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", op, err)
	}
	cmdData, err := json.Marshal(Command{Op: op, Data: data})
	if err != nil {
		return err
	}

	future := m.raftNode.Apply(cmdData, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply %s: %w", op, err)
	}
	if resp := future.Response(); resp != nil {
		if respErr, ok := resp.(error); ok && respErr != nil {
			return respErr
		}
	}
	return nil
}

// CreateIndex replicates a new index via Raft, assigning it a UUID if the
// caller did not supply one.
func (m *Manager) CreateIndex(index *types.Index) error {
	if index.UUID == "" {
		index.UUID = uuid.New().String()
	}
	if err := m.apply("create_index", index); err != nil {
		return err
	}
	m.eventBroker.Publish(&events.Event{ID: uuid.New().String(), Type: events.EventIndexCreated, Timestamp: time.Now(), Message: index.Name})
	m.balancer.OnNewInput(m.buildBalanceInput())
	return nil
}

// DeleteIndex replicates an index removal via Raft.
func (m *Manager) DeleteIndex(indexUUID string) error {
	if err := m.apply("delete_index", indexUUID); err != nil {
		return err
	}
	m.eventBroker.Publish(&events.Event{ID: uuid.New().String(), Type: events.EventIndexDeleted, Timestamp: time.Now(), Message: indexUUID})
	m.balancer.OnNewInput(m.buildBalanceInput())
	return nil
}

// GetIndex reads an index from local storage.
func (m *Manager) GetIndex(indexUUID string) (*types.Index, error) {
	return m.store.GetIndex(indexUUID)
}

// ListIndices satisfies metrics.ClusterView and reads all indices from
// local storage.
func (m *Manager) ListIndices() []*types.Index {
	indices, err := m.store.ListIndices()
	if err != nil {
		return nil
	}
	return indices
}

// RegisterNode replicates a node join via Raft, then nudges the cluster-info
// collector and balance computer so the new node is considered immediately
// rather than waiting for the next tick.
func (m *Manager) RegisterNode(node *types.RoutingNode) error {
	if node.JoinedAt.IsZero() {
		node.JoinedAt = time.Now()
	}
	if err := m.apply("upsert_node", node); err != nil {
		return err
	}
	m.eventBroker.Publish(&events.Event{ID: uuid.New().String(), Type: events.EventNodeJoined, Timestamp: time.Now(), Message: node.ID})
	if m.clusterInfo != nil {
		m.clusterInfo.OnNodeJoin(node)
	}
	m.balancer.OnNewInput(m.buildBalanceInput())
	m.enqueueReconcile(0)
	return nil
}

// RemoveNode replicates a node departure via Raft. The node's shards are
// not moved here directly — applying delete_node returns every copy the
// node hosted to the unassigned pool, and the next reconcile pass's Phase A
// allocates them elsewhere.
func (m *Manager) RemoveNode(nodeID string) error {
	if err := m.apply("delete_node", nodeID); err != nil {
		return err
	}
	m.eventBroker.Publish(&events.Event{ID: uuid.New().String(), Type: events.EventNodeLeft, Timestamp: time.Now(), Message: nodeID})
	m.balancer.OnNewInput(m.buildBalanceInput())
	m.enqueueReconcile(0)
	return nil
}

// GetNode reads a node from local storage.
func (m *Manager) GetNode(id string) (*types.RoutingNode, error) { return m.store.GetNode(id) }

// ListNodes satisfies metrics.ClusterView and reads all nodes from local
// storage.
func (m *Manager) ListNodes() []*types.RoutingNode {
	return m.listRoutingNodes()
}

func (m *Manager) listRoutingNodes() []*types.RoutingNode {
	nodes, err := m.store.ListNodes()
	if err != nil {
		return nil
	}
	return nodes
}

// SubmitAllocationCommand records an administrator-issued AllocationCommand
// so the next balance computation and reconcile pass honor it via
// decider.AllocationCommandDecider.
func (m *Manager) SubmitAllocationCommand(cmd types.AllocationCommand) error {
	if cmd.SubmittedAt.IsZero() {
		cmd.SubmittedAt = time.Now()
	}
	m.cmdMu.Lock()
	m.pendingCommands = append(m.pendingCommands, cmd)
	m.cmdMu.Unlock()

	m.balancer.OnNewInput(m.buildBalanceInput())
	m.enqueueReconcile(0)
	return nil
}

// ListAllocationCommands returns the currently pending administrator
// commands.
func (m *Manager) ListAllocationCommands() []types.AllocationCommand {
	return m.pendingAllocationCommands()
}

func (m *Manager) pendingAllocationCommands() []types.AllocationCommand {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	return append([]types.AllocationCommand(nil), m.pendingCommands...)
}

// CurrentDesiredBalance returns the balance computer's latest result.
func (m *Manager) CurrentDesiredBalance() types.DesiredBalance {
	return m.balancer.CurrentDesiredBalance()
}

// IndexingPressureCounters returns the current admission counters.
func (m *Manager) IndexingPressureCounters() types.IndexingPressureCounters {
	return m.indexingCtl.Counters()
}

// MarkCoordinating, MarkPrimary and MarkReplica delegate to the indexing-
// pressure controller; they're exposed here so the API layer has a single
// control-plane entrypoint for write admission.
func (m *Manager) MarkCoordinating(bytes int64) (indexing.Releasable, error) {
	return m.indexingCtl.MarkCoordinating(bytes)
}

func (m *Manager) MarkPrimary(bytes int64) (indexing.Releasable, error) {
	return m.indexingCtl.MarkPrimary(bytes)
}

func (m *Manager) MarkReplica(bytes int64) indexing.Releasable {
	return m.indexingCtl.MarkReplica(bytes)
}

// GenerateJoinToken generates a new 24-hour join token. Must be called on
// the leader.
func (m *Manager) GenerateJoinToken(role string) (*JoinToken, error) {
	if !m.IsLeader() {
		return nil, fmt.Errorf("not the leader, tokens can only be generated by the leader")
	}
	return m.tokenManager.GenerateToken(role, 24*time.Hour)
}

// ValidateJoinToken validates a join token and returns its role.
func (m *Manager) ValidateJoinToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// NodeID returns this manager's node ID.
func (m *Manager) NodeID() string { return m.nodeID }

// EventBroker returns the event broker for API stream consumers.
func (m *Manager) EventBroker() *events.Broker { return m.eventBroker }

// buildDeciders assembles the decider chain for one balance/reconcile pass
// from the latest cluster-info snapshot and pending allocation commands.
func (m *Manager) buildDeciders(clusterInfo types.ClusterInfoSnapshot) *decider.Chain {
	return decider.New(
		decider.NodeExistsDecider{},
		decider.SameShardDecider{},
		decider.AllocationCommandDecider{Commands: m.pendingAllocationCommands()},
		decider.DiskThresholdDecider{
			Usage:          clusterInfo.LeastAvailablePath,
			LowWatermark:   m.cfg.DiskLowWatermark,
			FloodWatermark: m.cfg.DiskFloodWatermark,
		},
	)
}

func (m *Manager) buildBalanceInput() *balance.Input {
	clusterInfo, _ := m.store.GetClusterInfo()
	return &balance.Input{
		Nodes:            m.nodeMap(),
		Indices:          m.indexMap(),
		ClusterInfo:      clusterInfo,
		Deciders:         m.buildDeciders(clusterInfo),
		RebalanceEnabled: m.cfg.RebalanceEnabled,
		Index:            time.Now().UnixNano(),
	}
}

func (m *Manager) indexMap() map[string]*types.Index {
	list, err := m.store.ListIndices()
	if err != nil {
		return nil
	}
	out := make(map[string]*types.Index, len(list))
	for _, idx := range list {
		out[idx.UUID] = idx
	}
	return out
}

func (m *Manager) nodeMap() map[string]*types.RoutingNode {
	list, err := m.store.ListNodes()
	if err != nil {
		return nil
	}
	out := make(map[string]*types.RoutingNode, len(list))
	for _, n := range list {
		out[n.ID] = n
	}
	return out
}

// onDesiredBalance is the balance computer's publish callback: it
// replicates the new balance via Raft and triggers a reconcile pass.
func (m *Manager) onDesiredBalance(b types.DesiredBalance) {
	if err := m.apply("publish_desired_balance", b); err != nil {
		log.Error(fmt.Sprintf("failed to publish desired balance: %v", err))
		return
	}
	m.eventBroker.Publish(&events.Event{ID: uuid.New().String(), Type: events.EventBalanceComputed, Timestamp: time.Now()})
	m.enqueueReconcile(b.LastConvergedIndex)
}

// onClusterInfo is the cluster-info collector's refresh result handler.
func (m *Manager) onClusterInfo(snapshot types.ClusterInfoSnapshot) {
	if err := m.apply("publish_cluster_info", snapshot); err != nil {
		log.Error(fmt.Sprintf("failed to publish cluster info: %v", err))
		return
	}
	m.balancer.OnNewInput(m.buildBalanceInput())
}

// enqueueReconcile submits a reconcile task to the master task queue.
// lastConvergedIndex lets the queue supersede stale reconcile tasks that
// haven't run yet when a newer one (from a fresher desired balance)
// arrives.
func (m *Manager) enqueueReconcile(lastConvergedIndex int64) {
	if m.taskQueue == nil {
		return
	}
	resultCh := m.taskQueue.Submit(&queue.Task{
		ID:                 uuid.New().String(),
		Executor:           "reconcile",
		Priority:           queue.Normal,
		LastConvergedIndex: lastConvergedIndex,
	})
	go func() {
		if res := <-resultCh; res.Err != nil && res.Err != queue.ErrNotMaster {
			log.Error(fmt.Sprintf("reconcile task failed: %v", res.Err))
		}
	}()
}

// runReconcile is the queue's "reconcile" Executor: it builds a
// RoutingAllocation from current storage, runs one reconciler pass, and
// (if anything changed) commits the result via Raft.
func (m *Manager) runReconcile(ctx context.Context, initialState interface{}, tasks []*queue.Task) (interface{}, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	cur := initialState.(*reconcileToken)

	unassigned, err := m.store.GetUnassigned()
	if err != nil {
		return nil, err
	}
	desired, err := m.store.GetDesiredBalance()
	if err != nil {
		return nil, err
	}
	clusterInfo, err := m.store.GetClusterInfo()
	if err != nil {
		return nil, err
	}

	alloc := &reconciler.RoutingAllocation{
		Nodes:            m.nodeMap(),
		Unassigned:       unassigned,
		Indices:          m.indexMap(),
		Desired:          desired,
		Deciders:         m.buildDeciders(clusterInfo),
		ClusterInfo:      clusterInfo,
		RebalanceEnabled: m.cfg.RebalanceEnabled,
	}

	result := m.recon.Reconcile(alloc)
	metrics.ReconciliationCyclesTotal.Inc()
	if !result.Changed {
		return cur, nil
	}

	payload := routingResultPayload{Nodes: result.Nodes, Unassigned: result.Unassigned}
	if err := m.apply("apply_routing_result", payload); err != nil {
		return nil, err
	}
	metrics.ShardMovesTotal.WithLabelValues("reconcile").Add(float64(result.Moves))
	if result.AllocatedPrimary+result.AllocatedReplica > 0 {
		m.eventBroker.Publish(&events.Event{ID: uuid.New().String(), Type: events.EventShardStarted, Timestamp: time.Now()})
	}
	return &reconcileToken{}, nil
}

// Start begins the queue's run loop, the balance computer, the periodic
// reconcile ticker, and (if configured) the cluster-info collector. Call
// Shutdown to stop everything and release resources.
func (m *Manager) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.runCancel = cancel

	go m.taskQueue.Run(runCtx)
	go m.balancer.Run(runCtx)

	if m.clusterInfo != nil {
		go m.clusterInfo.Run(runCtx)
		go m.pollClusterInfo(runCtx)
	}

	go m.reconcileTicker(runCtx)
}

// pollClusterInfo periodically copies the collector's latest snapshot into
// replicated state. The collector itself only holds the snapshot in
// memory; replication happens here so every manager, not just the one
// that ran the collector, sees it.
func (m *Manager) pollClusterInfo(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ClusterInfoInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.IsLeader() {
				m.onClusterInfo(m.clusterInfo.Snapshot())
			}
		}
	}
}

func (m *Manager) reconcileTicker(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.IsLeader() {
				m.enqueueReconcile(0)
			}
		}
	}
}

// Shutdown stops all background loops, Raft, and local storage.
func (m *Manager) Shutdown() error {
	if m.runCancel != nil {
		m.runCancel()
	}
	if m.taskQueue != nil {
		m.taskQueue.Stop()
	}
	if m.balancer != nil {
		m.balancer.Stop()
	}
	if m.clusterInfo != nil {
		m.clusterInfo.Stop()
	}
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}
	if m.raftNode != nil {
		if err := m.raftNode.Shutdown().Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	return nil
}
