// Package balance implements the desired-balance computer: a background
// worker that continuously recomputes the target shard layout against the
// latest cluster-info/routing-table input, publishing
// a new types.DesiredBalance whenever it converges or its budget runs out.
//
// Unlike the reconciler, which applies allocation changes synchronously to
// live ClusterState, the computer never mutates routing directly — it only
// ever produces the DesiredBalance the reconciler converges live state
// towards.
package balance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shardctl/shardctl/pkg/decider"
	"github.com/shardctl/shardctl/pkg/log"
	"github.com/shardctl/shardctl/pkg/types"
)

// Input is one snapshot of the data the computer needs to produce a
// DesiredBalance: the current routing table, the index catalog, cluster
// disk/size info, and the decider chain to consult. Index is a strictly
// increasing version stamp; OnNewInput with a lower or equal Index than the
// one already pending is a no-op ("latest input wins").
type Input struct {
	Nodes            map[string]*types.RoutingNode
	Indices          map[string]*types.Index
	ClusterInfo      types.ClusterInfoSnapshot
	Deciders         *decider.Chain
	RebalanceEnabled bool
	Index            int64
}

// Stats exposes the computer's running counters for the desired-balance
// allocator's external interface.
type Stats struct {
	ComputationsSubmitted       int64
	ComputationsExecuted        int64
	ComputationsConverged       int64
	CumulativeComputationTimeMs int64
}

// Computer is the continuous desired-balance worker. Exactly one Run
// goroutine drains it; OnNewInput may be called concurrently from any
// thread (the cluster-info collector, the master-update thread on index
// create/delete, a node join/leave notification).
type Computer struct {
	mu      sync.Mutex
	pending *Input
	running bool
	current types.DesiredBalance

	publish func(types.DesiredBalance)
	logger  zerolog.Logger

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	maxIterations int
	computeBudget time.Duration

	rotation int // node-ordering rotation cursor, advances on every pickNode call

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Computer at construction time.
type Option func(*Computer)

// WithIterationBudget caps the number of balancing passes per computation.
func WithIterationBudget(n int) Option {
	return func(c *Computer) { c.maxIterations = n }
}

// WithComputeBudget caps the wall-clock time spent per computation.
func WithComputeBudget(d time.Duration) Option {
	return func(c *Computer) { c.computeBudget = d }
}

// New creates a Computer seeded with an empty balance. publish is invoked
// with every freshly computed (or re-converged) balance.
func New(publish func(types.DesiredBalance), opts ...Option) *Computer {
	c := &Computer{
		current:       types.EmptyDesiredBalance(),
		publish:       publish,
		logger:        log.WithComponent("balance"),
		wakeCh:        make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		maxIterations: 1000,
		computeBudget: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnNewInput records the latest input and wakes the worker. If a
// computation is already running against a stale input, it is abandoned
// mid-pass (see isStale) and restarted against this one.
func (c *Computer) OnNewInput(in *Input) {
	c.mu.Lock()
	if c.pending != nil && in.Index <= c.pending.Index {
		c.mu.Unlock()
		return
	}
	c.pending = in
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.ComputationsSubmitted++
	c.statsMu.Unlock()

	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// IsActive reports whether a computation is currently running.
func (c *Computer) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// CurrentDesiredBalance returns the most recently published balance.
func (c *Computer) CurrentDesiredBalance() types.DesiredBalance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stats returns a snapshot of the running counters.
func (c *Computer) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Run is the single background worker; it blocks until Stop is called or
// ctx is done. Callers should run it in its own goroutine.
func (c *Computer) Run(ctx context.Context) {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-c.wakeCh:
		}
		c.drainAndCompute(ctx)
	}
}

// Stop signals Run to exit and blocks until it has returned.
func (c *Computer) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// drainAndCompute repeatedly takes the latest pending input and computes
// against it until no new input arrived while computing — this is what
// makes "latest input wins" correct even under a constant stream of inputs.
func (c *Computer) drainAndCompute(ctx context.Context) {
	for {
		c.mu.Lock()
		in := c.pending
		c.pending = nil
		if in == nil {
			c.mu.Unlock()
			return
		}
		c.running = true
		c.mu.Unlock()

		result, converged := c.computeOnce(ctx, in)

		c.mu.Lock()
		stale := c.pending != nil && c.pending.Index > in.Index
		if !stale {
			c.current = result
		}
		c.running = false
		supersededByNewer := c.pending != nil
		c.mu.Unlock()

		c.statsMu.Lock()
		c.stats.ComputationsExecuted++
		if converged {
			c.stats.ComputationsConverged++
		}
		c.statsMu.Unlock()

		// A result computed against a superseded input is discarded.
		if c.publish != nil && !stale {
			c.publish(result)
		}

		if !supersededByNewer {
			return
		}
		// newer input arrived mid-computation; loop and recompute against it
	}
}

// isStale reports whether in has been superseded by a newer pending input.
func (c *Computer) isStale(in *Input) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil && c.pending.Index > in.Index
}

// computeOnce runs the balancing algorithm against in: it starts from the
// last published balance, allocates any shard copy below its desired
// replica count, and stops when nothing changed in a pass (converged), the
// iteration budget is exhausted, the compute-time budget is exhausted, or a
// newer input preempts it.
func (c *Computer) computeOnce(ctx context.Context, in *Input) (types.DesiredBalance, bool) {
	started := time.Now()
	defer func() {
		elapsed := time.Since(started)
		c.statsMu.Lock()
		c.stats.CumulativeComputationTimeMs += elapsed.Milliseconds()
		c.statsMu.Unlock()
	}()

	c.mu.Lock()
	base := c.current
	c.mu.Unlock()

	assignments := make(map[types.ShardId]types.ShardAssignment, len(base.Assignments))
	for k, v := range base.Assignments {
		cp := v
		cp.NodeIDs = append([]string(nil), v.NodeIDs...)
		assignments[k] = cp
	}

	deadline := started.Add(c.computeBudget)
	converged := false

iterations:
	for iter := 0; iter < c.maxIterations; iter++ {
		if ctx.Err() != nil {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		if c.isStale(in) {
			break
		}

		changed := false
		for _, idx := range sortedIndices(in.Indices) {
			if idx.State != types.IndexStateOpen {
				continue
			}
			for shardNum := 0; shardNum < idx.ShardCount; shardNum++ {
				shardID := types.ShardId{IndexUUID: idx.UUID, ShardNum: shardNum}
				wantTotal := 1 + idx.ReplicaCount
				assign := assignments[shardID]
				if assign.Total == 0 {
					assign.Total = wantTotal
				}
				if len(assign.NodeIDs) >= wantTotal {
					continue
				}
				role := types.ShardRolePrimary
				if len(assign.NodeIDs) > 0 {
					role = types.ShardRoleReplica
				}
				node, ignored := c.pickNode(shardID, role, assign.NodeIDs, in)
				if node == "" {
					if role == types.ShardRolePrimary {
						assign.PrimaryIgnored = ignored
					} else {
						assign.ReplicaIgnored = ignored
					}
					assignments[shardID] = assign
					continue
				}
				assign.NodeIDs = append(assign.NodeIDs, node)
				assignments[shardID] = assign
				changed = true
			}
			if c.isStale(in) {
				break iterations
			}
		}
		if !changed {
			converged = true
			break
		}
	}

	return types.DesiredBalance{
		Assignments:        assignments,
		LastConvergedIndex: in.Index,
	}, converged
}

// pickNode selects the next eligible node for shard/role using a rotating
// start point across nodes — the cursor advances on every call, so
// successive picks start scanning from a different node and load isn't
// biased towards whichever node sorts first. When no node accepts the copy
// it returns "" with ignored set.
func (c *Computer) pickNode(shard types.ShardId, role types.ShardRole, already []string, in *Input) (node string, ignored bool) {
	nodeIDs := sortedNodeIDs(in.Nodes)
	if len(nodeIDs) == 0 {
		return "", true
	}

	c.mu.Lock()
	start := c.rotation % len(nodeIDs)
	c.rotation++
	c.mu.Unlock()

	taken := make(map[string]bool, len(already))
	for _, n := range already {
		taken[n] = true
	}

	routing := types.ShardRouting{Shard: shard, Role: role}
	alloc := &decider.Allocation{Nodes: in.Nodes, Indices: in.Indices, RebalanceOn: in.RebalanceEnabled}

	for i := 0; i < len(nodeIDs); i++ {
		candidate := nodeIDs[(start+i)%len(nodeIDs)]
		if taken[candidate] {
			continue
		}
		if in.Deciders == nil {
			return candidate, false
		}
		d := in.Deciders.CanAllocate(routing, candidate, alloc)
		if d.Verdict == decider.Yes {
			return candidate, false
		}
	}
	return "", true
}

func sortedIndices(indices map[string]*types.Index) []*types.Index {
	out := make([]*types.Index, 0, len(indices))
	for _, idx := range indices {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}

func sortedNodeIDs(nodes map[string]*types.RoutingNode) []string {
	out := make([]string, 0, len(nodes))
	for id := range nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
