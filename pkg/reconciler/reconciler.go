// Package reconciler implements the three-phase reconciliation algorithm
// that walks the live routing table towards the latest
// types.DesiredBalance, one synchronous pass at a time, and never blocks on
// I/O — every decision is made against the in-memory RoutingAllocation
// passed in, and the caller (the master task queue's reconcile executor) is
// responsible for committing the result.
package reconciler

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/shardctl/shardctl/pkg/decider"
	"github.com/shardctl/shardctl/pkg/log"
	"github.com/shardctl/shardctl/pkg/types"
)

// RoutingAllocation is the mutable, thread-confined accumulator a single
// reconcile pass operates on. It is never shared across goroutines: the
// master task queue's single-writer thread builds one, runs Reconcile, and
// discards it once the result is committed.
type RoutingAllocation struct {
	Nodes            map[string]*types.RoutingNode
	Unassigned       []types.ShardRouting
	Indices          map[string]*types.Index
	Desired          types.DesiredBalance
	Deciders         *decider.Chain
	ClusterInfo      types.ClusterInfoSnapshot
	RebalanceEnabled bool
}

// Result is what a reconcile pass produced. Nodes and Unassigned replace the
// allocation's corresponding fields wholesale; Changed is false only when
// nothing moved (the reconciler's own no-op signal, mirrored at the queue
// layer by pointer-identity comparison of the containing ClusterState).
type Result struct {
	Nodes            map[string]*types.RoutingNode
	Unassigned       []types.ShardRouting
	Changed          bool
	Moves            int
	AllocatedPrimary int
	AllocatedReplica int
}

// Reconciler runs reconcile passes. It holds no routing state itself —
// every pass is a pure function of the RoutingAllocation handed to Reconcile
// — only ambient logging plumbing.
type Reconciler struct {
	logger zerolog.Logger
}

// New creates a Reconciler.
func New() *Reconciler {
	return &Reconciler{logger: log.WithComponent("reconciler")}
}

// Reconcile runs Phase A (allocate unassigned), Phase B (forced moves off
// nodes that left the cluster), and Phase C (voluntary rebalance, only when
// alloc.RebalanceEnabled) in order, against a private copy of alloc.Nodes.
func (r *Reconciler) Reconcile(alloc *RoutingAllocation) *Result {
	nodes := cloneNodes(alloc.Nodes)
	unassigned := append([]types.ShardRouting(nil), alloc.Unassigned...)

	work := &RoutingAllocation{
		Nodes:            nodes,
		Unassigned:       unassigned,
		Indices:          alloc.Indices,
		Desired:          alloc.Desired,
		Deciders:         alloc.Deciders,
		ClusterInfo:      alloc.ClusterInfo,
		RebalanceEnabled: alloc.RebalanceEnabled,
	}

	res := &Result{}
	r.allocateUnassigned(work, res)
	r.forcedMoves(work, res)
	if alloc.RebalanceEnabled {
		r.voluntaryRebalance(work, res)
	}

	res.Nodes = work.Nodes
	res.Unassigned = work.Unassigned
	res.Changed = res.Moves > 0 || res.AllocatedPrimary > 0 || res.AllocatedReplica > 0
	return res
}

// allocateUnassigned is Phase A. Primaries are sorted ahead of replicas (a
// replica cannot start until its primary exists somewhere), then by shard
// number. For every shard, the desired node set from alloc.Desired is tried
// first, in the order listed; if none accept and the copy is a
// primary, a fallback pass tries any ready node via CanForceAllocatePrimary.
//
// A replica is never initialized ahead of its own primary copy reaching
// types.ShardStateStarted (the ReplicaAfterPrimaryActive rule): such a
// replica is left unassigned with status NO_ATTEMPT without even being
// offered to the deciders, since DECIDERS_NO would misreport it as
// rejected by allocation policy rather than simply not-yet-due.
func (r *Reconciler) allocateUnassigned(alloc *RoutingAllocation, res *Result) {
	sort.SliceStable(alloc.Unassigned, func(i, j int) bool {
		a, b := alloc.Unassigned[i], alloc.Unassigned[j]
		if a.Role != b.Role {
			return a.Role == types.ShardRolePrimary
		}
		return a.Shard.ShardNum < b.Shard.ShardNum
	})

	var stillUnassigned []types.ShardRouting
	for _, shard := range alloc.Unassigned {
		if shard.Role == types.ShardRoleReplica && !primaryStarted(alloc.Nodes, shard.Shard) {
			shard.Unassigned = &types.UnassignedInfo{Status: types.UnassignedNoAttempt, Timestamp: time.Now()}
			stillUnassigned = append(stillUnassigned, shard)
			continue
		}

		assign := alloc.Desired.Assignments[shard.Shard]
		target, sawThrottle := r.pickDesiredNode(alloc, shard, assign.NodeIDs)

		if target == "" && shard.Role == types.ShardRolePrimary {
			target, sawThrottle = r.forceAllocatePrimary(alloc, shard, sawThrottle)
		}

		if target == "" {
			status := types.UnassignedDecidersNo
			if sawThrottle {
				status = types.UnassignedDecidersThrottled
			}
			shard.Unassigned = &types.UnassignedInfo{Status: status, Timestamp: time.Now()}
			stillUnassigned = append(stillUnassigned, shard)
			continue
		}

		shard.State = types.ShardStateInitializing
		shard.CurrentNodeID = target
		shard.Unassigned = nil
		alloc.Nodes[target].Shards = append(alloc.Nodes[target].Shards, shard)
		if shard.Role == types.ShardRolePrimary {
			res.AllocatedPrimary++
		} else {
			res.AllocatedReplica++
		}
	}
	alloc.Unassigned = stillUnassigned
}

// primaryStarted reports whether shard's primary copy is already started on
// some node in nodes. A primary that is merely initializing (as it always
// is in the same pass it was allocated) does not satisfy this.
func primaryStarted(nodes map[string]*types.RoutingNode, shard types.ShardId) bool {
	for _, rn := range nodes {
		for _, s := range rn.Shards {
			if s.Shard == shard && s.Role == types.ShardRolePrimary && s.State == types.ShardStateStarted {
				return true
			}
		}
	}
	return false
}

// pickDesiredNode tries each node in the shard's desired assignment set, in
// order, skipping nodes that already hold a copy of this shard.
func (r *Reconciler) pickDesiredNode(alloc *RoutingAllocation, shard types.ShardRouting, desiredNodes []string) (node string, sawThrottle bool) {
	dalloc := &decider.Allocation{Nodes: alloc.Nodes, Indices: alloc.Indices, RebalanceOn: alloc.RebalanceEnabled}
	for _, candidate := range desiredNodes {
		if shardAlreadyOn(alloc.Nodes, candidate, shard.Shard) {
			continue
		}
		if alloc.Deciders == nil {
			return candidate, false
		}
		d := alloc.Deciders.CanAllocate(shard, candidate, dalloc)
		switch d.Verdict {
		case decider.Yes:
			return candidate, sawThrottle
		case decider.Throttle:
			sawThrottle = true
		}
	}
	return "", sawThrottle
}

// forceAllocatePrimary is the primary-only fallback: when no desired node
// accepted the shard, try every node currently in the cluster via
// CanForceAllocatePrimary instead of CanAllocate.
func (r *Reconciler) forceAllocatePrimary(alloc *RoutingAllocation, shard types.ShardRouting, sawThrottle bool) (string, bool) {
	if alloc.Deciders == nil {
		return "", sawThrottle
	}
	dalloc := &decider.Allocation{Nodes: alloc.Nodes, Indices: alloc.Indices, RebalanceOn: alloc.RebalanceEnabled}
	ids := make([]string, 0, len(alloc.Nodes))
	for id := range alloc.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, candidate := range ids {
		if shardAlreadyOn(alloc.Nodes, candidate, shard.Shard) {
			continue
		}
		d := alloc.Deciders.CanForceAllocatePrimary(shard, candidate, dalloc)
		switch d.Verdict {
		case decider.Yes:
			return candidate, sawThrottle
		case decider.Throttle:
			sawThrottle = true
		}
	}
	return "", sawThrottle
}

// forcedMoves is Phase B: any started or initializing copy sitting on a node
// that is no longer Ready is pulled off that node and dropped back into the
// unassigned pool, regardless of alloc.RebalanceEnabled — this is not
// voluntary rebalancing, it is catching up with reality.
func (r *Reconciler) forcedMoves(alloc *RoutingAllocation, res *Result) {
	for nodeID, rn := range alloc.Nodes {
		if rn.Status == types.NodeStatusReady {
			continue
		}
		var kept []types.ShardRouting
		for _, shard := range rn.Shards {
			if !shard.IsAssigned() {
				kept = append(kept, shard)
				continue
			}
			shard.State = types.ShardStateUnassigned
			shard.CurrentNodeID = ""
			shard.Unassigned = &types.UnassignedInfo{Status: types.UnassignedNoAttempt, Timestamp: time.Now()}
			alloc.Unassigned = append(alloc.Unassigned, shard)
			res.Moves++
		}
		rn.Shards = kept
		alloc.Nodes[nodeID] = rn
	}
}

// voluntaryRebalance is Phase C: for every started copy sitting on a node
// outside its desired assignment set, try to move it onto a desired node
// that doesn't already hold a copy, subject to CanRebalance and CanAllocate.
func (r *Reconciler) voluntaryRebalance(alloc *RoutingAllocation, res *Result) {
	dalloc := &decider.Allocation{Nodes: alloc.Nodes, Indices: alloc.Indices, RebalanceOn: alloc.RebalanceEnabled}
	if alloc.Deciders != nil {
		if d := alloc.Deciders.CanRebalance(nil, dalloc); d.Blocked() {
			return
		}
	}

	for nodeID, rn := range alloc.Nodes {
		var kept []types.ShardRouting
		for _, shard := range rn.Shards {
			if shard.State != types.ShardStateStarted {
				kept = append(kept, shard)
				continue
			}
			assign := alloc.Desired.Assignments[shard.Shard]
			if contains(assign.NodeIDs, nodeID) || len(assign.NodeIDs) == 0 {
				kept = append(kept, shard)
				continue
			}

			moved := false
			if alloc.Deciders == nil || alloc.Deciders.CanRebalance(&shard, dalloc).Allowed() {
				for _, target := range assign.NodeIDs {
					if shardAlreadyOn(alloc.Nodes, target, shard.Shard) {
						continue
					}
					if alloc.Deciders != nil && !alloc.Deciders.CanAllocate(shard, target, dalloc).Allowed() {
						continue
					}
					relocated := shard
					relocated.State = types.ShardStateRelocating
					relocated.RelocatingToNodeID = target
					kept = append(kept, relocated)

					arriving := shard
					arriving.State = types.ShardStateInitializing
					arriving.CurrentNodeID = target
					arriving.RelocatingToNodeID = ""
					alloc.Nodes[target].Shards = append(alloc.Nodes[target].Shards, arriving)

					res.Moves++
					moved = true
					break
				}
			}
			if !moved {
				kept = append(kept, shard)
			}
		}
		rn.Shards = kept
		alloc.Nodes[nodeID] = rn
	}
}

func shardAlreadyOn(nodes map[string]*types.RoutingNode, nodeID string, shard types.ShardId) bool {
	rn, ok := nodes[nodeID]
	if !ok {
		return false
	}
	for _, s := range rn.Shards {
		if s.Shard == shard && s.IsAssigned() {
			return true
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func cloneNodes(nodes map[string]*types.RoutingNode) map[string]*types.RoutingNode {
	out := make(map[string]*types.RoutingNode, len(nodes))
	for id, rn := range nodes {
		cp := *rn
		cp.Shards = append([]types.ShardRouting(nil), rn.Shards...)
		out[id] = &cp
	}
	return out
}

// CountAssignedAndIgnored reports, for shard, how many copies ended up
// assigned to a node versus left unassigned-with-a-reason across the whole
// allocation. The Phase A invariant is that this sum equals replicas+1 for
// every shard once Phase A completes.
func CountAssignedAndIgnored(nodes map[string]*types.RoutingNode, unassigned []types.ShardRouting, shard types.ShardId) (assigned, ignored int) {
	for _, rn := range nodes {
		for _, s := range rn.Shards {
			if s.Shard == shard && s.IsAssigned() {
				assigned++
			}
		}
	}
	for _, s := range unassigned {
		if s.Shard == shard && s.Unassigned != nil {
			ignored++
		}
	}
	return assigned, ignored
}
