// Package decider implements the allocation-deciders facade: a pluggable
// chain of yes/no/throttle predicates consulted by both the desired-balance
// computer and the reconciler before any shard is placed, kept, or moved.
package decider

import "github.com/shardctl/shardctl/pkg/types"

// Verdict is the outcome of a single decider, or of a combined chain.
type Verdict int

const (
	Yes Verdict = iota
	No
	Throttle
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "YES"
	case No:
		return "NO"
	case Throttle:
		return "THROTTLE"
	default:
		return "UNKNOWN"
	}
}

// Decision is the sum type `{Yes, No(reason), Throttle(reason)}` from the
// allocation-deciders design. A Decision is plain data; deciders never
// raise errors for an ordinary no/throttle outcome.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// Allowed reports whether the decision permits the action without
// throttling (Verdict == Yes).
func (d Decision) Allowed() bool { return d.Verdict == Yes }

// Blocked reports whether the decision forbids the action outright.
func (d Decision) Blocked() bool { return d.Verdict == No }

func allow() Decision          { return Decision{Verdict: Yes} }
func deny(reason string) Decision { return Decision{Verdict: No, Reason: reason} }
func throttle(reason string) Decision { return Decision{Verdict: Throttle, Reason: reason} }

// Allocation is the read-only view of cluster state a Decider consults. It
// is pure data; deciders must not mutate it.
type Allocation struct {
	Nodes       map[string]*types.RoutingNode
	Indices     map[string]*types.Index
	RebalanceOn bool
}

// ShardDecider answers canAllocate/canRemain/canRebalance for one shard on
// one (or any) node. Implementations must be pure with respect to the
// Allocation passed in.
type ShardDecider interface {
	// CanAllocate answers whether the given shard copy may be placed on
	// node. A nil node (node == "") asks "can this shard go anywhere?".
	CanAllocate(shard types.ShardRouting, node string, alloc *Allocation) Decision
	// CanRemain answers whether a shard copy already on node may stay there.
	CanRemain(shard types.ShardRouting, node string, alloc *Allocation) Decision
	// CanRebalance answers whether voluntary rebalancing is permitted at
	// all (node == "") or for this specific shard.
	CanRebalance(shard *types.ShardRouting, alloc *Allocation) Decision
	// CanForceAllocatePrimary allows a primary to start outside its
	// desired set when nothing else will take it.
	CanForceAllocatePrimary(shard types.ShardRouting, node string, alloc *Allocation) Decision
}

// Chain combines an ordered list of ShardDeciders: the first NO short-
// circuits the whole chain; otherwise, if any decider throttled, a
// would-be YES is downgraded to THROTTLE.
type Chain struct {
	Deciders []ShardDecider
}

// New builds a Chain from the given deciders, consulted in order.
func New(deciders ...ShardDecider) *Chain {
	return &Chain{Deciders: deciders}
}

func combine(results []Decision) Decision {
	sawThrottle := false
	for _, d := range results {
		switch d.Verdict {
		case No:
			return d
		case Throttle:
			sawThrottle = true
		}
	}
	if sawThrottle {
		return throttle("one or more deciders throttled")
	}
	return allow()
}

// CanAllocate runs every decider's CanAllocate and combines the results.
func (c *Chain) CanAllocate(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	results := make([]Decision, 0, len(c.Deciders))
	for _, d := range c.Deciders {
		results = append(results, d.CanAllocate(shard, node, alloc))
	}
	return combine(results)
}

// CanRemain runs every decider's CanRemain and combines the results.
func (c *Chain) CanRemain(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	results := make([]Decision, 0, len(c.Deciders))
	for _, d := range c.Deciders {
		results = append(results, d.CanRemain(shard, node, alloc))
	}
	return combine(results)
}

// CanRebalance runs every decider's CanRebalance and combines the results.
// Pass shard == nil for the global "is rebalancing permitted at all" check.
func (c *Chain) CanRebalance(shard *types.ShardRouting, alloc *Allocation) Decision {
	if !alloc.RebalanceOn {
		return deny("rebalancing disabled")
	}
	results := make([]Decision, 0, len(c.Deciders))
	for _, d := range c.Deciders {
		results = append(results, d.CanRebalance(shard, alloc))
	}
	return combine(results)
}

// CanForceAllocatePrimary runs every decider's CanForceAllocatePrimary and
// combines the results; used only in the Phase A fallback pass.
func (c *Chain) CanForceAllocatePrimary(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	results := make([]Decision, 0, len(c.Deciders))
	for _, d := range c.Deciders {
		results = append(results, d.CanForceAllocatePrimary(shard, node, alloc))
	}
	return combine(results)
}
