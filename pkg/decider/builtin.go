package decider

import "github.com/shardctl/shardctl/pkg/types"

// SameShardDecider refuses to place two copies of the same shard on the
// same node.
type SameShardDecider struct{}

func (SameShardDecider) CanAllocate(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	if node == "" {
		return allow()
	}
	rn, ok := alloc.Nodes[node]
	if !ok {
		return deny("node not in cluster")
	}
	for _, existing := range rn.Shards {
		if existing.Shard == shard.Shard && existing.IsAssigned() {
			return deny("shard already allocated on this node")
		}
	}
	return allow()
}

func (SameShardDecider) CanRemain(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	return allow()
}

func (SameShardDecider) CanRebalance(shard *types.ShardRouting, alloc *Allocation) Decision {
	return allow()
}

func (SameShardDecider) CanForceAllocatePrimary(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	return allow()
}

// NodeExistsDecider refuses any placement on a node that has left the
// cluster, or that is marked down.
type NodeExistsDecider struct{}

func (NodeExistsDecider) CanAllocate(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	if node == "" {
		return allow()
	}
	rn, ok := alloc.Nodes[node]
	if !ok {
		return deny("node not in cluster")
	}
	if rn.Status != types.NodeStatusReady {
		return deny("node not ready")
	}
	return allow()
}

func (NodeExistsDecider) CanRemain(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	rn, ok := alloc.Nodes[node]
	if !ok || rn.Status != types.NodeStatusReady {
		return deny("node left or not ready")
	}
	return allow()
}

func (NodeExistsDecider) CanRebalance(shard *types.ShardRouting, alloc *Allocation) Decision {
	return allow()
}

func (NodeExistsDecider) CanForceAllocatePrimary(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	rn, ok := alloc.Nodes[node]
	if !ok {
		return deny("node not in cluster")
	}
	if rn.Status != types.NodeStatusReady {
		return deny("node not ready")
	}
	return allow()
}

// DiskThresholdDecider throttles allocation to nodes that are tight on disk
// and refuses nodes that are over the hard limit. Watermarks are fractions
// of total disk space (0..1).
type DiskThresholdDecider struct {
	Usage          map[string]types.NodeDiskUsage // keyed by node ID
	LowWatermark   float64
	FloodWatermark float64
}

func (d DiskThresholdDecider) ratio(node string) (float64, bool) {
	u, ok := d.Usage[node]
	if !ok || u.TotalBytes == 0 {
		return 0, false
	}
	used := u.TotalBytes - u.AvailableBytes
	return float64(used) / float64(u.TotalBytes), true
}

func (d DiskThresholdDecider) CanAllocate(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	if node == "" {
		return allow()
	}
	ratio, ok := d.ratio(node)
	if !ok {
		return allow()
	}
	if d.FloodWatermark > 0 && ratio >= d.FloodWatermark {
		return deny("node over flood-stage disk watermark")
	}
	if d.LowWatermark > 0 && ratio >= d.LowWatermark {
		return throttle("node over low disk watermark")
	}
	return allow()
}

func (d DiskThresholdDecider) CanRemain(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	ratio, ok := d.ratio(node)
	if ok && d.FloodWatermark > 0 && ratio >= d.FloodWatermark {
		return deny("node over flood-stage disk watermark")
	}
	return allow()
}

func (d DiskThresholdDecider) CanRebalance(shard *types.ShardRouting, alloc *Allocation) Decision {
	return allow()
}

func (d DiskThresholdDecider) CanForceAllocatePrimary(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	return allow()
}

// AllocationCommandDecider enforces administrator-issued move/allocate/cancel
// commands against the shard they target. Commands are scoped to one shard
// (and optionally one role); a shard with no matching command is unaffected.
type AllocationCommandDecider struct {
	Commands []types.AllocationCommand
}

func (d AllocationCommandDecider) matching(shard types.ShardRouting) []types.AllocationCommand {
	var out []types.AllocationCommand
	for _, cmd := range d.Commands {
		if cmd.Shard != shard.Shard {
			continue
		}
		if cmd.Role != "" && cmd.Role != shard.Role {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

func (d AllocationCommandDecider) CanAllocate(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	for _, cmd := range d.matching(shard) {
		switch cmd.Kind {
		case types.AllocationCommandMove, types.AllocationCommandAllocate:
			if node != "" && node != cmd.ToNodeID {
				return deny("allocation command restricts this shard to " + cmd.ToNodeID)
			}
		case types.AllocationCommandCancel:
			return deny("allocation cancelled by administrator")
		}
	}
	return allow()
}

func (d AllocationCommandDecider) CanRemain(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	for _, cmd := range d.matching(shard) {
		switch cmd.Kind {
		case types.AllocationCommandMove:
			if node == cmd.FromNodeID {
				return deny("allocation command moves this shard off " + node)
			}
		case types.AllocationCommandCancel:
			return deny("allocation cancelled by administrator")
		}
	}
	return allow()
}

func (d AllocationCommandDecider) CanRebalance(shard *types.ShardRouting, alloc *Allocation) Decision {
	return allow()
}

func (d AllocationCommandDecider) CanForceAllocatePrimary(shard types.ShardRouting, node string, alloc *Allocation) Decision {
	return d.CanAllocate(shard, node, alloc)
}
