// Package indexing implements the per-node indexing-pressure controller:
// lock-free, role-partitioned admission counters that the
// write path consults before accepting coordinating/primary/replica work,
// and releases exactly once when that work completes.
package indexing

import (
	"fmt"
	"sync/atomic"

	"github.com/shardctl/shardctl/pkg/types"
)

// Releasable is returned by every mark call. Release is idempotent: calling
// it more than once has no further effect (write-path code that retries its
// own cleanup must not double-decrement the counters).
type Releasable interface {
	Release()
}

type release struct {
	done func()
	flag atomic.Bool
}

func (r *release) Release() {
	if r.flag.CompareAndSwap(false, true) {
		r.done()
	}
}

// LimitExceededError is returned when admission would exceed the configured
// byte limit for a role.
type LimitExceededError struct {
	Role    string
	Current int64
	Bytes   int64
	Limit   int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("indexing pressure limit exceeded for %s: current=%d bytes=%d limit=%d",
		e.Role, e.Current, e.Bytes, e.Limit)
}

// Controller tracks indexing-pressure counters for a single node. All
// mutation goes through sync/atomic adds (an admission that would exceed its
// limit is undone with a matching subtract) — no locks are held across a
// mark/release pair, so a slow writer never blocks admission checks for
// any other writer.
type Controller struct {
	coordinatingBytes atomic.Int64
	coordinatingOps   atomic.Int64
	primaryBytes      atomic.Int64
	primaryOps        atomic.Int64
	replicaBytes      atomic.Int64
	replicaOps        atomic.Int64

	coordinatingRejections atomic.Int64
	primaryRejections      atomic.Int64

	coordinatingLimit int64
	primaryLimit      int64 // combined coordinating+primary limit
	replicaLimit      int64
}

// New creates a Controller. coordinatingLimit and primaryLimit both bound
// the combined coordinating+primary total, consulted from the coordinating
// and primary admission points respectively. replicaLimit is stored but not
// consulted: MarkReplica never rejects. A limit of 0 means unbounded.
func New(coordinatingLimit, primaryLimit, replicaLimit int64) *Controller {
	return &Controller{
		coordinatingLimit: coordinatingLimit,
		primaryLimit:      primaryLimit,
		replicaLimit:      replicaLimit,
	}
}

// MarkCoordinating admits bytes of coordinating work, checked against the
// combined coordinating+primary limit: a coordinating burst arriving while
// primary work is outstanding must not be allowed to push their sum past
// the limit just because coordinatingBytes alone is still under it.
func (c *Controller) MarkCoordinating(bytes int64) (Releasable, error) {
	if c.coordinatingLimit > 0 {
		cur := c.coordinatingBytes.Add(bytes)
		combined := cur + c.primaryBytes.Load()
		if combined > c.coordinatingLimit {
			c.coordinatingBytes.Add(-bytes)
			c.coordinatingRejections.Add(1)
			return nil, &LimitExceededError{Role: "coordinating", Current: combined - bytes, Bytes: bytes, Limit: c.coordinatingLimit}
		}
	} else {
		c.coordinatingBytes.Add(bytes)
	}
	c.coordinatingOps.Add(1)
	return &release{done: func() {
		c.coordinatingBytes.Add(-bytes)
		c.coordinatingOps.Add(-1)
	}}, nil
}

// MarkPrimary admits bytes of primary-stage work, checked against the
// combined coordinating+primary limit.
func (c *Controller) MarkPrimary(bytes int64) (Releasable, error) {
	if c.primaryLimit > 0 {
		combined := c.coordinatingBytes.Load() + c.primaryBytes.Add(bytes)
		if combined > c.primaryLimit {
			c.primaryBytes.Add(-bytes)
			c.primaryRejections.Add(1)
			return nil, &LimitExceededError{Role: "primary", Current: combined - bytes, Bytes: bytes, Limit: c.primaryLimit}
		}
	} else {
		c.primaryBytes.Add(bytes)
	}
	c.primaryOps.Add(1)
	return &release{done: func() {
		c.primaryBytes.Add(-bytes)
		c.primaryOps.Add(-1)
	}}, nil
}

// MarkReplica admits bytes of replica-stage work. Replica admission never
// rejects on the limit alone; replica pressure throttles at the caller
// instead of hard-rejecting, but still records
// the bytes so Combined() reporting and throttling decisions upstream can
// see it.
func (c *Controller) MarkReplica(bytes int64) Releasable {
	c.replicaBytes.Add(bytes)
	c.replicaOps.Add(1)
	return &release{done: func() {
		c.replicaBytes.Add(-bytes)
		c.replicaOps.Add(-1)
	}}
}

// Counters returns a point-in-time snapshot of every counter.
func (c *Controller) Counters() types.IndexingPressureCounters {
	return types.IndexingPressureCounters{
		CoordinatingBytes:      c.coordinatingBytes.Load(),
		CoordinatingOps:        c.coordinatingOps.Load(),
		PrimaryBytes:           c.primaryBytes.Load(),
		PrimaryOps:             c.primaryOps.Load(),
		ReplicaBytes:           c.replicaBytes.Load(),
		ReplicaOps:             c.replicaOps.Load(),
		CoordinatingRejections: c.coordinatingRejections.Load(),
		PrimaryRejections:      c.primaryRejections.Load(),
	}
}

// Reset zeroes every counter. Nothing in this module calls it: the Manager
// does not reset or drain the counters on leadership loss or on shutdown.
func (c *Controller) Reset() {
	c.coordinatingBytes.Store(0)
	c.coordinatingOps.Store(0)
	c.primaryBytes.Store(0)
	c.primaryOps.Store(0)
	c.replicaBytes.Store(0)
	c.replicaOps.Store(0)
	c.coordinatingRejections.Store(0)
	c.primaryRejections.Store(0)
}
