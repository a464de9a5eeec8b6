// Package queue implements the master task queue: the single-writer,
// priority-ordered executor of cluster state-update tasks.
// Every mutation of cluster state funnels through here as a Task; a single
// run-loop goroutine drains the queue, groups the next batch by executor
// name, and hands it to that Executor.
package queue

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shardctl/shardctl/pkg/log"
)

// Priority orders tasks within the queue. Tasks are dequeued FIFO within a
// priority level.
type Priority int

const (
	Immediate Priority = iota
	Urgent
	High
	Normal
	Low
	numPriorities
)

// ErrNotMaster is returned to every pending listener when this node loses
// its master status while tasks are still queued or in flight.
var ErrNotMaster = fmt.Errorf("no longer master")

// ErrTimeout is returned to a task's listener when its optional timeout
// expires before it is dequeued.
var ErrTimeout = fmt.Errorf("task timed out waiting for its turn")

// Result is delivered to a task's listener exactly once: either Err is nil
// and the task committed (the queue has already run its CommitHook, if
// any), or Err is non-nil and the state was left unchanged.
type Result struct {
	Superseded bool
	Err        error
}

// Task is one state-mutation request. LastConvergedIndex is consulted only
// by executors that implement task supersession (the reconciler executor);
// it is the zero value for all other task kinds.
type Task struct {
	ID                 string
	Executor           string
	Priority           Priority
	Payload            interface{}
	LastConvergedIndex int64
	SubmittedAt        time.Time
	Timeout            time.Duration
	CommitHook         func()

	resultCh chan Result
	deadline time.Time
}

// Executor applies a batch of same-named tasks to the current state and
// returns the new state. It must be deterministic given the same batch, and
// must not mutate initialState in place — implementations return either the
// same pointer (no-op, by identity) or a new one.
type Executor interface {
	Execute(ctx context.Context, initialState interface{}, tasks []*Task) (newState interface{}, err error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, initialState interface{}, tasks []*Task) (interface{}, error)

func (f ExecutorFunc) Execute(ctx context.Context, initialState interface{}, tasks []*Task) (interface{}, error) {
	return f(ctx, initialState, tasks)
}

// Publisher receives the new state produced by a batch, or is not called at
// all when the batch produced no change (newState == initialState by
// identity).
type Publisher func(newState interface{})

// Queue is the single-writer master task queue.
type Queue struct {
	mu        sync.Mutex
	buckets   [numPriorities]*list.List
	notEmpty  chan struct{}
	executors map[string]Executor

	state     interface{}
	publish   Publisher
	isMaster  func() bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Queue seeded with initialState. publish is called with the
// new state after every batch that actually changes it; isMaster is
// consulted before each batch and at submission time.
func New(initialState interface{}, publish Publisher, isMaster func() bool) *Queue {
	q := &Queue{
		notEmpty:  make(chan struct{}, 1),
		executors: make(map[string]Executor),
		state:     initialState,
		publish:   publish,
		isMaster:  isMaster,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for i := range q.buckets {
		q.buckets[i] = list.New()
	}
	return q
}

// RegisterExecutor binds a named executor. Every Task submitted with this
// Executor name is routed to it.
func (q *Queue) RegisterExecutor(name string, ex Executor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.executors[name] = ex
}

// Submit enqueues a task and returns a channel that receives exactly one
// Result. It never blocks on task execution.
func (q *Queue) Submit(t *Task) <-chan Result {
	t.resultCh = make(chan Result, 1)
	t.SubmittedAt = time.Now()
	if t.Timeout > 0 {
		t.deadline = t.SubmittedAt.Add(t.Timeout)
	}

	q.mu.Lock()
	if !q.isMaster() {
		q.mu.Unlock()
		t.resultCh <- Result{Err: ErrNotMaster}
		return t.resultCh
	}
	q.buckets[t.Priority].PushBack(t)
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
	return t.resultCh
}

// Run is the single master-update thread; it drains the queue until
// Stop is called. Callers should run it in its own goroutine.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.doneCh)
	logger := log.WithComponent("queue")
	for {
		select {
		case <-q.stopCh:
			q.drainWithNotMaster()
			return
		case <-ctx.Done():
			q.drainWithNotMaster()
			return
		case <-q.notEmpty:
		}

		for {
			if !q.isMaster() {
				q.drainWithNotMaster()
				return
			}
			batch, executorName, ok := q.nextBatch()
			if !ok {
				break
			}
			q.runBatch(ctx, executorName, batch, &logger)
		}
	}
}

// Stop signals Run to exit, failing every still-queued task with
// ErrNotMaster, and blocks until Run has returned.
func (q *Queue) Stop() {
	close(q.stopCh)
	<-q.doneCh
}

// nextBatch pops every currently-queued task for the single highest-priority
// executor present, preserving FIFO order within that executor.
func (q *Queue) nextBatch() ([]*Task, string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := 0; p < int(numPriorities); p++ {
		b := q.buckets[p]
		if b.Len() == 0 {
			continue
		}
		front := b.Front().Value.(*Task)
		executorName := front.Executor

		var batch []*Task
		var next *list.Element
		for e := b.Front(); e != nil; e = next {
			next = e.Next()
			t := e.Value.(*Task)
			if t.Executor != executorName {
				continue
			}
			if !t.deadline.IsZero() && time.Now().After(t.deadline) {
				b.Remove(e)
				t.resultCh <- Result{Err: ErrTimeout}
				continue
			}
			batch = append(batch, t)
			b.Remove(e)
		}
		return batch, executorName, len(batch) > 0
	}
	return nil, "", false
}

// runBatch applies task supersession for reconcile-style batches (keep only
// the task with the greatest LastConvergedIndex; the rest succeed as
// no-ops), then hands the surviving tasks to the executor.
func (q *Queue) runBatch(ctx context.Context, executorName string, batch []*Task, logger *zerolog.Logger) {
	q.mu.Lock()
	ex, ok := q.executors[executorName]
	q.mu.Unlock()
	if !ok {
		err := fmt.Errorf("no executor registered for %q", executorName)
		logger.Error().Err(err).Msg("dropping batch")
		for _, t := range batch {
			t.resultCh <- Result{Err: err}
		}
		return
	}

	live, superseded := supersede(batch)
	for _, t := range superseded {
		if t.CommitHook != nil {
			t.CommitHook()
		}
		t.resultCh <- Result{Superseded: true}
	}

	if len(live) == 0 {
		return
	}

	newState, err := ex.Execute(ctx, q.state, live)
	if err != nil {
		logger.Error().Err(err).Str("executor", executorName).Msg("executor failed")
		for _, t := range live {
			t.resultCh <- Result{Err: err}
		}
		return
	}

	changed := !sameIdentity(newState, q.state)
	if changed {
		q.state = newState
		if q.publish != nil {
			q.publish(newState)
		}
	}
	for _, t := range live {
		if t.CommitHook != nil {
			t.CommitHook()
		}
		t.resultCh <- Result{}
	}
}

// supersede keeps only the task with the greatest LastConvergedIndex among
// tasks that set one (> 0); tasks with LastConvergedIndex == 0 are never
// superseded (they are not reconcile batches).
func supersede(batch []*Task) (live []*Task, superseded []*Task) {
	hasIndexed := false
	var maxIdx int64 = -1
	for _, t := range batch {
		if t.LastConvergedIndex > 0 {
			hasIndexed = true
			if t.LastConvergedIndex > maxIdx {
				maxIdx = t.LastConvergedIndex
			}
		}
	}
	if !hasIndexed {
		return batch, nil
	}
	kept := false
	for _, t := range batch {
		if t.LastConvergedIndex == maxIdx && !kept {
			live = append(live, t)
			kept = true
			continue
		}
		if t.LastConvergedIndex > 0 {
			superseded = append(superseded, t)
			continue
		}
		live = append(live, t)
	}
	return live, superseded
}

// sameIdentity reports whether a and b are the same state value. State is
// expected to be passed around as a pointer (e.g. *controlplane.State), so
// this is a pointer-identity comparison: unchanged state must be returned
// by the same pointer, not a deep-equal copy.
func sameIdentity(a, b interface{}) bool {
	return a == b
}

func (q *Queue) drainWithNotMaster() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range q.buckets {
		for e := b.Front(); e != nil; e = e.Next() {
			t := e.Value.(*Task)
			t.resultCh <- Result{Err: ErrNotMaster}
		}
		b.Init()
	}
}
