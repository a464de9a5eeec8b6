package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	applied []string
}

func echoExecutor(tag string) ExecutorFunc {
	return func(ctx context.Context, initialState interface{}, tasks []*Task) (interface{}, error) {
		s := initialState.(*testState)
		next := &testState{applied: append(append([]string{}, s.applied...), tag)}
		return next, nil
	}
}

func TestSupersessionKeepsOnlyGreatestIndex(t *testing.T) {
	live, superseded := supersede([]*Task{
		{ID: "a", LastConvergedIndex: 7, resultCh: make(chan Result, 1)},
		{ID: "b", LastConvergedIndex: 9, resultCh: make(chan Result, 1)},
		{ID: "c", LastConvergedIndex: 3, resultCh: make(chan Result, 1)},
	})
	require.Len(t, live, 1)
	assert.Equal(t, "b", live[0].ID)
	assert.Len(t, superseded, 2)
}

func TestSupersessionIgnoresNonReconcileTasks(t *testing.T) {
	live, superseded := supersede([]*Task{
		{ID: "a", resultCh: make(chan Result, 1)},
		{ID: "b", resultCh: make(chan Result, 1)},
	})
	assert.Len(t, live, 2)
	assert.Empty(t, superseded)
}

func TestQueueRunsBatchAndPublishes(t *testing.T) {
	var published interface{}
	q := New(&testState{}, func(s interface{}) { published = s }, func() bool { return true })
	q.RegisterExecutor("create_index", echoExecutor("create_index"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)
	defer q.Stop()

	result := <-q.Submit(&Task{ID: "t1", Executor: "create_index", Priority: Normal})
	assert.NoError(t, result.Err)
	assert.False(t, result.Superseded)

	assert.Eventually(t, func() bool {
		s, ok := published.(*testState)
		return ok && len(s.applied) == 1
	}, time.Second, time.Millisecond)
}

func TestQueueRejectsWhenNotMaster(t *testing.T) {
	q := New(&testState{}, nil, func() bool { return false })
	result := <-q.Submit(&Task{ID: "t1", Executor: "noop", Priority: Normal})
	assert.ErrorIs(t, result.Err, ErrNotMaster)
}

func TestPriorityOrdering(t *testing.T) {
	var order []string
	q := New(&testState{}, nil, func() bool { return true })
	q.RegisterExecutor("track", ExecutorFunc(func(ctx context.Context, s interface{}, tasks []*Task) (interface{}, error) {
		for _, t := range tasks {
			order = append(order, t.ID)
		}
		return s, nil
	}))

	low := q.Submit(&Task{ID: "low", Executor: "track", Priority: Low})
	urgent := q.Submit(&Task{ID: "urgent", Executor: "track", Priority: Urgent})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)
	defer q.Stop()
	<-low
	<-urgent

	require.Len(t, order, 2)
	assert.Equal(t, "urgent", order[0])
}
