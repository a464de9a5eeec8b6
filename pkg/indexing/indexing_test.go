package indexing

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkCoordinatingAdmitsUnderLimit(t *testing.T) {
	c := New(1000, 0, 0)
	rel, err := c.MarkCoordinating(400)
	require.NoError(t, err)
	assert.Equal(t, int64(400), c.Counters().CoordinatingBytes)
	rel.Release()
	assert.Equal(t, int64(0), c.Counters().CoordinatingBytes)
}

func TestMarkCoordinatingRejectsOverLimit(t *testing.T) {
	c := New(100, 0, 0)
	_, err := c.MarkCoordinating(50)
	require.NoError(t, err)
	_, err = c.MarkCoordinating(60)
	require.Error(t, err)
	var limitErr *LimitExceededError
	assert.True(t, errors.As(err, &limitErr))
	assert.Equal(t, int64(50), c.Counters().CoordinatingBytes)
	assert.Equal(t, int64(1), c.Counters().CoordinatingRejections)
}

func TestReleaseIsIdempotent(t *testing.T) {
	c := New(1000, 0, 0)
	rel, err := c.MarkCoordinating(200)
	require.NoError(t, err)
	rel.Release()
	rel.Release()
	rel.Release()
	assert.Equal(t, int64(0), c.Counters().CoordinatingBytes)
	assert.Equal(t, int64(0), c.Counters().CoordinatingOps)
}

func TestMarkCoordinatingChecksCombinedLimit(t *testing.T) {
	c := New(100, 0, 0)
	primRel, err := c.MarkPrimary(60)
	require.NoError(t, err)
	defer primRel.Release()

	_, err = c.MarkCoordinating(60)
	require.Error(t, err)
	var limitErr *LimitExceededError
	assert.True(t, errors.As(err, &limitErr))
	assert.Equal(t, int64(1), c.Counters().CoordinatingRejections)
	assert.Equal(t, int64(0), c.Counters().CoordinatingBytes)

	_, err = c.MarkCoordinating(30)
	require.NoError(t, err)
}

func TestMarkPrimaryChecksCombinedLimit(t *testing.T) {
	c := New(0, 100, 0)
	coordRel, err := c.MarkCoordinating(60)
	require.NoError(t, err)
	defer coordRel.Release()

	_, err = c.MarkPrimary(60)
	require.Error(t, err)
	assert.Equal(t, int64(1), c.Counters().PrimaryRejections)

	_, err = c.MarkPrimary(30)
	require.NoError(t, err)
}

func TestConservationAcrossConcurrentMarkRelease(t *testing.T) {
	c := New(0, 0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rel := c.MarkReplica(10)
			rel.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), c.Counters().ReplicaBytes)
	assert.Equal(t, int64(0), c.Counters().ReplicaOps)
}

func TestResetZeroesEverything(t *testing.T) {
	c := New(0, 0, 0)
	c.MarkCoordinating(10)
	c.MarkPrimary(10)
	c.MarkReplica(10)
	c.Reset()
	counters := c.Counters()
	assert.Zero(t, counters.Combined())
	assert.Zero(t, counters.ReplicaBytes)
}
