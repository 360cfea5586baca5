package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_WithLock_BumpsEpochOnMutation(t *testing.T) {
	c := NewCell(0)

	epoch := c.WithLock(func(v *int, closed error) bool {
		*v = 42
		return true
	})
	require.Equal(t, uint64(1), epoch)

	value, gotEpoch, closed := c.Snapshot()
	assert.Equal(t, 42, value)
	assert.Equal(t, uint64(1), gotEpoch)
	assert.NoError(t, closed)
}

func TestCell_WithLock_NoMutationNoEpochBump(t *testing.T) {
	c := NewCell(0)

	c.WithLock(func(v *int, closed error) bool { return false })

	_, epoch, _ := c.Snapshot()
	assert.Equal(t, uint64(0), epoch)
}

func TestCell_ReleaseLastWriter_ClosesWithCancel(t *testing.T) {
	c := NewCell(0)

	c.ReleaseWriter()

	_, _, closed := c.Snapshot()
	require.ErrorIs(t, closed, transfork.ErrCancel)
}

func TestCell_SplitKeepsOpenUntilAllWritersRelease(t *testing.T) {
	c := NewCell(0)
	c.AddWriter()

	c.ReleaseWriter()
	_, _, closed := c.Snapshot()
	assert.NoError(t, closed, "one writer remains")

	c.ReleaseWriter()
	_, _, closed = c.Snapshot()
	assert.ErrorIs(t, closed, transfork.ErrCancel)
}

func TestCell_Close_FirstCallWins(t *testing.T) {
	c := NewCell(0)
	errA := errors.New("a")
	errB := errors.New("b")

	require.NoError(t, c.Close(errA))

	got := c.Close(errB)
	assert.ErrorIs(t, got, errA, "second close reports the first error")

	_, _, closed := c.Snapshot()
	assert.ErrorIs(t, closed, errA)
}

func TestCell_Modified_WakesAllWaitersExactlyOnce(t *testing.T) {
	c := NewCell(0)
	_, epoch, _ := c.Snapshot()

	const waiters = 8
	var wg sync.WaitGroup
	woken := make(chan struct{}, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-c.Modified(epoch)
			woken <- struct{}{}
		}()
	}

	// Give goroutines a chance to register as waiters before mutating.
	time.Sleep(10 * time.Millisecond)
	c.WithLock(func(v *int, closed error) bool {
		*v = 1
		return true
	})

	wg.Wait()
	close(woken)

	count := 0
	for range woken {
		count++
	}
	assert.Equal(t, waiters, count)
}

func TestCell_Closed_RespectsContextCancellation(t *testing.T) {
	c := NewCell(0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Closed(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCell_Closed_ReturnsImmediatelyWhenAlreadyClosed(t *testing.T) {
	c := NewCell(0)
	sentinel := errors.New("boom")
	require.NoError(t, c.Close(sentinel))

	err := c.Closed(context.Background())
	assert.ErrorIs(t, err, sentinel)
}
