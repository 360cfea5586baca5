package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushPop_FIFO(t *testing.T) {
	q := NewQueue[int]()
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.True(t, q.Push(3))

	ctx := context.Background()
	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop(ctx)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueue_Pop_BlocksUntilPush(t *testing.T) {
	q := NewQueue[string]()

	type result struct {
		val string
		ok  bool
	}
	done := make(chan result, 1)
	go func() {
		v, ok := q.Pop(context.Background())
		done <- result{v, ok}
	}()

	select {
	case <-done:
		t.Fatal("pop returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("hello")

	select {
	case r := <-done:
		assert.True(t, r.ok)
		assert.Equal(t, "hello", r.val)
	case <-time.After(time.Second):
		t.Fatal("pop never woke up after push")
	}
}

func TestQueue_CloseDrainsRemainingThenReturnsFalse(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	require.NoError(t, q.Close(nil))

	ctx := context.Background()
	v, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Pop(ctx)
	assert.False(t, ok, "queue should be drained and closed")
}

func TestQueue_PushAfterCloseFails(t *testing.T) {
	q := NewQueue[int]()
	require.NoError(t, q.Close(nil))

	ok := q.Push(1)
	assert.False(t, ok)
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	items := q.Drain()
	assert.Equal(t, []int{1, 2, 3}, items)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := q.Pop(ctx)
	assert.False(t, ok) // nothing left to pop, queue is still open but empty
}
