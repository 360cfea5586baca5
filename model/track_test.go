package model

import (
	"context"
	"testing"
	"time"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_AppendAutoIncrementsSequence(t *testing.T) {
	w, r := NewTrack("room", "video").Produce()

	g0, err := w.Append()
	require.NoError(t, err)
	require.NoError(t, g0.Close(nil))

	g1, err := w.Append()
	require.NoError(t, err)
	require.NoError(t, g1.Close(nil))

	assert.Equal(t, uint64(0), g0.Sequence)
	assert.Equal(t, uint64(1), g1.Sequence)

	seq, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)
}

// S2: creating a group at the already-published sequence fails with
// ErrDuplicate.
func TestTrack_CreateDuplicateSequence_Fails(t *testing.T) {
	w, _ := NewTrack("room", "video").Produce()

	_, err := w.Create(5)
	require.NoError(t, err)

	_, err = w.Create(5)
	assert.ErrorIs(t, err, transfork.ErrDuplicate)
}

// S3: a group created with a sequence older than the latest-published one
// is handed back to the caller but never becomes observable to readers.
func TestTrack_CreateOutOfOrder_NeverObservable(t *testing.T) {
	w, r := NewTrack("room", "video").Produce()

	_, err := w.Create(5)
	require.NoError(t, err)

	stale, err := w.Create(3)
	require.NoError(t, err)
	require.NotNil(t, stale)

	seq, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), seq, "stale group must not overwrite the latest")
}

// S6: every reader clone observes the same sequence of published groups
// from the point of cloning onward.
func TestTrack_Clone_FansOutToEveryReader(t *testing.T) {
	w, r1 := NewTrack("room", "video").Produce()
	r2 := r1.Clone()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	g, err := w.Append()
	require.NoError(t, err)
	require.NoError(t, g.Close(nil))

	got1, err := r1.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, got1)
	assert.Equal(t, uint64(0), got1.Sequence)

	got2, err := r2.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, got2)
	assert.Equal(t, uint64(0), got2.Sequence)
}

func TestTrack_ReleaseLastWriter_ClosesReaderWithCancel(t *testing.T) {
	w, r := NewTrack("room", "video").Produce()
	w.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Closed(ctx)
	assert.ErrorIs(t, err, transfork.ErrCancel)

	got, err := r.Next(ctx)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestTrack_SplitAllowsConcurrentWriters(t *testing.T) {
	w1, r := NewTrack("room", "video").Produce()
	w2 := w1.Split()

	g, err := w1.Create(0)
	require.NoError(t, err)
	require.NoError(t, g.Close(nil))

	g, err = w2.Create(1)
	require.NoError(t, err)
	require.NoError(t, g.Close(nil))

	seq, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)
}
