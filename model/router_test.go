package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_ProduceAwaitsServe(t *testing.T) {
	rw, rr := NewRouter()
	_, reader := NewTrack("room", "video").Produce()

	go func() {
		req := rw.Requested(context.Background())
		require.NotNil(t, req)
		req.Serve(reader)
	}()

	got, err := rr.Produce(context.Background(), NewTrack("room", "video").Build())
	require.NoError(t, err)
	assert.Same(t, reader, got)
}

func TestRouter_ProduceRespectsContextCancellation(t *testing.T) {
	rw, rr := NewRouter()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rr.Produce(ctx, NewTrack("room", "video").Build())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Drain the request the unfulfilled call left behind so it doesn't leak.
	req := rw.Requested(context.Background())
	require.NotNil(t, req)
}

func TestRouter_CloseStopsAcceptingRequests(t *testing.T) {
	rw, _ := NewRouter()
	require.NoError(t, rw.Close(nil))

	req := rw.Requested(context.Background())
	assert.Nil(t, req)
}
