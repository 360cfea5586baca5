package model

import (
	"context"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/internal/state"
)

// Request is one pending track lookup forwarded to a router (spec §4.D).
type Request struct {
	Info Track

	resp chan requestResult
}

type requestResult struct {
	reader *TrackReader
	err    error
}

// Serve fulfills the request with a track reader.
func (req *Request) Serve(reader *TrackReader) {
	req.resp <- requestResult{reader: reader}
}

// Close rejects the request with err.
func (req *Request) Close(err error) {
	req.resp <- requestResult{err: err}
}

// RouterWriter is held by the side that fulfills requests (typically a
// subscriber's namespace task acting on behalf of an unknown track).
type RouterWriter struct {
	queue *state.Queue[*Request]
}

// Requested awaits the next queued request, or nil once the router closes.
func (w *RouterWriter) Requested(ctx context.Context) *Request {
	req, ok := w.queue.Pop(ctx)
	if !ok {
		return nil
	}
	return req
}

// Close stops accepting further requests.
func (w *RouterWriter) Close(err error) error {
	return w.queue.Close(err)
}

// RouterReader is installed on a BroadcastWriter via RouteTracks and
// consulted whenever a Subscribe lookup misses the static track table.
type RouterReader struct {
	queue *state.Queue[*Request]
}

// Produce issues a request for track and awaits the fulfiller's reply.
func (r *RouterReader) Produce(ctx context.Context, track Track) (*TrackReader, error) {
	req := &Request{Info: track, resp: make(chan requestResult, 1)}
	if !r.queue.Push(req) {
		return nil, transfork.ErrCancel
	}

	select {
	case res := <-req.resp:
		return res.reader, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewRouter yields a writer/reader pair over a FIFO request queue.
func NewRouter() (*RouterWriter, *RouterReader) {
	q := state.NewQueue[*Request]()
	return &RouterWriter{queue: q}, &RouterReader{queue: q}
}
